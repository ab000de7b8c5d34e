package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
	"github.com/muesli/termenv"
	"github.com/velemoonkon/webinfo/pkg/scanner"
)

// progress renders a live summary of a running scan. It is a scanner
// event sink; rendering happens on its own goroutine so Emit never waits
// for the terminal.
type progress struct {
	term    *uilive.Writer
	profile termenv.Profile
	total   int
	started time.Time

	mu       sync.Mutex
	inFlight int
	counts   map[scanner.State]int

	stop    chan struct{}
	stopped chan struct{}
}

func newProgress(w io.Writer, total int) *progress {
	term := uilive.New()
	term.Out = w
	return &progress{
		term:    term,
		profile: termenv.NewOutput(w).Profile,
		total:   total,
		started: time.Now(),
		counts:  make(map[scanner.State]int),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins periodic rendering
func (p *progress) Start() {
	go func() {
		defer close(p.stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.render()
			case <-p.stop:
				// Final frame
				p.render()
				return
			}
		}
	}()
}

// Stop renders a last frame and waits for the render goroutine
func (p *progress) Stop() {
	close(p.stop)
	<-p.stopped
}

func (p *progress) Emit(e scanner.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case e.Stage == scanner.StageDispatch:
		p.inFlight++
	case e.State.Terminal():
		p.inFlight--
		p.counts[e.State]++
	}
}

// render draws the current counters and flushes them to the terminal.
// uilive's own background Start() is avoided, it may flush half a frame.
func (p *progress) render() {
	fmt.Fprintln(p.term, p.line())
	_ = p.term.Flush()
}

func (p *progress) line() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	completed := p.counts[scanner.StateCompleted]
	dnsFailed := p.counts[scanner.StateDNSFailed]
	tlsFailed := p.counts[scanner.StateTLSFailed]
	done := completed + dnsFailed + tlsFailed

	elapsed := time.Since(p.started).Round(time.Second)
	return fmt.Sprintf("%s %d/%d  %s  %s  %s  in flight %d  [%s]",
		p.profile.String("probed").Bold(),
		done, p.total,
		p.profile.String(fmt.Sprintf("completed %d", completed)).Foreground(termenv.ANSIGreen),
		p.profile.String(fmt.Sprintf("dns_failed %d", dnsFailed)).Foreground(termenv.ANSIRed),
		p.profile.String(fmt.Sprintf("tls_failed %d", tlsFailed)).Foreground(termenv.ANSIYellow),
		p.inFlight,
		elapsed)
}
