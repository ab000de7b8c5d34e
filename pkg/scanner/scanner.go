package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/velemoonkon/webinfo/pkg/config"
	"github.com/velemoonkon/webinfo/pkg/dns"
	"github.com/velemoonkon/webinfo/pkg/tlsprobe"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Scanner orchestrates concurrent hostname probing: DNS resolution followed,
// when an address was found, by a TLS handshake
type Scanner struct {
	config   Config
	limiter  *rate.Limiter
	resolver Resolver
	prober   Prober
	events   EventSink
}

// Option customises a Scanner
type Option func(*Scanner)

// WithEventSink sends every state transition to sink
func WithEventSink(sink EventSink) Option {
	return func(s *Scanner) {
		s.events = sink
	}
}

// New creates a scanner backed by the real DNS and TLS stages
func New(cfg Config, opts ...Option) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	resolver, prober, err := NewStages(cfg)
	if err != nil {
		return nil, err
	}
	return NewScanner(cfg, resolver, prober, opts...)
}

// NewScanner creates a scanner with the given stages. The configuration is
// validated here, before any network activity can happen.
func NewScanner(cfg Config, resolver Resolver, prober Prober, opts ...Option) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Create rate limiter - treat RateLimit <= 0 as no limit
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 0) // No rate limit
	}

	s := &Scanner{
		config:   cfg,
		limiter:  limiter,
		resolver: resolver,
		prober:   prober,
		events:   discardSink{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Scan probes targets and returns one report per target in input order.
//
// At most Concurrency targets are in flight: a semaphore slot is taken before
// a target's goroutine starts and given back when the target reaches a
// terminal state, so the next target is admitted immediately. Workers hand
// their single report to one collector goroutine over a channel.
//
// Per-target failures are data in the reports. An error is returned only for
// invalid targets or when ctx ends before every target was admitted; the
// reports collected so far are returned with ErrIncomplete in that case.
func (s *Scanner) Scan(ctx context.Context, targets []Target) (Batch, error) {
	for i, t := range targets {
		if t.Index != i {
			return nil, fmt.Errorf("%w: target %q has index %d at position %d", ErrInvalidTarget, t.Hostname, t.Index, i)
		}
	}
	if len(targets) == 0 {
		return Batch{}, nil
	}

	sem := semaphore.NewWeighted(int64(s.config.Concurrency))
	reports := make(chan *ProbeReport, min(config.Scanner.ReportChannelBuffer, len(targets)))
	collector := NewCollector(len(targets))

	var collectorWg sync.WaitGroup
	collectorWg.Go(func() {
		for report := range reports {
			collector.Record(report)
			if !s.config.Quiet {
				s.logProgress(report, collector.Recorded(), len(targets))
			}
		}
	})

	var wg sync.WaitGroup
	for _, target := range targets {
		// Apply rate limiting, then wait for a free slot
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Go(func() {
			report := s.probe(ctx, target)
			sem.Release(1)
			reports <- report
		})
	}

	// Wait for workers, then for the collector to drain
	wg.Wait()
	close(reports)
	collectorWg.Wait()

	batch, err := collector.Finalize()
	if err != nil && ctx.Err() != nil {
		return batch, fmt.Errorf("%w: %w", err, context.Cause(ctx))
	}
	return batch, err
}

// probe runs the per-target state machine to a terminal state
func (s *Scanner) probe(ctx context.Context, target Target) *ProbeReport {
	report := &ProbeReport{
		Target:    target,
		State:     StatePending,
		StartedAt: time.Now(),
	}
	s.transition(ctx, report, StageDispatch, StatePending, "", "")

	s.transition(ctx, report, StageDNS, StateResolving, "", "")
	report.DNS = s.resolver.Resolve(ctx, target.Hostname)
	if report.DNS == nil {
		report.DNS = &dns.Outcome{Error: &dns.Error{Kind: dns.KindRefused, Message: "DNS stage returned no outcome"}}
	}
	if !report.DNS.OK() {
		if report.DNS.Error == nil {
			report.DNS.Error = &dns.Error{Kind: dns.KindNoRecords, Message: "no addresses"}
		}
		report.FinishedAt = time.Now()
		s.transition(ctx, report, StageDNS, StateDNSFailed, string(report.DNS.Error.Kind), report.DNS.Error.Message)
		return report
	}
	s.transition(ctx, report, StageDNS, StateResolved, "", "")

	s.transition(ctx, report, StageTLS, StateProbing, "", "")
	report.TLS = s.prober.Probe(ctx, report.DNS.Addresses, target.Hostname)
	report.FinishedAt = time.Now()
	if report.TLS == nil {
		report.TLS = &tlsprobe.Outcome{Error: &tlsprobe.Error{Kind: tlsprobe.KindHandshakeFailed, Message: "TLS stage returned no outcome"}}
	}
	if err := report.TLS.Error; err != nil {
		s.transition(ctx, report, StageTLS, StateTLSFailed, string(err.Kind), err.Message)
		return report
	}
	s.transition(ctx, report, StageTLS, StateCompleted, "", "")
	return report
}

func (s *Scanner) transition(ctx context.Context, report *ProbeReport, stage Stage, state State, kind, message string) {
	report.State = state
	e := Event{
		Index:    report.Index,
		Hostname: report.Hostname,
		Stage:    stage,
		State:    state,
		Kind:     kind,
		Message:  message,
		Time:     time.Now(),
	}
	slog.LogAttrs(ctx, slog.LevelDebug, "state transition", e.LogAttrs()...)
	s.events.Emit(e)
}

// logProgress logs a finished report with structured logging using slog.Group for nested attributes
func (s *Scanner) logProgress(report *ProbeReport, done, total int) {
	attrs := []any{
		slog.String("hostname", report.Hostname),
		slog.String("state", string(report.State)),
		slog.String("progress", fmt.Sprintf("%d/%d", done, total)),
	}

	if d := report.DNS; d != nil {
		dnsAttrs := []any{slog.Int("addresses", len(d.Addresses))}
		if d.Error != nil {
			dnsAttrs = append(dnsAttrs, slog.String("error", string(d.Error.Kind)))
		}
		attrs = append(attrs, slog.Group("dns", dnsAttrs...))
	}

	if t := report.TLS; t != nil {
		tlsAttrs := []any{slog.String("address", t.Address)}
		if t.Error != nil {
			tlsAttrs = append(tlsAttrs, slog.String("error", string(t.Error.Kind)))
		} else {
			tlsAttrs = append(tlsAttrs,
				slog.String("version", t.Version),
				slog.String("issuer", t.IssuerOrganization))
		}
		attrs = append(attrs, slog.Group("tls", tlsAttrs...))
	}

	slog.Info("probe finished", attrs...)
}
