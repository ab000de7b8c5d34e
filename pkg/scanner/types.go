package scanner

import (
	"errors"
	"fmt"
	"time"

	"github.com/velemoonkon/webinfo/pkg/config"
	"github.com/velemoonkon/webinfo/pkg/dns"
	"github.com/velemoonkon/webinfo/pkg/tlsprobe"
)

var (
	// ErrInvalidConcurrency is returned when Concurrency < 1
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	// ErrInvalidTimeout is returned when the per-stage timeout is not positive
	ErrInvalidTimeout = errors.New("timeout must be positive")
	// ErrInvalidTarget is returned when target indexes are not 0..n-1 in order
	ErrInvalidTarget = errors.New("invalid target")
	// ErrIncomplete is returned with a partial batch when the run was interrupted
	ErrIncomplete = errors.New("scan incomplete")
)

// Target is one hostname to probe. Index is its position in the input and
// the only ordering key of the final batch.
type Target struct {
	Index    int    `json:"index"`
	Hostname string `json:"hostname"`
	Origin   string `json:"origin"` // raw input value the hostname was taken from
	// Fields holds the row's other non-empty CSV columns by lower-cased
	// header name (popularity, date, country...). Nil for plain lists.
	Fields map[string]string `json:"fields"`
}

// TargetsFromHostnames indexes hostnames in order
func TargetsFromHostnames(hostnames []string) []Target {
	targets := make([]Target, len(hostnames))
	for i, h := range hostnames {
		targets[i] = Target{Index: i, Hostname: h, Origin: h}
	}
	return targets
}

// State is a step of the per-target state machine
type State string

const (
	StatePending   State = "pending"
	StateResolving State = "resolving"
	StateResolved  State = "resolved"
	StateDNSFailed State = "dns_failed"
	StateProbing   State = "probing"
	StateCompleted State = "completed"
	StateTLSFailed State = "tls_failed"
)

// Terminal reports whether no further work follows s
func (s State) Terminal() bool {
	switch s {
	case StateDNSFailed, StateCompleted, StateTLSFailed:
		return true
	}
	return false
}

// ProbeReport is the outcome for a single target. It is written once by the
// worker that owns the target and not modified after it is handed to the collector.
type ProbeReport struct {
	Target
	State      State             `json:"state"`
	DNS        *dns.Outcome      `json:"dns"`
	TLS        *tlsprobe.Outcome `json:"tls"` // nil when the TLS stage was skipped
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Batch holds one report per target, ordered by target index
type Batch []*ProbeReport

// Config is the engine configuration, fixed for a run
type Config struct {
	Concurrency     int           // Targets in flight at once (>= 1)
	DNSServers      []string      // Custom resolvers; empty = system resolver
	DNSProto        string        // udp, tcp, dot or doh for custom resolvers
	DNSStrategy     dns.Strategy  // sequential or parallel
	Timeout         time.Duration // Per stage: each DNS server attempt, each connect, the handshake
	Port            int           // TLS port
	ConnectAttempts int           // Resolved addresses tried on connect failure
	RateLimit       int           // Max targets admitted per second (0 or negative = no limit)
	ExtraRecords    bool          // CNAME and NS lookups
	Quiet           bool          // Suppress per-report progress logging
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	cfg := config.Scanner
	return Config{
		Concurrency:     cfg.DefaultConcurrency,
		DNSProto:        cfg.DefaultDNSProto,
		DNSStrategy:     dns.Strategy(cfg.DefaultDNSStrategy),
		Timeout:         cfg.DefaultTimeout,
		Port:            cfg.DefaultPort,
		ConnectAttempts: cfg.DefaultConnectAttempts,
		RateLimit:       cfg.DefaultRateLimit,
		ExtraRecords:    cfg.DefaultExtraRecords,
	}
}

// Validate checks the settings the engine itself depends on
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidConcurrency, c.Concurrency)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w, got %s", ErrInvalidTimeout, c.Timeout)
	}
	return nil
}
