package scanner

import (
	"context"
	"net/netip"

	"github.com/velemoonkon/webinfo/pkg/dns"
	"github.com/velemoonkon/webinfo/pkg/tlsprobe"
)

// Resolver is the DNS stage of a probe
type Resolver interface {
	// Resolve never fails as a call; resolution errors are carried in the outcome
	Resolve(ctx context.Context, hostname string) *dns.Outcome
}

// Prober is the TLS stage of a probe
type Prober interface {
	// Probe is only called with at least one address
	Probe(ctx context.Context, addrs []netip.Addr, hostname string) *tlsprobe.Outcome
}

// ResolverFunc is a function adapter for Resolver
type ResolverFunc func(ctx context.Context, hostname string) *dns.Outcome

func (f ResolverFunc) Resolve(ctx context.Context, hostname string) *dns.Outcome {
	return f(ctx, hostname)
}

// ProberFunc is a function adapter for Prober
type ProberFunc func(ctx context.Context, addrs []netip.Addr, hostname string) *tlsprobe.Outcome

func (f ProberFunc) Probe(ctx context.Context, addrs []netip.Addr, hostname string) *tlsprobe.Outcome {
	return f(ctx, addrs, hostname)
}

// NewStages builds the network-backed resolver and prober described by cfg
func NewStages(cfg Config) (*dns.Resolver, *tlsprobe.Prober, error) {
	resolver, err := dns.NewResolver(dns.ResolverConfig{
		Servers:      cfg.DNSServers,
		Transport:    cfg.DNSProto,
		Strategy:     cfg.DNSStrategy,
		Timeout:      cfg.Timeout,
		ExtraRecords: cfg.ExtraRecords,
	})
	if err != nil {
		return nil, nil, err
	}

	prober, err := tlsprobe.NewProber(tlsprobe.Config{
		Port:            cfg.Port,
		ConnectAttempts: cfg.ConnectAttempts,
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	return resolver, prober, nil
}
