package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownTransport is returned for a transport name with no implementation
var ErrUnknownTransport = errors.New("unknown DNS transport")

// errAnswered stops the remaining parallel queries once one server has answered
var errAnswered = errors.New("answered")

// ResolverConfig configures a Resolver
type ResolverConfig struct {
	// Servers are custom resolver addresses; empty means the system resolver
	Servers []string
	// Transport is one of udp, tcp, dot, doh. Ignored for the system resolver.
	Transport string
	Strategy  Strategy
	// Timeout bounds each server attempt
	Timeout time.Duration
	// ExtraRecords enables the best-effort NS lookup of the registrable domain
	ExtraRecords bool
}

// Resolver turns hostnames into addresses. It never returns an error for a
// hostname that fails to resolve; the failure is carried in the Outcome.
type Resolver struct {
	cfg       ResolverConfig
	opts      QueryOptions
	transport Transport
	system    *net.Resolver
}

// ResolverOption customises a Resolver
type ResolverOption func(*Resolver)

// WithTransport replaces the transport selected by name
func WithTransport(t Transport) ResolverOption {
	return func(r *Resolver) {
		r.transport = t
	}
}

// WithSystemResolver replaces net.DefaultResolver
func WithSystemResolver(sys *net.Resolver) ResolverOption {
	return func(r *Resolver) {
		r.system = sys
	}
}

// NewResolver creates a resolver from cfg
func NewResolver(cfg ResolverConfig, options ...ResolverOption) (*Resolver, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("DNS timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySequential
	}
	if cfg.Transport == "" {
		cfg.Transport = "udp"
	}

	opts := DefaultQueryOptions()
	opts.Timeout = cfg.Timeout

	r := &Resolver{
		cfg:    cfg,
		opts:   opts,
		system: net.DefaultResolver,
	}
	for _, o := range options {
		o(r)
	}

	if r.transport == nil && len(cfg.Servers) > 0 {
		t, ok := NewDefaultRegistry(opts).Get(cfg.Transport)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Transport)
		}
		r.transport = t
	}

	return r, nil
}

// Resolve resolves hostname to its IPv4 and IPv6 addresses
func (r *Resolver) Resolve(ctx context.Context, hostname string) *Outcome {
	hostname = strings.TrimSuffix(hostname, ".")

	// An address literal needs no lookup
	if addr, err := netip.ParseAddr(hostname); err == nil {
		return &Outcome{
			Addresses: []netip.Addr{addr.Unmap()},
			Resolver:  "literal",
			Transport: "literal",
		}
	}

	var out *Outcome
	if len(r.cfg.Servers) == 0 {
		out = r.resolveSystem(ctx, hostname)
	} else {
		out = r.resolveCustom(ctx, hostname)
	}

	if r.cfg.ExtraRecords && out.OK() {
		r.lookupExtra(ctx, hostname, out)
	}
	return out
}

// serverAnswer is the result of querying one server for A and AAAA
type serverAnswer struct {
	server    string
	addresses []netip.Addr
	cnames    []string
	err       *Error
}

func (r *Resolver) resolveCustom(ctx context.Context, hostname string) *Outcome {
	out := &Outcome{
		Resolver:  "custom",
		Transport: r.transport.Name(),
		Servers:   r.cfg.Servers,
	}

	var answers []serverAnswer
	if r.cfg.Strategy == StrategyParallel {
		answers = r.queryParallel(ctx, hostname)
	} else {
		answers = r.querySequential(ctx, hostname)
	}

	for _, a := range answers {
		if a.err == nil {
			out.Addresses = a.addresses
			out.CNAMEs = a.cnames
			out.AnsweredBy = a.server
			return out
		}
	}

	out.Error = aggregateErrors(answers)
	return out
}

func (r *Resolver) querySequential(ctx context.Context, hostname string) []serverAnswer {
	answers := make([]serverAnswer, 0, len(r.cfg.Servers))
	for _, server := range r.cfg.Servers {
		a := r.queryServer(ctx, server, hostname)
		answers = append(answers, a)
		if a.err == nil || ctx.Err() != nil {
			break
		}
		slog.Debug("DNS server failed, trying next",
			"hostname", hostname,
			"server", server,
			"kind", a.err.Kind,
			"error", a.err.Message)
	}
	return answers
}

func (r *Resolver) queryParallel(ctx context.Context, hostname string) []serverAnswer {
	answers := make([]serverAnswer, len(r.cfg.Servers))

	g, gctx := errgroup.WithContext(ctx)
	for i, server := range r.cfg.Servers {
		g.Go(func() error {
			answers[i] = r.queryServer(gctx, server, hostname)
			if answers[i].err == nil {
				return errAnswered
			}
			return nil
		})
	}
	_ = g.Wait()

	// Siblings cancelled by the winner report spurious failures; only the
	// winner matters then, and resolveCustom picks it in listed order.
	return answers
}

// queryServer asks a single server for A and AAAA concurrently within one timeout
func (r *Resolver) queryServer(ctx context.Context, server, hostname string) serverAnswer {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var v4, v6 familyAnswer
	var g errgroup.Group
	g.Go(func() error {
		v4 = r.queryFamily(ctx, server, hostname, dns.TypeA)
		return nil
	})
	g.Go(func() error {
		v6 = r.queryFamily(ctx, server, hostname, dns.TypeAAAA)
		return nil
	})
	_ = g.Wait()

	answer := serverAnswer{server: server}
	answer.addresses = sortAddrs(append(v4.addresses, v6.addresses...))
	answer.cnames = mergeNames(v4.cnames, v6.cnames)

	if len(answer.addresses) > 0 {
		return answer
	}

	if v4.err == nil && v6.err == nil {
		answer.err = &Error{Kind: KindNoRecords, Message: server + ": no A or AAAA records"}
		return answer
	}
	worst := worstError(v4.err, v6.err)
	answer.err = &Error{Kind: worst.Kind, Message: server + ": " + worst.Message}
	return answer
}

type familyAnswer struct {
	addresses []netip.Addr
	cnames    []string
	// err is nil for a NOERROR reply, even one without addresses
	err *Error
}

func (r *Resolver) queryFamily(ctx context.Context, server, hostname string, qtype uint16) familyAnswer {
	msg := NewQuery(hostname, qtype, r.opts)
	resp, _, err := r.transport.Exchange(ctx, server, msg)
	if err != nil {
		return familyAnswer{err: classifyExchangeError(err)}
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return familyAnswer{err: &Error{Kind: KindNoRecords, Message: "NXDOMAIN"}}
	default:
		return familyAnswer{err: &Error{Kind: KindRefused, Message: dns.RcodeToString[resp.Rcode]}}
	}

	var fa familyAnswer
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(v.A); ok {
				fa.addresses = append(fa.addresses, addr.Unmap())
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(v.AAAA); ok {
				fa.addresses = append(fa.addresses, addr)
			}
		case *dns.CNAME:
			fa.cnames = append(fa.cnames, strings.TrimSuffix(v.Target, "."))
		}
	}
	return fa
}

// classifyExchangeError maps a transport error to Timeout or Refused
func classifyExchangeError(err error) *Error {
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, Message: err.Error()}
	}
	return &Error{Kind: KindRefused, Message: err.Error()}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// kindRank orders error kinds for aggregation: a definitive "no such name"
// outranks a rejection, which outranks silence.
func kindRank(k ErrorKind) int {
	switch k {
	case KindNoRecords:
		return 3
	case KindRefused:
		return 2
	default:
		return 1
	}
}

func worstError(errs ...*Error) *Error {
	var worst *Error
	for _, e := range errs {
		if e == nil {
			continue
		}
		if worst == nil || kindRank(e.Kind) > kindRank(worst.Kind) {
			worst = e
		}
	}
	return worst
}

// aggregateErrors folds per-server failures into one error. The kind is the
// highest-ranked kind seen; the message lists every server's failure.
func aggregateErrors(answers []serverAnswer) *Error {
	if len(answers) == 0 {
		return &Error{Kind: KindTimeout, Message: "no DNS server was queried"}
	}

	errs := make([]*Error, 0, len(answers))
	msgs := make([]string, 0, len(answers))
	for _, a := range answers {
		if a.err != nil {
			errs = append(errs, a.err)
			msgs = append(msgs, a.err.Message)
		}
	}

	worst := worstError(errs...)
	return &Error{Kind: worst.Kind, Message: strings.Join(msgs, "; ")}
}

func mergeNames(lists ...[]string) []string {
	var merged []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			merged = append(merged, name)
		}
	}
	return merged
}
