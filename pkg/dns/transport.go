package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/velemoonkon/webinfo/pkg/config"
)

// Transport sends a DNS message to a single server
type Transport interface {
	// Name returns the transport name (udp, tcp, dot, doh)
	Name() string

	// Exchange sends msg to server and returns the response and round-trip time.
	// server is an IP address with an optional port.
	Exchange(ctx context.Context, server string, msg *dns.Msg) (*dns.Msg, time.Duration, error)
}

// Registry manages available DNS transports
type Registry struct {
	transports map[string]Transport
}

// NewRegistry creates a new transport registry
func NewRegistry() *Registry {
	return &Registry{
		transports: make(map[string]Transport),
	}
}

// Register adds a transport to the registry
func (r *Registry) Register(t Transport) {
	r.transports[t.Name()] = t
}

// Get retrieves a transport by name
func (r *Registry) Get(name string) (Transport, bool) {
	t, ok := r.transports[name]
	return t, ok
}

// Names returns the registered transport names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	return names
}

// NewDefaultRegistry creates a registry with all default transports
func NewDefaultRegistry(opts QueryOptions) *Registry {
	registry := NewRegistry()

	registry.Register(NewUDPTransport(opts))
	registry.Register(NewTCPTransport(opts))
	registry.Register(NewDoTTransport(opts))
	registry.Register(NewDoHTransport(opts))

	return registry
}

// NewQuery builds a query message for domain honouring opts
func NewQuery(domain string, qtype uint16, opts QueryOptions) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)
	msg.RecursionDesired = opts.RecursionDesired

	// Add EDNS if requested
	if opts.UseEDNS {
		opt := new(dns.OPT)
		opt.Hdr.Name = "."
		opt.Hdr.Rrtype = dns.TypeOPT
		opt.SetUDPSize(opts.EDNSBufferSize)
		msg.Extra = append(msg.Extra, opt)
	}
	return msg
}

// withDefaultPort appends port to server unless it already carries one
func withDefaultPort(server, port string) string {
	if _, _, err := net.SplitHostPort(server); err != nil {
		return net.JoinHostPort(server, port)
	}
	return server
}

// exchangeContext sends msg to addr over a fresh connection. miekg/dns only
// honours the context deadline, so the connection is also closed as soon as
// ctx is cancelled; the error then wraps ctx.Err().
func exchangeContext(ctx context.Context, client *dns.Client, msg *dns.Msg, addr string) (*dns.Msg, time.Duration, error) {
	co, err := client.DialContext(ctx, addr)
	if err != nil {
		return nil, 0, contextError(ctx, err)
	}
	defer co.Close()

	stop := context.AfterFunc(ctx, func() { _ = co.Close() })
	defer stop()

	resp, rtt, err := client.ExchangeWithConnContext(ctx, msg, co)
	if err != nil {
		return nil, 0, contextError(ctx, err)
	}
	return resp, rtt, nil
}

// contextError prefers the context error over the socket error it caused
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return err
}

// checkResponse validates a response against the query it answers
func checkResponse(query, resp *dns.Msg) error {
	if resp == nil {
		return fmt.Errorf("empty response")
	}
	// Optional: Validate response ID (disabled by default for speed)
	if config.DNS.ValidateResponseID && resp.Id != query.Id {
		return fmt.Errorf("DNS response ID mismatch: expected %d, got %d (possible spoofing)", query.Id, resp.Id)
	}
	// Servers may omit the question section on errors; when present it must match
	if len(resp.Question) > 0 && len(query.Question) > 0 {
		got, want := resp.Question[0], query.Question[0]
		if got.Qtype != want.Qtype || got.Qclass != want.Qclass || !strings.EqualFold(got.Name, want.Name) {
			return fmt.Errorf("DNS response question mismatch: expected %s %s, got %s %s",
				want.Name, dns.TypeToString[want.Qtype], got.Name, dns.TypeToString[got.Qtype])
		}
	}
	return nil
}
