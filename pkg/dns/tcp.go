package dns

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// TCPTransport implements Transport for plain DNS over TCP
type TCPTransport struct {
	opts QueryOptions
}

// NewTCPTransport creates a new TCP transport
func NewTCPTransport(opts QueryOptions) *TCPTransport {
	return &TCPTransport{opts: opts}
}

// Name returns the transport name
func (t *TCPTransport) Name() string {
	return "tcp"
}

// Exchange performs a TCP DNS query
func (t *TCPTransport) Exchange(ctx context.Context, server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	client := &dns.Client{
		Net:     "tcp",
		Timeout: t.opts.Timeout,
	}

	resp, rtt, err := exchangeContext(ctx, client, msg, withDefaultPort(server, "53"))
	if err != nil {
		return nil, 0, fmt.Errorf("TCP query failed: %w", err)
	}
	if err := checkResponse(msg, resp); err != nil {
		return nil, 0, err
	}

	return resp, rtt, nil
}
