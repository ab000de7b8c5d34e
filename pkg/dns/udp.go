package dns

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miekg/dns"
)

// UDPTransport implements Transport for plain DNS over UDP.
// Truncated answers are retried over TCP.
type UDPTransport struct {
	opts QueryOptions
	tcp  *TCPTransport
}

// NewUDPTransport creates a new UDP transport
func NewUDPTransport(opts QueryOptions) *UDPTransport {
	return &UDPTransport{opts: opts, tcp: NewTCPTransport(opts)}
}

// Name returns the transport name
func (t *UDPTransport) Name() string {
	return "udp"
}

// Exchange performs a UDP DNS query
func (t *UDPTransport) Exchange(ctx context.Context, server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	client := &dns.Client{
		Net:     "udp",
		Timeout: t.opts.Timeout,
		UDPSize: t.opts.EDNSBufferSize,
	}

	addr := withDefaultPort(server, "53")
	resp, rtt, err := exchangeContext(ctx, client, msg, addr)
	if err != nil {
		return nil, 0, fmt.Errorf("UDP query failed: %w", err)
	}
	if err := checkResponse(msg, resp); err != nil {
		return nil, 0, err
	}

	if resp.Truncated {
		slog.Debug("truncated UDP answer, retrying over TCP", "server", addr, "question", msg.Question[0].Name)
		return t.tcp.Exchange(ctx, server, msg)
	}

	return resp, rtt, nil
}
