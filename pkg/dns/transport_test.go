package dns

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	registry := NewDefaultRegistry(DefaultQueryOptions())

	assert.ElementsMatch(t, []string{"udp", "tcp", "dot", "doh"}, registry.Names())
	for _, name := range registry.Names() {
		transport, ok := registry.Get(name)
		require.True(t, ok)
		assert.Equal(t, name, transport.Name())
	}

	_, ok := registry.Get("quic")
	assert.False(t, ok)
}

func TestWithDefaultPort(t *testing.T) {
	tests := []struct {
		server string
		port   string
		want   string
	}{
		{"1.1.1.1", "53", "1.1.1.1:53"},
		{"1.1.1.1:5353", "53", "1.1.1.1:5353"},
		{"2606:4700::1111", "853", "[2606:4700::1111]:853"},
		{"[2606:4700::1111]:8853", "853", "[2606:4700::1111]:8853"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withDefaultPort(tt.server, tt.port))
	}
}

func TestNewQuery(t *testing.T) {
	opts := QueryOptions{RecursionDesired: true, UseEDNS: true, EDNSBufferSize: 1232}
	msg := NewQuery("example.com", dns.TypeAAAA, opts)

	require.Len(t, msg.Question, 1)
	assert.Equal(t, "example.com.", msg.Question[0].Name)
	assert.Equal(t, dns.TypeAAAA, msg.Question[0].Qtype)
	assert.True(t, msg.RecursionDesired)
	require.NotNil(t, msg.IsEdns0())
	assert.Equal(t, uint16(1232), msg.IsEdns0().UDPSize())

	opts.UseEDNS = false
	assert.Nil(t, NewQuery("example.com", dns.TypeA, opts).IsEdns0())
}

func TestUDPTransport_TruncatedRetriesOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	pc, err := net.ListenPacket("udp", ln.Addr().String())
	if err != nil {
		ln.Close()
		t.Skipf("cannot bind UDP on the TCP port: %v", err)
	}

	// UDP replies are truncated and empty; TCP carries the full answer
	handler := func(w dns.ResponseWriter, r *dns.Msg) {
		if w.RemoteAddr().Network() == "udp" {
			m := new(dns.Msg)
			m.SetReply(r)
			m.Truncated = true
			_ = w.WriteMsg(m)
			return
		}
		zoneHandler(w, r)
	}

	serveTCP(t, ln, handler)
	started := make(chan struct{})
	udp := &dns.Server{
		PacketConn:        pc,
		Handler:           dns.HandlerFunc(handler),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = udp.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = udp.Shutdown() })

	transport := NewUDPTransport(DefaultQueryOptions())
	resp, _, err := transport.Exchange(context.Background(), pc.LocalAddr().String(),
		NewQuery("good.example", dns.TypeA, DefaultQueryOptions()))

	require.NoError(t, err)
	assert.False(t, resp.Truncated)
	require.Len(t, resp.Answer, 1)
}

// dohHandler serves zoneHandler answers over RFC 8484 POST on path
func dohHandler(t *testing.T, path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/dns-message", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		query := new(dns.Msg)
		if !assert.NoError(t, err) || !assert.NoError(t, query.Unpack(body)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		wire, err := zoneReply(query).Pack()
		if !assert.NoError(t, err) {
			http.Error(w, "pack failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/dns-message")
		_, _ = w.Write(wire)
	})
}

func newTestDoHTransport(t *testing.T, handler http.Handler) (*DoHTransport, string) {
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	opts := DefaultQueryOptions()
	opts.Timeout = 2 * time.Second
	transport := NewDoHTransport(opts)
	transport.client = srv.Client()
	return transport, u.Host
}

func TestDoHTransport_Exchange(t *testing.T) {
	transport, server := newTestDoHTransport(t, dohHandler(t, "/dns-query"))

	resp, _, err := transport.Exchange(context.Background(), server,
		NewQuery("good.example", dns.TypeA, DefaultQueryOptions()))

	require.NoError(t, err)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "192.0.2.10", resp.Answer[0].(*dns.A).A.String())
}

func TestDoHTransport_FallsBackToAlternatePath(t *testing.T) {
	transport, server := newTestDoHTransport(t, dohHandler(t, "/dns"))

	resp, _, err := transport.Exchange(context.Background(), server,
		NewQuery("missing.example", dns.TypeA, DefaultQueryOptions()))

	require.NoError(t, err)
	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
}

func TestDoHTransport_RejectsWrongContentType(t *testing.T) {
	transport, server := newTestDoHTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))

	_, _, err := transport.Exchange(context.Background(), server,
		NewQuery("good.example", dns.TypeA, DefaultQueryOptions()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected content type")
}

func TestResolver_DoH(t *testing.T) {
	transport, server := newTestDoHTransport(t, dohHandler(t, "/dns-query"))
	r := newTestResolver(t, ResolverConfig{Servers: []string{server}, Transport: "doh"},
		WithTransport(transport))

	out := r.Resolve(context.Background(), "good.example")

	require.True(t, out.OK(), "unexpected error: %v", out.Error)
	assert.Equal(t, "doh", out.Transport)
	assert.Len(t, out.Addresses, 2)
}

// wrongQuestionHandler answers every query as if it asked for other.example
func wrongQuestionHandler(w dns.ResponseWriter, r *dns.Msg) {
	q := r.Copy()
	q.Question[0].Name = "other.example."
	_ = w.WriteMsg(zoneReply(q))
}

func TestCheckResponse(t *testing.T) {
	query := NewQuery("good.example", dns.TypeA, DefaultQueryOptions())

	tests := []struct {
		name    string
		modify  func(*dns.Msg)
		wantErr string
	}{
		{name: "matching", modify: func(*dns.Msg) {}},
		{name: "name case differs", modify: func(m *dns.Msg) { m.Question[0].Name = "GOOD.example." }},
		{name: "no question section", modify: func(m *dns.Msg) { m.Question = nil }},
		{name: "other name", modify: func(m *dns.Msg) { m.Question[0].Name = "other.example." }, wantErr: "question mismatch"},
		{name: "other type", modify: func(m *dns.Msg) { m.Question[0].Qtype = dns.TypeAAAA }, wantErr: "question mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := new(dns.Msg)
			resp.SetReply(query)
			tt.modify(resp)

			err := checkResponse(query, resp)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUDPTransport_RejectsMismatchedQuestion(t *testing.T) {
	server := startUDPServer(t, wrongQuestionHandler)
	opts := DefaultQueryOptions()
	opts.Timeout = 2 * time.Second

	_, _, err := NewUDPTransport(opts).Exchange(context.Background(), server,
		NewQuery("good.example", dns.TypeA, opts))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "question mismatch")
}

func TestDoHTransport_RejectsMismatchedQuestion(t *testing.T) {
	transport, server := newTestDoHTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		query := new(dns.Msg)
		if !assert.NoError(t, err) || !assert.NoError(t, query.Unpack(body)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		query.Question[0].Name = "other.example."
		wire, err := zoneReply(query).Pack()
		if !assert.NoError(t, err) {
			http.Error(w, "pack failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/dns-message")
		_, _ = w.Write(wire)
	}))

	_, _, err := transport.Exchange(context.Background(), server,
		NewQuery("good.example", dns.TypeA, DefaultQueryOptions()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "question mismatch")
}
