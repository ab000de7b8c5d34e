package dns

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, cfg ResolverConfig, options ...ResolverOption) *Resolver {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	r, err := NewResolver(cfg, options...)
	require.NoError(t, err)
	return r
}

// =============================================================================
// Custom servers
// =============================================================================

func TestResolveCustom_BothFamilies(t *testing.T) {
	server := startUDPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{Servers: []string{server}})

	out := r.Resolve(context.Background(), "good.example")

	require.True(t, out.OK(), "unexpected error: %v", out.Error)
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("192.0.2.10"),
		netip.MustParseAddr("2001:db8::10"),
	}, out.Addresses)
	assert.Equal(t, "custom", out.Resolver)
	assert.Equal(t, "udp", out.Transport)
	assert.Equal(t, server, out.AnsweredBy)
	assert.Equal(t, []string{server}, out.Servers)
	assert.Nil(t, out.Error)
}

func TestResolveCustom_FollowsCNAME(t *testing.T) {
	server := startUDPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{Servers: []string{server}})

	out := r.Resolve(context.Background(), "alias.example")

	require.True(t, out.OK())
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.0.2.10")}, out.Addresses)
	assert.Equal(t, []string{"good.example"}, out.CNAMEs)
}

func TestResolveCustom_SingleFamilyIsEnough(t *testing.T) {
	server := startUDPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{Servers: []string{server}})

	out := r.Resolve(context.Background(), "v4only.example")

	require.True(t, out.OK())
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.0.2.20")}, out.Addresses)
}

func TestResolveCustom_ErrorKinds(t *testing.T) {
	server := startUDPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{Servers: []string{server}})

	tests := []struct {
		hostname string
		want     ErrorKind
	}{
		{"missing.example", KindNoRecords},
		{"nodata.example", KindNoRecords},
		{"refused.example", KindRefused},
		{"servfail.example", KindRefused},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			out := r.Resolve(context.Background(), tt.hostname)
			require.NotNil(t, out.Error)
			assert.Equal(t, tt.want, out.Error.Kind)
			assert.Empty(t, out.Addresses)
			assert.False(t, out.OK())
		})
	}
}

func TestResolveCustom_Timeout(t *testing.T) {
	server := startUDPServer(t, silentHandler)
	r := newTestResolver(t, ResolverConfig{
		Servers: []string{server},
		Timeout: 200 * time.Millisecond,
	})

	out := r.Resolve(context.Background(), "good.example")

	require.NotNil(t, out.Error)
	assert.Equal(t, KindTimeout, out.Error.Kind)
	assert.Contains(t, out.Error.Message, server)
}

func TestResolveCustom_ConnectionRefused(t *testing.T) {
	// Nothing listens here once the listener is closed
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	r := newTestResolver(t, ResolverConfig{
		Servers:   []string{addr},
		Transport: "tcp",
		Timeout:   time.Second,
	})

	out := r.Resolve(context.Background(), "good.example")

	require.NotNil(t, out.Error)
	assert.Equal(t, KindRefused, out.Error.Kind)
}

func TestResolveCustom_SequentialFallsBack(t *testing.T) {
	silent := startUDPServer(t, silentHandler)
	good := startUDPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{
		Servers: []string{silent, good},
		Timeout: 200 * time.Millisecond,
	})

	out := r.Resolve(context.Background(), "good.example")

	require.True(t, out.OK())
	assert.Equal(t, good, out.AnsweredBy)
}

func TestResolveCustom_SequentialStopsAtFirstAnswer(t *testing.T) {
	first := startUDPServer(t, zoneHandler)
	var secondHits atomic.Int32
	second := startUDPServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		secondHits.Add(1)
		zoneHandler(w, r)
	})
	r := newTestResolver(t, ResolverConfig{Servers: []string{first, second}})

	out := r.Resolve(context.Background(), "good.example")

	require.True(t, out.OK())
	assert.Equal(t, first, out.AnsweredBy)
	assert.Zero(t, secondHits.Load())
}

func TestResolveCustom_Aggregation(t *testing.T) {
	silent := startUDPServer(t, silentHandler)
	nx := startUDPServer(t, zoneHandler)
	refusing := startUDPServer(t, refusingHandler)

	tests := []struct {
		name    string
		servers []string
		want    ErrorKind
	}{
		{"all silent", []string{silent, silent}, KindTimeout},
		{"silent then nxdomain", []string{silent, nx}, KindNoRecords},
		{"refused then nxdomain", []string{refusing, nx}, KindNoRecords},
		{"silent then refused", []string{silent, refusing}, KindRefused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t, ResolverConfig{
				Servers: tt.servers,
				Timeout: 150 * time.Millisecond,
			})
			out := r.Resolve(context.Background(), "missing.example")
			require.NotNil(t, out.Error)
			assert.Equal(t, tt.want, out.Error.Kind)
		})
	}
}

func TestResolveCustom_ParallelTakesFirstAnswer(t *testing.T) {
	silent := startUDPServer(t, silentHandler)
	good := startUDPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{
		Servers:  []string{silent, good},
		Strategy: StrategyParallel,
		Timeout:  3 * time.Second,
	})

	start := time.Now()
	out := r.Resolve(context.Background(), "good.example")

	require.True(t, out.OK())
	assert.Equal(t, good, out.AnsweredBy)
	assert.Less(t, time.Since(start), 2*time.Second, "winner should cancel the silent server")
}

func TestResolveCustom_CancelAbortsInFlightQuery(t *testing.T) {
	for _, strategy := range []Strategy{StrategySequential, StrategyParallel} {
		t.Run(string(strategy), func(t *testing.T) {
			silent := startUDPServer(t, silentHandler)
			r := newTestResolver(t, ResolverConfig{
				Servers:  []string{silent, silent},
				Strategy: strategy,
				Timeout:  5 * time.Second,
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			time.AfterFunc(100*time.Millisecond, cancel)

			start := time.Now()
			out := r.Resolve(ctx, "good.example")

			assert.Less(t, time.Since(start), time.Second, "cancel should abort the pending exchange")
			require.NotNil(t, out.Error)
			assert.Equal(t, KindTimeout, out.Error.Kind)
			assert.Contains(t, out.Error.Message, context.Canceled.Error())
		})
	}
}

func TestResolveCustom_ParallelAllFail(t *testing.T) {
	silent := startUDPServer(t, silentHandler)
	refusing := startUDPServer(t, refusingHandler)
	r := newTestResolver(t, ResolverConfig{
		Servers:  []string{silent, refusing},
		Strategy: StrategyParallel,
		Timeout:  200 * time.Millisecond,
	})

	out := r.Resolve(context.Background(), "good.example")

	require.NotNil(t, out.Error)
	assert.Equal(t, KindRefused, out.Error.Kind)
}

func TestResolveCustom_ExtraRecords(t *testing.T) {
	server := startUDPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{
		Servers:      []string{server},
		ExtraRecords: true,
	})

	out := r.Resolve(context.Background(), "www.good.example")

	require.True(t, out.OK())
	assert.Equal(t, "good.example", out.Domain)
	assert.Equal(t, []string{"ns1.good.example", "ns2.good.example"}, out.NameServers)
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("192.0.2.53"),
		netip.MustParseAddr("192.0.2.54"),
		netip.MustParseAddr("2001:db8::54"),
	}, out.NameServerAddrs)
}

func TestResolveCustom_ExtraRecordsSkippedOnFailure(t *testing.T) {
	server := startUDPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{
		Servers:      []string{server},
		ExtraRecords: true,
	})

	out := r.Resolve(context.Background(), "missing.example")

	require.NotNil(t, out.Error)
	assert.Empty(t, out.Domain)
	assert.Nil(t, out.NameServers)
	assert.Nil(t, out.NameServerAddrs)
}

func TestResolveCustom_TCPTransport(t *testing.T) {
	server := startTCPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{
		Servers:   []string{server},
		Transport: "tcp",
	})

	out := r.Resolve(context.Background(), "good.example")

	require.True(t, out.OK())
	assert.Equal(t, "tcp", out.Transport)
}

// =============================================================================
// System resolver
// =============================================================================

// goResolverFor points the pure-Go resolver at a test server
func goResolverFor(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, server)
		},
	}
}

func TestResolveSystem(t *testing.T) {
	server := startUDPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{}, WithSystemResolver(goResolverFor(server)))

	out := r.Resolve(context.Background(), "good.example")

	require.True(t, out.OK(), "unexpected error: %v", out.Error)
	assert.Equal(t, "system", out.Resolver)
	assert.Equal(t, "system", out.Transport)
	assert.Nil(t, out.Servers)
	assert.Equal(t, netip.MustParseAddr("192.0.2.10"), out.Addresses[0], "IPv4 sorts first")
	assert.Contains(t, out.Addresses, netip.MustParseAddr("2001:db8::10"))
}

func TestResolveSystem_NotFound(t *testing.T) {
	server := startUDPServer(t, zoneHandler)
	r := newTestResolver(t, ResolverConfig{}, WithSystemResolver(goResolverFor(server)))

	out := r.Resolve(context.Background(), "missing.example")

	require.NotNil(t, out.Error)
	assert.Equal(t, KindNoRecords, out.Error.Kind)
}

func TestResolveSystem_Timeout(t *testing.T) {
	server := startUDPServer(t, silentHandler)
	r := newTestResolver(t, ResolverConfig{Timeout: 300 * time.Millisecond},
		WithSystemResolver(goResolverFor(server)))

	out := r.Resolve(context.Background(), "good.example")

	require.NotNil(t, out.Error)
	assert.Equal(t, KindTimeout, out.Error.Kind)
}

func TestResolve_AddressLiteral(t *testing.T) {
	r := newTestResolver(t, ResolverConfig{Servers: []string{"192.0.2.53"}})

	out := r.Resolve(context.Background(), "2001:db8::1")

	require.True(t, out.OK())
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("2001:db8::1")}, out.Addresses)
	assert.Equal(t, "literal", out.Resolver)
}

func TestNewResolver_Validation(t *testing.T) {
	_, err := NewResolver(ResolverConfig{Timeout: 0})
	assert.Error(t, err)

	_, err = NewResolver(ResolverConfig{
		Servers:   []string{"192.0.2.53"},
		Transport: "carrier-pigeon",
		Timeout:   time.Second,
	})
	assert.ErrorIs(t, err, ErrUnknownTransport)

	// Transport name is irrelevant without custom servers
	_, err = NewResolver(ResolverConfig{Transport: "carrier-pigeon", Timeout: time.Second})
	assert.NoError(t, err)
}

// =============================================================================
// Classification helpers
// =============================================================================

func TestClassifySystemError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"not found", &net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}, KindNoRecords},
		{"timeout", &net.DNSError{Err: "i/o timeout", Name: "x", IsTimeout: true}, KindTimeout},
		{"server misbehaving", &net.DNSError{Err: "server misbehaving", Name: "x"}, KindRefused},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"other", errors.New("boom"), KindRefused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySystemError(ctx, tt.err).Kind)
		})
	}
}

func TestWorstError(t *testing.T) {
	timeout := &Error{Kind: KindTimeout}
	refused := &Error{Kind: KindRefused}
	noRecords := &Error{Kind: KindNoRecords}

	assert.Nil(t, worstError(nil, nil))
	assert.Same(t, timeout, worstError(timeout, nil))
	assert.Same(t, refused, worstError(timeout, refused))
	assert.Same(t, noRecords, worstError(refused, noRecords, timeout))
}

func TestSortAddrs(t *testing.T) {
	in := []netip.Addr{
		netip.MustParseAddr("2001:db8::1"),
		netip.MustParseAddr("::ffff:192.0.2.1"),
		netip.MustParseAddr("192.0.2.2"),
		netip.MustParseAddr("192.0.2.1"),
	}

	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("192.0.2.1"),
		netip.MustParseAddr("192.0.2.2"),
		netip.MustParseAddr("2001:db8::1"),
	}, sortAddrs(in))
}

func TestRegistrableDomain(t *testing.T) {
	tests := map[string]string{
		"www.example.com":   "example.com",
		"example.com":       "example.com",
		"a.b.example.co.uk": "example.co.uk",
		"www.example.com.":  "example.com",
		"com":               "",
	}
	for host, want := range tests {
		assert.Equal(t, want, RegistrableDomain(host), host)
	}
}
