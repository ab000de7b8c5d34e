package dns

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func mustRR(s string) dns.RR {
	rr, err := dns.NewRR(s)
	if err != nil {
		panic(err)
	}
	return rr
}

// zoneHandler answers a small fixed zone used across the resolver tests
func zoneHandler(w dns.ResponseWriter, r *dns.Msg) {
	_ = w.WriteMsg(zoneReply(r))
}

func zoneReply(r *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionAvailable = true
	q := r.Question[0]

	switch q.Name {
	case "good.example.", "www.good.example.":
		switch q.Qtype {
		case dns.TypeA:
			m.Answer = append(m.Answer, mustRR(q.Name+" 60 IN A 192.0.2.10"))
		case dns.TypeAAAA:
			m.Answer = append(m.Answer, mustRR(q.Name+" 60 IN AAAA 2001:db8::10"))
		case dns.TypeNS:
			m.Answer = append(m.Answer,
				mustRR(q.Name+" 60 IN NS ns2.good.example."),
				mustRR(q.Name+" 60 IN NS ns1.good.example."))
		}
	case "ns1.good.example.":
		if q.Qtype == dns.TypeA {
			m.Answer = append(m.Answer, mustRR("ns1.good.example. 60 IN A 192.0.2.53"))
		}
	case "ns2.good.example.":
		switch q.Qtype {
		case dns.TypeA:
			m.Answer = append(m.Answer, mustRR("ns2.good.example. 60 IN A 192.0.2.54"))
		case dns.TypeAAAA:
			m.Answer = append(m.Answer, mustRR("ns2.good.example. 60 IN AAAA 2001:db8::54"))
		}
	case "alias.example.":
		if q.Qtype == dns.TypeA {
			m.Answer = append(m.Answer,
				mustRR("alias.example. 60 IN CNAME good.example."),
				mustRR("good.example. 60 IN A 192.0.2.10"))
		}
	case "v4only.example.":
		if q.Qtype == dns.TypeA {
			m.Answer = append(m.Answer, mustRR("v4only.example. 60 IN A 192.0.2.20"))
		}
	case "nodata.example.":
	case "refused.example.":
		m.Rcode = dns.RcodeRefused
	case "servfail.example.":
		m.Rcode = dns.RcodeServerFailure
	default:
		m.Rcode = dns.RcodeNameError
	}
	return m
}

func refusingHandler(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetRcode(r, dns.RcodeRefused)
	_ = w.WriteMsg(m)
}

// silentHandler never replies so clients hit their timeout
func silentHandler(dns.ResponseWriter, *dns.Msg) {}

// startUDPServer runs handler on a random loopback UDP port and returns its address
func startUDPServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		Handler:           handler,
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started

	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

// startTCPServer runs handler on a random loopback TCP port and returns its address
func startTCPServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return serveTCP(t, ln, handler)
}

func serveTCP(t *testing.T, ln net.Listener, handler dns.HandlerFunc) string {
	t.Helper()

	started := make(chan struct{})
	srv := &dns.Server{
		Listener:          ln,
		Handler:           handler,
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started

	t.Cleanup(func() { _ = srv.Shutdown() })
	return ln.Addr().String()
}
