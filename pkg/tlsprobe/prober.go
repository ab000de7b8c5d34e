// Package tlsprobe connects to a resolved host and records what its TLS
// endpoint presents: negotiated parameters and the leaf certificate.
package tlsprobe

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// DialContextFunc establishes the TCP connection for a probe
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Prober performs TLS handshakes against resolved addresses
type Prober struct {
	cfg  Config
	dial DialContextFunc
}

// Option customises a Prober
type Option func(*Prober)

// WithDialer replaces the default net.Dialer
func WithDialer(dial DialContextFunc) Option {
	return func(p *Prober) {
		p.dial = dial
	}
}

// NewProber creates a prober from cfg
func NewProber(cfg Config, opts ...Option) (*Prober, error) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid TLS port %d", cfg.Port)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("TLS timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.ConnectAttempts < 1 {
		cfg.ConnectAttempts = 1
	}

	p := &Prober{
		cfg:  cfg,
		dial: (&net.Dialer{}).DialContext,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Probe connects to the first address and handshakes presenting hostname as
// SNI. The next address is tried only when the TCP connect fails, up to
// ConnectAttempts addresses; a handshake failure is final.
func (p *Prober) Probe(ctx context.Context, addrs []netip.Addr, hostname string) *Outcome {
	out := &Outcome{}
	if len(addrs) == 0 {
		out.Error = &Error{Kind: KindConnectFailed, Message: "no addresses to connect to"}
		return out
	}

	port := strconv.Itoa(p.cfg.Port)
	candidates := addrs[:min(p.cfg.ConnectAttempts, len(addrs))]

	var dialErrs []string
	allTimedOut := true
	for _, addr := range candidates {
		target := net.JoinHostPort(addr.String(), port)
		out.Address = target
		out.Attempts++

		conn, err := p.connect(ctx, target)
		if err != nil {
			slog.Debug("TLS connect failed", "hostname", hostname, "address", target, "error", err)
			dialErrs = append(dialErrs, err.Error())
			if !isTimeout(err) {
				allTimedOut = false
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}

		p.handshake(ctx, conn, hostname, out)
		return out
	}

	kind := KindConnectFailed
	if allTimedOut {
		kind = KindTimeout
	}
	out.Error = &Error{Kind: kind, Message: strings.Join(dialErrs, "; ")}
	return out
}

func (p *Prober) connect(ctx context.Context, target string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.dial(ctx, "tcp", target)
}

func (p *Prober) handshake(ctx context.Context, conn net.Conn, hostname string, out *Outcome) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName: hostname,
		// Certificates are reported, not trusted
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS10,
	})
	defer tlsConn.Close() //nolint:errcheck // read-only probe

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		kind := KindHandshakeFailed
		if isTimeout(err) || ctx.Err() != nil {
			kind = KindTimeout
		}
		out.Error = &Error{Kind: kind, Message: err.Error()}
		return
	}

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		out.Error = &Error{Kind: KindHandshakeFailed, Message: "no peer certificates presented"}
		return
	}

	out.Version = tls.VersionName(state.Version)
	out.CipherSuite = tls.CipherSuiteName(state.CipherSuite)
	describeChain(state.PeerCertificates, out)
}

// describeChain copies leaf certificate fields and the issuer of the last
// presented certificate into out
func describeChain(chain []*x509.Certificate, out *Outcome) {
	leaf := chain[0]
	notBefore, notAfter := leaf.NotBefore.UTC(), leaf.NotAfter.UTC()
	fingerprint := sha256.Sum256(leaf.Raw)

	out.Subject = leaf.Subject.String()
	out.Issuer = leaf.Issuer.String()
	out.NotBefore = &notBefore
	out.NotAfter = &notAfter
	out.SANs = subjectAltNames(leaf)
	out.SerialNumber = leaf.SerialNumber.Text(16)
	out.FingerprintSHA256 = hex.EncodeToString(fingerprint[:])
	out.ChainLength = len(chain)

	root := chain[len(chain)-1].Issuer
	out.IssuerOrganization = strings.Join(root.Organization, ", ")
	out.IssuerCountry = strings.Join(root.Country, ", ")
}

func subjectAltNames(cert *x509.Certificate) []string {
	sans := make([]string, 0, len(cert.DNSNames)+len(cert.IPAddresses)+len(cert.EmailAddresses)+len(cert.URIs))
	sans = append(sans, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		sans = append(sans, ip.String())
	}
	sans = append(sans, cert.EmailAddresses...)
	for _, uri := range cert.URIs {
		sans = append(sans, uri.String())
	}
	return sans
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
