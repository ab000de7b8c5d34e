package tlsprobe

import (
	"time"
)

// ErrorKind classifies why the TLS stage failed
type ErrorKind string

const (
	// KindConnectFailed means no attempted address accepted a TCP connection
	KindConnectFailed ErrorKind = "connect_failed"
	// KindHandshakeFailed means TCP connected but TLS negotiation failed
	KindHandshakeFailed ErrorKind = "handshake_failed"
	// KindTimeout means the handshake, or every connect attempt, timed out
	KindTimeout ErrorKind = "timeout"
)

// Error is a per-target TLS failure, recorded in the report
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Outcome contains the TLS stage result for a single hostname.
// Certificate fields describe the leaf; they are unverified.
type Outcome struct {
	Address            string     `json:"address"` // ip:port of the last connection attempt
	Attempts           int        `json:"attempts"`
	Version            string     `json:"version"`
	CipherSuite        string     `json:"cipher_suite"`
	Subject            string     `json:"subject"`
	Issuer             string     `json:"issuer"`
	NotBefore          *time.Time `json:"not_before"`
	NotAfter           *time.Time `json:"not_after"`
	SANs               []string   `json:"sans"`
	SerialNumber       string     `json:"serial_number"`
	FingerprintSHA256  string     `json:"fingerprint_sha256"`
	ChainLength        int        `json:"chain_length"`
	IssuerOrganization string     `json:"issuer_organization"` // of the last certificate in the presented chain
	IssuerCountry      string     `json:"issuer_country"`
	Error              *Error     `json:"error"`
}

// OK reports whether the handshake completed
func (o *Outcome) OK() bool {
	return o != nil && o.Error == nil
}

// Config contains prober configuration
type Config struct {
	Port            int           // TLS port, usually 443
	ConnectAttempts int           // Addresses tried before giving up; 2 = first address plus one fallback
	Timeout         time.Duration // Bounds each connect attempt and the handshake separately
}
