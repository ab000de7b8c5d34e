package dns

import (
	"net/netip"
	"time"

	"github.com/velemoonkon/webinfo/pkg/config"
)

// ErrorKind classifies why a hostname could not be resolved
type ErrorKind string

const (
	// KindNoRecords means a server answered but returned no usable address (NXDOMAIN or NODATA)
	KindNoRecords ErrorKind = "no_records"
	// KindTimeout means no server answered within the stage timeout
	KindTimeout ErrorKind = "timeout"
	// KindRefused means a server rejected the query or failed to serve it
	KindRefused ErrorKind = "refused"
)

// Error is a per-target resolution failure. It is recorded in the report, never
// returned as a batch-fatal error.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Outcome contains the DNS stage result for a single hostname
type Outcome struct {
	Addresses       []netip.Addr `json:"addresses"`
	Resolver        string       `json:"resolver"`  // "system" or "custom"
	Transport       string       `json:"transport"` // system/udp/tcp/dot/doh
	Servers         []string     `json:"servers"`
	AnsweredBy      string       `json:"answered_by"`
	Domain          string       `json:"domain"`
	CNAMEs          []string     `json:"cnames"`
	NameServers     []string     `json:"name_servers"`
	NameServerAddrs []netip.Addr `json:"name_server_addrs"`
	Error           *Error       `json:"error"`
}

// OK reports whether at least one address was resolved
func (o *Outcome) OK() bool {
	return o != nil && o.Error == nil && len(o.Addresses) > 0
}

// QueryOptions contains options for DNS queries
type QueryOptions struct {
	Timeout          time.Duration
	RecursionDesired bool
	UseEDNS          bool
	EDNSBufferSize   uint16
}

// DefaultQueryOptions returns default query options
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Timeout:          config.Scanner.DefaultTimeout,
		RecursionDesired: true,
		UseEDNS:          config.DNS.UseEDNS,
		EDNSBufferSize:   config.DNS.EDNSBufferSize,
	}
}
