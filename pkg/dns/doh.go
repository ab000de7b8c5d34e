package dns

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/velemoonkon/webinfo/pkg/config"
)

var (
	// Shared HTTP client for DoH requests to enable connection reuse
	sharedDoHClient     *http.Client
	sharedDoHClientOnce sync.Once
)

// getSharedDoHClient returns a shared HTTP client optimized for DoH requests
// Configuration is loaded from environment variables with WEBINFO_ prefix
func getSharedDoHClient() *http.Client {
	sharedDoHClientOnce.Do(func() {
		cfg := config.HTTP

		transport := &http.Transport{
			TLSClientConfig: &tls.Config{
				// Resolvers are addressed by IP; the certificate is not what we audit here
				InsecureSkipVerify: true,
				MinVersion:         tls.VersionTLS12,
			},
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
			ForceAttemptHTTP2:   true,
			DialContext: (&net.Dialer{
				Timeout:   cfg.DialTimeout,
				KeepAlive: cfg.KeepAlive,
			}).DialContext,
		}

		sharedDoHClient = &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		}
	})
	return sharedDoHClient
}

// DoHEndpoint represents a DNS over HTTPS endpoint path
type DoHEndpoint struct {
	Path string
}

// Common DoH endpoints, tried in order (POST only)
var CommonDoHEndpoints = []DoHEndpoint{
	{Path: "/dns-query"}, // RFC 8484 standard
	{Path: "/dns"},       // Alternative endpoint
}

// DoHTransport implements Transport for DNS over HTTPS (RFC 8484)
type DoHTransport struct {
	opts      QueryOptions
	client    *http.Client
	endpoints []DoHEndpoint
	scheme    string
}

// NewDoHTransport creates a new DoH transport using the shared HTTP client
func NewDoHTransport(opts QueryOptions) *DoHTransport {
	return &DoHTransport{
		opts:      opts,
		endpoints: CommonDoHEndpoints,
		scheme:    "https",
	}
}

// Name returns the transport name
func (t *DoHTransport) Name() string {
	return "doh"
}

// Exchange performs a DNS over HTTPS query, trying each known endpoint path
// until one returns a DNS message.
func (t *DoHTransport) Exchange(ctx context.Context, server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	// Pack DNS message to wire format. The ID is kept so responses can be matched.
	wireMsg, err := msg.Pack()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to pack DNS message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	var lastErr error
	for _, endpoint := range t.endpoints {
		resp, rtt, err := t.post(ctx, withDefaultPort(server, "443"), endpoint, wireMsg)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if err := checkResponse(msg, resp); err != nil {
			return nil, 0, err
		}
		return resp, rtt, nil
	}

	return nil, 0, fmt.Errorf("DoH query failed: %w", lastErr)
}

func (t *DoHTransport) post(ctx context.Context, hostport string, endpoint DoHEndpoint, wireMsg []byte) (*dns.Msg, time.Duration, error) {
	url := fmt.Sprintf("%s://%s%s", t.scheme, hostport, endpoint.Path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(wireMsg))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")

	client := t.client
	if client == nil {
		client = getSharedDoHClient()
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("DoH request failed: %w", err)
	}
	defer resp.Body.Close()

	rtt := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("DoH returned status %d", resp.StatusCode)
	}

	// Check content type (case-insensitive, handles charset parameters)
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "application/dns-message") {
		return nil, 0, fmt.Errorf("unexpected content type: %s", contentType)
	}

	// Read response body with size limit
	// Configurable via WEBINFO_MAX_DOH_RESPONSE_SIZE environment variable
	maxSize := config.HTTP.MaxDoHResponseSize
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read DoH response: %w", err)
	}
	if int64(len(body)) > maxSize {
		return nil, 0, fmt.Errorf("DoH response exceeds maximum size of %d bytes (WEBINFO_MAX_DOH_RESPONSE_SIZE)", maxSize)
	}

	dnsResp := new(dns.Msg)
	if err := dnsResp.Unpack(body); err != nil {
		return nil, 0, fmt.Errorf("failed to unpack DNS response: %w", err)
	}

	return dnsResp, rtt, nil
}
