package output

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"github.com/velemoonkon/webinfo/pkg/scanner"
)

// ErrParquetStdout is returned when Parquet output is requested on stdout;
// the footer-at-end layout needs a seekable file.
var ErrParquetStdout = errors.New("parquet output needs a file path, not stdout")

// ParquetRow is a flattened representation of ProbeReport for Parquet storage
// Parquet works best with flat schemas, so we denormalize the nested structures.
// Columns of a skipped stage hold zero values; tls_attempted tells them apart.
type ParquetRow struct {
	// Target
	Index       int64  `parquet:"index"`
	Hostname    string `parquet:"hostname,zstd"`
	Origin      string `parquet:"origin,zstd"`
	State       string `parquet:"state,zstd,dict"`
	StartedAtMs int64  `parquet:"started_at_ms"`
	DurationMs  int64  `parquet:"duration_ms"`

	// Extra input columns carried from the source CSV
	Popularity string `parquet:"popularity,zstd"`
	Date       string `parquet:"date,zstd,dict"`
	Country    string `parquet:"country,zstd,dict"`

	// DNS stage
	DNSResolver     string `parquet:"dns_resolver,zstd,dict"`
	DNSTransport    string `parquet:"dns_transport,zstd,dict"`
	DNSAnsweredBy   string `parquet:"dns_answered_by,zstd,dict"`
	DNSAddresses    string `parquet:"dns_addresses,zstd"` // comma-separated
	DNSCNAMEs       string `parquet:"dns_cnames,zstd"`
	DNSDomain       string `parquet:"dns_domain,zstd"`
	DNSNameServers  string `parquet:"dns_name_servers,zstd"`
	DNSNSAddresses  string `parquet:"dns_name_server_addrs,zstd"`
	DNSErrorKind    string `parquet:"dns_error_kind,zstd,dict"`
	DNSErrorMessage string `parquet:"dns_error_message,zstd"`

	// TLS stage
	TLSAttempted          bool   `parquet:"tls_attempted"`
	TLSAddress            string `parquet:"tls_address,zstd"`
	TLSVersion            string `parquet:"tls_version,zstd,dict"`
	TLSCipherSuite        string `parquet:"tls_cipher_suite,zstd,dict"`
	TLSSubject            string `parquet:"tls_subject,zstd"`
	TLSIssuer             string `parquet:"tls_issuer,zstd,dict"`
	TLSNotBeforeMs        int64  `parquet:"tls_not_before_ms"`
	TLSNotAfterMs         int64  `parquet:"tls_not_after_ms"`
	TLSSANs               string `parquet:"tls_sans,zstd"`
	TLSSerialNumber       string `parquet:"tls_serial_number,zstd"`
	TLSFingerprintSHA256  string `parquet:"tls_fingerprint_sha256,zstd"`
	TLSChainLength        int32  `parquet:"tls_chain_length"`
	TLSIssuerOrganization string `parquet:"tls_issuer_organization,zstd,dict"`
	TLSIssuerCountry      string `parquet:"tls_issuer_country,zstd,dict"`
	TLSErrorKind          string `parquet:"tls_error_kind,zstd,dict"`
	TLSErrorMessage       string `parquet:"tls_error_message,zstd"`
}

// ParquetWriter writes reports to a Parquet file
type ParquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[ParquetRow]
	count  int
}

// NewParquetWriter creates a Parquet writer with optimized settings
func NewParquetWriter(path string) (*ParquetWriter, error) {
	if isStdout(path) {
		return nil, ErrParquetStdout
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	// Configure Parquet writer with compression and optimizations
	writer := parquet.NewGenericWriter[ParquetRow](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.CreatedBy("webinfo", "1.0.0", "go"),
	)

	return &ParquetWriter{
		file:   file,
		writer: writer,
	}, nil
}

// Write converts a ProbeReport to a flat ParquetRow and writes it
func (w *ParquetWriter) Write(report *scanner.ProbeReport) error {
	row := reportToParquetRow(report)

	if _, err := w.writer.Write([]ParquetRow{row}); err != nil {
		return fmt.Errorf("failed to write parquet row: %w", err)
	}

	w.count++
	return nil
}

// Close finalizes and closes the Parquet file
func (w *ParquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return w.file.Close()
}

// Count returns the number of rows written
func (w *ParquetWriter) Count() int {
	return w.count
}

// reportToParquetRow flattens a ProbeReport into a ParquetRow
func reportToParquetRow(r *scanner.ProbeReport) ParquetRow {
	row := ParquetRow{
		Index:       int64(r.Index),
		Hostname:    r.Hostname,
		Origin:      r.Origin,
		State:       string(r.State),
		StartedAtMs: r.StartedAt.UnixMilli(),
		DurationMs:  r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
		Popularity:  r.Fields["popularity"],
		Date:        r.Fields["date"],
		Country:     r.Fields["country"],
	}

	// DNS
	if d := r.DNS; d != nil {
		row.DNSResolver = d.Resolver
		row.DNSTransport = d.Transport
		row.DNSAnsweredBy = d.AnsweredBy
		row.DNSAddresses = joinAddrs(d.Addresses)
		row.DNSCNAMEs = strings.Join(d.CNAMEs, ",")
		row.DNSDomain = d.Domain
		row.DNSNameServers = strings.Join(d.NameServers, ",")
		row.DNSNSAddresses = joinAddrs(d.NameServerAddrs)
		if d.Error != nil {
			row.DNSErrorKind = string(d.Error.Kind)
			row.DNSErrorMessage = d.Error.Message
		}
	}

	// TLS
	if t := r.TLS; t != nil {
		row.TLSAttempted = true
		row.TLSAddress = t.Address
		row.TLSVersion = t.Version
		row.TLSCipherSuite = t.CipherSuite
		row.TLSSubject = t.Subject
		row.TLSIssuer = t.Issuer
		row.TLSNotBeforeMs = unixMilli(t.NotBefore)
		row.TLSNotAfterMs = unixMilli(t.NotAfter)
		row.TLSSANs = strings.Join(t.SANs, ",")
		row.TLSSerialNumber = t.SerialNumber
		row.TLSFingerprintSHA256 = t.FingerprintSHA256
		row.TLSChainLength = int32(t.ChainLength)
		row.TLSIssuerOrganization = t.IssuerOrganization
		row.TLSIssuerCountry = t.IssuerCountry
		if t.Error != nil {
			row.TLSErrorKind = string(t.Error.Kind)
			row.TLSErrorMessage = t.Error.Message
		}
	}

	return row
}

func joinAddrs(addrs []netip.Addr) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}

func unixMilli(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}
