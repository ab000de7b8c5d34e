// Package input reads the hostnames to probe from CSV files or plain lists.
package input

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/velemoonkon/webinfo/pkg/scanner"
	"golang.org/x/net/idna"
)

var (
	// ErrNoHostColumn is returned when a CSV header names no column at all
	ErrNoHostColumn = errors.New("csv header has no usable column")
	// ErrInvalidHostname is returned for values no hostname can be taken from
	ErrInvalidHostname = errors.New("invalid hostname")
)

// Header names recognised as holding the target, most preferred first
var hostColumns = []string{"origin", "url", "hostname", "host", "domain"}

// ParseFile reads targets from a file (CSV with header, or one hostname per line)
func ParseFile(filename string) ([]scanner.Target, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	targets, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return targets, nil
}

// Parse reads targets from r. Input whose first meaningful line contains a
// comma, or looks like a column name rather than a host, is read as CSV with
// a header row; anything else as a plain list where '#' starts a comment.
// Blank rows are skipped and targets are indexed in input order.
func Parse(r io.Reader) ([]scanner.Target, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	first := firstLine(data)
	if strings.Contains(first, ",") || isHeader(first) {
		return parseCSV(bytes.NewReader(data))
	}
	return parseList(bytes.NewReader(data))
}

// isHeader reports whether a single-column first line names a column: a
// recognised header, or a value that is neither an address nor a dotted host
func isHeader(line string) bool {
	if line == "" {
		return false
	}
	if slices.Contains(hostColumns, strings.ToLower(line)) {
		return true
	}
	host, err := ParseHostname(line)
	if err != nil {
		return true
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return false
	}
	return !strings.Contains(host, ".") && host != "localhost"
}

// firstLine returns the first non-blank, non-comment line, trimmed
func firstLine(data []byte) string {
	for line := range bytes.Lines(data) {
		trimmed := strings.TrimSpace(string(line))
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			return trimmed
		}
	}
	return ""
}

func parseCSV(r io.Reader) ([]scanner.Target, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // Ragged rows are tolerated
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}
	col, err := hostColumn(header)
	if err != nil {
		return nil, err
	}
	names := columnNames(header)

	var targets []scanner.Target
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if col >= len(record) {
			continue
		}
		raw := strings.TrimSpace(record[col])
		if raw == "" {
			continue
		}

		host, err := ParseHostname(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		targets = append(targets, scanner.Target{
			Index:    len(targets),
			Hostname: host,
			Origin:   raw,
			Fields:   rowFields(names, record, col),
		})
	}

	return targets, nil
}

func columnNames(header []string) []string {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return names
}

// rowFields maps the other named, non-empty columns of record; nil if none
func rowFields(names, record []string, col int) map[string]string {
	var fields map[string]string
	for i, name := range names {
		if i == col || name == "" || i >= len(record) {
			continue
		}
		v := strings.TrimSpace(record[i])
		if v == "" {
			continue
		}
		if fields == nil {
			fields = make(map[string]string)
		}
		fields[name] = v
	}
	return fields
}

// hostColumn picks the column holding targets: the first recognised header
// name, else the first named column
func hostColumn(header []string) (int, error) {
	names := columnNames(header)

	for _, want := range hostColumns {
		if i := slices.Index(names, want); i >= 0 {
			return i, nil
		}
	}
	if i := slices.IndexFunc(names, func(n string) bool { return n != "" }); i >= 0 {
		return i, nil
	}
	return 0, ErrNoHostColumn
}

func parseList(r io.Reader) ([]scanner.Target, error) {
	var targets []scanner.Target
	sc := bufio.NewScanner(r)
	lineNum := 0

	for sc.Scan() {
		lineNum++
		line := sc.Text()

		// Strip comments, whole-line or trailing
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		host, err := ParseHostname(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		targets = append(targets, scanner.Target{Index: len(targets), Hostname: host, Origin: line})
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}

	return targets, nil
}

// ParseHostname extracts the hostname from a URL or bare host[:port] value.
// The result is lower-cased and IDNA (punycode) encoded; IP literals are
// returned in canonical form.
func ParseHostname(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidHostname)
	}

	// Bare IPv6 literals would otherwise be read as host:port
	if addr, err := netip.ParseAddr(strings.Trim(raw, "[]")); err == nil {
		return addr.Unmap().String(), nil
	}

	ref := raw
	if !strings.Contains(ref, "://") {
		ref = "//" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidHostname, raw, err)
	}

	host := strings.TrimSuffix(u.Hostname(), ".")
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidHostname, raw)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String(), nil
	}

	ascii, err := idna.Lookup.ToASCII(strings.ToLower(host))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidHostname, raw, err)
	}
	return ascii, nil
}
