// Package output serializes probe reports. Every writer receives reports in
// batch order and keeps skipped or failed stages as explicit nulls, so each
// record has the same shape.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/velemoonkon/webinfo/pkg/scanner"
)

// Writer writes probe reports to a destination
type Writer interface {
	Write(report *scanner.ProbeReport) error
	Close() error
}

// Format selects the output encoding
type Format string

const (
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatJSONL, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json, jsonl or parquet)", s)
	}
}

// New creates a writer for format at path. Use "-" or "" for stdout.
func New(path string, format Format) (Writer, error) {
	switch format {
	case FormatJSON, "":
		return NewJSONWriter(path)
	case FormatJSONL:
		return NewJSONLWriter(path)
	case FormatParquet:
		return NewParquetWriter(path)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// WriteBatch writes every report of batch, in order
func WriteBatch(w Writer, batch scanner.Batch) error {
	for _, report := range batch {
		if err := w.Write(report); err != nil {
			return err
		}
	}
	return nil
}

func isStdout(path string) bool {
	return path == "-" || path == ""
}

// openDest opens path for writing; stdout is returned with a nil closer
func openDest(path string) (io.Writer, io.Closer, error) {
	if isStdout(path) {
		return os.Stdout, nil, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, file, nil
}
