package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/velemoonkon/webinfo/pkg/scanner"
)

// JSONLWriter writes reports as JSONL (JSON Lines) - one JSON object per line
// This format is ideal for streaming, piping to jq, and processing large datasets
type JSONLWriter struct {
	closer io.Closer
	writer *bufio.Writer
	count  int
}

// NewJSONLWriter creates a JSONL writer to the specified file
// Use "-" for stdout
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	dest, closer, err := openDest(path)
	if err != nil {
		return nil, err
	}
	return &JSONLWriter{
		closer: closer,
		writer: bufio.NewWriterSize(dest, 64*1024), // 64KB buffer
	}, nil
}

// NewJSONLWriterFromWriter creates a JSONL writer from an existing io.Writer
// Useful for testing or custom output destinations
func NewJSONLWriterFromWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		writer: bufio.NewWriterSize(w, 64*1024),
	}
}

// Write writes a single report as a JSON line
func (w *JSONLWriter) Write(report *scanner.ProbeReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}

	w.count++

	// Flush every 100 reports for responsive output
	if w.count%100 == 0 {
		return w.writer.Flush()
	}

	return nil
}

// Flush forces any buffered data to be written
func (w *JSONLWriter) Flush() error {
	return w.writer.Flush()
}

// Close flushes and closes the writer. Stdout is never closed.
func (w *JSONLWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Count returns the number of reports written
func (w *JSONLWriter) Count() int {
	return w.count
}
