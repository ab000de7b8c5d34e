package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/velemoonkon/webinfo/pkg/scanner"
)

// JSONWriter streams reports as one indented JSON array. The array is
// well-formed once Close returns, including when no report was written.
type JSONWriter struct {
	closer io.Closer
	writer *bufio.Writer
	count  int
}

// NewJSONWriter creates a JSON array writer to the specified file
// Use "-" for stdout
func NewJSONWriter(path string) (*JSONWriter, error) {
	dest, closer, err := openDest(path)
	if err != nil {
		return nil, err
	}
	return NewJSONWriterFromWriter(dest, closer), nil
}

// NewJSONWriterFromWriter creates a JSON array writer on w. closer may be nil.
func NewJSONWriterFromWriter(w io.Writer, closer io.Closer) *JSONWriter {
	return &JSONWriter{
		closer: closer,
		writer: bufio.NewWriterSize(w, 64*1024), // 64KB buffer for disk I/O
	}
}

// Write appends a report to the array
func (w *JSONWriter) Write(report *scanner.ProbeReport) error {
	data, err := json.MarshalIndent(report, "  ", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	// Opening bracket before the first element, separator before the rest
	sep := ",\n  "
	if w.count == 0 {
		sep = "[\n  "
	}
	if _, err := w.writer.WriteString(sep); err != nil {
		return err
	}
	if _, err := w.writer.Write(data); err != nil {
		return err
	}

	w.count++

	// Every 10 reports, flush to disk (keeps I/O responsive)
	if w.count%10 == 0 {
		return w.writer.Flush()
	}
	return nil
}

// Close terminates the array, flushes and closes the destination
func (w *JSONWriter) Close() error {
	footer := "\n]\n"
	if w.count == 0 {
		footer = "[]\n"
	}
	if _, err := w.writer.WriteString(footer); err != nil {
		return err
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Count returns the number of reports written
func (w *JSONWriter) Count() int {
	return w.count
}
