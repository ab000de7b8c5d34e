package scanner

import (
	"fmt"
)

// Collector places reports into their input slot. It is not safe for
// concurrent use; the scanner feeds it from a single goroutine.
type Collector struct {
	slots    []*ProbeReport
	recorded int
}

// NewCollector creates a collector for n targets
func NewCollector(n int) *Collector {
	return &Collector{slots: make([]*ProbeReport, n)}
}

// Record stores report in the slot of its target index. Recording an index
// twice, or one outside the batch, is a programming error and panics.
func (c *Collector) Record(report *ProbeReport) {
	idx := report.Index
	if idx < 0 || idx >= len(c.slots) {
		panic(fmt.Sprintf("scanner: report index %d outside batch of %d", idx, len(c.slots)))
	}
	if c.slots[idx] != nil {
		panic(fmt.Sprintf("scanner: report for index %d (%s) recorded twice", idx, report.Hostname))
	}
	c.slots[idx] = report
	c.recorded++
}

// Recorded returns the number of reports recorded so far
func (c *Collector) Recorded() int {
	return c.recorded
}

// Finalize returns the batch ordered by target index. If some targets were
// never recorded it returns the recorded subset, still in index order, and
// ErrIncomplete.
func (c *Collector) Finalize() (Batch, error) {
	if c.recorded == len(c.slots) {
		return Batch(c.slots), nil
	}

	partial := make(Batch, 0, c.recorded)
	for _, r := range c.slots {
		if r != nil {
			partial = append(partial, r)
		}
	}
	return partial, fmt.Errorf("%w: %d of %d targets probed", ErrIncomplete, c.recorded, len(c.slots))
}
