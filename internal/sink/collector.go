// Package sink provides destinations for resolved span records.
package sink

import (
	"maps"
	"slices"
	"sync"

	"github.com/vinayprograms/agentrace/internal/trace"
)

// Collector buffers records in memory. Ended records are buffered for
// export; records that have started but not ended are tracked as incomplete.
// Safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	spans []trace.Record
	open  map[string]trace.Record
	order []string
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{open: make(map[string]trace.Record)}
}

// SpanStarted implements trace.Sink.
func (c *Collector) SpanStarted(rec trace.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.open[rec.RunID]; !ok {
		c.order = append(c.order, rec.RunID)
	}
	c.open[rec.RunID] = copyRecord(rec)
	return nil
}

// SpanEnded implements trace.Sink.
func (c *Collector) SpanEnded(rec trace.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.open, rec.RunID)
	c.spans = append(c.spans, copyRecord(rec))
	return nil
}

// Export returns the buffered ended records and clears the buffer.
func (c *Collector) Export() []trace.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.spans) == 0 {
		return nil
	}
	out := make([]trace.Record, len(c.spans))
	for i, r := range c.spans {
		out[i] = copyRecord(r)
	}
	c.spans = c.spans[:0]
	return out
}

// Count returns the number of buffered ended records.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// Incomplete returns records that started but never ended, flagged as
// incomplete, in start order.
func (c *Collector) Incomplete() []trace.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []trace.Record
	live := c.order[:0]
	for _, id := range c.order {
		r, ok := c.open[id]
		if !ok {
			continue
		}
		live = append(live, id)
		r = copyRecord(r)
		r.Incomplete = true
		out = append(out, r)
	}
	c.order = live
	return out
}

func copyRecord(r trace.Record) trace.Record {
	r.Tags = slices.Clone(r.Tags)
	r.Metadata = maps.Clone(r.Metadata)
	return r
}
