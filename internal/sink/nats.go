package sink

import (
	"encoding/json"
	"fmt"

	"github.com/vinayprograms/agentrace/internal/trace"
)

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATS publishes span records as JSON on <prefix>.started and <prefix>.ended.
type NATS struct {
	pub    Publisher
	prefix string
}

// NewNATS publishes through pub under the given subject prefix.
func NewNATS(pub Publisher, prefix string) *NATS {
	return &NATS{pub: pub, prefix: prefix}
}

// StartedSubject is the subject span starts are published on.
func (n *NATS) StartedSubject() string { return n.prefix + ".started" }

// EndedSubject is the subject span ends are published on.
func (n *NATS) EndedSubject() string { return n.prefix + ".ended" }

// SpanStarted implements trace.Sink.
func (n *NATS) SpanStarted(rec trace.Record) error {
	return n.publish(n.StartedSubject(), rec)
}

// SpanEnded implements trace.Sink.
func (n *NATS) SpanEnded(rec trace.Record) error {
	return n.publish(n.EndedSubject(), rec)
}

func (n *NATS) publish(subj string, rec trace.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode span %s: %w", rec.RunID, err)
	}
	if err := n.pub.Publish(subj, data); err != nil {
		return fmt.Errorf("failed to publish span %s to %s: %w", rec.RunID, subj, err)
	}
	return nil
}
