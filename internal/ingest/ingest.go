// Package ingest moves lifecycle events over NATS: Forwarder publishes them
// from producers, Subscriber decodes them into a trace handler.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/agentrace/internal/eventlog"
	"github.com/vinayprograms/agentrace/internal/trace"
)

// ErrMalformed is returned for messages that are not lifecycle events.
var ErrMalformed = errors.New("malformed event")

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Decode parses one wire message. The wire form is an event log entry.
func Decode(data []byte) (eventlog.Entry, error) {
	var e eventlog.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch e.RecordType {
	case eventlog.RecordTypeStart:
		if e.Start == nil {
			return e, fmt.Errorf("%w: start record without event", ErrMalformed)
		}
	case eventlog.RecordTypeEnd:
		if e.End == nil || e.End.RunID == "" {
			return e, fmt.Errorf("%w: end record without run id", ErrMalformed)
		}
	default:
		return e, fmt.Errorf("%w: unknown record type %q", ErrMalformed, e.RecordType)
	}
	return e, nil
}

// Subscriber feeds events received from NATS into a handler.
type Subscriber struct {
	handler  trace.Handler
	logger   *logging.Logger
	received atomic.Int64
	dropped  atomic.Int64
}

// NewSubscriber delivers decoded events to h.
func NewSubscriber(h trace.Handler) *Subscriber {
	return &Subscriber{
		handler: h,
		logger:  logging.New().WithComponent("ingest"),
	}
}

// Handle decodes one message and delivers it. Malformed messages are logged
// and dropped.
func (s *Subscriber) Handle(data []byte) {
	e, err := Decode(data)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("dropping message", map[string]interface{}{
			"error": err.Error(),
			"bytes": len(data),
		})
		return
	}
	s.received.Add(1)
	if e.Start != nil {
		s.handler.OnStart(*e.Start)
		return
	}
	s.handler.OnEnd(*e.End)
}

// Received returns how many events were delivered.
func (s *Subscriber) Received() int64 { return s.received.Load() }

// Dropped returns how many messages were discarded.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Run subscribes to subject in the given queue group and delivers events until
// ctx is cancelled, then drains the subscription.
func (s *Subscriber) Run(ctx context.Context, nc *nats.Conn, subject, queue string) error {
	sub, err := nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		s.Handle(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	s.logger.Info("subscribed", map[string]interface{}{
		"subject": subject,
		"queue":   queue,
	})

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	s.logger.Info("unsubscribed", map[string]interface{}{
		"subject":  subject,
		"received": s.Received(),
		"dropped":  s.Dropped(),
	})
	return nil
}

// Forwarder is a trace.Handler that publishes events for a remote engine.
// It resolves nothing locally: outcomes carry only the run id.
type Forwarder struct {
	pub     Publisher
	subject string
	seq     atomic.Uint64
	logger  *logging.Logger
}

// NewForwarder publishes events on subject through pub.
func NewForwarder(pub Publisher, subject string) *Forwarder {
	return &Forwarder{
		pub:     pub,
		subject: subject,
		logger:  logging.New().WithComponent("ingest"),
	}
}

// OnStart implements trace.Handler.
func (f *Forwarder) OnStart(ev trace.StartEvent) trace.Outcome {
	if ev.RunID == "" {
		ev.RunID = uuid.NewString()
	}
	f.publish(eventlog.Entry{RecordType: eventlog.RecordTypeStart, Start: &ev})
	return trace.Outcome{RunID: ev.RunID}
}

// OnEnd implements trace.Handler.
func (f *Forwarder) OnEnd(ev trace.EndEvent) (trace.Span, bool) {
	f.publish(eventlog.Entry{RecordType: eventlog.RecordTypeEnd, End: &ev})
	return trace.Span{}, false
}

func (f *Forwarder) publish(e eventlog.Entry) {
	e.Seq = f.seq.Add(1)
	e.Timestamp = time.Now()
	data, err := json.Marshal(e)
	if err != nil {
		data, err = json.Marshal(eventlog.Sanitize(e))
	}
	if err == nil {
		err = f.pub.Publish(f.subject, data)
	}
	if err != nil {
		f.logger.Warn("failed to forward event", map[string]interface{}{
			"subject": f.subject,
			"type":    e.RecordType,
			"error":   err.Error(),
		})
	}
}
