package trace

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/zoobzio/clockz"
)

// maxParentHops bounds the walk through suppressed frames.
const maxParentHops = 256

// Stats counts what the engine has seen.
type Stats struct {
	Opened       int
	Closed       int
	Suppressed   int
	Absorbed     int
	Orphaned     int
	Duplicates   int
	SinkErrors   int
	CrossContext int
}

// Engine turns lifecycle events into resolved spans. All methods are safe for
// concurrent use.
//
// Sink deliveries are queued under the engine lock and drained outside it by
// one goroutine at a time, so sinks see records in the order the engine's
// state changed while a slow sink never holds up readers or other producers.
type Engine struct {
	mu         sync.Mutex
	spans      map[string]*Span
	order      []string
	suppressed map[string]string
	stats      Stats

	// waiting holds children that opened under a parent id the engine had
	// not seen yet, keyed by that id.
	waiting map[string][]string

	outbox   []pending
	flushing bool
	idle     *sync.Cond

	sinks        []Sink
	sinkErrors   atomic.Int64
	crossContext atomic.Int64

	clock         clockz.Clock
	capture       capturer
	hiddenTags    map[string]struct{}
	hiddenNames   map[string]struct{}
	wrapperFrames bool
	policy        RoutingPolicy
	graphMetadata map[string]any
	logger        *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink adds a sink. Sinks are called in the order they were added.
func WithSink(s Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
}

// WithClock sets the clock used for span timestamps.
func WithClock(c clockz.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithMaxPayloadChars sets the bound for captured strings.
func WithMaxPayloadChars(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.capture.max = n
		}
	}
}

// WithHiddenTags replaces the set of visibility tags that suppress a frame.
func WithHiddenTags(tags ...string) Option {
	return func(e *Engine) {
		e.hiddenTags = toSet(tags)
	}
}

// WithHiddenNames replaces the deny-list of internal chain names.
func WithHiddenNames(names ...string) Option {
	return func(e *Engine) {
		e.hiddenNames = toSet(names)
	}
}

// WithWrapperFrames keeps the wrapper's invocation frame in the tree, named
// "→ <subagent>" once routing context is attached.
func WithWrapperFrames(show bool) Option {
	return func(e *Engine) {
		e.wrapperFrames = show
	}
}

// WithRoutingPolicy sets which routing tag wins when several are present.
func WithRoutingPolicy(p RoutingPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithGraphMetadata attaches static graph metadata to every root span.
func WithGraphMetadata(meta map[string]any) Option {
	return func(e *Engine) {
		e.graphMetadata = maps.Clone(meta)
	}
}

// NewEngine creates an engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		spans:       make(map[string]*Span),
		suppressed:  make(map[string]string),
		waiting:     make(map[string][]string),
		clock:       clockz.RealClock,
		capture:     capturer{max: DefaultMaxPayloadChars},
		hiddenTags:  toSet(DefaultHiddenTags),
		hiddenNames: toSet(DefaultHiddenNames),
		logger:      logging.New().WithComponent("trace"),
	}
	e.idle = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	if !e.wrapperFrames {
		e.hiddenNames[WrapperFrame] = struct{}{}
	} else {
		delete(e.hiddenNames, WrapperFrame)
	}
	return e
}

// OnStart resolves a start event into a new open span or a suppression marker.
// A start for a run id the engine has already seen returns the earlier outcome.
func (e *Engine) OnStart(ev StartEvent) Outcome {
	if ev.RunID == "" {
		ev.RunID = uuid.NewString()
		e.logger.Debug("start event without run id", map[string]interface{}{
			"assigned": ev.RunID,
			"name":     ev.Name,
		})
	}

	e.mu.Lock()
	if s, ok := e.spans[ev.RunID]; ok {
		e.stats.Duplicates++
		out := Outcome{RunID: ev.RunID, Span: s.clone(), Duplicate: true}
		e.mu.Unlock()
		return out
	}
	if _, ok := e.suppressed[ev.RunID]; ok {
		e.stats.Duplicates++
		e.mu.Unlock()
		return Outcome{RunID: ev.RunID, Suppressed: true, Duplicate: true}
	}

	parent := e.visibleParentLocked(ev.ParentRunID)
	res := e.resolve(ev, parent == "")
	if res.suppress != "" {
		e.suppressed[ev.RunID] = ev.ParentRunID
		e.stats.Suppressed++
		e.adoptWaitingLocked(ev.RunID, parent)
		e.mu.Unlock()
		e.logger.Debug("suppressed frame", map[string]interface{}{
			"run_id": ev.RunID,
			"name":   ev.Name,
			"reason": res.suppress,
		})
		return Outcome{RunID: ev.RunID, Suppressed: true, Reason: res.suppress}
	}

	span := &Span{
		RunID:       ev.RunID,
		ParentRunID: parent,
		Name:        res.name,
		Kind:        res.kind,
		Tags:        append([]string(nil), ev.Tags...),
		Metadata:    e.metadata(ev, res, parent),
		Input:       e.capture.capture(ev.Input),
		State:       StateOpen,
		StartedAt:   e.clock.Now(),
	}
	e.spans[ev.RunID] = span
	e.order = append(e.order, ev.RunID)
	e.stats.Opened++
	delete(e.waiting, ev.RunID)
	if parent != "" {
		if _, ok := e.spans[parent]; !ok {
			e.waiting[parent] = append(e.waiting[parent], ev.RunID)
		}
	}
	e.enqueueLocked(span.record(), false)
	out := Outcome{RunID: ev.RunID, Span: span.clone()}
	e.mu.Unlock()
	e.flush()
	return out
}

// OnEnd closes the span for ev.RunID. It reports false, and changes nothing,
// for suppressed, unknown or already closed runs.
func (e *Engine) OnEnd(ev EndEvent) (Span, bool) {
	e.mu.Lock()
	if _, ok := e.suppressed[ev.RunID]; ok {
		e.stats.Absorbed++
		e.mu.Unlock()
		return Span{}, false
	}
	s, ok := e.spans[ev.RunID]
	if !ok {
		e.stats.Orphaned++
		e.mu.Unlock()
		e.logger.Debug("end for unknown run", map[string]interface{}{"run_id": ev.RunID})
		return Span{}, false
	}
	if s.State == StateClosed {
		e.stats.Duplicates++
		out := s.clone()
		e.mu.Unlock()
		return out, false
	}

	s.Output = e.capture.capture(ev.Output)
	s.Error = e.capture.truncate(ev.Err)
	s.EndedAt = e.clock.Now()
	s.State = StateClosed
	e.stats.Closed++
	e.enqueueLocked(s.record(), true)
	out := s.clone()
	e.mu.Unlock()
	e.flush()
	return out, true
}

// Span returns the span for a run id.
func (e *Engine) Span(runID string) (Span, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.spans[runID]
	if !ok {
		return Span{}, false
	}
	return s.clone(), true
}

// IsSuppressed reports whether a run id is in the suppression set.
func (e *Engine) IsSuppressed(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.suppressed[runID]
	return ok
}

// Spans returns all visible spans in the order they were opened.
func (e *Engine) Spans() []Span {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Span, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.spans[id].clone())
	}
	return out
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	st := e.stats
	e.mu.Unlock()
	st.SinkErrors = int(e.sinkErrors.Load())
	st.CrossContext = int(e.crossContext.Load())
	return st
}

// visibleParentLocked walks up through suppressed frames to the nearest
// visible ancestor. An id the engine has never seen is kept as is.
func (e *Engine) visibleParentLocked(id string) string {
	for hops := 0; id != "" && hops < maxParentHops; hops++ {
		if _, ok := e.spans[id]; ok {
			return id
		}
		next, ok := e.suppressed[id]
		if !ok {
			return id
		}
		id = next
	}
	return id
}

// adoptWaitingLocked re-points children that were waiting on a frame that
// turned out to be suppressed at that frame's visible parent. Children whose
// new parent is still unknown keep waiting on it.
func (e *Engine) adoptWaitingLocked(id, parent string) {
	children := e.waiting[id]
	if len(children) == 0 {
		return
	}
	delete(e.waiting, id)
	for _, childID := range children {
		child, ok := e.spans[childID]
		if !ok || child.ParentRunID != id {
			continue
		}
		if _, ok := child.Metadata[MetaRawParent]; !ok {
			child.Metadata[MetaRawParent] = id
		}
		child.ParentRunID = parent
		if parent == "" {
			continue
		}
		if _, ok := e.spans[parent]; !ok {
			e.waiting[parent] = append(e.waiting[parent], childID)
		}
	}
	e.logger.Debug("re-parented waiting children", map[string]interface{}{
		"suppressed": id,
		"parent":     parent,
		"children":   len(children),
	})
}

func (e *Engine) metadata(ev StartEvent, res resolution, parent string) map[string]any {
	meta := map[string]any{
		MetaEventType: string(ev.Type),
	}
	if len(ev.Metadata) > 0 {
		meta[MetaUpstreamMeta] = e.capture.capture(ev.Metadata)
	}
	if ev.Name != "" {
		meta[MetaEventName] = ev.Name
	}
	if ev.Serialized.Name != "" {
		meta[MetaSerialized] = ev.Serialized.Name
	}
	if ev.InputStr != "" {
		meta[MetaInputStr] = e.capture.truncate(ev.InputStr)
	}
	if res.subagent != "" {
		meta[MetaSubagent] = res.subagent
	}
	if res.node != "" {
		meta[MetaNode] = res.node
	}
	if res.launcher {
		meta[MetaLauncher] = true
	}
	if ev.ParentRunID != "" && ev.ParentRunID != parent {
		meta[MetaRawParent] = ev.ParentRunID
	}
	if parent == "" {
		for k, v := range e.graphMetadata {
			meta[MetaGraphPrefix+k] = v
		}
	}
	return meta
}

type pending struct {
	rec   Record
	ended bool
}

func (e *Engine) enqueueLocked(rec Record, ended bool) {
	if len(e.sinks) == 0 {
		return
	}
	e.outbox = append(e.outbox, pending{rec: rec, ended: ended})
}

// flush drains the outbox outside the lock. A goroutine that finds another
// one already draining leaves its records to it.
func (e *Engine) flush() {
	e.mu.Lock()
	if e.flushing || len(e.outbox) == 0 {
		e.mu.Unlock()
		return
	}
	e.flushing = true
	for len(e.outbox) > 0 {
		batch := e.outbox
		e.outbox = nil
		e.mu.Unlock()
		for _, p := range batch {
			e.emit(p.rec, p.ended)
		}
		e.mu.Lock()
	}
	e.flushing = false
	e.idle.Broadcast()
	e.mu.Unlock()
}

// Flush blocks until every queued record has been handed to the sinks. It
// must not be called from inside a sink.
func (e *Engine) Flush() {
	e.mu.Lock()
	for e.flushing || len(e.outbox) > 0 {
		if !e.flushing {
			e.mu.Unlock()
			e.flush()
			e.mu.Lock()
			continue
		}
		e.idle.Wait()
	}
	e.mu.Unlock()
}

// emit hands a record to every sink. Cross-context errors are expected and
// dropped; anything else is logged.
func (e *Engine) emit(rec Record, ended bool) {
	for _, s := range e.sinks {
		err := callSink(s, rec, ended)
		if err == nil {
			continue
		}
		if IsCrossContext(err) {
			e.crossContext.Add(1)
			e.logger.Debug("skipped cross-context update", map[string]interface{}{
				"run_id": rec.RunID,
				"error":  err.Error(),
			})
			continue
		}
		e.sinkErrors.Add(1)
		e.logger.Warn("sink failed", map[string]interface{}{
			"run_id": rec.RunID,
			"span":   rec.Name,
			"error":  err.Error(),
		})
	}
}

func callSink(s Sink, rec Record, ended bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	if ended {
		return s.SpanEnded(rec)
	}
	return s.SpanStarted(rec)
}

func toSet(vals []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return set
}
