package replay

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/zoobzio/clockz"

	"github.com/vinayprograms/agentrace/internal/eventlog"
	"github.com/vinayprograms/agentrace/internal/trace"
)

// Replayer rebuilds traces from event logs and renders them.
type Replayer struct {
	renderer   *Renderer
	engineOpts []trace.Option
}

// New creates a Replayer. engineOpts configure the engine each log is
// replayed into, so naming rules match the ones used live.
func New(output io.Writer, verbosity int, engineOpts []trace.Option, opts ...RendererOption) *Replayer {
	return &Replayer{
		renderer:   NewRenderer(output, verbosity, opts...),
		engineOpts: engineOpts,
	}
}

// Rebuild replays a log into a fresh engine driven by the recorded timestamps.
func (r *Replayer) Rebuild(l *eventlog.Log) *trace.Engine {
	clk := clockz.NewFakeClockAt(l.CreatedAt)
	opts := append(append([]trace.Option(nil), r.engineOpts...), trace.WithClock(clk))
	e := trace.NewEngine(opts...)
	l.ReplayTimed(e, clk)
	return e
}

// ReplayFile loads, rebuilds and prints the trace in a log file.
func (r *Replayer) ReplayFile(path string) error {
	l, err := eventlog.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load event log: %w", err)
	}
	r.Replay(title(l, path), l)
	return nil
}

// Replay prints the trace in an already loaded log.
func (r *Replayer) Replay(name string, l *eventlog.Log) {
	e := r.Rebuild(l)
	r.renderer.Render(name, e.Tree())
}

// ReplayFileInteractive shows the trace in the interactive pager.
func (r *Replayer) ReplayFileInteractive(path string) error {
	content, l, err := r.renderFile(path)
	if err != nil {
		return err
	}
	p := NewPager(fmt.Sprintf("Trace: %s", title(l, path)))
	return p.Run(content)
}

// ReplayFileLive shows the trace in the pager and re-renders it whenever the
// log file changes.
func (r *Replayer) ReplayFileLive(path string) error {
	_, l, err := r.renderFile(path)
	if err != nil {
		return err
	}
	p := NewPager(fmt.Sprintf("Trace: %s (LIVE)", title(l, path)))
	return p.RunLive(path, func() (string, error) {
		content, _, err := r.renderFile(path)
		return content, err
	})
}

func (r *Replayer) renderFile(path string) (string, *eventlog.Log, error) {
	l, err := eventlog.Load(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load event log: %w", err)
	}
	var buf strings.Builder
	rr := *r.renderer
	rr.output = &buf
	rr.Render(title(l, path), r.Rebuild(l).Tree())
	return buf.String(), l, nil
}

func title(l *eventlog.Log, path string) string {
	if l.ID != "" {
		return l.ID
	}
	return filepath.Base(path)
}
