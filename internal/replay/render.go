package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/vinayprograms/agentrace/internal/trace"
)

// Verbosity levels.
const (
	Normal      = 0 // names, kinds, durations, errors
	Verbose     = 1 // adds outputs
	VeryVerbose = 2 // adds inputs, tags and subagent context
)

// Renderer prints span trees.
type Renderer struct {
	output         io.Writer
	verbosity      int
	maxContentSize int
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithMaxContentSize limits how much of each input or output is printed.
func WithMaxContentSize(size int) RendererOption {
	return func(r *Renderer) {
		r.maxContentSize = size
	}
}

// NewRenderer creates a renderer writing to output.
func NewRenderer(output io.Writer, verbosity int, opts ...RendererOption) *Renderer {
	r := &Renderer{
		output:         output,
		verbosity:      verbosity,
		maxContentSize: 200,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render prints a titled tree followed by a summary.
func (r *Renderer) Render(title string, roots []*trace.Node) {
	st := ComputeStats(roots)
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s %s\n", titleStyle.Render("TRACE"), valueStyle.Render(title),
		dimStyle.Render(fmt.Sprintf("(%d spans)", st.Spans)))
	fmt.Fprintln(r.output, divider)
	r.Tree(roots)
	fmt.Fprintln(r.output, divider)
	PrintStats(r.output, st)
}

// Tree prints the span tree alone.
func (r *Renderer) Tree(roots []*trace.Node) {
	for _, n := range roots {
		r.node(n, "", "", "")
	}
}

func (r *Renderer) node(n *trace.Node, prefix, branch, cont string) {
	s := n.Span
	line := prefix + branch + kindStyle(s.Kind).Render(s.Name) + " " + dimStyle.Render("["+string(s.Kind)+"]")
	switch {
	case s.State == trace.StateOpen:
		line += " " + warnStyle.Render("… incomplete")
	case s.Error != "":
		line += " " + dimStyle.Render(formatDuration(s.Duration())) + " " + errorStyle.Render("✗")
	default:
		line += " " + dimStyle.Render(formatDuration(s.Duration()))
	}
	fmt.Fprintln(r.output, line)

	detail := prefix + cont
	if len(n.Children) > 0 {
		detail += "│ "
	} else {
		detail += "  "
	}
	if s.Error != "" {
		fmt.Fprintf(r.output, "%s%s %s\n", detail, labelStyle.Render("error:"), errorStyle.Render(r.clip(s.Error)))
	}
	if r.verbosity >= VeryVerbose {
		if sub := s.Subagent(); sub != "" {
			fmt.Fprintf(r.output, "%s%s %s\n", detail, labelStyle.Render("subagent:"), valueStyle.Render(sub))
		}
		if len(s.Tags) > 0 {
			fmt.Fprintf(r.output, "%s%s %s\n", detail, labelStyle.Render("tags:"), valueStyle.Render(strings.Join(s.Tags, ", ")))
		}
		if s.Input != nil {
			fmt.Fprintf(r.output, "%s%s %s\n", detail, labelStyle.Render("in:"), r.clip(format(s.Input)))
		}
	}
	if r.verbosity >= Verbose && s.Output != nil {
		fmt.Fprintf(r.output, "%s%s %s\n", detail, labelStyle.Render("out:"), successStyle.Render(r.clip(format(s.Output))))
	}

	for i, c := range n.Children {
		if i == len(n.Children)-1 {
			r.node(c, prefix+cont, "└── ", "    ")
		} else {
			r.node(c, prefix+cont, "├── ", "│   ")
		}
	}
}

func (r *Renderer) clip(s string) string {
	if r.maxContentSize <= 0 || r.verbosity >= VeryVerbose {
		return truncateContent(s, 0)
	}
	return truncateContent(s, r.maxContentSize)
}

// Stats summarizes a span tree.
type Stats struct {
	Spans      int
	Incomplete int
	Errors     int
	ByKind     map[trace.Kind]int
	Subagents  []string
	Elapsed    time.Duration
}

// ComputeStats walks the tree once.
func ComputeStats(roots []*trace.Node) *Stats {
	st := &Stats{ByKind: map[trace.Kind]int{}}
	seen := map[string]bool{}
	trace.Walk(roots, func(n *trace.Node, depth int) bool {
		st.Spans++
		st.ByKind[n.Span.Kind]++
		if n.Span.State == trace.StateOpen {
			st.Incomplete++
		}
		if n.Span.Error != "" {
			st.Errors++
		}
		if n.Span.Kind == trace.KindSubagent && !seen[n.Span.Name] {
			seen[n.Span.Name] = true
			st.Subagents = append(st.Subagents, n.Span.Name)
		}
		if depth == 0 {
			st.Elapsed += n.Span.Duration()
		}
		return true
	})
	sort.Strings(st.Subagents)
	return st
}

// PrintStats prints a one-block summary.
func PrintStats(w io.Writer, st *Stats) {
	switch {
	case st.Incomplete > 0:
		fmt.Fprintf(w, "%s %s\n", warnStyle.Render("INCOMPLETE"), dimStyle.Render(fmt.Sprintf("(%d open)", st.Incomplete)))
	case st.Errors > 0:
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("FAILED"), dimStyle.Render(fmt.Sprintf("(%d errors)", st.Errors)))
	default:
		fmt.Fprintln(w, successStyle.Render("COMPLETED"))
	}

	kinds := []trace.Kind{trace.KindOrchestration, trace.KindSubagent, trace.KindTool, trace.KindModel, trace.KindGeneric}
	var parts []string
	for _, k := range kinds {
		if n := st.ByKind[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", strings.ToLower(string(k)), n))
		}
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Spans:    "), valueStyle.Render(strings.Join(parts, ", ")))
	if len(st.Subagents) > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Subagents:"), subagentStyle.Render(strings.Join(st.Subagents, ", ")))
	}
	if st.Elapsed > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Elapsed:  "), valueStyle.Render(formatDuration(st.Elapsed)))
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm%ds", mins, secs)
}

func format(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// truncateContent flattens s to one line and cuts it at maxLen runes when
// maxLen is positive.
func truncateContent(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
