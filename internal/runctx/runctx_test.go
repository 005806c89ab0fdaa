package runctx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vinayprograms/agentrace/internal/trace"
)

func TestTagsAreAdditive(t *testing.T) {
	ctx := WithTags(context.Background(), "a", "b")
	ctx = WithTags(ctx, "b", "c", "")
	got := Tags(ctx)
	want := []string{"a", "b", "c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	got[0] = "mutated"
	if Tags(ctx)[0] != "a" {
		t.Error("expected Tags to return a copy")
	}
}

func TestStartThreadsParentAndTags(t *testing.T) {
	e := trace.NewEngine()
	ctx := WithHandler(context.Background(), e)
	ctx = WithTags(ctx, "outer")

	rootCtx, root := StartChain(ctx, trace.GraphName, nil)
	childCtx, child := StartTool(WithTags(rootCtx, "inner"), "add", map[string]any{"a": 1})
	if Parent(childCtx) != child.ID {
		t.Errorf("expected child context parent %s, got %s", child.ID, Parent(childCtx))
	}

	span, ok := e.Span(child.ID)
	if !ok {
		t.Fatal("expected child span")
	}
	if span.ParentRunID != root.ID {
		t.Errorf("expected parent %s, got %s", root.ID, span.ParentRunID)
	}
	if fmt.Sprint(span.Tags) != "[outer inner]" {
		t.Errorf("expected [outer inner], got %v", span.Tags)
	}
	if root.Outcome.Span.Name != trace.SupervisorName {
		t.Errorf("expected supervisor root, got %q", root.Outcome.Span.Name)
	}

	child.End("2", nil)
	child.End("ignored", errors.New("late"))
	closed, _ := e.Span(child.ID)
	if closed.Output != "2" || closed.Error != "" {
		t.Errorf("expected single end, got %v/%q", closed.Output, closed.Error)
	}
}

func TestRunNameHintIsConsumedOnce(t *testing.T) {
	e := trace.NewEngine()
	ctx := WithHandler(context.Background(), e)
	ctx = WithRunName(ctx, "Math Agent")

	subCtx, sub := StartChain(ctx, "MathGraph", nil)
	_, grandchild := StartChain(subCtx, "Inner", nil)

	s, _ := e.Span(sub.ID)
	if s.Name != "Math Agent" {
		t.Errorf("expected hint applied, got %q", s.Name)
	}
	g, _ := e.Span(grandchild.ID)
	if g.Name != "Inner" {
		t.Errorf("expected hint not inherited, got %q", g.Name)
	}

	_, explicit := StartTool(ctx, "add", nil)
	x, _ := e.Span(explicit.ID)
	if x.Name != "add" {
		t.Errorf("expected explicit name kept, got %q", x.Name)
	}
}

func TestNodeMetadataIsInherited(t *testing.T) {
	e := trace.NewEngine()
	ctx := WithHandler(context.Background(), e)
	ctx = WithTags(ctx, trace.RoutingTag("Math Agent"))

	nodeCtx, n := StartNode(ctx, "model", nil)
	_, inner := StartChain(nodeCtx, "RunnableSequence", nil)

	ns, _ := e.Span(n.ID)
	if ns.Name != "Math Agent.model" {
		t.Errorf("expected Math Agent.model, got %q", ns.Name)
	}
	is, _ := e.Span(inner.ID)
	if is.Name != "Math Agent.model" {
		t.Errorf("expected inherited node naming, got %q", is.Name)
	}
}

func TestStartWithoutHandler(t *testing.T) {
	ctx, run := StartChain(context.Background(), "x", nil)
	if run.ID == "" || Parent(ctx) != run.ID {
		t.Error("expected run id threaded without a handler")
	}
	run.End(nil, nil)
}

func TestRunIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		_, run := StartTool(context.Background(), "t", nil)
		if seen[run.ID] {
			t.Fatalf("run id reused: %s", run.ID)
		}
		seen[run.ID] = true
	}
}

func TestIsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !IsCancellation(fmt.Errorf("wrapped: %w", ctx.Err())) {
		t.Error("expected wrapped cancellation detected")
	}
	if IsCancellation(errors.New("other")) {
		t.Error("expected plain error not to be cancellation")
	}
}
