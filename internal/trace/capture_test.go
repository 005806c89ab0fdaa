package trace

import (
	"context"
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

type ToolRuntime struct {
	State map[string]any
}

type config struct {
	Name string `json:"name"`
}

func TestNonSerializableToolArgumentIsPlaceholder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewEngine()
	out := e.OnStart(tool("t", "", "lookup", map[string]any{
		"query":    "weather",
		"runtime":  &ToolRuntime{State: map[string]any{"k": 1}},
		"callback": func() {},
		"ctx":      ctx,
		"events":   make(chan int),
		"ratio":    math.NaN(),
		"config":   config{Name: "x"},
	}))
	if out.Suppressed {
		t.Fatal("expected visible span")
	}
	in, ok := out.Span.Input.(map[string]any)
	if !ok {
		t.Fatalf("expected captured map, got %T", out.Span.Input)
	}
	if in["query"] != "weather" {
		t.Errorf("expected query kept, got %v", in["query"])
	}
	want := map[string]string{
		"runtime":  "<ToolRuntime>",
		"callback": "<func>",
		"events":   "<chan>",
		"ratio":    "<float64>",
	}
	for k, w := range want {
		if in[k] != w {
			t.Errorf("expected %s placeholder %q, got %v", k, w, in[k])
		}
	}
	if s, ok := in["ctx"].(string); !ok || !strings.HasPrefix(s, "<") {
		t.Errorf("expected ctx placeholder, got %v", in["ctx"])
	}
	if c, ok := in["config"].(config); !ok || c.Name != "x" {
		t.Errorf("expected serializable struct kept, got %v", in["config"])
	}
}

func TestRuntimeTypeNameIsPlaceholderAnywhere(t *testing.T) {
	c := capturer{max: DefaultMaxPayloadChars}
	if got := c.capture(ToolRuntime{}); got != "<ToolRuntime>" {
		t.Errorf("expected <ToolRuntime>, got %v", got)
	}
	if got := c.capture(map[string]any{"rt": &ToolRuntime{}}); got.(map[string]any)["rt"] != "<ToolRuntime>" {
		t.Errorf("expected nested placeholder, got %v", got)
	}
}

func TestNestedUnserializableValue(t *testing.T) {
	c := capturer{max: DefaultMaxPayloadChars}
	got := c.capture(map[string]any{"opts": map[string]any{"fn": func() {}, "n": 2}})
	opts, ok := got.(map[string]any)["opts"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map kept, got %v", got)
	}
	if opts["fn"] != "<func>" {
		t.Errorf("expected <func>, got %v", opts["fn"])
	}
	if opts["n"] != 2 {
		t.Errorf("expected sibling value kept, got %v", opts["n"])
	}
}

type document struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func TestNestedStringsAreBounded(t *testing.T) {
	long := strings.Repeat("x", 5000)
	c := capturer{max: DefaultMaxPayloadChars}
	got := c.capture(map[string]any{
		"messages": []any{map[string]any{"content": long}},
		"headers":  map[string]string{"x-trace": long},
		"pages":    []string{long},
		"doc":      document{Title: "t", Body: long},
	}).(map[string]any)

	msg := got["messages"].([]any)[0].(map[string]any)["content"].(string)
	if len(msg) != DefaultMaxPayloadChars {
		t.Errorf("expected message content truncated to %d, got %d", DefaultMaxPayloadChars, len(msg))
	}
	if h := got["headers"].(map[string]any)["x-trace"].(string); len(h) != DefaultMaxPayloadChars {
		t.Errorf("expected header truncated to %d, got %d", DefaultMaxPayloadChars, len(h))
	}
	if p := got["pages"].([]any)[0].(string); len(p) != DefaultMaxPayloadChars {
		t.Errorf("expected page truncated to %d, got %d", DefaultMaxPayloadChars, len(p))
	}
	doc, ok := got["doc"].(map[string]any)
	if !ok {
		t.Fatalf("expected oversized struct captured as a map, got %T", got["doc"])
	}
	if doc["title"] != "t" || len(doc["body"].(string)) != DefaultMaxPayloadChars {
		t.Errorf("expected struct body truncated, got title %v and %d chars", doc["title"], len(doc["body"].(string)))
	}
}

func TestCyclicPayloadIsBounded(t *testing.T) {
	m := map[string]any{"name": "loop"}
	m["self"] = m
	got := capturer{max: DefaultMaxPayloadChars}.capture(m).(map[string]any)
	depth := 0
	for cur := got; ; depth++ {
		next, ok := cur["self"].(map[string]any)
		if !ok {
			if s, _ := cur["self"].(string); s != "<map>" {
				t.Errorf("expected <map> at the depth limit, got %v", cur["self"])
			}
			break
		}
		cur = next
	}
	if depth > maxCaptureDepth {
		t.Errorf("expected at most %d levels, got %d", maxCaptureDepth, depth)
	}
}

func TestStringPayloadTruncation(t *testing.T) {
	long := strings.Repeat("ab", 400)
	unicode := strings.Repeat("é", 600)

	e := NewEngine()
	out := e.OnStart(StartEvent{Type: EventTool, RunID: "t", Name: "echo", Input: long, InputStr: unicode})
	in := out.Span.Input.(string)
	if len(in) != DefaultMaxPayloadChars {
		t.Errorf("expected %d chars, got %d", DefaultMaxPayloadChars, len(in))
	}
	if !strings.HasPrefix(long, in) {
		t.Error("expected truncated prefix of input")
	}
	raw := out.Span.Metadata[MetaInputStr].(string)
	if utf8.RuneCountInString(raw) != DefaultMaxPayloadChars {
		t.Errorf("expected %d runes, got %d", DefaultMaxPayloadChars, utf8.RuneCountInString(raw))
	}

	closed, _ := e.OnEnd(EndEvent{RunID: "t", Output: map[string]any{"text": long}})
	if got := closed.Output.(map[string]any)["text"].(string); len(got) != DefaultMaxPayloadChars {
		t.Errorf("expected output truncated to %d, got %d", DefaultMaxPayloadChars, len(got))
	}
}

func TestCustomPayloadBound(t *testing.T) {
	e := NewEngine(WithMaxPayloadChars(5))
	out := e.OnStart(StartEvent{Type: EventTool, RunID: "t", Name: "echo", Input: map[string]string{"q": "abcdefgh"}})
	if got := out.Span.Input.(map[string]any)["q"]; got != "abcde" {
		t.Errorf("expected abcde, got %v", got)
	}
	if got := (capturer{max: 5}).truncate("abc"); got != "abc" {
		t.Errorf("expected short string kept, got %q", got)
	}
}

func TestNilAndBytesCapture(t *testing.T) {
	c := capturer{max: 3}
	if c.capture(nil) != nil {
		t.Error("expected nil kept")
	}
	if got := c.capture([]byte("hello")); got != "hel" {
		t.Errorf("expected hel, got %v", got)
	}
	if got := c.capture(42); got != 42 {
		t.Errorf("expected 42, got %v", got)
	}
}
