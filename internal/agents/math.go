// Package agents provides subagent handles used by the CLI and tests.
package agents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vinayprograms/agentrace/internal/registry"
	"github.com/vinayprograms/agentrace/internal/runctx"
)

// ErrDivideByZero is returned by the divide tool.
var ErrDivideByZero = errors.New("division by zero")

// ErrNoExpression means the task holds no "a <op> b" expression.
var ErrNoExpression = errors.New("no arithmetic expression found")

// PlannerModel names the expression planner in the trace.
const PlannerModel = "expression-planner"

type operation struct {
	tool string
	fn   func(a, b float64) (float64, error)
}

var operations = map[string]operation{
	"add":      {"add", func(a, b float64) (float64, error) { return a + b, nil }},
	"subtract": {"subtract", func(a, b float64) (float64, error) { return a - b, nil }},
	"multiply": {"multiply", func(a, b float64) (float64, error) { return a * b, nil }},
	"divide": {"divide", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	}},
}

var opWords = map[string]string{
	"+": "add", "plus": "add",
	"-": "subtract", "minus": "subtract",
	"*": "multiply", "x": "multiply", "×": "multiply", "times": "multiply", "multiplied by": "multiply",
	"/": "divide", "÷": "divide", "divided by": "divide", "over": "divide",
}

var exprPattern = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*(multiplied by|divided by|plus|minus|times|over|[-+*/x×÷])\s*(-?\d+(?:\.\d+)?)`)

// Expression is a parsed binary arithmetic expression.
type Expression struct {
	A, B float64
	Op   string // tool name
}

func (e Expression) String() string {
	return fmt.Sprintf("%s(%s, %s)", e.Op, formatNumber(e.A), formatNumber(e.B))
}

// ParseExpression finds the first "a <op> b" in text.
func ParseExpression(text string) (Expression, error) {
	m := exprPattern.FindStringSubmatch(text)
	if m == nil {
		return Expression{}, fmt.Errorf("%w in %q", ErrNoExpression, text)
	}
	a, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Expression{}, err
	}
	b, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Expression{}, err
	}
	return Expression{A: a, B: b, Op: opWords[strings.ToLower(m[2])]}, nil
}

// Math is a subagent that answers arithmetic tasks with add, subtract,
// multiply and divide tools.
type Math struct{}

// NewMath creates a math subagent.
func NewMath() *Math {
	return &Math{}
}

// Invoke implements registry.Handle.
func (m *Math) Invoke(ctx context.Context, req registry.Request) (registry.Response, error) {
	ctx, root := runctx.StartChain(ctx, "MathAgent", map[string]any{"task": req.Task})
	out, err := m.run(ctx, req)
	if err != nil {
		if !runctx.IsCancellation(err) {
			root.End(nil, err)
		}
		return registry.Response{}, err
	}
	root.End(out, nil)
	return registry.Response{Output: out}, nil
}

func (m *Math) run(ctx context.Context, req registry.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	planCtx, plan := runctx.StartNode(ctx, "model", map[string]any{"task": req.Task})
	_, call := runctx.StartModel(planCtx, PlannerModel, req.Task)
	expr, err := ParseExpression(req.Task)
	if err != nil {
		call.End(nil, err)
		plan.End(nil, err)
		return "", err
	}
	call.End(expr.String(), nil)
	plan.End(expr.String(), nil)

	toolsCtx, node := runctx.StartNode(ctx, "tools", map[string]any{"tool": expr.Op})
	_, t := runctx.StartTool(toolsCtx, expr.Op, map[string]any{"a": expr.A, "b": expr.B})
	v, err := operations[expr.Op].fn(expr.A, expr.B)
	if err != nil {
		t.End(nil, err)
		node.End(nil, err)
		return "", err
	}
	result := formatNumber(v)
	t.End(result, nil)
	node.End(result, nil)
	return result, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
