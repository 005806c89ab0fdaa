// Package runctx threads run configuration (tags, name hint, parent run id,
// metadata and the event handler) through context.Context and emits
// lifecycle events from it.
package runctx

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/vinayprograms/agentrace/internal/trace"
)

type ctxKey int

const (
	keyTags ctxKey = iota
	keyRunName
	keyParent
	keyMetadata
	keyHandler
)

// WithTags returns a context whose tags are the existing tags followed by any
// new ones not already present.
func WithTags(ctx context.Context, tags ...string) context.Context {
	existing := Tags(ctx)
	merged := existing
	for _, t := range tags {
		if t != "" && !slices.Contains(merged, t) {
			merged = append(merged, t)
		}
	}
	if len(merged) == len(existing) {
		return ctx
	}
	return context.WithValue(ctx, keyTags, merged)
}

// Tags returns a copy of the context's tags.
func Tags(ctx context.Context) []string {
	if tags, ok := ctx.Value(keyTags).([]string); ok {
		return slices.Clone(tags)
	}
	return nil
}

// WithRunName sets the display-name hint for the next event started under ctx.
func WithRunName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyRunName, name)
}

// RunName returns the pending display-name hint.
func RunName(ctx context.Context) string {
	name, _ := ctx.Value(keyRunName).(string)
	return name
}

// WithParent sets the run id that events started under ctx are children of.
func WithParent(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyParent, runID)
}

// Parent returns the current parent run id.
func Parent(ctx context.Context) string {
	id, _ := ctx.Value(keyParent).(string)
	return id
}

// WithMetadata merges kv over the context's metadata.
func WithMetadata(ctx context.Context, kv map[string]any) context.Context {
	if len(kv) == 0 {
		return ctx
	}
	merged := Metadata(ctx)
	if merged == nil {
		merged = make(map[string]any, len(kv))
	}
	maps.Copy(merged, kv)
	return context.WithValue(ctx, keyMetadata, merged)
}

// Metadata returns a copy of the context's metadata.
func Metadata(ctx context.Context) map[string]any {
	if m, ok := ctx.Value(keyMetadata).(map[string]any); ok {
		return maps.Clone(m)
	}
	return nil
}

// WithHandler sets the handler that receives lifecycle events.
func WithHandler(ctx context.Context, h trace.Handler) context.Context {
	return context.WithValue(ctx, keyHandler, h)
}

// HandlerFrom returns the context's handler, or nil.
func HandlerFrom(ctx context.Context) trace.Handler {
	h, _ := ctx.Value(keyHandler).(trace.Handler)
	return h
}

// IsCancellation reports whether err comes from a cancelled or expired context.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
