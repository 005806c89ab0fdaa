package trace

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"unicode/utf8"
)

// DefaultMaxPayloadChars bounds captured string payloads.
const DefaultMaxPayloadChars = 500

// runtimeKey is the input key whose value is always a live handle.
const runtimeKey = "runtime"

// maxCaptureDepth bounds how deep nested payloads are copied.
const maxCaptureDepth = 32

type capturer struct {
	max int
}

// capture returns a storable copy of v. Top-level maps are captured per key so
// that one live handle does not hide the rest of the arguments.
func (c capturer) capture(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == runtimeKey {
				out[k] = placeholder(val)
				continue
			}
			out[k] = c.value(val)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = c.truncate(val)
		}
		return out
	}
	return c.value(v)
}

func (c capturer) value(v any) any {
	return c.walk(v, 1)
}

// walk copies v, bounding every string it reaches and replacing live or
// unserializable values with a placeholder wherever they are nested.
func (c capturer) walk(v any, depth int) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return c.truncate(t)
	case []byte:
		return c.truncate(string(t))
	case json.RawMessage:
		return c.truncate(string(t))
	case error:
		return c.truncate(t.Error())
	}
	if isLive(v) || depth > maxCaptureDepth {
		return placeholder(v)
	}

	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = c.walk(val, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = c.walk(val, depth+1)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return c.truncate(rv.String())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = c.walk(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = c.walk(rv.Index(i).Interface(), depth+1)
		}
		return out
	}

	b, ok := marshal(v)
	if !ok {
		return placeholder(v)
	}
	if c.max <= 0 || utf8.RuneCount(b) <= c.max {
		return v
	}
	// Too large to keep whole: walk its JSON form so nested strings are bounded.
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return placeholder(v)
	}
	return c.walk(generic, depth+1)
}

func (c capturer) truncate(s string) string {
	if c.max <= 0 || utf8.RuneCountInString(s) <= c.max {
		return s
	}
	n := 0
	for i := range s {
		if n == c.max {
			return s[:i]
		}
		n++
	}
	return s
}

// isLive reports values that are handles into running state rather than data.
func isLive(v any) bool {
	if _, ok := v.(context.Context); ok {
		return true
	}
	rt := reflect.TypeOf(v)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	switch rt.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return strings.Contains(rt.Name(), "Runtime")
}

func marshal(v any) (b []byte, ok bool) {
	defer func() {
		if recover() != nil {
			b, ok = nil, false
		}
	}()
	b, err := json.Marshal(v)
	return b, err == nil
}

func placeholder(v any) string {
	if v == nil {
		return "<nil>"
	}
	rt := reflect.TypeOf(v)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	name := rt.Name()
	if name == "" {
		name = rt.Kind().String()
	}
	return "<" + name + ">"
}
