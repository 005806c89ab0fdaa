package trace

import "errors"

// ErrCrossContext reports that a sink tried to restore state that was created
// in a different execution context. The engine swallows it.
var ErrCrossContext = errors.New("state was created in a different execution context")

// IsCrossContext reports whether err is, or wraps, ErrCrossContext.
func IsCrossContext(err error) bool {
	return errors.Is(err, ErrCrossContext)
}
