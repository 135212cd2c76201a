package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/arencloud/s3audit/internal/logging"
)

// PanicError carries a recovered panic value out of a worker task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Recoverer runs fn and turns a panic into a *PanicError so one bad bucket
// cannot take down the whole worker pool.
func Recoverer(logger logging.Logger, task string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic recovered", "task", task, "error", rec, "stack", string(debug.Stack()))
			err = &PanicError{Value: rec}
		}
	}()
	return fn()
}
