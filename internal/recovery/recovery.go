// Package recovery turns panics in probe goroutines into logged errors.
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/postalsys/muti-ping/internal/logging"
)

// ErrPanic is wrapped by errors returned from Guard when the guarded
// function panics.
var ErrPanic = errors.New("panic")

// RecoverWithLog recovers from panics and logs them with the provided logger.
// Use with defer at the start of a goroutine:
//
//	go func() {
//	    defer recovery.RecoverWithLog(logger, "metrics-server")
//	    // ...
//	}()
func RecoverWithLog(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		logPanic(logger, name, r)
	}
}

// RecoverWithCallback recovers from panics, logs them, and calls the optional
// callback with the recovered value.
func RecoverWithCallback(logger *slog.Logger, name string, callback func(recovered any)) {
	if r := recover(); r != nil {
		logPanic(logger, name, r)
		if callback != nil {
			callback(r)
		}
	}
}

// Guard wraps fn so that a panic is logged and returned as an error wrapping
// ErrPanic. The result fits errgroup.Group.Go.
func Guard(logger *slog.Logger, name string, fn func() error) func() error {
	return func() (err error) {
		defer RecoverWithCallback(logger, name, func(r any) {
			err = fmt.Errorf("%w in %s: %v", ErrPanic, name, r)
		})
		return fn()
	}
}

func logPanic(logger *slog.Logger, name string, r any) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger.Error("panic recovered",
		"goroutine", name,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()))
}
