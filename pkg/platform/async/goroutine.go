// Package async runs fire-and-forget work off the request path.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// SafeGo runs fn in a goroutine bounded by timeout. The context passed to fn
// is detached from parent cancellation so the task can outlive the request
// that started it; parent values are kept. Panics are recovered and reported
// through onFailure together with returned errors. onFailure may be nil.
func SafeGo(parent context.Context, timeout time.Duration, logger *slog.Logger, task string, fn func(context.Context) error, onFailure func(error)) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				logger.ErrorContext(ctx, "background task panicked",
					"task", task,
					"error", err,
					"stack", string(debug.Stack()),
				)
				if onFailure != nil {
					onFailure(err)
				}
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WarnContext(ctx, "background task failed",
				"task", task,
				"error", err,
			)
			if onFailure != nil {
				onFailure(err)
			}
		}
	}()
}
