// Package fault contains unexpected failures inside engine operations so
// they surface as errors instead of crashing the host process.
package fault

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/hyperterse/queryengine/core/infrastructure/logging"
	"github.com/hyperterse/queryengine/core/observability"
	"github.com/hyperterse/queryengine/core/shared/errors"
)

// UnknownFault is the message used when a panic value carries no text
const UnknownFault = "unknown fault"

// Run executes fn as one unit of work on its own goroutine and blocks until
// it finishes. A panic inside fn is recovered and returned as a Core error
// whose message starts with "PANIC: ".
func Run[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				msg := Message(r)
				logging.New("fault").Errorf("%s panicked: %s\n%s", name, msg, debug.Stack())
				observability.RecordFault(ctx, name)
				out = outcome{err: errors.FromPanic(msg)}
			}
			done <- out
		}()
		out.value, out.err = fn(ctx)
	}()

	o := <-done
	return o.value, o.err
}

// Do is Run for units of work without a result value
func Do(ctx context.Context, name string, fn func(context.Context) error) error {
	_, err := Run(ctx, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Message extracts a human readable message from a recovered panic value
func Message(r any) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return UnknownFault
	}
}
