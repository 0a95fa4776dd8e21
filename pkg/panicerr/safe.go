package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so a panic inside it comes back as an error instead of
// unwinding the caller.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Safe(func() error { return fn(ctx) })()
	}
}

// SafeValue is SafeContext for functions that also produce a value.
func SafeValue[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := SafeContext(func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})(ctx)
	return out, err
}
