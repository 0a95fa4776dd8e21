package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/kazz187/devguild/pkg/panicerr"
)

// BestEffort bounds an Analyzer with a timeout and replaces every failure
// with Default.
type BestEffort struct {
	inner   Analyzer
	timeout time.Duration
}

func NewBestEffort(inner Analyzer, timeout time.Duration) *BestEffort {
	return &BestEffort{inner: inner, timeout: timeout}
}

func (b *BestEffort) Analyze(ctx context.Context, title, description string) *RepoAnalysis {
	if b == nil || b.inner == nil {
		return Default()
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type result struct {
		a   *RepoAnalysis
		err error
	}
	ch := make(chan result, 1)
	go func() {
		a, err := panicerr.SafeValue(ctx, func(ctx context.Context) (*RepoAnalysis, error) {
			return b.inner.Analyze(ctx, title, description)
		})
		ch <- result{a, err}
	}()

	select {
	case <-ctx.Done():
		slog.WarnContext(ctx, "repository analysis timed out, using defaults", "timeout", b.timeout, "error", ctx.Err())
		return Default()
	case r := <-ch:
		if r.err != nil || r.a == nil {
			slog.WarnContext(ctx, "repository analysis failed, using defaults", "error", r.err)
			return Default()
		}
		r.a.normalize()
		return r.a
	}
}
