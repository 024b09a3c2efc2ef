// Package classifier defines the external Classifier contract the core
// depends on (spec §4.2, §6). The implementation (an embedding-model lookup)
// lives outside the core; the core only ever calls through this interface.
package classifier

import (
	"context"
	"time"
)

// Alternative is a runner-up category/confidence pair.
type Alternative struct {
	Category   string
	Confidence float64
}

// Result is a Classifier's output.
type Result struct {
	Category      string
	Confidence    float64
	Alternatives  []Alternative
}

// Classifier maps tokens/filename to a category guess with confidence.
// Implementations must respect ctx's deadline; the core treats a timeout as
// a CLASSIFIER_TIMEOUT failure (spec §4.2).
type Classifier interface {
	Classify(ctx context.Context, seriesTokens []string, filename string) (Result, error)
}

// WithTimeout wraps a Classifier so every call is bounded by d, converting a
// context deadline exceeded into the caller-visible timeout condition.
func WithTimeout(c Classifier, d time.Duration) Classifier {
	return timeoutClassifier{inner: c, timeout: d}
}

type timeoutClassifier struct {
	inner   Classifier
	timeout time.Duration
}

func (t timeoutClassifier) Classify(ctx context.Context, tokens []string, filename string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type out struct {
		res Result
		err error
	}
	ch := make(chan out, 1)
	go func() {
		res, err := t.inner.Classify(ctx, tokens, filename)
		ch <- out{res, err}
	}()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Static is a deterministic test/fallback Classifier returning a fixed result
// (or "UNKNOWN", 0 if none configured), valid per spec §4.2's "insufficient
// evidence" contract.
type Static struct {
	Category   string
	Confidence float64
}

func (s Static) Classify(ctx context.Context, tokens []string, filename string) (Result, error) {
	if s.Category == "" {
		return Result{Category: "UNKNOWN", Confidence: 0}, nil
	}
	return Result{Category: s.Category, Confidence: s.Confidence}, nil
}
