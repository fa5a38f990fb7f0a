// Package retry composes exponential backoff and kind-filtered retry
// policies on top of failsafe-go (plus a standalone JitteredSleep helper),
// replacing the teacher's hand-rolled
// loop (pkg/retry/retry.go) with a declarative policy executor (C13).
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"gridwarden/pkg/apperrors"
)

// Policy configures the retry/backoff envelope for one call site.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RetriableKinds restricts retries to these error kinds. Empty means
	// "use apperrors.Kind.Retriable()".
	RetriableKinds []apperrors.Kind
}

// DefaultPolicy mirrors the teacher's pkg/retry.DefaultPolicy defaults.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

func (p Policy) isRetriable(err error) bool {
	if err == nil {
		return false
	}
	kind := apperrors.Classify(err)
	if len(p.RetriableKinds) == 0 {
		return kind.Retriable()
	}
	for _, k := range p.RetriableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Do executes fn under the given policy, retrying on errors the policy
// classifies as retriable, with exponential backoff between InitialBackoff
// and MaxBackoff; no jitter is added to those delays. The
// underlying executor is built per call so policies can vary by call site
// without a shared mutable executor.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	rp := retrypolicy.Builder[any]().
		WithMaxAttempts(policy.MaxAttempts).
		WithBackoff(policy.InitialBackoff, policy.MaxBackoff).
		HandleIf(func(_ any, err error) bool {
			return policy.isRetriable(err)
		}).
		Build()

	executor := failsafe.NewExecutor[any](rp)
	_, err := executor.WithContext(ctx).Get(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// RateLimitHint holds a Retry-After-style hint from a venue's rate-limit
// error response. Nothing in this package parses such hints or feeds them
// into Do's backoff.
type RateLimitHint struct {
	RetryAfter time.Duration
	Present    bool
}

// JitteredSleep returns base plus a uniform random jitter in [0, base/2), the
// same jitter shape as the teacher's hand-rolled loop.
func JitteredSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	half := base / 2
	if half <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(half)))
}
