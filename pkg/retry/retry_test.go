package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gridwarden/pkg/apperrors"
)

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return apperrors.ErrNetwork
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDoDoesNotRetryNonRetriableKind(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultPolicy, func(ctx context.Context) error {
		attempts++
		return apperrors.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.Equal(t, 1, attempts)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return apperrors.ErrNetwork
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestJitteredSleepNeverBelowBase(t *testing.T) {
	base := 10 * time.Millisecond
	for i := 0; i < 20; i++ {
		got := JitteredSleep(base)
		assert.GreaterOrEqual(t, got, base)
	}
}

var errPlain = errors.New("plain")
