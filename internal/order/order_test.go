package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwarden/internal/core"
)

func TestNewOrderIsPending(t *testing.T) {
	o := New("o1", "BTCUSDT", core.SideBuy, decimal.NewFromInt(100), decimal.NewFromInt(1), 0)
	assert.Equal(t, core.OrderPending, o.State)
}

func TestTryTransitionAllowedPath(t *testing.T) {
	o := New("o1", "BTCUSDT", core.SideBuy, decimal.NewFromInt(100), decimal.NewFromInt(1), 0)

	o, err := TryTransition(o, core.OrderPlaced)
	require.NoError(t, err)
	assert.Equal(t, core.OrderPlaced, o.State)

	o, err = TryTransition(o, core.OrderPartiallyFilled)
	require.NoError(t, err)
	assert.Equal(t, core.OrderPartiallyFilled, o.State)

	o, err = TryTransition(o, core.OrderFilled)
	require.NoError(t, err)
	assert.Equal(t, core.OrderFilled, o.State)
}

func TestTryTransitionRejectsInvalidPath(t *testing.T) {
	o := New("o1", "BTCUSDT", core.SideBuy, decimal.NewFromInt(100), decimal.NewFromInt(1), 0)
	_, err := TryTransition(o, core.OrderFilled)
	assert.Error(t, err)

	o, _ = TryTransition(o, core.OrderPlaced)
	o, _ = TryTransition(o, core.OrderFilled)
	_, err = TryTransition(o, core.OrderPartiallyFilled)
	assert.Error(t, err)
}

func TestTryTransitionSameStateIsNoop(t *testing.T) {
	o := New("o1", "BTCUSDT", core.SideBuy, decimal.NewFromInt(100), decimal.NewFromInt(1), 0)
	o2, err := TryTransition(o, core.OrderPending)
	require.NoError(t, err)
	assert.Equal(t, o, o2)
}

func TestApplyFillTransitionsThroughPartialToFilled(t *testing.T) {
	o := New("o1", "BTCUSDT", core.SideBuy, decimal.NewFromInt(100), decimal.NewFromInt(10), 0)
	o, _ = TryTransition(o, core.OrderPlaced)

	o, err := ApplyFill(o, decimal.NewFromInt(4))
	require.NoError(t, err)
	assert.Equal(t, core.OrderPartiallyFilled, o.State)
	assert.True(t, o.Remaining().Equal(decimal.NewFromInt(6)))

	o, err = ApplyFill(o, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, core.OrderFilled, o.State)
	assert.True(t, o.IsTerminal())
}

func TestApplyFillRejectsBackwardsQuantity(t *testing.T) {
	o := New("o1", "BTCUSDT", core.SideBuy, decimal.NewFromInt(100), decimal.NewFromInt(10), 0)
	o, _ = TryTransition(o, core.OrderPlaced)
	o, _ = ApplyFill(o, decimal.NewFromInt(5))

	_, err := ApplyFill(o, decimal.NewFromInt(2))
	assert.Error(t, err)
}

func TestCancelFromPlaced(t *testing.T) {
	o := New("o1", "BTCUSDT", core.SideBuy, decimal.NewFromInt(100), decimal.NewFromInt(1), 0)
	o, _ = TryTransition(o, core.OrderPlaced)
	o, err := Cancel(o)
	require.NoError(t, err)
	assert.Equal(t, core.OrderCancelled, o.State)
}

func TestFailFromPending(t *testing.T) {
	o := New("o1", "BTCUSDT", core.SideBuy, decimal.NewFromInt(100), decimal.NewFromInt(1), 0)
	o, err := Fail(o)
	require.NoError(t, err)
	assert.Equal(t, core.OrderFailed, o.State)
}
