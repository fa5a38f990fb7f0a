package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridwarden/internal/core"
)

func TestCanOpenPositionRejectsAtPositionCeiling(t *testing.T) {
	g := NewGovernor("BTCUSDT", Config{MaxPositionCount: 2})
	decision := g.CanOpenPosition(2)
	assert.False(t, decision.Allowed)
}

func TestCanOpenPositionAllowsBelowCeiling(t *testing.T) {
	g := NewGovernor("BTCUSDT", Config{MaxPositionCount: 2})
	decision := g.CanOpenPosition(1)
	assert.True(t, decision.Allowed)
}

func TestRecordFillTriggersCooldownAfterLossCount(t *testing.T) {
	g := NewGovernor("BTCUSDT", Config{
		MaxLossCount:   2,
		LossWindow:     time.Minute,
		CooldownPeriod: time.Hour,
	})

	g.RecordFill(decimal.NewFromInt(-5), true)
	assert.False(t, g.CircuitOpen())

	g.RecordFill(decimal.NewFromInt(-5), true)
	assert.True(t, g.CircuitOpen())

	decision := g.CanOpenPosition(0)
	assert.False(t, decision.Allowed)
}

func TestRecordFillIgnoresProfitableTrades(t *testing.T) {
	g := NewGovernor("BTCUSDT", Config{MaxLossCount: 1, CooldownPeriod: time.Hour})
	g.RecordFill(decimal.NewFromInt(5), false)
	assert.False(t, g.CircuitOpen())
}

func TestDailyLossCeilingBlocksNewPositions(t *testing.T) {
	g := NewGovernor("BTCUSDT", Config{MaxDailyLoss: decimal.NewFromInt(10), MaxLossCount: 100})
	g.RecordFill(decimal.NewFromInt(-12), true)

	decision := g.CanOpenPosition(0)
	assert.False(t, decision.Allowed)
}

func TestShouldStopLossPriceBased(t *testing.T) {
	g := NewGovernor("BTCUSDT", Config{StopLossPercent: decimal.NewFromInt(5)})
	pos := core.PositionEntry{EntryPrice: decimal.NewFromInt(100), CreatedAt: time.Now()}
	ticker := core.OrderBookTicker{LastPrice: decimal.NewFromInt(94)}

	triggered, reason := g.ShouldStopLoss(pos, ticker, time.Now().Unix())
	assert.True(t, triggered)
	assert.NotEmpty(t, reason)
}

func TestShouldStopLossTimeBased(t *testing.T) {
	g := NewGovernor("BTCUSDT", Config{StopLossDelay: time.Millisecond})
	pos := core.PositionEntry{EntryPrice: decimal.NewFromInt(100), CreatedAt: time.Now().Add(-10 * time.Millisecond)}
	ticker := core.OrderBookTicker{LastPrice: decimal.NewFromInt(100)}

	triggered, _ := g.ShouldStopLoss(pos, ticker, time.Now().Unix())
	assert.True(t, triggered)
}

func TestResetClearsCooldownAndDailyLoss(t *testing.T) {
	g := NewGovernor("BTCUSDT", Config{MaxLossCount: 1, CooldownPeriod: time.Hour, MaxDailyLoss: decimal.NewFromInt(1)})
	g.RecordFill(decimal.NewFromInt(-5), true)
	assert.True(t, g.CircuitOpen())

	g.Reset()
	assert.False(t, g.CircuitOpen())
	decision := g.CanOpenPosition(0)
	assert.True(t, decision.Allowed)
}
