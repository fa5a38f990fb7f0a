package tradesink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwarden/internal/core"
)

func newTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.db")
	sink, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func sampleTrade(orderID string, pnl string) core.TradeRecord {
	p, _ := decimal.NewFromString(pnl)
	return core.TradeRecord{
		StrategyID:  "strat-1",
		OrderID:     orderID,
		Symbol:      "BTCUSDT",
		Side:        core.SideSell,
		Price:       decimal.NewFromInt(101),
		Quantity:    decimal.NewFromInt(1),
		RealizedPnL: p,
		ExecutedAt:  time.Now(),
	}
}

func TestAppendAndSumRealizedPnL(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, sampleTrade("o1", "1.5")))
	require.NoError(t, sink.Append(ctx, sampleTrade("o2", "2.5")))

	total, err := sink.RealizedPnLTotal(ctx, "strat-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromFloat(4.0)))
}

func TestAppendIsIdempotent(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	trade := sampleTrade("o1", "1.5")
	require.NoError(t, sink.Append(ctx, trade))
	require.NoError(t, sink.Append(ctx, trade))

	total, err := sink.RealizedPnLTotal(ctx, "strat-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromFloat(1.5)))
}
