package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwarden/internal/core"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testCfg(neutral bool) Config {
	return Config{
		Symbol:            "BTCUSDT",
		IsNeutral:         neutral,
		GridLevels:        3,
		OrderQuantity:     d("0.01"),
		OffsetPercent:     d("0.01"),
		SellOffsetPercent: d("0.01"),
		RepriceThreshold:  d("0.02"),
	}
}

func TestShouldBuyBatchSkipsCoveredLevels(t *testing.T) {
	s := New(testCfg(false), d("100"))
	open := []core.Order{{Side: core.SideBuy, GridIndex: 0}}

	reqs := s.ShouldBuyBatch(core.OrderBookTicker{}, open)
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, core.SideBuy, r.Side)
		assert.True(t, r.Price.LessThan(d("100")))
	}
}

func TestShouldSellPricesAboveEntry(t *testing.T) {
	s := New(testCfg(false), d("100"))
	pos := core.PositionEntry{EntryPrice: d("100"), Quantity: d("0.01")}

	req, ok := s.ShouldSell(pos, core.OrderBookTicker{})
	require.True(t, ok)
	assert.Equal(t, core.SideSell, req.Side)
	assert.True(t, req.Price.GreaterThan(d("100")))
}

func TestShouldRepriceRequiresThresholdBreach(t *testing.T) {
	s := New(testCfg(false), d("100"))
	order := core.Order{Side: core.SideBuy, Price: d("99"), GridIndex: 0}

	_, ok := s.ShouldReprice(order, core.OrderBookTicker{LastPrice: d("99.5")})
	assert.False(t, ok, "a small drift under the threshold should not trigger a reprice")

	_, ok = s.ShouldReprice(order, core.OrderBookTicker{LastPrice: d("105")})
	assert.True(t, ok)
}

func TestLongOnlyGridRejectsShortSide(t *testing.T) {
	s := New(testCfg(false), d("100"))
	assert.Empty(t, s.ShouldShortBatch(core.OrderBookTicker{}, nil))

	_, ok := s.ShouldCloseShort(core.PositionEntry{}, core.OrderBookTicker{})
	assert.False(t, ok)

	_, ok = s.ShouldRepriceShort(core.Order{}, core.OrderBookTicker{})
	assert.False(t, ok)
}

func TestNeutralGridOpensShortsAboveAnchor(t *testing.T) {
	s := New(testCfg(true), d("100"))
	reqs := s.ShouldShortBatch(core.OrderBookTicker{}, nil)
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.Equal(t, core.SideSell, r.Side)
		assert.True(t, r.Price.GreaterThan(d("100")))
	}
}

func TestNeutralGridClosesShortBelowEntry(t *testing.T) {
	s := New(testCfg(true), d("100"))
	pos := core.PositionEntry{EntryPrice: d("100"), Quantity: d("0.01")}

	req, ok := s.ShouldCloseShort(pos, core.OrderBookTicker{})
	require.True(t, ok)
	assert.Equal(t, core.SideBuy, req.Side)
	assert.True(t, req.Price.LessThan(d("100")))
}

func TestSetAnchorOnlyAppliesWhenUnset(t *testing.T) {
	s := New(testCfg(false), decimal.Zero)
	s.SetAnchor(d("50"))
	assert.True(t, s.anchorPrice.Equal(d("50")))

	s.SetAnchor(d("999"))
	assert.True(t, s.anchorPrice.Equal(d("50")), "an already-set anchor must not be overwritten")
}
