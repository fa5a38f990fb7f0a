package position

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridwarden/internal/core"
)

func entry(orderID, symbol string, qty, price string) core.PositionEntry {
	q, _ := decimal.NewFromString(qty)
	p, _ := decimal.NewFromString(price)
	return core.PositionEntry{OrderID: orderID, Symbol: symbol, Quantity: q, EntryPrice: p}
}

func TestAddAndGetPosition(t *testing.T) {
	tr := NewTracker()
	tr.AddPosition(entry("o1", "BTCUSDT", "1", "100"))

	p, ok := tr.GetPosition("o1")
	assert.True(t, ok)
	assert.Equal(t, "BTCUSDT", p.Symbol)
}

func TestRemovePosition(t *testing.T) {
	tr := NewTracker()
	tr.AddPosition(entry("o1", "BTCUSDT", "1", "100"))

	p, ok := tr.RemovePosition("o1")
	assert.True(t, ok)
	assert.Equal(t, "o1", p.OrderID)

	_, ok = tr.GetPosition("o1")
	assert.False(t, ok)
}

func TestTotalQuantityAndCost(t *testing.T) {
	tr := NewTracker()
	tr.AddPosition(entry("o1", "BTCUSDT", "1", "100"))
	tr.AddPosition(entry("o2", "BTCUSDT", "2", "90"))
	tr.AddPosition(entry("o3", "ETHUSDT", "5", "10"))

	assert.True(t, tr.TotalQuantity("BTCUSDT").Equal(decimal.NewFromInt(3)))
	assert.True(t, tr.TotalCost("BTCUSDT").Equal(decimal.NewFromInt(280)))
	assert.Equal(t, 2, tr.Count("BTCUSDT"))
	assert.Equal(t, 3, tr.Count(""))
}

func TestUnrealizedPnL(t *testing.T) {
	tr := NewTracker()
	tr.AddPosition(entry("o1", "BTCUSDT", "1", "100"))

	pnl := tr.UnrealizedPnL("BTCUSDT", decimal.NewFromInt(110))
	assert.True(t, pnl.Equal(decimal.NewFromInt(10)))
}

func TestClearBySymbol(t *testing.T) {
	tr := NewTracker()
	tr.AddPosition(entry("o1", "BTCUSDT", "1", "100"))
	tr.AddPosition(entry("o2", "ETHUSDT", "1", "10"))

	tr.Clear("BTCUSDT")
	assert.Equal(t, 0, tr.Count("BTCUSDT"))
	assert.Equal(t, 1, tr.Count("ETHUSDT"))
}
