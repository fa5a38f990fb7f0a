package syncer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwarden/internal/core"
	"gridwarden/internal/position"
	"gridwarden/pkg/logging"
)

// fakeExchange is a minimal core.IExchange stub whose open-order list is set
// directly by the test, unlike internal/exchange/mock which always fills
// orders immediately and so never reports anything as open.
type fakeExchange struct {
	open []core.Order
}

func (f *fakeExchange) Venue() string { return "fake" }
func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (core.OrderBookTicker, error) {
	return core.OrderBookTicker{}, nil
}
func (f *fakeExchange) GetTradingRules(ctx context.Context, symbol string) (core.TradingRules, error) {
	return core.TradingRules{}, nil
}
func (f *fakeExchange) GetFeeRate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (f *fakeExchange) PlaceOrder(ctx context.Context, req core.PlaceOrderRequest) (core.Order, error) {
	return core.Order{}, nil
}
func (f *fakeExchange) PlaceOrdersBatch(ctx context.Context, reqs []core.PlaceOrderRequest) ([]core.Order, error) {
	return nil, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	return nil
}
func (f *fakeExchange) CancelOrdersBatch(ctx context.Context, symbol string, exchangeOrderIDs []string) error {
	return nil
}
func (f *fakeExchange) EditOrder(ctx context.Context, symbol, exchangeOrderID string, newPrice, newQty decimal.Decimal) (core.Order, error) {
	return core.Order{}, nil
}
func (f *fakeExchange) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (core.Order, error) {
	return core.Order{}, nil
}
func (f *fakeExchange) GetOpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	return f.open, nil
}
func (f *fakeExchange) Close(ctx context.Context) error { return nil }

var _ core.IExchange = (*fakeExchange)(nil)

func newTestSyncer(ex core.IExchange, threshold int) (*Syncer, *position.Tracker) {
	logger, _ := logging.NewZapLogger("ERROR")
	tracker := position.NewTracker()
	return New(ex, tracker, threshold, logger), tracker
}

func TestSyncDropsOrderAfterConsecutiveMisses(t *testing.T) {
	ex := &fakeExchange{}
	s, _ := newTestSyncer(ex, 2)

	pending := map[string]core.Order{
		"missing-1": {ExchangeID: "missing-1", Symbol: "BTCUSDT"},
	}

	r1, err := s.Sync(context.Background(), "BTCUSDT", pending)
	require.NoError(t, err)
	assert.Empty(t, r1.DroppedOrderIDs)

	r2, err := s.Sync(context.Background(), "BTCUSDT", pending)
	require.NoError(t, err)
	assert.Equal(t, []string{"missing-1"}, r2.DroppedOrderIDs)
}

func TestSyncClearsMissingCountWhenOrderReappears(t *testing.T) {
	ex := &fakeExchange{}
	s, _ := newTestSyncer(ex, 2)

	pending := map[string]core.Order{"o-1": {ExchangeID: "o-1", Symbol: "BTCUSDT"}}
	_, err := s.Sync(context.Background(), "BTCUSDT", pending)
	require.NoError(t, err)

	s.mu.Lock()
	assert.Equal(t, 1, s.missingCounts["o-1"])
	s.mu.Unlock()

	ex.open = []core.Order{{ExchangeID: "o-1", Symbol: "BTCUSDT"}}
	_, err = s.Sync(context.Background(), "BTCUSDT", pending)
	require.NoError(t, err)

	s.mu.Lock()
	_, stillTracked := s.missingCounts["o-1"]
	s.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestSyncSkipsWhenExchangeReturnsEmptyButPendingNonEmpty(t *testing.T) {
	ex := &fakeExchange{}
	s, _ := newTestSyncer(ex, 1)

	pending := map[string]core.Order{"o-1": {ExchangeID: "o-1", Symbol: "BTCUSDT"}}
	report, err := s.Sync(context.Background(), "BTCUSDT", pending)
	require.NoError(t, err)
	assert.Empty(t, report.DroppedOrderIDs)
}

func TestPositionsWithoutCounterOrderDetected(t *testing.T) {
	ex := &fakeExchange{open: []core.Order{{ExchangeID: "sell-1"}}}
	s, tracker := newTestSyncer(ex, 2)

	tracker.AddPosition(core.PositionEntry{OrderID: "buy-1", Symbol: "BTCUSDT", Quantity: decimal.NewFromInt(1)})

	pending := map[string]core.Order{
		"sell-1": {ExchangeID: "sell-1", Symbol: "BTCUSDT", IsCounterFor: "some-other-position"},
	}
	report, err := s.Sync(context.Background(), "BTCUSDT", pending)
	require.NoError(t, err)
	assert.Len(t, report.PositionsWithoutOrder, 1)
	assert.Equal(t, "buy-1", report.PositionsWithoutOrder[0].OrderID)
}

func TestExcessCounterOrdersDetected(t *testing.T) {
	ex := &fakeExchange{open: []core.Order{{ExchangeID: "sell-1"}}}
	s, _ := newTestSyncer(ex, 2)

	pending := map[string]core.Order{
		"sell-1": {ExchangeID: "sell-1", Symbol: "BTCUSDT", IsCounterFor: "no-such-position"},
	}
	report, err := s.Sync(context.Background(), "BTCUSDT", pending)
	require.NoError(t, err)
	require.Len(t, report.ExcessCounterOrders, 1)
	assert.Equal(t, "sell-1", report.ExcessCounterOrders[0].ExchangeID)
}
