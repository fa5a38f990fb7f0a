package gridengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwarden/internal/core"
	"gridwarden/internal/eventbus"
	"gridwarden/internal/notify"
	"gridwarden/internal/position"
	"gridwarden/internal/risk"
	"gridwarden/internal/strategy"
	"gridwarden/internal/syncer"
	"gridwarden/pkg/logging"
)

// fakeExchange is an in-memory order book the engine can drive through a
// full open -> fill -> counter-order -> fill cycle under test control.
type fakeExchange struct {
	mu      sync.Mutex
	orders  map[string]core.Order
	ticker  core.OrderBookTicker
	feeRate decimal.Decimal
}

func newFakeExchange(price decimal.Decimal) *fakeExchange {
	return &fakeExchange{
		orders: make(map[string]core.Order),
		ticker: core.OrderBookTicker{Symbol: "BTCUSDT", LastPrice: price},
	}
}

func (f *fakeExchange) Venue() string { return "fake" }
func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (core.OrderBookTicker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticker, nil
}
func (f *fakeExchange) GetTradingRules(ctx context.Context, symbol string) (core.TradingRules, error) {
	return core.TradingRules{
		TickSize: decimal.NewFromFloat(0.01), StepSize: decimal.NewFromFloat(0.0001),
		MinQuantity: decimal.NewFromFloat(0.0001), MinNotional: decimal.NewFromFloat(1),
	}, nil
}
func (f *fakeExchange) GetFeeRate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.feeRate, nil
}
func (f *fakeExchange) PlaceOrder(ctx context.Context, req core.PlaceOrderRequest) (core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := core.Order{
		ID: uuid.NewString(), ExchangeID: uuid.NewString(), Symbol: req.Symbol,
		Side: req.Side, State: core.OrderPlaced, Price: req.Price, Quantity: req.Quantity,
		CreatedAt: time.Now(),
	}
	f.orders[o.ExchangeID] = o
	return o, nil
}
func (f *fakeExchange) PlaceOrdersBatch(ctx context.Context, reqs []core.PlaceOrderRequest) ([]core.Order, error) {
	out := make([]core.Order, 0, len(reqs))
	for _, r := range reqs {
		o, _ := f.PlaceOrder(ctx, r)
		out = append(out, o)
	}
	return out, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.orders, exchangeOrderID)
	return nil
}
func (f *fakeExchange) CancelOrdersBatch(ctx context.Context, symbol string, ids []string) error {
	for _, id := range ids {
		f.CancelOrder(ctx, symbol, id)
	}
	return nil
}
func (f *fakeExchange) EditOrder(ctx context.Context, symbol, exchangeOrderID string, newPrice, newQty decimal.Decimal) (core.Order, error) {
	f.mu.Lock()
	o, ok := f.orders[exchangeOrderID]
	f.mu.Unlock()
	if !ok {
		return core.Order{}, nil
	}
	f.CancelOrder(ctx, symbol, exchangeOrderID)
	return f.PlaceOrder(ctx, core.PlaceOrderRequest{Symbol: symbol, Side: o.Side, Price: newPrice, Quantity: newQty})
}
func (f *fakeExchange) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[exchangeOrderID], nil
}
func (f *fakeExchange) GetOpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Order, 0, len(f.orders))
	for _, o := range f.orders {
		if !o.IsTerminal() {
			out = append(out, o)
		}
	}
	return out, nil
}
func (f *fakeExchange) Close(ctx context.Context) error { return nil }

// fill marks an order Filled in place (rather than deleting it) so a
// subsequent GetOrder call still resolves its true terminal state, the same
// contract the real exchange adapters honor; it still drops out of
// GetOpenOrders immediately since that only returns non-terminal orders.
func (f *fakeExchange) fill(exchangeOrderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[exchangeOrderID]
	if !ok {
		return
	}
	o.State = core.OrderFilled
	o.FilledQty = o.Quantity
	f.orders[exchangeOrderID] = o
}

// partiallyFill marks an order PartiallyFilled with the given cumulative
// filled quantity while leaving it resting on the book.
func (f *fakeExchange) partiallyFill(exchangeOrderID string, cumulativeFilled decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[exchangeOrderID]
	if !ok {
		return
	}
	o.State = core.OrderPartiallyFilled
	o.FilledQty = cumulativeFilled
	f.orders[exchangeOrderID] = o
}

// cancelByVenue marks an order Cancelled in place, simulating a venue-side
// cancel distinct from CancelOrder (which the test harness uses to model the
// engine's own cancel requests).
func (f *fakeExchange) cancelByVenue(exchangeOrderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[exchangeOrderID]
	if !ok {
		return
	}
	o.State = core.OrderCancelled
	f.orders[exchangeOrderID] = o
}

// openOrderIDs returns the IDs of orders still resting on the book, mirroring
// GetOpenOrders's terminal-order filter.
func (f *fakeExchange) openOrderIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.orders))
	for id, o := range f.orders {
		if !o.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

type fakeTradeSink struct {
	mu      sync.Mutex
	records []core.TradeRecord
}

func (f *fakeTradeSink) Append(ctx context.Context, t core.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, t)
	return nil
}
func (f *fakeTradeSink) RealizedPnLTotal(ctx context.Context, strategyID string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := decimal.Zero
	for _, r := range f.records {
		total = total.Add(r.RealizedPnL)
	}
	return total, nil
}
func (f *fakeTradeSink) Close() error { return nil }

func newTestEngine(t *testing.T, ex *fakeExchange) (*Engine, *position.Tracker, *fakeTradeSink) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	tracker := position.NewTracker()
	sink := &fakeTradeSink{}
	gov := risk.NewGovernor("BTCUSDT", risk.Config{MaxPositionCount: 10})
	strat := strategy.New(strategy.Config{
		Symbol: "BTCUSDT", GridLevels: 2, OrderQuantity: decimal.NewFromFloat(0.01),
		OffsetPercent: decimal.NewFromFloat(0.01), SellOffsetPercent: decimal.NewFromFloat(0.01),
		RepriceThreshold: decimal.NewFromFloat(0.05),
	}, decimal.NewFromInt(100))
	rules := core.TradingRules{
		TickSize: decimal.NewFromFloat(0.01), StepSize: decimal.NewFromFloat(0.0001),
		MinQuantity: decimal.NewFromFloat(0.0001), MinNotional: decimal.NewFromFloat(0.01),
	}
	sy := syncer.New(ex, tracker, 2, logger)
	bus := eventbus.New(logger)
	notifier := notify.NewManager(logger)

	cfg := Config{
		StrategyID: "s1", Symbol: "BTCUSDT", Venue: "fake",
		TickInterval: time.Millisecond, ReconcileInterval: time.Hour, StatusPublishInterval: time.Hour,
	}
	return New(cfg, ex, strat, gov, tracker, sink, rules, sy, bus, notifier, nil, logger), tracker, sink
}

func TestCheckNewOrdersOpensGridLevels(t *testing.T) {
	ex := newFakeExchange(decimal.NewFromInt(100))
	e, _, _ := newTestEngine(t, ex)

	e.checkNewOrders(context.Background(), ex.ticker)
	assert.Len(t, ex.openOrderIDs(), 2)
}

func TestOpenerFillOpensPositionAndQueuesCounter(t *testing.T) {
	ex := newFakeExchange(decimal.NewFromInt(100))
	e, tracker, _ := newTestEngine(t, ex)

	e.checkNewOrders(context.Background(), ex.ticker)
	ids := ex.openOrderIDs()
	require.Len(t, ids, 2)

	ex.fill(ids[0])
	openOrders, err := ex.GetOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	e.reconcileOrders(context.Background(), openOrders, ex.ticker)

	assert.Equal(t, 1, tracker.Count("BTCUSDT"))
	// The filled buy's counter sell should now be resting on the exchange.
	assert.Len(t, ex.openOrderIDs(), 2)
}

func TestCloserFillRealizesPnLAndRecordsTrade(t *testing.T) {
	ex := newFakeExchange(decimal.NewFromInt(100))
	e, tracker, sink := newTestEngine(t, ex)

	e.checkNewOrders(context.Background(), ex.ticker)
	buyID := ex.openOrderIDs()[0]
	ex.fill(buyID)
	openOrders, _ := ex.GetOpenOrders(context.Background(), "BTCUSDT")
	e.reconcileOrders(context.Background(), openOrders, ex.ticker)
	require.Equal(t, 1, tracker.Count("BTCUSDT"))

	e.mu.Lock()
	var sellID string
	for id, o := range e.closers {
		_ = o
		sellID = id
	}
	e.mu.Unlock()
	require.NotEmpty(t, sellID)

	ex.fill(sellID)
	openOrders, _ = ex.GetOpenOrders(context.Background(), "BTCUSDT")
	e.reconcileOrders(context.Background(), openOrders, ex.ticker)

	assert.Equal(t, 0, tracker.Count("BTCUSDT"))
	require.Len(t, sink.records, 1)
	assert.True(t, sink.records[0].RealizedPnL.IsPositive())
}

func TestCircuitBreakerBlocksNewOrdersWhenTripped(t *testing.T) {
	ex := newFakeExchange(decimal.NewFromInt(100))
	e, _, _ := newTestEngine(t, ex)

	breaker := risk.NewCircuitBreaker("BTCUSDT", risk.CircuitConfig{MaxConsecutiveLosses: 1})
	e.SetCircuitBreaker(breaker)
	breaker.RecordTrade(decimal.NewFromInt(-1))
	require.True(t, breaker.IsTripped())

	e.checkNewOrders(context.Background(), ex.ticker)

	e.mu.Lock()
	openerCount := len(e.openers)
	e.mu.Unlock()
	assert.Zero(t, openerCount, "no new orders should open while the circuit breaker is tripped")
}

func TestCloserFillTransitionsOrderToFilledState(t *testing.T) {
	ex := newFakeExchange(decimal.NewFromInt(100))
	e, _, _ := newTestEngine(t, ex)

	ch, unsubscribe := e.bus.Subscribe(string(eventbus.EventOrderFilled))
	defer unsubscribe()

	e.checkNewOrders(context.Background(), ex.ticker)
	buyID := ex.openOrderIDs()[0]
	ex.fill(buyID)
	openOrders, _ := ex.GetOpenOrders(context.Background(), "BTCUSDT")
	e.reconcileOrders(context.Background(), openOrders, ex.ticker)
	<-ch // drain the opener-filled event

	e.mu.Lock()
	var sellID string
	for id := range e.closers {
		sellID = id
	}
	e.mu.Unlock()
	require.NotEmpty(t, sellID)

	ex.fill(sellID)
	openOrders, _ = ex.GetOpenOrders(context.Background(), "BTCUSDT")
	e.reconcileOrders(context.Background(), openOrders, ex.ticker)

	select {
	case payload := <-ch:
		closer, ok := payload.(core.Order)
		require.True(t, ok)
		assert.Equal(t, core.OrderFilled, closer.State)
	case <-time.After(time.Second):
		t.Fatal("expected a closer-filled event")
	}
}

func TestCancelledOpenerLeavesNoPositionOrTrade(t *testing.T) {
	ex := newFakeExchange(decimal.NewFromInt(100))
	e, tracker, sink := newTestEngine(t, ex)

	e.checkNewOrders(context.Background(), ex.ticker)
	ids := ex.openOrderIDs()
	require.Len(t, ids, 2)

	ex.cancelByVenue(ids[0])
	openOrders, err := ex.GetOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	e.reconcileOrders(context.Background(), openOrders, ex.ticker)

	assert.Zero(t, tracker.Count("BTCUSDT"), "a cancelled opener must not open a position")
	assert.Empty(t, sink.records, "a cancelled opener must not book a trade")

	e.mu.Lock()
	_, stillTracked := e.openers[ids[0]]
	e.mu.Unlock()
	assert.False(t, stillTracked, "cancelled order must be dropped from the opener map")
}

func TestPartialFillBooksDeltaTradeAndStaysResting(t *testing.T) {
	ex := newFakeExchange(decimal.NewFromInt(100))
	ex.feeRate = decimal.NewFromFloat(0.001)
	e, _, sink := newTestEngine(t, ex)

	e.checkNewOrders(context.Background(), ex.ticker)
	ids := ex.openOrderIDs()
	require.Len(t, ids, 2)

	qty := decimal.NewFromFloat(0.01)
	half := qty.Div(decimal.NewFromInt(2))
	ex.partiallyFill(ids[0], half)
	openOrders, err := ex.GetOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	e.reconcileOrders(context.Background(), openOrders, ex.ticker)

	require.Len(t, sink.records, 1)
	assert.True(t, sink.records[0].Quantity.Equal(half), "delta trade must record only the newly filled quantity")
	assert.True(t, sink.records[0].Fee.IsPositive())
	assert.True(t, sink.records[0].RealizedPnL.IsZero(), "a partial fill never realizes PnL on its own")

	e.mu.Lock()
	tracked, stillResting := e.openers[ids[0]]
	e.mu.Unlock()
	require.True(t, stillResting, "a partially filled order stays resting")
	assert.Equal(t, core.OrderPartiallyFilled, tracked.State)

	// The order disappears from the venue's open list only once it is fully filled.
	assert.Len(t, ex.openOrderIDs(), 2)
}

func TestTickSkipsOnNonPositiveTicker(t *testing.T) {
	ex := newFakeExchange(decimal.NewFromInt(100))
	e, _, _ := newTestEngine(t, ex)

	ex.mu.Lock()
	ex.ticker.LastPrice = decimal.Zero
	ex.mu.Unlock()

	require.NoError(t, e.Tick(context.Background()))

	e.mu.Lock()
	openerCount := len(e.openers)
	e.mu.Unlock()
	assert.Zero(t, openerCount, "a non-positive ticker must not trigger new orders")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ex := newFakeExchange(decimal.NewFromInt(100))
	e, _, _ := newTestEngine(t, ex)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after context cancellation")
	}
}
