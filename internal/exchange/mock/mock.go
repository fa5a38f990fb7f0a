// Package mock implements an in-memory core.IExchange used by tests and the
// "mock" exchange kind, standing in for a real venue without any network
// dependency. Grounded on the teacher's configuration's long-standing
// "mock" exchange case (internal/config/config.go's validExchanges list).
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridwarden/internal/core"
	"gridwarden/pkg/apperrors"
)

// Adapter is an in-memory exchange: orders placed against it fill
// immediately at the requested price unless the test harness pre-seeds a
// different ticker/behavior via its setters.
type Adapter struct {
	venue string

	mu      sync.Mutex
	orders  map[string]core.Order
	ticker  core.OrderBookTicker
	rules   core.TradingRules
	feeRate decimal.Decimal

	seq int64

	FailNextPlace bool
}

// NewAdapter builds a mock adapter for venue with a default BTCUSDT ticker
// and permissive trading rules.
func NewAdapter(venue string) *Adapter {
	return &Adapter{
		venue:  venue,
		orders: make(map[string]core.Order),
		ticker: core.OrderBookTicker{
			Symbol: "BTCUSDT", BidPrice: decimal.NewFromInt(100),
			AskPrice: decimal.NewFromInt(100), LastPrice: decimal.NewFromInt(100),
		},
		rules: core.TradingRules{
			TickSize: decimal.NewFromFloat(0.01), StepSize: decimal.NewFromFloat(0.0001),
			MinQuantity: decimal.NewFromFloat(0.0001), MinNotional: decimal.NewFromInt(1),
		},
	}
}

// SetTicker overrides the ticker returned by GetTicker, letting tests drive
// price movement.
func (a *Adapter) SetTicker(t core.OrderBookTicker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ticker = t
}

// SetFeeRate overrides the fee rate returned by GetFeeRate, letting tests
// exercise fee accounting without a real venue's fee schedule.
func (a *Adapter) SetFeeRate(rate decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feeRate = rate
}

func (a *Adapter) Venue() string { return a.venue }

func (a *Adapter) GetFeeRate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.feeRate, nil
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (core.OrderBookTicker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ticker, nil
}

func (a *Adapter) GetTradingRules(ctx context.Context, symbol string) (core.TradingRules, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rules, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, req core.PlaceOrderRequest) (core.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.FailNextPlace {
		a.FailNextPlace = false
		return core.Order{}, apperrors.ErrOrderRejected
	}

	id := req.ClientOrderID
	if id == "" {
		id = uuid.NewString()
	}
	o := core.Order{
		ID: id, ExchangeID: id, Symbol: req.Symbol, Side: req.Side,
		State: core.OrderFilled, Price: req.Price, Quantity: req.Quantity,
		FilledQty: req.Quantity,
	}
	a.orders[id] = o
	atomic.AddInt64(&a.seq, 1)
	return o, nil
}

func (a *Adapter) PlaceOrdersBatch(ctx context.Context, reqs []core.PlaceOrderRequest) ([]core.Order, error) {
	out := make([]core.Order, 0, len(reqs))
	for _, r := range reqs {
		o, err := a.PlaceOrder(ctx, r)
		if err != nil {
			return out, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[exchangeOrderID]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	o.State = core.OrderCancelled
	a.orders[exchangeOrderID] = o
	return nil
}

func (a *Adapter) CancelOrdersBatch(ctx context.Context, symbol string, exchangeOrderIDs []string) error {
	for _, id := range exchangeOrderIDs {
		if err := a.CancelOrder(ctx, symbol, id); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) EditOrder(ctx context.Context, symbol, exchangeOrderID string, newPrice, newQty decimal.Decimal) (core.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[exchangeOrderID]
	if !ok {
		return core.Order{}, apperrors.ErrOrderNotFound
	}
	o.Price = newPrice
	o.Quantity = newQty
	a.orders[exchangeOrderID] = o
	return o, nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (core.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[exchangeOrderID]
	if !ok {
		return core.Order{}, apperrors.ErrOrderNotFound
	}
	return o, nil
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.Order, 0)
	for _, o := range a.orders {
		if o.Symbol == symbol && !o.IsTerminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (a *Adapter) Close(ctx context.Context) error { return nil }

var _ core.IExchange = (*Adapter)(nil)
