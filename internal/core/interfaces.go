package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// ILogger is the structured logging interface every component depends on.
// Grounded on pkg/logging/logger.go's ILogger shape.
type ILogger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	Fatal(msg string, err error, fields ...Field)
	WithField(key string, value interface{}) ILogger
	WithFields(fields ...Field) ILogger
	// WithContext returns a logger prefixed with [symbol][keyPrefix][venue],
	// spec.md C14's structured-context requirement.
	WithContext(symbol, keyPrefix, venue string) ILogger
}

// Field is a single structured logging key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// F is a convenience constructor for Field.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// OrderBookTicker is the best bid/ask snapshot an exchange adapter returns.
type OrderBookTicker struct {
	Symbol    string
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	LastPrice decimal.Decimal
}

// PlaceOrderRequest is the venue-agnostic order placement request (C6).
type PlaceOrderRequest struct {
	Symbol        string
	Side          OrderSide
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	ClientOrderID string
}

// IExchange is the unified adapter interface spec.md C6 requires: every
// venue (spot, futures, prediction-market) implements this, and the engine
// never branches on venue type.
type IExchange interface {
	Venue() string
	GetTicker(ctx context.Context, symbol string) (OrderBookTicker, error)
	GetTradingRules(ctx context.Context, symbol string) (TradingRules, error)
	// GetFeeRate returns the venue's maker/taker fee rate for symbol as a
	// fraction of notional (spec.md C6's getFeeRate()), used to compute the
	// fee booked against every fill.
	GetFeeRate(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (Order, error)
	PlaceOrdersBatch(ctx context.Context, reqs []PlaceOrderRequest) ([]Order, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	CancelOrdersBatch(ctx context.Context, symbol string, exchangeOrderIDs []string) error
	EditOrder(ctx context.Context, symbol, exchangeOrderID string, newPrice, newQty decimal.Decimal) (Order, error)
	GetOrder(ctx context.Context, symbol, exchangeOrderID string) (Order, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	Close(ctx context.Context) error
}

// IStrategy is the capability interface spec.md §9's long/short Open
// Question resolves into one implementation (GridStrategy, IsNeutral).
type IStrategy interface {
	Symbol() string
	IsNeutral() bool
	ShouldBuyBatch(ticker OrderBookTicker, openOrders []Order) []PlaceOrderRequest
	ShouldSell(position PositionEntry, ticker OrderBookTicker) (PlaceOrderRequest, bool)
	ShouldReprice(order Order, ticker OrderBookTicker) (newPrice decimal.Decimal, ok bool)
	ShouldShortBatch(ticker OrderBookTicker, openOrders []Order) []PlaceOrderRequest
	ShouldCloseShort(position PositionEntry, ticker OrderBookTicker) (PlaceOrderRequest, bool)
	ShouldRepriceShort(order Order, ticker OrderBookTicker) (newPrice decimal.Decimal, ok bool)
}

// RiskDecision is the result of a canOpenPosition check (C4).
type RiskDecision struct {
	Allowed bool
	Reason  string
}

// IRiskGovernor enforces stop-loss, cooldown, daily-loss, and position-count
// limits (C4).
type IRiskGovernor interface {
	CanOpenPosition(currentCount int) RiskDecision
	RecordFill(realizedPnL decimal.Decimal, isLoss bool)
	ShouldStopLoss(position PositionEntry, ticker OrderBookTicker, now int64) (bool, string)
	CircuitOpen() bool
	Reset()
}

// IPositionTracker manages in-memory open positions (C3).
type IPositionTracker interface {
	AddPosition(p PositionEntry)
	RemovePosition(orderID string) (PositionEntry, bool)
	GetPosition(orderID string) (PositionEntry, bool)
	AllPositions(symbol string) []PositionEntry
	TotalQuantity(symbol string) decimal.Decimal
	TotalCost(symbol string) decimal.Decimal
	UnrealizedPnL(symbol string, currentPrice decimal.Decimal) decimal.Decimal
	Count(symbol string) int
	Clear(symbol string)
}

// ITradeSink persists executed fills (C5). Appends must be idempotent under
// retries — callers may submit the same TradeRecord more than once.
type ITradeSink interface {
	Append(ctx context.Context, t TradeRecord) error
	RealizedPnLTotal(ctx context.Context, strategyID string) (decimal.Decimal, error)
	Close() error
}

// DistributedLock is the coordinator's mutual-exclusion primitive (C12).
type DistributedLock interface {
	TryAcquire(ctx context.Context, key string, ttl int64) (bool, error)
	Release(ctx context.Context, key string) error
	Refresh(ctx context.Context, key string, ttl int64) error
}

// EventBus is the topic-keyed pub/sub bus (C15).
type EventBus interface {
	Publish(topic string, payload interface{})
	Subscribe(topic string) (ch <-chan interface{}, unsubscribe func())
}
