// Package core defines the domain types and collaborator interfaces shared
// by every other package: orders, positions, trading rules, and the
// abstractions the engine drives (exchange, strategy, risk governor,
// position tracker, trade sink, logger).
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderState is the lifecycle state of an Order (spec.md §3's state machine).
type OrderState string

const (
	OrderPending         OrderState = "pending"
	OrderPlaced          OrderState = "placed"
	OrderPartiallyFilled OrderState = "partially_filled"
	OrderFilled          OrderState = "filled"
	OrderCancelled       OrderState = "cancelled"
	OrderFailed          OrderState = "failed"
)

// Order is a single exchange order tracked by the engine. Mutation must go
// through internal/order's guarded state machine; this struct is the plain
// data carried by every layer above it.
type Order struct {
	ID           string
	ExchangeID   string
	Symbol       string
	Side         OrderSide
	State        OrderState
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	FilledQty    decimal.Decimal
	GridIndex    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	IsCounterFor string // ID of the opening order this order closes, if any
	RetryCount   int
}

// Remaining returns the quantity not yet filled.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQty)
}

// IsTerminal reports whether the order will never transition again.
func (o Order) IsTerminal() bool {
	switch o.State {
	case OrderFilled, OrderCancelled, OrderFailed:
		return true
	default:
		return false
	}
}

// PositionEntry is a single open position opened by a filled buy order.
// Grounded on original_source/domain/position.py's PositionEntry, generalized
// from float64 to decimal.Decimal and tagged with the venue it was opened on.
type PositionEntry struct {
	OrderID    string
	Symbol     string
	Venue      string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	GridIndex  int
	CreatedAt  time.Time
}

// Cost is the total cost basis of the position.
func (p PositionEntry) Cost() decimal.Decimal {
	return p.Quantity.Mul(p.EntryPrice)
}

// UnrealizedPnL is the mark-to-market profit/loss at currentPrice.
func (p PositionEntry) UnrealizedPnL(currentPrice decimal.Decimal) decimal.Decimal {
	return currentPrice.Sub(p.EntryPrice).Mul(p.Quantity)
}

// TradingRules describes a symbol's exchange precision constraints, used by
// pkg/tradingutils to floor prices and quantities to valid increments.
type TradingRules struct {
	Symbol       string
	TickSize     decimal.Decimal
	StepSize     decimal.Decimal
	MinNotional  decimal.Decimal
	MinQuantity  decimal.Decimal
	PricePrec    int32
	QuantityPrec int32
}

// RunningState is the distributed record a worker writes to the coordinator
// KV store while a strategy is active (spec.md §6's strategy:running:<id>
// hash).
type RunningState struct {
	StrategyID string
	WorkerID   string
	StartedAt  time.Time
	LastTickAt time.Time
	Status     string // "running", "stopping", "stopped", "error"
	TickCount  int64
	LastError  string
}

// TradeRecord is a single executed fill persisted by the trade sink (C5).
type TradeRecord struct {
	StrategyID  string
	OrderID     string
	Symbol      string
	Side        OrderSide
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Fee         decimal.Decimal
	RealizedPnL decimal.Decimal
	ExecutedAt  time.Time
}

// TradeKey returns the idempotency key used by the trade sink to de-dupe
// repeated appends of the same fill delta.
func (t TradeRecord) TradeKey() string {
	return t.StrategyID + ":" + t.OrderID + ":" + string(t.Side) + ":" + t.Quantity.String()
}

// StatusSnapshot is the per-tick summary published to the event bus (C15)
// and exposed to the coordinator for the running-state hash.
type StatusSnapshot struct {
	StrategyID     string
	Symbol         string
	Venue          string
	Status         string // "running" or "stopping" (the final snapshot published before an engine shuts down)
	LastPrice      decimal.Decimal
	OpenOrderCount int
	PositionCount  int
	UnrealizedPnL  decimal.Decimal
	RealizedPnL    decimal.Decimal
	CircuitOpen    bool
	TakenAt        time.Time
}
