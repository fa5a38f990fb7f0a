// Package order implements the Order entity's guarded state machine
// (spec.md §3 C2): Pending->Placed|Failed, Placed->PartiallyFilled|Filled|
// Cancelled, PartiallyFilled->PartiallyFilled|Filled|Cancelled. Every other
// transition is rejected.
package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gridwarden/internal/core"
)

// ErrInvalidTransition is returned when a transition is not allowed from the
// order's current state.
type ErrInvalidTransition struct {
	From core.OrderState
	To   core.OrderState
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid order transition: %s -> %s", e.From, e.To)
}

var allowedTransitions = map[core.OrderState]map[core.OrderState]bool{
	core.OrderPending: {
		core.OrderPlaced: true,
		core.OrderFailed: true,
	},
	core.OrderPlaced: {
		core.OrderPartiallyFilled: true,
		core.OrderFilled:          true,
		core.OrderCancelled:       true,
	},
	core.OrderPartiallyFilled: {
		core.OrderPartiallyFilled: true,
		core.OrderFilled:          true,
		core.OrderCancelled:       true,
	},
}

// New creates a fresh Pending order.
func New(id, symbol string, side core.OrderSide, price, qty decimal.Decimal, gridIndex int) core.Order {
	now := time.Now()
	return core.Order{
		ID:        id,
		Symbol:    symbol,
		Side:      side,
		State:     core.OrderPending,
		Price:     price,
		Quantity:  qty,
		FilledQty: decimal.Zero,
		GridIndex: gridIndex,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TryTransition attempts to move o into newState, rejecting any transition
// not in allowedTransitions. Returns the updated order on success; o is
// never mutated in place.
func TryTransition(o core.Order, newState core.OrderState) (core.Order, error) {
	if o.State == newState {
		return o, nil
	}
	next, ok := allowedTransitions[o.State]
	if !ok || !next[newState] {
		return o, ErrInvalidTransition{From: o.State, To: newState}
	}
	o.State = newState
	o.UpdatedAt = time.Now()
	return o, nil
}

// ApplyFill sets o's filled quantity to cumulativeFilledQty, the total the
// exchange reports filled so far (not a delta), transitioning to
// PartiallyFilled or Filled depending on whether it reaches the order's
// total quantity. A cumulative quantity below the one already recorded is
// rejected; callers derive the fill delta from the previous FilledQty.
func ApplyFill(o core.Order, cumulativeFilledQty decimal.Decimal) (core.Order, error) {
	if cumulativeFilledQty.LessThan(o.FilledQty) {
		return o, fmt.Errorf("fill quantity went backwards: %s -> %s", o.FilledQty, cumulativeFilledQty)
	}

	o.FilledQty = cumulativeFilledQty
	if cumulativeFilledQty.GreaterThanOrEqual(o.Quantity) {
		return TryTransition(o, core.OrderFilled)
	}
	if cumulativeFilledQty.GreaterThan(decimal.Zero) {
		return TryTransition(o, core.OrderPartiallyFilled)
	}
	return o, nil
}

// Cancel marks o as cancelled, the terminal state for an order the engine
// gave up on repricing or replacing.
func Cancel(o core.Order) (core.Order, error) {
	return TryTransition(o, core.OrderCancelled)
}

// Fail marks a still-pending order as failed (placement rejected by the
// exchange before an exchange-side order ID was ever assigned).
func Fail(o core.Order) (core.Order, error) {
	return TryTransition(o, core.OrderFailed)
}
