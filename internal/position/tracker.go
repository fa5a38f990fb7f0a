// Package position implements the in-memory position tracker (spec.md §4.3
// C3), grounded on original_source/domain/position.py's PositionTracker,
// generalized from float64 to decimal.Decimal and from a single exchange to
// a multi-venue key space.
package position

import (
	"sync"

	"github.com/shopspring/decimal"

	"gridwarden/internal/core"
)

// Tracker is a mutex-guarded map of open positions keyed by the opening
// order's ID.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]core.PositionEntry
}

// NewTracker builds an empty position tracker.
func NewTracker() *Tracker {
	return &Tracker{positions: make(map[string]core.PositionEntry)}
}

// AddPosition records a new open position, called when a buy order fills.
func (t *Tracker) AddPosition(p core.PositionEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[p.OrderID] = p
}

// RemovePosition removes and returns the position opened by orderID, called
// when its counter-sell fills.
func (t *Tracker) RemovePosition(orderID string) (core.PositionEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[orderID]
	if ok {
		delete(t.positions, orderID)
	}
	return p, ok
}

// GetPosition returns the position opened by orderID, if any.
func (t *Tracker) GetPosition(orderID string) (core.PositionEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[orderID]
	return p, ok
}

// AllPositions returns every position, optionally filtered by symbol.
func (t *Tracker) AllPositions(symbol string) []core.PositionEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.PositionEntry, 0, len(t.positions))
	for _, p := range t.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

// TotalQuantity sums the quantity of every position for symbol.
func (t *Tracker) TotalQuantity(symbol string) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := decimal.Zero
	for _, p := range t.positions {
		if p.Symbol == symbol {
			total = total.Add(p.Quantity)
		}
	}
	return total
}

// TotalCost sums the cost basis of every position for symbol.
func (t *Tracker) TotalCost(symbol string) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := decimal.Zero
	for _, p := range t.positions {
		if p.Symbol == symbol {
			total = total.Add(p.Cost())
		}
	}
	return total
}

// UnrealizedPnL sums the mark-to-market PnL of every position for symbol at
// currentPrice.
func (t *Tracker) UnrealizedPnL(symbol string, currentPrice decimal.Decimal) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := decimal.Zero
	for _, p := range t.positions {
		if p.Symbol == symbol {
			total = total.Add(p.UnrealizedPnL(currentPrice))
		}
	}
	return total
}

// Count returns the number of positions, optionally filtered by symbol.
func (t *Tracker) Count(symbol string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if symbol == "" {
		return len(t.positions)
	}
	n := 0
	for _, p := range t.positions {
		if p.Symbol == symbol {
			n++
		}
	}
	return n
}

// Clear removes all positions, optionally filtered by symbol.
func (t *Tracker) Clear(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if symbol == "" {
		t.positions = make(map[string]core.PositionEntry)
		return
	}
	for id, p := range t.positions {
		if p.Symbol == symbol {
			delete(t.positions, id)
		}
	}
}

var _ core.IPositionTracker = (*Tracker)(nil)
