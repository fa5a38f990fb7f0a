// Package syncer implements the Position Syncer (spec.md C10): cache-vs-
// exchange reconciliation for pending counter orders and position/order
// cross-checks, debounced so a single missed poll doesn't trigger a repair.
// Grounded near line-for-line on original_source/engine/position_syncer.py's
// PositionSyncer, generalized from the Python engine's single pending_sells
// map to the Go engine's generic pending-counter-order map.
package syncer

import (
	"context"
	"sync"

	"gridwarden/internal/core"
)

const defaultMissingThreshold = 2

// Syncer debounces exchange-order-cache drift and flags positions without a
// counter order or counter orders without a backing position.
type Syncer struct {
	exchange         core.IExchange
	positions        core.IPositionTracker
	missingThreshold int
	logger           core.ILogger

	mu            sync.Mutex
	missingCounts map[string]int
}

// New builds a Syncer for one (exchange, position tracker) pair. A
// missingThreshold <= 0 uses the spec default of 2 consecutive misses.
func New(exchange core.IExchange, positions core.IPositionTracker, missingThreshold int, logger core.ILogger) *Syncer {
	if missingThreshold <= 0 {
		missingThreshold = defaultMissingThreshold
	}
	return &Syncer{
		exchange: exchange, positions: positions, missingThreshold: missingThreshold,
		logger: logger.WithField("component", "syncer"), missingCounts: make(map[string]int),
	}
}

// Report is the outcome of one Sync pass: counter orders that have been
// missing from the exchange for missingThreshold consecutive polls (and
// should be dropped from the pending map), positions lacking a counter
// order (need a repair sell/buy placed), and counter orders with no backing
// position (should be cancelled).
type Report struct {
	DroppedOrderIDs       []string
	PositionsWithoutOrder []core.PositionEntry
	ExcessCounterOrders   []core.Order
}

// Sync reconciles pendingCounters (keyed by exchange order id) against the
// exchange's live open-order list and the position tracker's current
// positions. An empty exchange response while pendingCounters is non-empty
// is treated as a likely transient API glitch and skipped, matching the
// Python original's defensive check.
func (s *Syncer) Sync(ctx context.Context, symbol string, pendingCounters map[string]core.Order) (Report, error) {
	exchangeOrders, err := s.exchange.GetOpenOrders(ctx, symbol)
	if err != nil {
		s.logger.Error("syncer: get open orders failed", err)
		return Report{}, err
	}

	if len(exchangeOrders) == 0 && len(pendingCounters) > 0 {
		s.logger.Warn("syncer: exchange returned empty order list, skipping sync")
		return Report{}, nil
	}

	report := Report{}
	report.DroppedOrderIDs = s.syncOrders(pendingCounters, exchangeOrders)
	report.PositionsWithoutOrder = s.positionsWithoutCounter(pendingCounters)
	report.ExcessCounterOrders = s.excessCounterOrders(pendingCounters)
	return report, nil
}

func (s *Syncer) syncOrders(pendingCounters map[string]core.Order, exchangeOrders []core.Order) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[string]struct{}, len(exchangeOrders))
	for _, o := range exchangeOrders {
		present[o.ExchangeID] = struct{}{}
	}

	var dropped []string
	for orderID := range pendingCounters {
		if _, ok := present[orderID]; ok {
			delete(s.missingCounts, orderID)
			continue
		}
		s.missingCounts[orderID]++
		if s.missingCounts[orderID] >= s.missingThreshold {
			s.logger.Info("syncer: order missing for consecutive rounds, dropping",
				core.F("order_id", orderID), core.F("threshold", s.missingThreshold))
			delete(s.missingCounts, orderID)
			dropped = append(dropped, orderID)
		}
	}
	return dropped
}

func (s *Syncer) positionsWithoutCounter(pendingCounters map[string]core.Order) []core.PositionEntry {
	positions := s.positions.AllPositions("")
	counterFor := make(map[string]struct{}, len(pendingCounters))
	for _, o := range pendingCounters {
		if o.IsCounterFor != "" {
			counterFor[o.IsCounterFor] = struct{}{}
		}
	}

	var out []core.PositionEntry
	for _, pos := range positions {
		if _, ok := counterFor[pos.OrderID]; !ok {
			out = append(out, pos)
		}
	}
	if len(out) > 0 {
		s.logger.Warn("syncer: positions without counter order found", core.F("count", len(out)))
	}
	return out
}

func (s *Syncer) excessCounterOrders(pendingCounters map[string]core.Order) []core.Order {
	positions := s.positions.AllPositions("")
	positionOrderIDs := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		positionOrderIDs[p.OrderID] = struct{}{}
	}

	var out []core.Order
	for _, o := range pendingCounters {
		if o.IsCounterFor == "" {
			continue
		}
		if _, ok := positionOrderIDs[o.IsCounterFor]; !ok {
			out = append(out, o)
		}
	}
	if len(out) > 0 {
		s.logger.Warn("syncer: excess counter orders found", core.F("count", len(out)))
	}
	return out
}

// ClearMissingCounts resets the debounce state, used after a market switch
// (prediction-market rollover) or an engine restart clears pending maps.
func (s *Syncer) ClearMissingCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missingCounts = make(map[string]int)
}
