// Package strategy implements the grid trading decision logic (spec.md
// §3's strategy module), modeled as a single closed-set capability
// interface (core.IStrategy) rather than an open-ended inheritance chain,
// per spec.md §9's "base-strategy -> grid -> bilateral -> short" Open
// Question. Grounded on the teacher's trading/grid.Strategy shape and
// original_source/worker/engine/trading_engine.py's should_buy/should_sell/
// should_reprice call sites for the exact decision semantics, extended with
// the short-side methods original_source/worker/bilateral_trading_engine.py
// adds for neutral/bilateral grids.
package strategy

import (
	"github.com/shopspring/decimal"

	"gridwarden/internal/core"
	"gridwarden/pkg/tradingutils"
)

// Config configures one GridStrategy instance, matching
// internal/config.StrategyConfig's grid-shape fields.
type Config struct {
	Symbol            string
	IsNeutral         bool
	GridLevels        int
	OrderQuantity     decimal.Decimal
	OffsetPercent     decimal.Decimal
	SellOffsetPercent decimal.Decimal
	RepriceThreshold  decimal.Decimal
}

// GridStrategy places a ladder of buy orders below (and, in neutral mode,
// sell orders above) an anchor price, and closes fills with a symmetric
// counter-order at a fixed offset.
type GridStrategy struct {
	cfg         Config
	anchorPrice decimal.Decimal
}

// New builds a GridStrategy anchored at anchorPrice (typically the first
// tick price the engine observes, or a restored value).
func New(cfg Config, anchorPrice decimal.Decimal) *GridStrategy {
	return &GridStrategy{cfg: cfg, anchorPrice: anchorPrice}
}

func (s *GridStrategy) Symbol() string  { return s.cfg.Symbol }
func (s *GridStrategy) IsNeutral() bool { return s.cfg.IsNeutral }

// SetAnchor sets the grid's anchor price if none is set yet; an anchor
// already in place is left unchanged. The engine calls it with every tick's
// last price, so a strategy built with a zero anchor takes the first price
// the engine observes.
func (s *GridStrategy) SetAnchor(price decimal.Decimal) {
	if s.anchorPrice.IsZero() {
		s.anchorPrice = price
	}
}

// ShouldBuyBatch returns buy requests for every grid level currently
// uncovered by an open buy order, skipping levels the engine already has a
// resting order on.
func (s *GridStrategy) ShouldBuyBatch(ticker core.OrderBookTicker, openOrders []core.Order) []core.PlaceOrderRequest {
	coveredLevels := make(map[int]bool)
	for _, o := range openOrders {
		if o.Side == core.SideBuy {
			coveredLevels[o.GridIndex] = true
		}
	}

	var reqs []core.PlaceOrderRequest
	for level := 0; level < s.cfg.GridLevels; level++ {
		if coveredLevels[level] {
			continue
		}
		price := tradingutils.GridLevelPrice(s.anchorPrice, s.cfg.OffsetPercent, level)
		reqs = append(reqs, core.PlaceOrderRequest{
			Symbol: s.cfg.Symbol, Side: core.SideBuy, Price: price, Quantity: s.cfg.OrderQuantity,
		})
	}
	return reqs
}

// ShouldSell returns the counter-sell for a filled buy position, priced at
// entryPrice * (1 + sellOffsetPercent), regardless of current market price
// (a resting limit order, not a market chase).
func (s *GridStrategy) ShouldSell(position core.PositionEntry, ticker core.OrderBookTicker) (core.PlaceOrderRequest, bool) {
	price := tradingutils.SellPrice(position.EntryPrice, s.cfg.SellOffsetPercent)
	return core.PlaceOrderRequest{
		Symbol: s.cfg.Symbol, Side: core.SideSell, Price: price, Quantity: position.Quantity,
	}, true
}

// ShouldReprice reports whether order has drifted from ticker's current
// price beyond the configured threshold and, if so, the new price to move
// it to: a buy order is re-quoted at its grid level's offset below the live
// mark, and any other order is re-pegged to the live mark itself.
func (s *GridStrategy) ShouldReprice(order core.Order, ticker core.OrderBookTicker) (decimal.Decimal, bool) {
	if s.cfg.RepriceThreshold.IsZero() {
		return decimal.Zero, false
	}
	if !tradingutils.RepriceThresholdExceeded(order.Price, ticker.LastPrice, s.cfg.RepriceThreshold) {
		return decimal.Zero, false
	}
	if order.Side == core.SideBuy {
		return tradingutils.GridLevelPrice(ticker.LastPrice, s.cfg.OffsetPercent, order.GridIndex), true
	}
	return ticker.LastPrice, true
}

// ShouldShortBatch is ShouldBuyBatch's mirror for neutral-mode grids: sell
// orders above the anchor, opening short positions. A no-op for long-only
// grids (IsNeutral == false).
func (s *GridStrategy) ShouldShortBatch(ticker core.OrderBookTicker, openOrders []core.Order) []core.PlaceOrderRequest {
	if !s.cfg.IsNeutral {
		return nil
	}
	coveredLevels := make(map[int]bool)
	for _, o := range openOrders {
		if o.Side == core.SideSell {
			coveredLevels[o.GridIndex] = true
		}
	}

	var reqs []core.PlaceOrderRequest
	for level := 0; level < s.cfg.GridLevels; level++ {
		if coveredLevels[level] {
			continue
		}
		// Mirror GridLevelPrice above the anchor for the short ladder.
		factor := decimal.NewFromInt(1).Add(s.cfg.OffsetPercent.Mul(decimal.NewFromInt(int64(level + 1))))
		price := s.anchorPrice.Mul(factor)
		reqs = append(reqs, core.PlaceOrderRequest{
			Symbol: s.cfg.Symbol, Side: core.SideSell, Price: price, Quantity: s.cfg.OrderQuantity,
		})
	}
	return reqs
}

// ShouldCloseShort is ShouldSell's mirror: the buy-to-cover counter-order
// for a filled short, priced below entry by sellOffsetPercent.
func (s *GridStrategy) ShouldCloseShort(position core.PositionEntry, ticker core.OrderBookTicker) (core.PlaceOrderRequest, bool) {
	if !s.cfg.IsNeutral {
		return core.PlaceOrderRequest{}, false
	}
	factor := decimal.NewFromInt(1).Sub(s.cfg.SellOffsetPercent)
	price := position.EntryPrice.Mul(factor)
	return core.PlaceOrderRequest{
		Symbol: s.cfg.Symbol, Side: core.SideBuy, Price: price, Quantity: position.Quantity,
	}, true
}

// ShouldRepriceShort is ShouldReprice's mirror for resting short-side orders.
func (s *GridStrategy) ShouldRepriceShort(order core.Order, ticker core.OrderBookTicker) (decimal.Decimal, bool) {
	if !s.cfg.IsNeutral || s.cfg.RepriceThreshold.IsZero() {
		return decimal.Zero, false
	}
	if !tradingutils.RepriceThresholdExceeded(order.Price, ticker.LastPrice, s.cfg.RepriceThreshold) {
		return decimal.Zero, false
	}
	return ticker.LastPrice, true
}

var _ core.IStrategy = (*GridStrategy)(nil)
