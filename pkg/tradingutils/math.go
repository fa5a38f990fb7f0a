// Package tradingutils holds the precision and grid-math helpers shared by
// every strategy and exchange adapter: tick/step alignment, grid price
// levels, and fee-aware profit calculations. Grounded on the teacher's
// pkg/tradingutils/math.go, extended with floor-to-increment alignment
// (spec.md §3 trading rules).
package tradingutils

import (
	"github.com/shopspring/decimal"

	"gridwarden/internal/core"
)

// RoundPrice rounds a price to the given number of decimal places.
func RoundPrice(price decimal.Decimal, priceDecimals int32) decimal.Decimal {
	return price.Round(priceDecimals)
}

// RoundQuantity rounds a quantity to the given number of decimal places.
func RoundQuantity(qty decimal.Decimal, qtyDecimals int32) decimal.Decimal {
	return qty.Round(qtyDecimals)
}

// FloorToTick aligns a price down to the nearest valid tick below it, so a
// limit price never gets rejected for sub-tick precision. Idempotent:
// FloorToTick(FloorToTick(p, t), t) == FloorToTick(p, t).
func FloorToTick(price, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return price
	}
	steps := price.Div(tickSize).Floor()
	return steps.Mul(tickSize)
}

// FloorToStep aligns a quantity down to the nearest valid step below it.
// Idempotent under re-application, same as FloorToTick.
func FloorToStep(qty, stepSize decimal.Decimal) decimal.Decimal {
	if stepSize.IsZero() {
		return qty
	}
	steps := qty.Div(stepSize).Floor()
	return steps.Mul(stepSize)
}

// AlignOrder floors price and quantity to the symbol's trading rules and
// reports whether the resulting order would still clear the exchange's
// minimum notional and minimum quantity.
func AlignOrder(price, qty decimal.Decimal, rules core.TradingRules) (alignedPrice, alignedQty decimal.Decimal, ok bool) {
	alignedPrice = FloorToTick(price, rules.TickSize)
	alignedQty = FloorToStep(qty, rules.StepSize)

	if alignedQty.LessThan(rules.MinQuantity) {
		return alignedPrice, alignedQty, false
	}
	notional := alignedPrice.Mul(alignedQty)
	if notional.LessThan(rules.MinNotional) {
		return alignedPrice, alignedQty, false
	}
	return alignedPrice, alignedQty, true
}

// CalculatePriceLevels generates count price levels at interval spacing
// above an anchor price.
func CalculatePriceLevels(anchorPrice, interval decimal.Decimal, count int) []decimal.Decimal {
	prices := make([]decimal.Decimal, 0, count)
	for i := 1; i <= count; i++ {
		prices = append(prices, anchorPrice.Add(interval.Mul(decimal.NewFromInt(int64(i)))))
	}
	return prices
}

// FindNearestGridPrice aligns currentPrice to the nearest grid level defined
// by anchorPrice and interval.
func FindNearestGridPrice(currentPrice, anchorPrice, interval decimal.Decimal) decimal.Decimal {
	if interval.IsZero() {
		return currentPrice
	}
	offset := currentPrice.Sub(anchorPrice)
	intervals := offset.Div(interval).Round(0)
	return anchorPrice.Add(intervals.Mul(interval))
}

// GridLevelPrice computes the buy price for a 0-indexed grid level below the
// anchor, spaced by offsetPercent per level (spec.md §3's gridLevels /
// offsetPercent config).
func GridLevelPrice(anchorPrice, offsetPercent decimal.Decimal, level int) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(offsetPercent.Mul(decimal.NewFromInt(int64(level + 1))))
	return anchorPrice.Mul(factor)
}

// SellPrice computes the counter-sell price for a filled buy at entryPrice,
// offset by sellOffsetPercent above entry.
func SellPrice(entryPrice, sellOffsetPercent decimal.Decimal) decimal.Decimal {
	return entryPrice.Mul(decimal.NewFromInt(1).Add(sellOffsetPercent))
}

// CalculateNetProfit computes the profit of a buy/sell pair after fees.
func CalculateNetProfit(buyPrice, sellPrice, buyFeeRate, sellFeeRate decimal.Decimal) decimal.Decimal {
	grossProfit := sellPrice.Sub(buyPrice)
	buyFee := buyPrice.Mul(buyFeeRate)
	sellFee := sellPrice.Mul(sellFeeRate)
	return grossProfit.Sub(buyFee).Sub(sellFee)
}

// RepriceThresholdExceeded reports whether currentPrice has drifted from
// orderPrice by more than thresholdPercent, the reprice-pass trigger used by
// the engine's step 5 (spec.md §4.1).
func RepriceThresholdExceeded(orderPrice, currentPrice, thresholdPercent decimal.Decimal) bool {
	if orderPrice.IsZero() {
		return false
	}
	diff := currentPrice.Sub(orderPrice).Abs()
	pct := diff.Div(orderPrice)
	return pct.GreaterThan(thresholdPercent)
}
