package spot

import (
	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"gridwarden/internal/core"
)

var decimalTwo = decimal.NewFromInt(2)

// rulesFromSymbolInfo reads the PRICE_FILTER/LOT_SIZE/MIN_NOTIONAL filters
// off a binance.Symbol into the venue-agnostic core.TradingRules.
func rulesFromSymbolInfo(sym binance.Symbol) core.TradingRules {
	rules := core.TradingRules{
		Symbol:       sym.Symbol,
		PricePrec:    int32(sym.QuotePrecision),
		QuantityPrec: int32(sym.BaseAssetPrecision),
	}
	if pf := sym.PriceFilter(); pf != nil {
		rules.TickSize = parseDecimal(pf.TickSize)
	}
	if lf := sym.LotSizeFilter(); lf != nil {
		rules.StepSize = parseDecimal(lf.StepSize)
		rules.MinQuantity = parseDecimal(lf.MinQuantity)
	}
	if mn := sym.MinNotionalFilter(); mn != nil {
		rules.MinNotional = parseDecimal(mn.MinNotional)
	}
	return rules
}

func sideFromBinance(s binance.SideType) core.OrderSide {
	if s == binance.SideTypeSell {
		return core.SideSell
	}
	return core.SideBuy
}

func stateFromBinance(s binance.OrderStatusType) core.OrderState {
	switch s {
	case binance.OrderStatusTypeNew:
		return core.OrderPlaced
	case binance.OrderStatusTypePartiallyFilled:
		return core.OrderPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return core.OrderFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypePendingCancel, binance.OrderStatusTypeExpired:
		return core.OrderCancelled
	case binance.OrderStatusTypeRejected:
		return core.OrderFailed
	default:
		return core.OrderPlaced
	}
}

func orderFromCreateResponse(resp *binance.CreateOrderResponse) core.Order {
	id := decimal.NewFromInt(resp.OrderID).String()
	return core.Order{
		ID:         resp.ClientOrderID,
		ExchangeID: id,
		Symbol:     resp.Symbol,
		Side:       sideFromBinance(resp.Side),
		State:      stateFromBinance(resp.Status),
		Price:      parseDecimal(resp.Price),
		Quantity:   parseDecimal(resp.OrigQuantity),
		FilledQty:  parseDecimal(resp.ExecutedQuantity),
	}
}

func orderFromQueryResponse(o *binance.Order) core.Order {
	id := decimal.NewFromInt(o.OrderID).String()
	return core.Order{
		ID:         o.ClientOrderID,
		ExchangeID: id,
		Symbol:     o.Symbol,
		Side:       sideFromBinance(o.Side),
		State:      stateFromBinance(o.Status),
		Price:      parseDecimal(o.Price),
		Quantity:   parseDecimal(o.OrigQuantity),
		FilledQty:  parseDecimal(o.ExecutedQuantity),
	}
}
