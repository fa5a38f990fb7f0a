package spot

import (
	"context"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"

	"gridwarden/internal/core"
	"gridwarden/pkg/apperrors"
)

// futuresClient adapts *futures.Client to the internal client interface. The
// futures package is a sibling of the spot package in go-binance/v2 with a
// parallel but not identical service surface, hence the separate wrapper
// rather than sharing spotClient's methods.
type futuresClient struct {
	fc *futures.Client
}

func (c *futuresClient) bookTicker(ctx context.Context, symbol string) (*core.OrderBookTicker, error) {
	tickers, err := c.fc.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, apperrors.ErrInvalidSymbol
	}
	t := tickers[0]
	bid, ask := parseDecimal(t.BidPrice), parseDecimal(t.AskPrice)
	return &core.OrderBookTicker{
		Symbol: t.Symbol, BidPrice: bid, AskPrice: ask,
		LastPrice: bid.Add(ask).Div(decimalTwo),
	}, nil
}

func (c *futuresClient) exchangeInfo(ctx context.Context, symbol string) (core.TradingRules, error) {
	info, err := c.fc.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return core.TradingRules{}, err
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules := core.TradingRules{
			Symbol: s.Symbol, PricePrec: int32(s.PricePrecision), QuantityPrec: int32(s.QuantityPrecision),
		}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "PRICE_FILTER":
				rules.TickSize = parseDecimal(toStr(f["tickSize"]))
			case "LOT_SIZE":
				rules.StepSize = parseDecimal(toStr(f["stepSize"]))
				rules.MinQuantity = parseDecimal(toStr(f["minQty"]))
			case "MIN_NOTIONAL":
				rules.MinNotional = parseDecimal(toStr(f["notional"]))
			}
		}
		return rules, nil
	}
	return core.TradingRules{}, apperrors.ErrInvalidSymbol
}

func toStr(v interface{}) string {
	s, _ := v.(string)
	return s
}

func (c *futuresClient) createOrder(ctx context.Context, req core.PlaceOrderRequest) (core.Order, error) {
	side := futures.SideTypeBuy
	if req.Side == core.SideSell {
		side = futures.SideTypeSell
	}
	svc := c.fc.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(req.Quantity.String()).
		Price(req.Price.String())
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return core.Order{}, err
	}
	return core.Order{
		ID:         resp.ClientOrderID,
		ExchangeID: strconv.FormatInt(resp.OrderID, 10),
		Symbol:     resp.Symbol,
		Side:       sideFromFutures(resp.Side),
		State:      stateFromFutures(resp.Status),
		Price:      parseDecimal(resp.Price),
		Quantity:   parseDecimal(resp.OrigQuantity),
		FilledQty:  parseDecimal(resp.ExecutedQuantity),
	}, nil
}

func (c *futuresClient) cancelOrder(ctx context.Context, symbol, orderID string) error {
	id, _ := strconv.ParseInt(orderID, 10, 64)
	_, err := c.fc.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	return err
}

func (c *futuresClient) getOrder(ctx context.Context, symbol, orderID string) (core.Order, error) {
	id, _ := strconv.ParseInt(orderID, 10, 64)
	o, err := c.fc.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return core.Order{}, err
	}
	return core.Order{
		ID:         o.ClientOrderID,
		ExchangeID: strconv.FormatInt(o.OrderID, 10),
		Symbol:     o.Symbol,
		Side:       sideFromFutures(o.Side),
		State:      stateFromFutures(o.Status),
		Price:      parseDecimal(o.Price),
		Quantity:   parseDecimal(o.OrigQuantity),
		FilledQty:  parseDecimal(o.ExecutedQuantity),
	}, nil
}

func (c *futuresClient) openOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	resp, err := c.fc.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Order, 0, len(resp))
	for _, o := range resp {
		out = append(out, core.Order{
			ID:         o.ClientOrderID,
			ExchangeID: strconv.FormatInt(o.OrderID, 10),
			Symbol:     o.Symbol,
			Side:       sideFromFutures(o.Side),
			State:      stateFromFutures(o.Status),
			Price:      parseDecimal(o.Price),
			Quantity:   parseDecimal(o.OrigQuantity),
			FilledQty:  parseDecimal(o.ExecutedQuantity),
		})
	}
	return out, nil
}

func sideFromFutures(s futures.SideType) core.OrderSide {
	if s == futures.SideTypeSell {
		return core.SideSell
	}
	return core.SideBuy
}

func stateFromFutures(s futures.OrderStatusType) core.OrderState {
	switch s {
	case futures.OrderStatusTypeNew:
		return core.OrderPlaced
	case futures.OrderStatusTypePartiallyFilled:
		return core.OrderPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return core.OrderFilled
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return core.OrderCancelled
	case futures.OrderStatusTypeRejected:
		return core.OrderFailed
	default:
		return core.OrderPlaced
	}
}
