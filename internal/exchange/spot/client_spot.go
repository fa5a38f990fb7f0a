package spot

import (
	"context"
	"strconv"

	"github.com/adshao/go-binance/v2"

	"gridwarden/internal/core"
	"gridwarden/pkg/apperrors"
)

// spotClient adapts *binance.Client to the internal client interface.
type spotClient struct {
	bc *binance.Client
}

func (c *spotClient) bookTicker(ctx context.Context, symbol string) (*core.OrderBookTicker, error) {
	ticker, err := c.bc.NewBookTickerService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	return &core.OrderBookTicker{
		Symbol:    ticker.Symbol,
		BidPrice:  parseDecimal(ticker.BidPrice),
		AskPrice:  parseDecimal(ticker.AskPrice),
		LastPrice: parseDecimal(ticker.BidPrice).Add(parseDecimal(ticker.AskPrice)).Div(decimalTwo),
	}, nil
}

func (c *spotClient) exchangeInfo(ctx context.Context, symbol string) (core.TradingRules, error) {
	info, err := c.bc.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return core.TradingRules{}, err
	}
	if len(info.Symbols) == 0 {
		return core.TradingRules{}, apperrors.ErrInvalidSymbol
	}
	return rulesFromSymbolInfo(info.Symbols[0]), nil
}

func (c *spotClient) createOrder(ctx context.Context, req core.PlaceOrderRequest) (core.Order, error) {
	side := binance.SideTypeBuy
	if req.Side == core.SideSell {
		side = binance.SideTypeSell
	}
	svc := c.bc.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(req.Quantity.String()).
		Price(req.Price.String())
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return core.Order{}, err
	}
	return orderFromCreateResponse(resp), nil
}

func (c *spotClient) cancelOrder(ctx context.Context, symbol, orderID string) error {
	id, _ := strconv.ParseInt(orderID, 10, 64)
	_, err := c.bc.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	return err
}

func (c *spotClient) getOrder(ctx context.Context, symbol, orderID string) (core.Order, error) {
	id, _ := strconv.ParseInt(orderID, 10, 64)
	resp, err := c.bc.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return core.Order{}, err
	}
	return orderFromQueryResponse(resp), nil
}

func (c *spotClient) openOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	resp, err := c.bc.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Order, 0, len(resp))
	for _, o := range resp {
		out = append(out, orderFromQueryResponse(o))
	}
	return out, nil
}
