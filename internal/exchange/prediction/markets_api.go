package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gridwarden/internal/core"
	"gridwarden/pkg/apperrors"
)

// httpMarketsAPI is the real venue implementation of marketsAPI, talking to
// a Polymarket-style CLOB REST gateway. Grounded on
// 0xtitan6-polymarket-mm/internal/exchange/client.go's request shape.
type httpMarketsAPI struct {
	baseURL string
	hc      *http.Client
}

func newHTTPMarketsAPI(baseURL string) *httpMarketsAPI {
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
	}
	return &httpMarketsAPI{baseURL: strings.TrimSuffix(baseURL, "/"), hc: &http.Client{Timeout: 10 * time.Second}}
}

type slugMarketResponse struct {
	TokenID string `json:"token_id"`
}

func (h *httpMarketsAPI) resolveSlugToken(ctx context.Context, slug string) (string, error) {
	url := fmt.Sprintf("%s/markets/slug/%s", h.baseURL, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: slug %s not yet published", apperrors.ErrRolloverFailed, slug)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", apperrors.ErrNetwork, resp.StatusCode, string(body))
	}
	var parsed slugMarketResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode slug response: %w", err)
	}
	return parsed.TokenID, nil
}

type bookResponse struct {
	Bids []struct{ Price, Size string } `json:"bids"`
	Asks []struct{ Price, Size string } `json:"asks"`
}

func (h *httpMarketsAPI) ticker(ctx context.Context, tokenID string) (core.OrderBookTicker, error) {
	url := fmt.Sprintf("%s/book?token_id=%s", h.baseURL, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.OrderBookTicker{}, err
	}
	resp, err := h.hc.Do(req)
	if err != nil {
		return core.OrderBookTicker{}, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()
	var book bookResponse
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return core.OrderBookTicker{}, fmt.Errorf("decode book: %w", err)
	}
	var bid, ask decimal.Decimal
	if len(book.Bids) > 0 {
		bid, _ = decimal.NewFromString(book.Bids[0].Price)
	}
	if len(book.Asks) > 0 {
		ask, _ = decimal.NewFromString(book.Asks[0].Price)
	}
	return core.OrderBookTicker{
		Symbol: tokenID, BidPrice: bid, AskPrice: ask,
		LastPrice: bid.Add(ask).Div(decimal.NewFromInt(2)),
	}, nil
}

// placeOrder posts a signed order to the CLOB. The exact wire envelope
// (salt, signature, maker, token id) follows the CTF exchange's order
// schema; local order state is synthesized from the request since the CLOB
// confirms acceptance rather than echoing a full order object synchronously.
func (h *httpMarketsAPI) placeOrder(ctx context.Context, tokenID string, req core.PlaceOrderRequest, signer *orderSigner) (core.Order, error) {
	side := "BUY"
	if req.Side == core.SideSell {
		side = "SELL"
	}
	salt := rand.Int63()
	sig, err := signer.signOrder(tokenID, side, req.Price.String(), req.Quantity.String(), salt)
	if err != nil {
		return core.Order{}, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"tokenID":   tokenID,
		"side":      side,
		"price":     req.Price.String(),
		"size":      req.Quantity.String(),
		"salt":      salt,
		"signature": sig,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/order", strings.NewReader(string(payload)))
	if err != nil {
		return core.Order{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := h.hc.Do(httpReq)
	if err != nil {
		return core.Order{}, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return core.Order{}, mapHTTPStatus(resp.StatusCode, string(body))
	}

	var created struct {
		OrderID string `json:"orderID"`
	}
	_ = json.Unmarshal(body, &created)

	return core.Order{
		ID: created.OrderID, ExchangeID: created.OrderID, Symbol: tokenID,
		Side: req.Side, State: core.OrderPlaced, Price: req.Price, Quantity: req.Quantity,
	}, nil
}

func mapHTTPStatus(status int, body string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrAuthenticationFailed
	case http.StatusTooManyRequests:
		return apperrors.ErrRateLimitExceeded
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidOrderParameter, body)
	case http.StatusServiceUnavailable:
		return apperrors.ErrExchangeMaintenance
	default:
		return fmt.Errorf("%w: status %d: %s", apperrors.ErrNetwork, status, body)
	}
}

func (h *httpMarketsAPI) cancelOrder(ctx context.Context, tokenID, orderID string) error {
	url := fmt.Sprintf("%s/order/%s", h.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return apperrors.ErrOrderNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return mapHTTPStatus(resp.StatusCode, string(body))
	}
	return nil
}

func (h *httpMarketsAPI) getOrder(ctx context.Context, tokenID, orderID string) (core.Order, error) {
	url := fmt.Sprintf("%s/order/%s", h.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.Order{}, err
	}
	resp, err := h.hc.Do(req)
	if err != nil {
		return core.Order{}, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return core.Order{}, apperrors.ErrOrderNotFound
	}
	var o wireOrder
	if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
		return core.Order{}, fmt.Errorf("decode order: %w", err)
	}
	return o.toCore(tokenID), nil
}

func (h *httpMarketsAPI) openOrders(ctx context.Context, tokenID string) ([]core.Order, error) {
	url := fmt.Sprintf("%s/orders?token_id=%s&status=open", h.baseURL, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()
	var orders []wireOrder
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	out := make([]core.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.toCore(tokenID))
	}
	return out, nil
}

type wireOrder struct {
	OrderID      string `json:"orderID"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Status       string `json:"status"`
}

func (o wireOrder) toCore(tokenID string) core.Order {
	side := core.SideBuy
	if strings.EqualFold(o.Side, "SELL") {
		side = core.SideSell
	}
	price, _ := decimal.NewFromString(o.Price)
	qty, _ := decimal.NewFromString(o.OriginalSize)
	filled, _ := decimal.NewFromString(o.SizeMatched)

	state := core.OrderPlaced
	switch strings.ToUpper(o.Status) {
	case "MATCHED", "FILLED":
		state = core.OrderFilled
	case "PARTIALLY_FILLED":
		state = core.OrderPartiallyFilled
	case "CANCELED", "CANCELLED":
		state = core.OrderCancelled
	}

	return core.Order{
		ID: o.OrderID, ExchangeID: o.OrderID, Symbol: tokenID,
		Side: side, State: state, Price: price, Quantity: qty, FilledQty: filled,
	}
}

var _ marketsAPI = (*httpMarketsAPI)(nil)
