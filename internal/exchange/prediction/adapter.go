// Package prediction implements the core.IExchange adapter for Polymarket-
// style prediction markets with ephemeral per-period contracts (spec.md
// §4.4 C9). Grounded on the Polymarket pack repos' period/outcome handling
// (0xtitan6-polymarket-mm, AlejandroRuiz99-polybot) for slug construction
// and the teacher's stream-manager reconnect/backoff shape for the
// rollover-driven resubscription, per SPEC_FULL §4.11-§4.13.
package prediction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridwarden/internal/config"
	"gridwarden/internal/core"
	"gridwarden/pkg/apperrors"
	"gridwarden/pkg/concurrency"
	"gridwarden/pkg/retry"
)

// polygonChainID is the chain Polymarket's CTF exchange contracts are
// deployed on.
const polygonChainID = 137

// RolloverState is the Active/ClosingSoon/Switching state machine spec.md
// §4.4 defines for ephemeral per-period contracts.
type RolloverState string

const (
	StateActive      RolloverState = "active"
	StateClosingSoon RolloverState = "closing_soon"
	StateSwitching   RolloverState = "switching"
)

// Period is a supported contract granularity, each with its own default
// close buffer per spec.md §4.4.
type Period struct {
	Duration    time.Duration
	CloseBuffer time.Duration
}

var (
	Period5m  = Period{Duration: 5 * time.Minute, CloseBuffer: 60 * time.Second}
	Period15m = Period{Duration: 15 * time.Minute, CloseBuffer: 0}
	Period1h  = Period{Duration: time.Hour, CloseBuffer: 60 * time.Second}
	Period1d  = Period{Duration: 24 * time.Hour, CloseBuffer: 30 * time.Minute}
)

// marketsAPI is the slug-resolution and order-book surface this adapter
// needs from the venue; a thin interface so tests can fake the network.
type marketsAPI interface {
	resolveSlugToken(ctx context.Context, slug string) (tokenID string, err error)
	ticker(ctx context.Context, tokenID string) (core.OrderBookTicker, error)
	placeOrder(ctx context.Context, tokenID string, req core.PlaceOrderRequest, signer *orderSigner) (core.Order, error)
	cancelOrder(ctx context.Context, tokenID, orderID string) error
	getOrder(ctx context.Context, tokenID, orderID string) (core.Order, error)
	openOrders(ctx context.Context, tokenID string) ([]core.Order, error)
}

// Adapter implements core.IExchange for one "<asset>-<Outcome>" symbol,
// tracking the active contract token and rolling it over as periods close.
type Adapter struct {
	venue  string
	asset  string
	period Period

	api     marketsAPI
	signer  *orderSigner
	logger  core.ILogger
	pool    *concurrency.WorkerPool
	feeRate decimal.Decimal

	mu             sync.RWMutex
	state          RolloverState
	activeToken    string
	periodStart    time.Time
	onMarketSwitch func()

	rolloverRetryDelay time.Duration
}

// NewAdapter builds the order signer and markets API client for
// exchangeName, with the period fixed at Period5m and the state Active. It
// does not parse a symbol or resolve a contract token: SetAsset does both,
// and until it runs the adapter has no asset and no active token.
// The constructor signature matches internal/exchange/factory.go's call
// site for every venue kind.
func NewAdapter(exchangeName string, cfg *config.ExchangeConfig, logger core.ILogger, pool *concurrency.WorkerPool) (core.IExchange, error) {
	privKey := cfg.SecretKey.Reveal()
	if privKey == "" {
		return nil, fmt.Errorf("prediction adapter %s: secret_key (EIP-712 signing key) required", exchangeName)
	}
	signer, err := newOrderSigner(strings.TrimPrefix(privKey, "0x"), polygonChainID)
	if err != nil {
		return nil, fmt.Errorf("prediction adapter %s: %w", exchangeName, err)
	}

	a := &Adapter{
		venue:              exchangeName,
		period:             Period5m,
		api:                newHTTPMarketsAPI(cfg.BaseURL),
		signer:             signer,
		logger:             logger.WithContext("", "prediction", exchangeName),
		pool:               pool,
		state:              StateActive,
		rolloverRetryDelay: 2 * time.Second,
		feeRate:            decimal.NewFromFloat(cfg.FeeRate),
	}
	return a, nil
}

func (a *Adapter) Venue() string { return a.venue }

// GetFeeRate returns the venue fee rate configured for this market
// (internal/config.ExchangeConfig.FeeRate); Polymarket's CTF exchange
// charges no per-order fee beyond this configured schedule.
func (a *Adapter) GetFeeRate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return a.feeRate, nil
}

// SetAsset configures which "<asset>-<Outcome>" symbol this adapter tracks
// and resolves its first contract token; split from the constructor so
// tests can inject a fake marketsAPI before the first resolve.
func (a *Adapter) SetAsset(ctx context.Context, symbol string) error {
	asset, _, err := ParseSymbol(symbol)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.asset = asset
	a.periodStart = alignPeriodStart(time.Now().UTC(), a.period.Duration)
	a.mu.Unlock()

	token, err := a.resolveSlug(ctx, a.periodStart)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.activeToken = token
	a.mu.Unlock()
	return nil
}

// ParseSymbol splits "<asset>-<Outcome>" into its asset and outcome parts.
func ParseSymbol(symbol string) (asset, outcome string, err error) {
	parts := strings.SplitN(symbol, "-", 2)
	if len(parts) != 2 || (parts[1] != "Up" && parts[1] != "Down") {
		return "", "", fmt.Errorf("%w: invalid prediction symbol %q, want <asset>-Up|Down", apperrors.ErrInvalidSymbol, symbol)
	}
	return parts[0], parts[1], nil
}

// slug builds the canonical period-slug the venue's markets API expects,
// combining the asset with the aligned period-start timestamp.
func slug(asset string, periodStart time.Time, period Period) string {
	return fmt.Sprintf("%s-%d-%s", strings.ToLower(asset), periodStart.Unix(), periodLabel(period))
}

func periodLabel(p Period) string {
	switch p.Duration {
	case 5 * time.Minute:
		return "5m"
	case 15 * time.Minute:
		return "15m"
	case time.Hour:
		return "1h"
	case 24 * time.Hour:
		return "1d"
	default:
		return p.Duration.String()
	}
}

// alignPeriodStart floors now to the most recent period boundary. Daily
// products align to the eastern trading day per spec.md §4.4; everything
// else aligns to plain UTC period granularity.
func alignPeriodStart(now time.Time, period time.Duration) time.Time {
	if period == 24*time.Hour {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
		et := now.In(loc)
		return time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, loc).UTC()
	}
	return now.Truncate(period)
}

func (a *Adapter) resolveSlug(ctx context.Context, periodStart time.Time) (string, error) {
	a.mu.RLock()
	asset := a.asset
	a.mu.RUnlock()
	s := slug(asset, periodStart, a.period)
	return a.api.resolveSlugToken(ctx, s)
}

// Rollover runs the ClosingSoon handling spec.md §4.4 specifies: cancel
// opening orders, liquidate held positions, resolve the next slug with up
// to 6 retries spaced 2s apart, and on exhaustion fall back to re-resolving
// the current period (in case it just began). Callers hold no lock. a.mu,
// the adapter's general mutex, is held only around individual field reads
// and writes, not across the whole rollover, so concurrent Rollover calls
// are not serialized against each other.
func (a *Adapter) Rollover(ctx context.Context, cancelOpeningOrders func(ctx context.Context, tokenID string) error, liquidatePositions func(ctx context.Context, tokenID string) error) error {
	a.mu.Lock()
	a.state = StateClosingSoon
	currentToken := a.activeToken
	a.mu.Unlock()

	if err := cancelOpeningOrders(ctx, currentToken); err != nil {
		a.logger.Warn("rollover: cancel opening orders failed", core.F("error", err.Error()))
	}
	if err := liquidatePositions(ctx, currentToken); err != nil {
		a.logger.Warn("rollover: liquidate positions failed", core.F("error", err.Error()))
	}

	a.mu.Lock()
	a.state = StateSwitching
	nextStart := a.periodStart.Add(a.period.Duration)
	a.mu.Unlock()

	var nextToken string
	var resolveErr error
	for attempt := 0; attempt < 6; attempt++ {
		nextToken, resolveErr = a.resolveSlug(ctx, nextStart)
		if resolveErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.rolloverRetryDelayOrDefault()):
		}
	}

	if resolveErr != nil {
		a.logger.Warn("rollover: next-period resolve exhausted retries, re-resolving current period",
			core.F("error", resolveErr.Error()))
		curToken, curErr := a.resolveSlug(ctx, a.currentPeriodStart())
		if curErr != nil {
			a.mu.Lock()
			a.state = StateActive
			a.mu.Unlock()
			return fmt.Errorf("%w: %v", apperrors.ErrRolloverFailed, curErr)
		}
		a.mu.Lock()
		a.activeToken = curToken
		a.state = StateActive
		a.mu.Unlock()
		a.fireOnMarketSwitch()
		return nil
	}

	a.mu.Lock()
	a.activeToken = nextToken
	a.periodStart = nextStart
	a.state = StateActive
	a.mu.Unlock()
	a.fireOnMarketSwitch()
	return nil
}

func (a *Adapter) rolloverRetryDelayOrDefault() time.Duration {
	if a.rolloverRetryDelay > 0 {
		return a.rolloverRetryDelay
	}
	return 2 * time.Second
}

func (a *Adapter) currentPeriodStart() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.periodStart
}

// OnMarketSwitch registers a callback that Rollover fires after a
// successful (or current-period-fallback) swap, e.g. to clear pending-order
// maps and the position tracker for the new market.
func (a *Adapter) OnMarketSwitch(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onMarketSwitch = fn
}

func (a *Adapter) fireOnMarketSwitch() {
	a.mu.RLock()
	fn := a.onMarketSwitch
	a.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SecondsUntilClose reports how long remains in the active period;
// ShouldEnterClosingSoon compares it against the period's close buffer.
func (a *Adapter) SecondsUntilClose() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	closeAt := a.periodStart.Add(a.period.Duration)
	return time.Until(closeAt)
}

// ShouldEnterClosingSoon reports whether secondsUntilClose has crossed the
// period's close buffer.
func (a *Adapter) ShouldEnterClosingSoon() bool {
	return a.SecondsUntilClose() <= a.period.CloseBuffer
}

func (a *Adapter) token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeToken
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (core.OrderBookTicker, error) {
	var t core.OrderBookTicker
	err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		var err error
		t, err = a.api.ticker(ctx, a.token())
		return err
	})
	return t, err
}

// GetTradingRules returns the fixed $0.01 tick / 1-share step rules
// Polymarket-style binary-outcome markets use; there is no per-symbol
// precision discovery endpoint like a spot exchange offers.
func (a *Adapter) GetTradingRules(ctx context.Context, symbol string) (core.TradingRules, error) {
	return core.TradingRules{
		Symbol: symbol, TickSize: decimal.NewFromFloat(0.01), StepSize: decimal.NewFromInt(1),
		MinQuantity: decimal.NewFromInt(1), MinNotional: decimal.NewFromFloat(1),
	}, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, req core.PlaceOrderRequest) (core.Order, error) {
	a.mu.RLock()
	state := a.state
	a.mu.RUnlock()
	if state == StateClosingSoon && req.Side == core.SideBuy {
		return core.Order{}, fmt.Errorf("%w: opening orders rejected while closing soon", apperrors.ErrOrderRejected)
	}

	var o core.Order
	err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		var err error
		o, err = a.api.placeOrder(ctx, a.token(), req, a.signer)
		return err
	})
	return o, err
}

func (a *Adapter) PlaceOrdersBatch(ctx context.Context, reqs []core.PlaceOrderRequest) ([]core.Order, error) {
	out := make([]core.Order, 0, len(reqs))
	for _, r := range reqs {
		o, err := a.PlaceOrder(ctx, r)
		if err != nil {
			return out, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	return retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		return a.api.cancelOrder(ctx, a.token(), exchangeOrderID)
	})
}

func (a *Adapter) CancelOrdersBatch(ctx context.Context, symbol string, exchangeOrderIDs []string) error {
	for _, id := range exchangeOrderIDs {
		if err := a.CancelOrder(ctx, symbol, id); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) EditOrder(ctx context.Context, symbol, exchangeOrderID string, newPrice, newQty decimal.Decimal) (core.Order, error) {
	existing, err := a.GetOrder(ctx, symbol, exchangeOrderID)
	if err != nil {
		return core.Order{}, err
	}
	if err := a.CancelOrder(ctx, symbol, exchangeOrderID); err != nil {
		return core.Order{}, err
	}
	return a.PlaceOrder(ctx, core.PlaceOrderRequest{Symbol: symbol, Side: existing.Side, Price: newPrice, Quantity: newQty})
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (core.Order, error) {
	var o core.Order
	err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		var err error
		o, err = a.api.getOrder(ctx, a.token(), exchangeOrderID)
		return err
	})
	return o, err
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	var orders []core.Order
	err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		var err error
		orders, err = a.api.openOrders(ctx, a.token())
		return err
	})
	return orders, err
}

func (a *Adapter) Close(ctx context.Context) error { return nil }

var _ core.IExchange = (*Adapter)(nil)
