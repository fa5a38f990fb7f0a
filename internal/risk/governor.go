// Package risk implements the risk governor (spec.md §4.4 C4): stop-loss
// (price and time based), loss-streak cooldown over a sliding window,
// daily-loss ceiling with date-rollover reset, and a hard position-count
// ceiling, plus a circuit breaker composed alongside it. Grounded on
// original_source/shared/domain/risk_manager.py (RiskManager) for the exact
// cooldown/daily-reset semantics, generalized from float64 to decimal.Decimal.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridwarden/internal/core"
	"gridwarden/pkg/telemetry"
)

// Config configures a Governor. Zero-value optional fields (decimal.Decimal
// zero, int 0) disable that particular check, matching the Python original's
// Optional[...] fields.
type Config struct {
	StopLossPercent  decimal.Decimal // 0 disables price-based stop-loss
	StopLossDelay    time.Duration   // 0 disables time-based stop-loss
	MaxLossCount     int
	LossWindow       time.Duration
	CooldownPeriod   time.Duration
	MaxPositionCount int
	MaxDailyLoss     decimal.Decimal // zero disables the daily ceiling
}

type lossTrade struct {
	at  time.Time
	pnl decimal.Decimal
}

// Governor enforces the position-opening gate and records trade outcomes to
// drive its cooldown and daily-loss bookkeeping.
type Governor struct {
	mu             sync.Mutex
	cfg            Config
	symbol         string
	lossTrades     []lossTrade
	cooldownUntil  time.Time
	dailyLoss      decimal.Decimal
	dailyResetDate time.Time
}

// NewGovernor builds a Governor for symbol.
func NewGovernor(symbol string, cfg Config) *Governor {
	return &Governor{
		cfg:            cfg,
		symbol:         symbol,
		dailyResetDate: time.Now().Truncate(24 * time.Hour),
	}
}

// CanOpenPosition reports whether a new position may be opened, checking
// cooldown, position-count ceiling, and daily-loss ceiling in that order.
func (g *Governor) CanOpenPosition(currentCount int) core.RiskDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetDailyIfNeeded()

	if g.inCooldown() {
		remaining := time.Until(g.cooldownUntil).Round(time.Second)
		return core.RiskDecision{Allowed: false, Reason: fmt.Sprintf("in cooldown, %s remaining", remaining)}
	}

	if g.cfg.MaxPositionCount > 0 && currentCount >= g.cfg.MaxPositionCount {
		return core.RiskDecision{Allowed: false, Reason: fmt.Sprintf("position count at ceiling %d", g.cfg.MaxPositionCount)}
	}

	if !g.cfg.MaxDailyLoss.IsZero() && g.dailyLoss.GreaterThanOrEqual(g.cfg.MaxDailyLoss) {
		return core.RiskDecision{Allowed: false, Reason: fmt.Sprintf("daily loss ceiling %s reached", g.cfg.MaxDailyLoss)}
	}

	return core.RiskDecision{Allowed: true, Reason: "allowed"}
}

// ShouldStopLoss evaluates the price- and time-based stop-loss conditions
// for a single position against the current ticker.
func (g *Governor) ShouldStopLoss(position core.PositionEntry, ticker core.OrderBookTicker, nowUnix int64) (bool, string) {
	if !g.cfg.StopLossPercent.IsZero() {
		lossPct := position.EntryPrice.Sub(ticker.LastPrice).Div(position.EntryPrice).Mul(decimal.NewFromInt(100))
		if lossPct.GreaterThanOrEqual(g.cfg.StopLossPercent) {
			return true, fmt.Sprintf("price stop-loss triggered, loss %.2f%%", lossPct.InexactFloat64())
		}
	}

	if g.cfg.StopLossDelay > 0 {
		elapsed := time.Since(position.CreatedAt)
		if elapsed > g.cfg.StopLossDelay {
			return true, fmt.Sprintf("time stop-loss triggered, held %s", elapsed.Round(time.Second))
		}
	}

	return false, ""
}

// RecordFill records a trade's realized PnL, updating the sliding loss
// window, daily-loss total, and cooldown trigger.
func (g *Governor) RecordFill(realizedPnL decimal.Decimal, isLoss bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetDailyIfNeeded()

	if !isLoss && !realizedPnL.IsNegative() {
		return
	}

	g.lossTrades = append(g.lossTrades, lossTrade{at: time.Now(), pnl: realizedPnL})
	g.dailyLoss = g.dailyLoss.Add(realizedPnL.Abs())
	g.cleanOldTrades()
	g.checkCooldownTrigger()
}

func (g *Governor) inCooldown() bool {
	if g.cooldownUntil.IsZero() {
		return false
	}
	if time.Now().After(g.cooldownUntil) {
		g.cooldownUntil = time.Time{}
		return false
	}
	return true
}

func (g *Governor) cleanOldTrades() {
	if g.cfg.LossWindow <= 0 {
		return
	}
	cutoff := time.Now().Add(-g.cfg.LossWindow)
	kept := g.lossTrades[:0]
	for _, t := range g.lossTrades {
		if t.at.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.lossTrades = kept
}

func (g *Governor) checkCooldownTrigger() {
	if g.cfg.MaxLossCount > 0 && len(g.lossTrades) >= g.cfg.MaxLossCount {
		g.cooldownUntil = time.Now().Add(g.cfg.CooldownPeriod)
		g.lossTrades = nil
		telemetry.GetGlobalMetrics().SetRiskTriggered(g.symbol, true)
	}
}

func (g *Governor) resetDailyIfNeeded() {
	today := time.Now().Truncate(24 * time.Hour)
	if today.After(g.dailyResetDate) {
		g.dailyLoss = decimal.Zero
		g.dailyResetDate = today
	}
}

// CircuitOpen reports whether the governor's sliding-window cooldown is
// currently active, used as the risk_triggered telemetry gauge's source.
func (g *Governor) CircuitOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	open := g.inCooldown()
	telemetry.GetGlobalMetrics().SetRiskTriggered(g.symbol, open)
	return open
}

// Reset clears cooldown, loss window, and daily-loss state.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lossTrades = nil
	g.cooldownUntil = time.Time{}
	g.dailyLoss = decimal.Zero
	telemetry.GetGlobalMetrics().SetRiskTriggered(g.symbol, false)
}

var _ core.IRiskGovernor = (*Governor)(nil)
