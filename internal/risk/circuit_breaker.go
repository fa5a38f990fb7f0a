package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridwarden/pkg/telemetry"
)

// CircuitState is the open/closed state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
)

// CircuitConfig configures a CircuitBreaker's trip thresholds.
type CircuitConfig struct {
	MaxConsecutiveLosses int
	MaxDrawdownAmount    decimal.Decimal
	CooldownPeriod       time.Duration
}

// CircuitBreaker trips on consecutive losses or absolute drawdown and
// auto-resets after its cooldown, grounded on the teacher's
// internal/risk/circuit_breaker.go, with the protobuf status type replaced
// by a plain Status struct.
type CircuitBreaker struct {
	mu                sync.RWMutex
	symbol            string
	state             CircuitState
	config            CircuitConfig
	consecutiveLosses int
	totalPnL          decimal.Decimal
	lastTripped       time.Time
}

// NewCircuitBreaker builds a CircuitBreaker for symbol.
func NewCircuitBreaker(symbol string, config CircuitConfig) *CircuitBreaker {
	return &CircuitBreaker{symbol: symbol, state: CircuitClosed, config: config}
}

// RecordTrade updates the running consecutive-loss count and total PnL,
// tripping the breaker if a threshold is crossed.
func (cb *CircuitBreaker) RecordTrade(pnl decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if pnl.IsNegative() {
		cb.consecutiveLosses++
	} else {
		cb.consecutiveLosses = 0
	}
	cb.totalPnL = cb.totalPnL.Add(pnl)
	cb.checkThresholds()
}

func (cb *CircuitBreaker) checkThresholds() {
	if cb.state == CircuitOpen {
		return
	}
	if cb.config.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		cb.trip()
		return
	}
	if !cb.config.MaxDrawdownAmount.IsZero() && cb.totalPnL.LessThan(cb.config.MaxDrawdownAmount.Neg()) {
		cb.trip()
		return
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = CircuitOpen
	cb.lastTripped = time.Now()
	telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(cb.symbol, true)
}

// IsTripped reports whether the breaker is open, auto-resetting it if the
// cooldown period has elapsed.
func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.config.CooldownPeriod > 0 && time.Since(cb.lastTripped) > cb.config.CooldownPeriod {
			cb.resetLocked()
			return false
		}
		return true
	}
	return false
}

// Open manually trips the breaker, e.g. from an operator action.
func (cb *CircuitBreaker) Open() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trip()
}

// Reset closes the breaker and clears its accumulated state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.resetLocked()
}

func (cb *CircuitBreaker) resetLocked() {
	cb.state = CircuitClosed
	cb.consecutiveLosses = 0
	cb.totalPnL = decimal.Zero
	telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(cb.symbol, false)
}

// Status is the circuit breaker's externally-visible state.
type Status struct {
	IsOpen            bool
	ConsecutiveLosses int
	TotalPnL          decimal.Decimal
	OpenedAt          time.Time
}

// GetStatus returns the breaker's current status snapshot.
func (cb *CircuitBreaker) GetStatus() Status {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return Status{
		IsOpen:            cb.state == CircuitOpen,
		ConsecutiveLosses: cb.consecutiveLosses,
		TotalPnL:          cb.totalPnL,
		OpenedAt:          cb.lastTripped,
	}
}
