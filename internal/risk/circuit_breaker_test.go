package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCircuitBreaker_ConsecutiveLoss(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", CircuitConfig{MaxConsecutiveLosses: 3})

	if cb.IsTripped() {
		t.Error("circuit breaker should not be tripped initially")
	}

	cb.RecordTrade(decimal.NewFromFloat(-10.0))
	if cb.IsTripped() {
		t.Error("circuit breaker should not trip after 1 loss")
	}

	cb.RecordTrade(decimal.NewFromFloat(5.0))
	if cb.consecutiveLosses != 0 {
		t.Errorf("consecutive losses should reset after a win, got %d", cb.consecutiveLosses)
	}

	cb.RecordTrade(decimal.NewFromFloat(-5.0))
	cb.RecordTrade(decimal.NewFromFloat(-5.0))
	cb.RecordTrade(decimal.NewFromFloat(-5.0))

	if !cb.IsTripped() {
		t.Error("circuit breaker should trip after 3 consecutive losses")
	}
}

func TestCircuitBreaker_Drawdown(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", CircuitConfig{MaxDrawdownAmount: decimal.NewFromInt(100)})

	cb.RecordTrade(decimal.NewFromInt(-150))

	if !cb.IsTripped() {
		t.Error("circuit breaker should trip after exceeding max drawdown amount")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", CircuitConfig{MaxConsecutiveLosses: 1})

	cb.RecordTrade(decimal.NewFromInt(-10))
	if !cb.IsTripped() {
		t.Fatal("should be tripped")
	}

	cb.Reset()
	if cb.IsTripped() {
		t.Error("should not be tripped after reset")
	}
	if cb.consecutiveLosses != 0 {
		t.Error("consecutive losses should be 0 after reset")
	}
}

func TestCircuitBreaker_StaysOpenWithoutCooldownConfigured(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", CircuitConfig{MaxConsecutiveLosses: 1})
	cb.RecordTrade(decimal.NewFromInt(-10))
	if !cb.IsTripped() {
		t.Error("breaker with no cooldown period configured should require a manual reset")
	}
}

func TestCircuitBreaker_AutoResetAfterCooldownElapses(t *testing.T) {
	cb := NewCircuitBreaker("BTCUSDT", CircuitConfig{MaxConsecutiveLosses: 1, CooldownPeriod: time.Millisecond})
	cb.RecordTrade(decimal.NewFromInt(-10))
	time.Sleep(5 * time.Millisecond)
	if cb.IsTripped() {
		t.Error("breaker should auto-reset once its cooldown period has elapsed")
	}
}
