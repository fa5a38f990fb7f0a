package gridengine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config is one strategy instance's tick-loop timing and sizing, derived
// from internal/config.StrategyConfig.
type Config struct {
	StrategyID            string
	Symbol                string
	Venue                 string
	TickInterval          time.Duration
	ReconcileInterval     time.Duration
	StatusPublishInterval time.Duration
	StopLossSlippage      decimal.Decimal // fraction below/above mark a stop-loss order is quoted at
}

// DefaultStopLossSlippage mirrors the Python original's hardcoded
// current_price * 0.999 stop-sell quote (original_source/worker/engine/
// trading_engine.py's _execute_stop_loss).
var DefaultStopLossSlippage = decimal.NewFromFloat(0.001)
