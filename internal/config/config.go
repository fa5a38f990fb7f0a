// Package config handles configuration management with validation, grounded
// on the teacher's internal/config/config.go (YAML + env-var expansion +
// hand-rolled validation), extended with the per-strategy grid/risk/timing
// sections and coordinator/trade-sink/notify sections SPEC_FULL §A adds.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete worker configuration loaded from YAML.
type Config struct {
	App         AppConfig                 `yaml:"app"`
	Exchanges   map[string]ExchangeConfig `yaml:"exchanges"`
	Strategies  []StrategyConfig          `yaml:"strategies"`
	System      SystemConfig              `yaml:"system"`
	Coordinator CoordinatorConfig         `yaml:"coordinator"`
	TradeSink   TradeSinkConfig           `yaml:"trade_sink"`
	Notify      NotifyConfig              `yaml:"notify"`
	Timing      TimingConfig              `yaml:"timing"`
	Concurrency ConcurrencyConfig         `yaml:"concurrency"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
}

// AppConfig contains process-level settings.
type AppConfig struct {
	WorkerID    string `yaml:"worker_id" validate:"required"`
	EngineType  string `yaml:"engine_type" validate:"required,oneof=goroutine dbos"`
	DatabaseURL string `yaml:"database_url"` // required when engine_type is "dbos"
}

// ExchangeConfig contains venue credentials and fee schedule. APIKey and
// SecretKey are Secret so they redact themselves in logs and String().
type ExchangeConfig struct {
	Kind       string  `yaml:"kind" validate:"required,oneof=binance_spot binance_futures polymarket mock"`
	APIKey     Secret  `yaml:"api_key"`
	SecretKey  Secret  `yaml:"secret_key"`
	Passphrase Secret  `yaml:"passphrase"`
	BaseURL    string  `yaml:"base_url"`
	FeeRate    float64 `yaml:"fee_rate" validate:"min=0,max=1"`
}

// StrategyConfig is one per-strategy grid configuration (spec.md §3).
type StrategyConfig struct {
	ID                string     `yaml:"id" validate:"required"`
	Symbol            string     `yaml:"symbol" validate:"required"`
	Exchange          string     `yaml:"exchange" validate:"required"`
	IsNeutral         bool       `yaml:"is_neutral"`
	GridLevels        int        `yaml:"grid_levels" validate:"required,min=1,max=200"`
	OrderQuantity     float64    `yaml:"order_quantity" validate:"required,min=0.00001"`
	OffsetPercent     float64    `yaml:"offset_percent" validate:"required,min=0,max=1"`
	SellOffsetPercent float64    `yaml:"sell_offset_percent" validate:"required,min=0,max=1"`
	RepriceThreshold  float64    `yaml:"reprice_threshold" validate:"min=0,max=1"`
	ReconcileInterval int        `yaml:"reconcile_interval" validate:"required,min=1,max=3600"`
	MissingThreshold  int        `yaml:"missing_threshold" validate:"required,min=1,max=100"`
	TickInterval      int        `yaml:"tick_interval_seconds" validate:"required,min=1,max=300"`
	Risk              RiskConfig `yaml:"risk"`
}

// RiskConfig configures a strategy's risk.Governor. Field-for-field with
// original_source/shared/domain/risk_manager.py's RiskConfig dataclass
// (stop_loss_percent/stop_loss_delay_seconds/max_loss_count/
// loss_window_seconds/cooldown_seconds/max_position_count/max_daily_loss);
// a zero value for an optional field disables that check, matching the
// Python dataclass's Optional[...] = None defaults.
type RiskConfig struct {
	StopLossPercent   float64 `yaml:"stop_loss_percent"`
	StopLossDelaySecs int     `yaml:"stop_loss_delay_seconds"`
	MaxLossCount      int     `yaml:"max_loss_count"`
	LossWindowSecs    int     `yaml:"loss_window_seconds"`
	CooldownSecs      int     `yaml:"cooldown_seconds"`
	MaxPositionCount  int     `yaml:"max_position_count"`
	MaxDailyLoss      float64 `yaml:"max_daily_loss"`

	// Breaker configures the independent drawdown/consecutive-loss circuit
	// breaker composed alongside the governor (internal/risk.CircuitBreaker).
	// Zero-value fields disable the corresponding trip condition.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures a strategy's risk.CircuitBreaker.
type BreakerConfig struct {
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	MaxDrawdownAmount    float64 `yaml:"max_drawdown_amount"`
	CooldownSecs         int     `yaml:"cooldown_seconds"`
}

// SystemConfig contains process-wide system settings.
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
}

// CoordinatorConfig configures the distributed runtime coordinator (C12).
type CoordinatorConfig struct {
	RedisAddr   string `yaml:"redis_addr" validate:"required"`
	RedisDB     int    `yaml:"redis_db"`
	LockTTLSecs int    `yaml:"lock_ttl_seconds" validate:"required,min=1"`
}

// TradeSinkConfig configures the embedded trade sink (C5).
type TradeSinkConfig struct {
	DataDir string `yaml:"data_dir" validate:"required"`
}

// NotifyConfig configures the notification demonstrator channels.
type NotifyConfig struct {
	TelegramBotToken Secret `yaml:"telegram_bot_token"`
	TelegramChatID   int64  `yaml:"telegram_chat_id"`
	RateLimitWindow  int    `yaml:"rate_limit_window_seconds" validate:"min=1"`
}

// TimingConfig contains timing-related settings shared across strategies.
type TimingConfig struct {
	WebsocketReconnectDelay int `yaml:"websocket_reconnect_delay" validate:"min=1,max=300"`
	WebsocketPongWait       int `yaml:"websocket_pong_wait" validate:"min=1,max=300"`
	WebsocketPingInterval   int `yaml:"websocket_ping_interval" validate:"min=1,max=300"`
	OrderRetryDelay         int `yaml:"order_retry_delay" validate:"min=1,max=10000"`
	StatusPublishInterval   int `yaml:"status_publish_interval" validate:"min=1,max=60"`
}

// ConcurrencyConfig contains worker-pool sizing.
type ConcurrencyConfig struct {
	BatchPoolSize   int `yaml:"batch_pool_size" validate:"min=1,max=100"`
	BatchPoolBuffer int `yaml:"batch_pool_buffer" validate:"min=1,max=10000"`
}

// TelemetryConfig contains metrics exporter settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads and validates configuration from a YAML file, expanding
// ${VAR} environment references before parsing.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs comprehensive validation across every section.
func (c *Config) Validate() error {
	var errs []string

	validators := []func() error{
		c.validateApp,
		c.validateExchanges,
		c.validateStrategies,
		c.validateSystem,
		c.validateCoordinator,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateApp() error {
	if c.App.WorkerID == "" {
		return ValidationError{Field: "app.worker_id", Message: "worker id is required"}
	}
	if c.App.EngineType == "dbos" && c.App.DatabaseURL == "" {
		return ValidationError{Field: "app.database_url", Message: "database_url is required when engine_type is 'dbos'"}
	}
	return nil
}

func (c *Config) validateExchanges() error {
	if len(c.Exchanges) == 0 {
		return ValidationError{Field: "exchanges", Message: "at least one exchange must be configured"}
	}
	for name, ex := range c.Exchanges {
		if ex.Kind == "mock" {
			continue
		}
		if ex.APIKey == "" {
			return ValidationError{Field: fmt.Sprintf("exchanges.%s.api_key", name), Message: "api key is required"}
		}
	}
	return nil
}

func (c *Config) validateStrategies() error {
	if len(c.Strategies) == 0 {
		return ValidationError{Field: "strategies", Message: "at least one strategy must be configured"}
	}
	seen := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if seen[s.ID] {
			return ValidationError{Field: "strategies", Value: s.ID, Message: "duplicate strategy id"}
		}
		seen[s.ID] = true
		if _, ok := c.Exchanges[s.Exchange]; !ok {
			return ValidationError{Field: fmt.Sprintf("strategies[%s].exchange", s.ID), Value: s.Exchange, Message: "no matching exchange configuration"}
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	valid := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(valid, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{Field: "system.log_level", Value: c.System.LogLevel, Message: "must be one of: " + strings.Join(valid, ", ")}
	}
	return nil
}

func (c *Config) validateCoordinator() error {
	if c.Coordinator.RedisAddr == "" {
		return ValidationError{Field: "coordinator.redis_addr", Message: "redis address is required"}
	}
	return nil
}

// String renders the config as YAML with secrets masked (Secret implements
// yaml.Marshaler).
func (c *Config) String() string {
	cp := *c
	data, _ := yaml.Marshal(cp)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a configuration suitable for local tests.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{WorkerID: "worker-local", EngineType: "goroutine"},
		Exchanges: map[string]ExchangeConfig{
			"mock": {Kind: "mock", FeeRate: 0.0002},
		},
		Strategies: []StrategyConfig{
			{
				ID: "grid-btcusdt", Symbol: "BTCUSDT", Exchange: "mock",
				GridLevels: 10, OrderQuantity: 0.001, OffsetPercent: 0.005,
				SellOffsetPercent: 0.01, RepriceThreshold: 0.02,
				ReconcileInterval: 60, MissingThreshold: 2, TickInterval: 5,
				Risk: RiskConfig{
					MaxLossCount: 3, LossWindowSecs: 300,
					CooldownSecs: 3600, MaxPositionCount: 10,
				},
			},
		},
		System:      SystemConfig{LogLevel: "INFO", CancelOnExit: true},
		Coordinator: CoordinatorConfig{RedisAddr: "localhost:6379", LockTTLSecs: 86400},
		TradeSink:   TradeSinkConfig{DataDir: "./data"},
		Timing: TimingConfig{
			WebsocketReconnectDelay: 5, WebsocketPongWait: 60,
			WebsocketPingInterval: 20, OrderRetryDelay: 1000,
			StatusPublishInterval: 5,
		},
		Concurrency: ConcurrencyConfig{BatchPoolSize: 8, BatchPoolBuffer: 100},
		Telemetry:   TelemetryConfig{MetricsPort: 9090, EnableMetrics: true},
	}
}
