// Package telemetry wires the process-internal Prometheus/OTel metrics
// pipeline (trace/log exporters dropped — see DESIGN.md). Every instrument
// below is registered, but only two are updated in this module: the
// risk_triggered gauge (risk governor) and the circuit_breaker_open gauge
// (circuit breaker). Grounded on the teacher's pkg/telemetry/metrics.go.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names, namespaced to the engine rather than the teacher's
// market-making vocabulary.
const (
	MetricPnLRealizedTotal   = "gridwarden_pnl_realized_total"
	MetricPnLUnrealized      = "gridwarden_pnl_unrealized"
	MetricOrdersActive       = "gridwarden_orders_active"
	MetricOrdersPlacedTotal  = "gridwarden_orders_placed_total"
	MetricOrdersFilledTotal  = "gridwarden_orders_filled_total"
	MetricPositionSize       = "gridwarden_position_size"
	MetricLatencyExchange    = "gridwarden_latency_exchange_ms"
	MetricRiskTriggered      = "gridwarden_risk_triggered"
	MetricCircuitBreakerOpen = "gridwarden_circuit_breaker_open"
)

// MetricsHolder holds initialized instruments, keyed by strategy symbol for
// the observable gauges.
type MetricsHolder struct {
	PnLRealizedTotal  metric.Float64Counter
	PnLUnrealized     metric.Float64ObservableGauge
	OrdersActive      metric.Int64ObservableGauge
	OrdersPlacedTotal metric.Int64Counter
	OrdersFilledTotal metric.Int64Counter
	PositionSize      metric.Float64ObservableGauge
	LatencyExchange   metric.Float64Histogram
	RiskTriggered     metric.Int64ObservableGauge
	CircuitOpen       metric.Int64ObservableGauge

	mu               sync.RWMutex
	unrealizedPnLMap map[string]float64
	activeOrdersMap  map[string]int64
	positionSizeMap  map[string]float64
	riskTriggeredMap map[string]int64
	cbOpenMap        map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			unrealizedPnLMap: make(map[string]float64),
			activeOrdersMap:  make(map[string]int64),
			positionSizeMap:  make(map[string]float64),
			riskTriggeredMap: make(map[string]int64),
			cbOpenMap:        make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes all instruments against the given meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("cumulative realized profit/loss")); err != nil {
		return err
	}
	if m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("total orders placed")); err != nil {
		return err
	}
	if m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("total orders filled")); err != nil {
		return err
	}
	if m.LatencyExchange, err = meter.Float64Histogram(MetricLatencyExchange, metric.WithDescription("latency of exchange adapter calls"), metric.WithUnit("ms")); err != nil {
		return err
	}

	if m.PnLUnrealized, err = meter.Float64ObservableGauge(MetricPnLUnrealized, metric.WithDescription("current unrealized pnl"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, v := range m.unrealizedPnLMap {
				obs.Observe(v, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.OrdersActive, err = meter.Int64ObservableGauge(MetricOrdersActive, metric.WithDescription("currently open orders"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, v := range m.activeOrdersMap {
				obs.Observe(v, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.PositionSize, err = meter.Float64ObservableGauge(MetricPositionSize, metric.WithDescription("current position size"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, v := range m.positionSizeMap {
				obs.Observe(v, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.RiskTriggered, err = meter.Int64ObservableGauge(MetricRiskTriggered, metric.WithDescription("risk governor triggered state"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, v := range m.riskTriggeredMap {
				obs.Observe(v, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.CircuitOpen, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen, metric.WithDescription("circuit breaker open state"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, v := range m.cbOpenMap {
				obs.Observe(v, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		})); err != nil {
		return err
	}

	return nil
}

func (m *MetricsHolder) SetRiskTriggered(symbol string, triggered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riskTriggeredMap[symbol] = boolToInt64(triggered)
}

func (m *MetricsHolder) SetCircuitBreakerOpen(symbol string, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbOpenMap[symbol] = boolToInt64(open)
}

func (m *MetricsHolder) SetUnrealizedPnL(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnLMap[symbol] = value
}

func (m *MetricsHolder) SetActiveOrders(symbol string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeOrdersMap[symbol] = count
}

func (m *MetricsHolder) SetPositionSize(symbol string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionSizeMap[symbol] = size
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
