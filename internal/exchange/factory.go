// Package exchange provides the venue-agnostic adapter interface (C6) and
// the factory that builds a concrete adapter from configuration. Grounded
// on the teacher's internal/exchange/factory.go; the gRPC "remote" venue
// case is dropped (see DESIGN.md) since SPEC_FULL's adapters are in-process.
package exchange

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"gridwarden/internal/config"
	"gridwarden/internal/core"
	"gridwarden/internal/exchange/mock"
	"gridwarden/internal/exchange/prediction"
	"gridwarden/internal/exchange/spot"
	"gridwarden/pkg/concurrency"
)

// New builds the IExchange adapter configured for exchangeName.
func New(exchangeName string, cfg *config.Config, logger core.ILogger, pool *concurrency.WorkerPool) (core.IExchange, error) {
	exCfg, exists := cfg.Exchanges[exchangeName]
	if !exists {
		return nil, fmt.Errorf("configuration not found for exchange: %s", exchangeName)
	}

	switch strings.ToLower(exCfg.Kind) {
	case "binance_spot", "binance_futures":
		return spot.NewAdapter(exchangeName, &exCfg, logger, pool)
	case "polymarket":
		return prediction.NewAdapter(exchangeName, &exCfg, logger, pool)
	case "mock":
		adapter := mock.NewAdapter(exchangeName)
		adapter.SetFeeRate(decimal.NewFromFloat(exCfg.FeeRate))
		return adapter, nil
	default:
		return nil, fmt.Errorf("unsupported exchange kind: %s", exCfg.Kind)
	}
}
