package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwarden/internal/config"
	"gridwarden/internal/coordinator"
	"gridwarden/internal/notify"
	"gridwarden/internal/tradesink"
	"gridwarden/pkg/logging"
)

// TestBuildStrategyRunnerWiresMockExchange exercises the full dependency
// graph buildStrategyRunner assembles, using the mock exchange so it runs
// offline with no Redis/network dependency, mirroring the teacher's
// cmd/exchange_connector credential tests' offline-first posture.
func TestBuildStrategyRunnerWiresMockExchange(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	sink, err := tradesink.Open(t.TempDir() + "/trades.db")
	require.NoError(t, err)
	defer sink.Close()

	notifier := notify.NewManager(logger)
	coord := coordinator.New(nil, nil, cfg.App.WorkerID, 0, logger)

	r, shutdown, err := buildStrategyRunner(context.Background(), cfg, cfg.Strategies[0], coord, sink, notifier, "test-host", logger)
	require.NoError(t, err)
	assert.NotNil(t, r)
	assert.Equal(t, cfg.Strategies[0].ID, r.strategyID)
	assert.NotEmpty(t, r.taskID)
	assert.NotNil(t, shutdown, "shutdown hook should at least stop the batch worker pool")
}

func TestBuildStrategyRunnerRejectsUnknownExchange(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Strategies[0].Exchange = "does-not-exist"
	sink, err := tradesink.Open(t.TempDir() + "/trades.db")
	require.NoError(t, err)
	defer sink.Close()

	notifier := notify.NewManager(logger)
	coord := coordinator.New(nil, nil, cfg.App.WorkerID, 0, logger)

	_, _, err = buildStrategyRunner(context.Background(), cfg, cfg.Strategies[0], coord, sink, notifier, "test-host", logger)
	assert.Error(t, err)
}
