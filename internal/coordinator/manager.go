package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gridwarden/internal/core"
)

// RunnableEngine is the subset of gridengine.Engine the manager needs to
// start and stop a strategy instance without importing the engine package
// (avoiding an import cycle back into coordinator).
type RunnableEngine interface {
	Run(ctx context.Context) error
}

type runningEngine struct {
	cancel context.CancelFunc
	done   chan error
}

// Manager is a worker process's local registry of running strategy
// engines, grounded on original_source/engine/engine_manager.py's
// EngineManager (start_strategy/stop_strategy/stop_all), adapted from a
// thread-pool-of-futures shape to goroutines-plus-cancellable-contexts.
type Manager struct {
	mu      sync.Mutex
	running map[string]*runningEngine
	logger  core.ILogger
}

// NewManager builds an empty Manager.
func NewManager(logger core.ILogger) *Manager {
	return &Manager{running: make(map[string]*runningEngine), logger: logger.WithField("component", "coordinator_manager")}
}

// Start launches engine's Run loop for strategyID in a new goroutine. It is
// a no-op (with a warning) if strategyID is already running on this worker.
func (m *Manager) Start(ctx context.Context, strategyID string, engine RunnableEngine) {
	m.mu.Lock()
	if _, exists := m.running[strategyID]; exists {
		m.mu.Unlock()
		m.logger.Warn("strategy already running on this worker", core.F("strategy_id", strategyID))
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	re := &runningEngine{cancel: cancel, done: make(chan error, 1)}
	m.running[strategyID] = re
	m.mu.Unlock()

	go func() {
		re.done <- engine.Run(runCtx)
	}()
	m.logger.Info("strategy started", core.F("strategy_id", strategyID))
}

// Stop cancels strategyID's engine and waits up to 5 seconds for its Run
// loop to return, matching the Python original's future.result(timeout=5).
func (m *Manager) Stop(strategyID string) error {
	m.mu.Lock()
	re, ok := m.running[strategyID]
	if ok {
		delete(m.running, strategyID)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Warn("strategy not running on this worker", core.F("strategy_id", strategyID))
		return nil
	}

	re.cancel()
	select {
	case err := <-re.done:
		m.logger.Info("strategy stopped", core.F("strategy_id", strategyID))
		return err
	case <-time.After(5 * time.Second):
		m.logger.Warn("strategy stop timed out", core.F("strategy_id", strategyID))
		return fmt.Errorf("strategy %s did not stop within timeout", strategyID)
	}
}

// StopAll stops every strategy currently registered with this Manager, one
// at a time.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(id); err != nil {
			m.logger.Error("error stopping strategy during shutdown", err, core.F("strategy_id", id))
		}
	}
}

// IsRunning reports whether strategyID has an active engine on this worker.
func (m *Manager) IsRunning(strategyID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[strategyID]
	return ok
}
