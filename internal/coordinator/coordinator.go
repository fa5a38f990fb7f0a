package coordinator

import (
	"context"
	"fmt"
	"time"

	"gridwarden/internal/core"
	"gridwarden/pkg/apperrors"
)

// Coordinator runs the lock-acquire -> write-running-state -> run-engine ->
// release dispatch contract (spec.md §4.5) for one strategy at a time on
// this worker. The heartbeat loop refreshes the lock's TTL and polls the
// running-state hash for a cooperative "stopping" flag another process may
// have set (the start<->stop RPC contract), canceling the engine's context
// when it sees one.
type Coordinator struct {
	lock     *RedisLock
	store    *StateStore
	workerID string
	lockTTL  time.Duration
	logger   core.ILogger
}

// New builds a Coordinator. lockTTL should exceed the heartbeat interval by
// a wide margin (spec.md §4.5 default: 24h TTL, refreshed far more often).
func New(lock *RedisLock, store *StateStore, workerID string, lockTTL time.Duration, logger core.ILogger) *Coordinator {
	return &Coordinator{
		lock: lock, store: store, workerID: workerID, lockTTL: lockTTL,
		logger: logger.WithField("component", "coordinator"),
	}
}

// Dispatch acquires strategyID's distributed lock, writes the running-state
// hash, runs engine to completion (or until ctx is cancelled or another
// process flips the stopping flag), then clears the hash and releases the
// lock. Returns apperrors.ErrLockContention if another worker already holds
// the lock.
func (c *Coordinator) Dispatch(ctx context.Context, strategyID, taskID, hostname string, engine RunnableEngine) error {
	acquired, err := c.lock.TryAcquire(ctx, strategyID, int64(c.lockTTL.Seconds()))
	if err != nil {
		return fmt.Errorf("lock acquire failed: %w", err)
	}
	if !acquired {
		return apperrors.ErrLockContention
	}
	defer func() {
		if err := c.lock.Release(context.Background(), strategyID); err != nil {
			c.logger.Error("failed to release strategy lock", err, core.F("strategy_id", strategyID))
		}
	}()

	if err := c.store.SetRunningInfo(ctx, strategyID, taskID, c.workerID, hostname); err != nil {
		return fmt.Errorf("failed to write running state: %w", err)
	}
	defer func() {
		if err := c.store.ClearRunningInfo(context.Background(), strategyID); err != nil {
			c.logger.Error("failed to clear running state", err, core.F("strategy_id", strategyID))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		c.heartbeat(runCtx, strategyID, cancel)
	}()

	c.logger.Info("strategy dispatched", core.F("strategy_id", strategyID), core.F("worker_id", c.workerID))
	runErr := engine.Run(runCtx)

	cancel()
	<-heartbeatDone

	if runErr != nil && runErr != context.Canceled {
		status := "error"
		lastErr := runErr.Error()
		_ = c.store.UpdateRunningStatus(context.Background(), strategyID, RunningStatusUpdate{Status: &status, LastError: &lastErr})
		return runErr
	}
	return nil
}

// RequestStop cooperatively asks a running strategy to stop by flipping its
// running-state hash's status field; the dispatching worker's heartbeat
// loop observes it and cancels the engine's context.
func (c *Coordinator) RequestStop(ctx context.Context, strategyID string) error {
	stopping := "stopping"
	return c.store.UpdateRunningStatus(ctx, strategyID, RunningStatusUpdate{Status: &stopping})
}

const heartbeatFraction = 4 // refresh/poll at 1/4 of the lock TTL

func (c *Coordinator) heartbeat(ctx context.Context, strategyID string, cancel context.CancelFunc) {
	interval := c.lockTTL / heartbeatFraction
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.lock.Refresh(ctx, strategyID, int64(c.lockTTL.Seconds())); err != nil {
				c.logger.Warn("failed to refresh strategy lock", core.F("strategy_id", strategyID), core.F("error", err.Error()))
			}
			info, ok, err := c.store.GetRunningInfo(ctx, strategyID)
			if err != nil {
				c.logger.Warn("failed to poll running state", core.F("strategy_id", strategyID), core.F("error", err.Error()))
				continue
			}
			if ok && info.Status == "stopping" {
				c.logger.Info("stop requested, cancelling engine", core.F("strategy_id", strategyID))
				cancel()
				return
			}
		}
	}
}
