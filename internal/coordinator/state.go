package coordinator

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	runningKeyPrefix = "strategy:running:"
	workersKey       = "workers:active"
)

// RunningInfo is one strategy's live status, mirrored into Redis so any
// worker (or an operator) can see what every running strategy is doing
// without reaching into its process. Field set matches
// original_source/shared/core/redis_client.py's running-info hash exactly.
type RunningInfo struct {
	TaskID         string
	WorkerID       string
	WorkerHostname string
	Status         string // "running" | "stopping" | "error"
	StartedAt      time.Time
	CurrentPrice   decimal.Decimal
	PendingBuys    int
	PendingSells   int
	PositionCount  int
	LastError      string
	UpdatedAt      time.Time
}

// StateStore reads and writes the running-state hash and the active-worker
// set in Redis.
type StateStore struct {
	client redis.Cmdable
}

// NewStateStore builds a StateStore over an existing Redis client.
func NewStateStore(client redis.Cmdable) *StateStore {
	return &StateStore{client: client}
}

// SetRunningInfo writes the initial running-state hash for strategyID when a
// worker starts running it.
func (s *StateStore) SetRunningInfo(ctx context.Context, strategyID, taskID, workerID, workerHostname string) error {
	now := time.Now()
	return s.client.HSet(ctx, runningKeyPrefix+strategyID, map[string]interface{}{
		"task_id": taskID, "worker_id": workerID, "worker_hostname": workerHostname,
		"status": "running", "started_at": now.Unix(),
		"current_price": "0", "pending_buys": 0, "pending_sells": 0, "position_count": 0,
		"last_error": "", "updated_at": now.Unix(),
	}).Err()
}

// UpdateRunningStatus patches a subset of the running-state hash's fields,
// coalesced by the caller to at most once a second.
func (s *StateStore) UpdateRunningStatus(ctx context.Context, strategyID string, snapshot RunningStatusUpdate) error {
	fields := map[string]interface{}{"updated_at": time.Now().Unix()}
	if snapshot.CurrentPrice != nil {
		fields["current_price"] = snapshot.CurrentPrice.String()
	}
	if snapshot.PendingBuys != nil {
		fields["pending_buys"] = *snapshot.PendingBuys
	}
	if snapshot.PendingSells != nil {
		fields["pending_sells"] = *snapshot.PendingSells
	}
	if snapshot.PositionCount != nil {
		fields["position_count"] = *snapshot.PositionCount
	}
	if snapshot.LastError != nil {
		fields["last_error"] = *snapshot.LastError
	}
	if snapshot.Status != nil {
		fields["status"] = *snapshot.Status
	}
	return s.client.HSet(ctx, runningKeyPrefix+strategyID, fields).Err()
}

// RunningStatusUpdate is a partial update to RunningInfo; nil fields are
// left unchanged, mirroring the Python original's keyword-argument update.
type RunningStatusUpdate struct {
	CurrentPrice  *decimal.Decimal
	PendingBuys   *int
	PendingSells  *int
	PositionCount *int
	LastError     *string
	Status        *string
}

// GetRunningInfo reads strategyID's running-state hash. ok is false if the
// strategy has no running-state entry (not currently running anywhere).
func (s *StateStore) GetRunningInfo(ctx context.Context, strategyID string) (RunningInfo, bool, error) {
	m, err := s.client.HGetAll(ctx, runningKeyPrefix+strategyID).Result()
	if err != nil {
		return RunningInfo{}, false, err
	}
	if len(m) == 0 {
		return RunningInfo{}, false, nil
	}

	info := RunningInfo{
		TaskID: m["task_id"], WorkerID: m["worker_id"], WorkerHostname: m["worker_hostname"],
		Status: m["status"], LastError: m["last_error"],
	}
	info.StartedAt = unixOrZero(m["started_at"])
	info.UpdatedAt = unixOrZero(m["updated_at"])
	info.CurrentPrice = decimalOrZero(m["current_price"])
	info.PendingBuys = intOrZero(m["pending_buys"])
	info.PendingSells = intOrZero(m["pending_sells"])
	info.PositionCount = intOrZero(m["position_count"])
	return info, true, nil
}

// ClearRunningInfo removes strategyID's running-state entry, called once a
// worker has fully stopped it.
func (s *StateStore) ClearRunningInfo(ctx context.Context, strategyID string) error {
	return s.client.Del(ctx, runningKeyPrefix+strategyID).Err()
}

// IsRunning reports whether strategyID currently has a running-state entry.
func (s *StateStore) IsRunning(ctx context.Context, strategyID string) (bool, error) {
	n, err := s.client.Exists(ctx, runningKeyPrefix+strategyID).Result()
	return n > 0, err
}

// RegisterWorker adds workerID to the active-worker set.
func (s *StateStore) RegisterWorker(ctx context.Context, workerID string) error {
	return s.client.SAdd(ctx, workersKey, workerID).Err()
}

// UnregisterWorker removes workerID from the active-worker set.
func (s *StateStore) UnregisterWorker(ctx context.Context, workerID string) error {
	return s.client.SRem(ctx, workersKey, workerID).Err()
}

// ActiveWorkers lists every worker currently registered.
func (s *StateStore) ActiveWorkers(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, workersKey).Result()
}

func unixOrZero(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

func intOrZero(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

func decimalOrZero(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
