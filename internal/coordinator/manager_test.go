package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwarden/pkg/logging"
)

type fakeEngine struct {
	runErr  error
	started chan struct{}
}

func (f *fakeEngine) Run(ctx context.Context) error {
	close(f.started)
	<-ctx.Done()
	return f.runErr
}

func newTestManager(t *testing.T) *Manager {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return NewManager(logger)
}

func TestStartAndStopStrategy(t *testing.T) {
	m := newTestManager(t)
	eng := &fakeEngine{started: make(chan struct{})}

	m.Start(context.Background(), "s1", eng)
	select {
	case <-eng.started:
	case <-time.After(time.Second):
		t.Fatal("engine never started")
	}
	assert.True(t, m.IsRunning("s1"))

	require.NoError(t, m.Stop("s1"))
	assert.False(t, m.IsRunning("s1"))
}

func TestStartingAlreadyRunningStrategyIsNoop(t *testing.T) {
	m := newTestManager(t)
	eng := &fakeEngine{started: make(chan struct{})}
	m.Start(context.Background(), "s1", eng)
	<-eng.started

	m.Start(context.Background(), "s1", &fakeEngine{started: make(chan struct{})})
	assert.True(t, m.IsRunning("s1"))

	require.NoError(t, m.Stop("s1"))
}

func TestStopAllStopsEveryRunningStrategy(t *testing.T) {
	m := newTestManager(t)
	e1 := &fakeEngine{started: make(chan struct{})}
	e2 := &fakeEngine{started: make(chan struct{})}
	m.Start(context.Background(), "s1", e1)
	m.Start(context.Background(), "s2", e2)
	<-e1.started
	<-e2.started

	m.StopAll()
	assert.False(t, m.IsRunning("s1"))
	assert.False(t, m.IsRunning("s2"))
}

func TestStopPropagatesEngineError(t *testing.T) {
	m := newTestManager(t)
	eng := &fakeEngine{started: make(chan struct{}), runErr: errors.New("boom")}
	m.Start(context.Background(), "s1", eng)
	<-eng.started

	err := m.Stop("s1")
	assert.EqualError(t, err, "boom")
}

func TestStoppingUnknownStrategyIsNoop(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.Stop("never-started"))
}
