// Package notify implements the notification fan-out demonstrator (SPEC_FULL
// §C): an AlertChannel/AlertManager shape grounded on the teacher's
// internal/alert/alert.go, with a log channel and a Telegram channel as the
// two concrete implementations. Full DingTalk/Feishu fan-out remains an
// external collaborator per spec.md §1's Non-goals.
package notify

import (
	"context"
	"sync"
	"time"

	"gridwarden/internal/core"
)

// Level is an alert's severity.
type Level string

const (
	Info     Level = "INFO"
	Warning  Level = "WARNING"
	Error    Level = "ERROR"
	Critical Level = "CRITICAL"
)

// Payload is a single alert event dispatched to every registered channel.
type Payload struct {
	Level      Level
	StrategyID string
	Title      string
	Message    string
	Timestamp  time.Time
	Fields     map[string]string
}

// Channel is one concrete notification sink.
type Channel interface {
	Send(ctx context.Context, alert Payload) error
	Name() string
}

// Manager fans an alert out to every registered channel concurrently,
// without blocking the caller on delivery (alerting must never stall the
// engine's trading path). Grounded on the teacher's AlertManager.
type Manager struct {
	mu       sync.RWMutex
	channels []Channel
	logger   core.ILogger
}

// NewManager builds an empty Manager.
func NewManager(logger core.ILogger) *Manager {
	return &Manager{logger: logger.WithField("component", "notify_manager")}
}

// AddChannel registers ch with the manager.
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("added notification channel", core.F("name", ch.Name()))
}

// Alert dispatches a payload to every channel. Each channel gets its own
// bounded-duration context so one slow channel cannot hang the others.
func (m *Manager) Alert(ctx context.Context, strategyID, title, message string, level Level, fields map[string]string) {
	payload := Payload{
		Level: level, StrategyID: strategyID, Title: title,
		Message: message, Timestamp: time.Now(), Fields: fields,
	}

	m.mu.RLock()
	channels := append([]Channel(nil), m.channels...)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(c Channel) {
			defer wg.Done()
			timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := c.Send(timeoutCtx, payload); err != nil {
				m.logger.Error("failed to send alert", err, core.F("channel", c.Name()))
			}
		}(ch)
	}
}
