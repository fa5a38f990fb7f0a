// Package eventbus implements the topic-keyed pub/sub bus (spec.md §4.15
// C15): snapshot-under-lock dispatch so a slow or panicking subscriber
// cannot block the publisher or deadlock against its own subscribe/
// unsubscribe calls. Grounded on original_source/core/event_bus.py
// (EventBus/Event/EventType), reshaped from Python callback lists to
// buffered Go channels per subscriber.
package eventbus

import (
	"sync"

	"gridwarden/internal/core"
)

// EventType names a topic on the bus. The concrete topics used by the
// engine mirror the original's EventType enum.
type EventType string

const (
	EventPriceUpdate        EventType = "price_update"
	EventOrderPlaced        EventType = "order_placed"
	EventOrderFilled        EventType = "order_filled"
	EventOrderPartialFill   EventType = "order_partially_filled"
	EventOrderCancelled     EventType = "order_cancelled"
	EventOrderFailed        EventType = "order_failed"
	EventPositionChanged    EventType = "position_changed"
	EventStreamConnected    EventType = "stream_connected"
	EventStreamDisconnected EventType = "stream_disconnected"
	EventStopLossTriggered  EventType = "stop_loss_triggered"
	EventStrategyError      EventType = "strategy_error"
	EventStrategyStarted    EventType = "strategy_started"
	EventStrategyStopped    EventType = "strategy_stopped"
)

const subscriberBuffer = 64

// Bus is a topic-keyed, channel-based pub/sub bus.
type Bus struct {
	mu          sync.Mutex
	subscribers map[EventType][]chan interface{}
	logger      core.ILogger
}

// New builds an empty Bus.
func New(logger core.ILogger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]chan interface{}),
		logger:      logger,
	}
}

// Publish fans payload out to every current subscriber of topic. The
// subscriber slice is copied under the lock before dispatch so publish never
// blocks on a subscriber that is itself calling Subscribe/unsubscribe.
func (b *Bus) Publish(topic string, payload interface{}) {
	et := EventType(topic)
	b.mu.Lock()
	subs := append([]chan interface{}(nil), b.subscribers[et]...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
			b.logger.Warn("event bus subscriber channel full, dropping event", core.F("topic", topic))
		}
	}
}

// Subscribe registers a new subscriber for topic and returns its receive
// channel plus an unsubscribe function.
func (b *Bus) Subscribe(topic string) (<-chan interface{}, func()) {
	et := EventType(topic)
	ch := make(chan interface{}, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[et] = append(b.subscribers[et], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[et]
		for i, c := range subs {
			if c == ch {
				b.subscribers[et] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, unsubscribe
}

// Clear removes every subscription from the bus.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subscribers = make(map[EventType][]chan interface{})
}

var _ core.EventBus = (*Bus)(nil)
