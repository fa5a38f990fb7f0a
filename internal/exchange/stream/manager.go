// Package stream implements the per-credential stream manager (spec.md §4.7
// C7): one websocket connection shared by every strategy running against
// the same credential, refcounted so the last strategy to stop tears the
// connection down, with a market cache that Ticker reads before falling back
// to a REST reconcile function. The read loop reconnects with jittered
// exponential backoff but does not parse or route messages: only
// UpdateTicker writes the market cache, and the user-order and kline caches
// are never filled. Grounded on the teacher's
// websocket handling in internal/exchange/binance/binance.go and the
// reconcile-by-REST shape of its reconciler, rebuilt without the pb types.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"gridwarden/internal/core"
	"gridwarden/pkg/retry"
)

// Credential identifies one (venue, apiKey) pair. Every strategy using the
// same credential shares one Manager instance.
type Credential struct {
	Venue  string
	APIKey string
}

// Manager owns a single websocket connection, the market/user/kline cache
// maps, and the refcount of strategies currently using it.
type Manager struct {
	cred        Credential
	wsURL       string
	dialFn      func(url string) (*websocket.Conn, error)
	logger      core.ILogger
	reconcileFn func(ctx context.Context) (core.OrderBookTicker, error)

	mu           sync.RWMutex
	conn         *websocket.Conn
	refcount     int
	connected    bool
	marketCache  map[string]core.OrderBookTicker
	userOrders   map[string]core.Order
	klineCache   map[string][]float64
	limiter      *rate.Limiter
	stopCh       chan struct{}
	reconnectGap time.Duration
}

var (
	registryMu sync.Mutex
	registry   = make(map[Credential]*Manager)
)

// Acquire returns the shared Manager for cred, creating it on first use and
// incrementing its refcount. Callers must call Release when done.
func Acquire(cred Credential, wsURL string, logger core.ILogger, reconcileFn func(ctx context.Context) (core.OrderBookTicker, error)) *Manager {
	registryMu.Lock()
	defer registryMu.Unlock()

	m, ok := registry[cred]
	if !ok {
		m = &Manager{
			cred:         cred,
			wsURL:        wsURL,
			logger:       logger.WithField("component", "stream_manager").WithField("venue", cred.Venue),
			reconcileFn:  reconcileFn,
			marketCache:  make(map[string]core.OrderBookTicker),
			userOrders:   make(map[string]core.Order),
			klineCache:   make(map[string][]float64),
			limiter:      rate.NewLimiter(rate.Limit(10), 20),
			reconnectGap: 2 * time.Second,
			dialFn: func(url string) (*websocket.Conn, error) {
				c, _, err := websocket.DefaultDialer.Dial(url, nil)
				return c, err
			},
		}
		registry[cred] = m
	}
	m.refcount++
	return m
}

// Release decrements the refcount, tearing the connection down once the
// last strategy releases it.
func (m *Manager) Release() {
	registryMu.Lock()
	defer registryMu.Unlock()

	m.refcount--
	if m.refcount <= 0 {
		m.stop()
		delete(registry, m.cred)
	}
}

// Start opens the websocket connection and begins the reconnect-with-backoff
// read loop in a background goroutine.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return nil // already running
	}
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	conn, err := m.dialFn(m.wsURL)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.conn = conn
	m.connected = true
	m.mu.Unlock()

	go m.readLoop(ctx)
	return nil
}

func (m *Manager) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.connected = false
}

func (m *Manager) readLoop(ctx context.Context) {
	backoff := m.reconnectGap
	const maxBackoff = 60 * time.Second

	for {
		m.mu.RLock()
		conn := m.conn
		stopCh := m.stopCh
		m.mu.RUnlock()
		if conn == nil || stopCh == nil {
			return
		}

		_, _, err := conn.ReadMessage()
		if err != nil {
			m.logger.Warn("stream disconnected, reconnecting", core.F("error", err.Error()), core.F("backoff", backoff.String()))
			m.mu.Lock()
			m.connected = false
			m.mu.Unlock()

			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(retry.JitteredSleep(backoff)):
			}

			newConn, dialErr := m.dialFn(m.wsURL)
			if dialErr != nil {
				backoff = minDuration(backoff*2, maxBackoff)
				continue
			}
			m.mu.Lock()
			m.conn = newConn
			m.connected = true
			m.mu.Unlock()
			backoff = m.reconnectGap
			continue
		}
		// A real adapter would parse and route the message into
		// marketCache/userOrders/klineCache here.
	}
}

// Connected reports whether the underlying socket is currently up.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Ticker returns the cached ticker for symbol if the stream has one,
// falling back to the reconcile function (a REST call) otherwise — the
// stream-cache-with-REST-fallback pattern spec.md §4.7 requires.
func (m *Manager) Ticker(ctx context.Context, symbol string) (core.OrderBookTicker, error) {
	m.mu.RLock()
	t, ok := m.marketCache[symbol]
	m.mu.RUnlock()
	if ok {
		return t, nil
	}
	return m.reconcileFn(ctx)
}

// UpdateTicker pushes a fresh ticker into the market cache.
func (m *Manager) UpdateTicker(symbol string, t core.OrderBookTicker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketCache[symbol] = t
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
