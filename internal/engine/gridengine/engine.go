// Package gridengine implements the per-strategy grid trading engine tick
// loop (spec.md C11): the orchestrator that ties an exchange adapter,
// strategy, risk governor, position tracker, trade sink, and position
// syncer together into one running strategy instance.
//
// Shape (restore-on-start, execute-via-pool, save-state) is grounded on the
// teacher's internal/engine/gridengine/engine.go (GridEngine/OnPriceUpdate/
// execute). The exact step ordering within one tick — fetch price, sync
// orders, check new orders, check reprice, check stop loss, periodic sync,
// publish status, sleep — is grounded on
// original_source/worker/engine/trading_engine.py's _run_loop.
package gridengine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridwarden/internal/core"
	"gridwarden/internal/eventbus"
	"gridwarden/internal/notify"
	"gridwarden/internal/order"
	"gridwarden/internal/risk"
	"gridwarden/internal/syncer"
	"gridwarden/pkg/concurrency"
	"gridwarden/pkg/retry"
	"gridwarden/pkg/tradingutils"
)

// Engine runs one strategy's tick loop until its context is cancelled.
type Engine struct {
	cfg       Config
	exchange  core.IExchange
	strategy  core.IStrategy
	risk      core.IRiskGovernor
	positions core.IPositionTracker
	tradeSink core.ITradeSink
	rules     core.TradingRules
	syncer    *syncer.Syncer
	bus       *eventbus.Bus
	notifier  *notify.Manager
	pool      *concurrency.WorkerPool
	logger    core.ILogger

	breaker *risk.CircuitBreaker // optional drawdown/consecutive-loss breaker, independent of risk.Governor's cooldown

	mu                sync.Mutex
	openers           map[string]core.Order // pending entry orders, keyed by exchange order id
	closers           map[string]core.Order // pending counter orders, keyed by exchange order id
	lastReconcile     time.Time
	lastStatusPublish time.Time
	circuitAlerted    bool
}

// New builds an Engine for one strategy instance.
func New(
	cfg Config,
	exchange core.IExchange,
	strategy core.IStrategy,
	risk core.IRiskGovernor,
	positions core.IPositionTracker,
	tradeSink core.ITradeSink,
	rules core.TradingRules,
	sync *syncer.Syncer,
	bus *eventbus.Bus,
	notifier *notify.Manager,
	pool *concurrency.WorkerPool,
	logger core.ILogger,
) *Engine {
	return &Engine{
		cfg: cfg, exchange: exchange, strategy: strategy, risk: risk,
		positions: positions, tradeSink: tradeSink, rules: rules,
		syncer: sync, bus: bus, notifier: notifier, pool: pool,
		logger:  logger.WithContext(cfg.Symbol, cfg.StrategyID, cfg.Venue),
		openers: make(map[string]core.Order), closers: make(map[string]core.Order),
	}
}

// SetCircuitBreaker attaches an optional drawdown/consecutive-loss circuit
// breaker that gates checkNewOrders independently of the risk governor's
// cooldown, per spec.md C4's breaker composed alongside the governor. A nil
// breaker (the default) disables this extra gate without affecting any
// other risk check.
func (e *Engine) SetCircuitBreaker(breaker *risk.CircuitBreaker) {
	e.breaker = breaker
}

// Run executes the tick loop until ctx is cancelled, sleeping cfg.TickInterval
// between ticks. A tick error is logged and treated as a one-second-backoff
// retry rather than a fatal exit, matching the Python original's top-level
// try/except around the whole loop body.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	e.bus.Publish(string(eventbus.EventStrategyStarted), e.cfg.StrategyID)
	for {
		select {
		case <-ctx.Done():
			e.stop()
			return ctx.Err()
		default:
		}

		sleep := e.cfg.TickInterval
		if err := e.Tick(ctx); err != nil {
			e.logger.Error("tick failed", err)
			e.forceStatusUpdate(ctx, "running")
			sleep = time.Second
		}

		select {
		case <-ctx.Done():
			e.stop()
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// stop implements the stop discipline (spec.md §4.1): cancel every pending
// order in one batch, clear the opener/closer maps, publish a final
// "stopping" snapshot, then close the exchange adapter. Uses a fresh
// background context since ctx is already cancelled by the time this runs.
func (e *Engine) stop() {
	e.logger.Info("engine stopping")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e.mu.Lock()
	ids := make([]string, 0, len(e.openers)+len(e.closers))
	for id := range e.openers {
		ids = append(ids, id)
	}
	for id := range e.closers {
		ids = append(ids, id)
	}
	e.openers = make(map[string]core.Order)
	e.closers = make(map[string]core.Order)
	e.mu.Unlock()

	if len(ids) > 0 {
		if err := e.exchange.CancelOrdersBatch(stopCtx, e.cfg.Symbol, ids); err != nil {
			e.logger.Error("failed to cancel pending orders on stop", err, core.F("order_count", len(ids)))
		}
	}

	e.forceStatusUpdate(stopCtx, "stopping")

	if err := e.exchange.Close(stopCtx); err != nil {
		e.logger.Error("failed to close exchange adapter on stop", err)
	}
	e.bus.Publish(string(eventbus.EventStrategyStopped), e.cfg.StrategyID)
}

// Tick runs one full pass of the ten-step contract. Exported so the DBOS
// durable engine variant (internal/coordinator) can wrap a single pass as
// one workflow step.
func (e *Engine) Tick(ctx context.Context) error {
	ticker, err := e.exchange.GetTicker(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}
	if !ticker.LastPrice.IsPositive() {
		e.logger.Warn("ticker returned a non-positive last price, skipping tick", core.F("last_price", ticker.LastPrice.String()))
		return nil
	}
	if anchored, ok := e.strategy.(interface{ SetAnchor(decimal.Decimal) }); ok {
		anchored.SetAnchor(ticker.LastPrice)
	}
	e.bus.Publish(string(eventbus.EventPriceUpdate), ticker)

	openOrders, err := e.exchange.GetOpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}

	e.reconcileOrders(ctx, openOrders, ticker)
	e.checkNewOrders(ctx, ticker)
	e.checkReprice(ctx, ticker)
	e.checkStopLoss(ctx, ticker)
	e.periodicSync(ctx, ticker)
	e.publishStatus(ctx, ticker)
	return nil
}

// partialFill pairs a tracked order with the cumulative filled quantity the
// exchange now reports for it, used to compute the fill delta since the last
// tick.
type partialFill struct {
	order            core.Order
	cumulativeFilled decimal.Decimal
}

// reconcileOrders diffs the opener/closer maps against the exchange's live
// open-order list. An order still present but reporting a higher filled
// quantity than last tick has partially filled and stays resting, with a
// delta trade record booked for the newly filled slice (spec.md §8 invariant
// 4). An order that has left the open-order list is resolved through
// GetOrder to recover its true terminal state: Filled drives the existing
// opener/closer fill handling, Cancelled/Failed are dropped silently with no
// trade or position side effect (spec.md §4.1 step 3).
func (e *Engine) reconcileOrders(ctx context.Context, openOrders []core.Order, ticker core.OrderBookTicker) {
	present := make(map[string]core.Order, len(openOrders))
	for _, o := range openOrders {
		present[o.ExchangeID] = o
	}

	e.mu.Lock()
	var missingOpeners, missingClosers []core.Order
	var partialOpeners, partialClosers []partialFill
	for id, tracked := range e.openers {
		live, ok := present[id]
		if !ok {
			missingOpeners = append(missingOpeners, tracked)
			delete(e.openers, id)
			continue
		}
		if live.FilledQty.GreaterThan(tracked.FilledQty) {
			partialOpeners = append(partialOpeners, partialFill{tracked, live.FilledQty})
		}
	}
	for id, tracked := range e.closers {
		live, ok := present[id]
		if !ok {
			missingClosers = append(missingClosers, tracked)
			delete(e.closers, id)
			continue
		}
		if live.FilledQty.GreaterThan(tracked.FilledQty) {
			partialClosers = append(partialClosers, partialFill{tracked, live.FilledQty})
		}
	}
	e.mu.Unlock()

	for _, pf := range partialOpeners {
		e.applyPartialFill(ctx, pf.order, pf.cumulativeFilled, true)
	}
	for _, pf := range partialClosers {
		e.applyPartialFill(ctx, pf.order, pf.cumulativeFilled, false)
	}

	for _, o := range missingOpeners {
		e.resolveMissingOpener(ctx, o, ticker)
	}
	for _, o := range missingClosers {
		e.resolveMissingCloser(ctx, o)
	}
}

// resolveMissingOpener looks up the true terminal state of an opener that
// has left the open-order book. A real fill opens a position; a cancel or
// exchange-side failure is dropped with nothing booked.
func (e *Engine) resolveMissingOpener(ctx context.Context, tracked core.Order, ticker core.OrderBookTicker) {
	live, err := e.exchange.GetOrder(ctx, tracked.Symbol, tracked.ExchangeID)
	if err != nil {
		e.logger.Warn("failed to resolve terminal status for missing opener", core.F("order_id", tracked.ExchangeID), core.F("error", err.Error()))
		return
	}
	switch live.State {
	case core.OrderFilled:
		e.onOpenerFilled(ctx, live, ticker)
	case core.OrderPartiallyFilled:
		e.applyPartialFill(ctx, tracked, live.FilledQty, true)
	case core.OrderCancelled, core.OrderFailed:
		e.logger.Info("opener order left the book without filling", core.F("order_id", tracked.ExchangeID), core.F("state", string(live.State)))
		e.publishTerminalDrop(live)
	default:
		e.logger.Warn("unexpected terminal state for missing opener", core.F("order_id", tracked.ExchangeID), core.F("state", string(live.State)))
	}
}

// publishTerminalDrop emits the event bus notice for an order that left the
// book cancelled or rejected by the exchange, without any fill.
func (e *Engine) publishTerminalDrop(o core.Order) {
	if o.State == core.OrderFailed {
		e.bus.Publish(string(eventbus.EventOrderFailed), o)
		return
	}
	e.bus.Publish(string(eventbus.EventOrderCancelled), o)
}

// resolveMissingCloser is resolveMissingOpener's counterpart for counter
// orders: a real fill closes the matching position and realizes PnL; a
// cancel or failure drops the tracked order with the position left intact
// for the next reprice/stop-loss pass to re-cover.
func (e *Engine) resolveMissingCloser(ctx context.Context, tracked core.Order) {
	live, err := e.exchange.GetOrder(ctx, tracked.Symbol, tracked.ExchangeID)
	if err != nil {
		e.logger.Warn("failed to resolve terminal status for missing closer", core.F("order_id", tracked.ExchangeID), core.F("error", err.Error()))
		return
	}
	live.IsCounterFor = tracked.IsCounterFor
	switch live.State {
	case core.OrderFilled:
		e.onCloserFilled(ctx, live)
	case core.OrderPartiallyFilled:
		e.applyPartialFill(ctx, tracked, live.FilledQty, false)
	case core.OrderCancelled, core.OrderFailed:
		e.logger.Info("closer order left the book without filling", core.F("order_id", tracked.ExchangeID), core.F("state", string(live.State)))
		e.publishTerminalDrop(live)
	default:
		e.logger.Warn("unexpected terminal state for missing closer", core.F("order_id", tracked.ExchangeID), core.F("state", string(live.State)))
	}
}

// applyPartialFill books a delta trade record for the quantity newly filled
// since the last tick and keeps the order resting in its tracking map,
// grounded on original_source/worker/engine/trading_engine.py's
// _on_order_partially_filled/_save_partial_fill. Partial fills never carry a
// realized PnL of their own; that is booked once, in full, when the order
// (or the position it belongs to) finally reaches a terminal fill.
func (e *Engine) applyPartialFill(ctx context.Context, tracked core.Order, cumulativeFilled decimal.Decimal, isOpener bool) {
	updated, err := e.recordFillDelta(ctx, tracked, cumulativeFilled, decimal.Zero)
	if err != nil {
		e.logger.Warn("partial fill rejected by order state machine", core.F("order_id", tracked.ExchangeID), core.F("error", err.Error()))
		return
	}
	e.mu.Lock()
	if isOpener {
		e.openers[updated.ExchangeID] = updated
	} else {
		e.closers[updated.ExchangeID] = updated
	}
	e.mu.Unlock()
	e.bus.Publish(string(eventbus.EventOrderPartialFill), updated)
}

// recordFillDelta advances o through the order state machine to
// cumulativeFilled and, if that represents newly filled quantity, books a
// trade record sized to exactly that delta with the fee accrued on it
// (spec.md §8 invariant 4: once per positive partial-fill delta).
func (e *Engine) recordFillDelta(ctx context.Context, o core.Order, cumulativeFilled, pnl decimal.Decimal) (core.Order, error) {
	delta := cumulativeFilled.Sub(o.FilledQty)
	updated, err := order.ApplyFill(o, cumulativeFilled)
	if err != nil {
		return o, err
	}
	if !delta.IsPositive() {
		return updated, nil
	}

	feeRate, ferr := e.exchange.GetFeeRate(ctx, o.Symbol)
	if ferr != nil {
		e.logger.Warn("fee rate lookup failed, booking zero fee", core.F("order_id", o.ExchangeID), core.F("error", ferr.Error()))
		feeRate = decimal.Zero
	}
	fee := delta.Mul(o.Price).Mul(feeRate)

	record := core.TradeRecord{
		StrategyID: e.cfg.StrategyID, OrderID: o.ExchangeID, Symbol: o.Symbol,
		Side: o.Side, Price: o.Price, Quantity: delta, Fee: fee,
		RealizedPnL: pnl, ExecutedAt: time.Now(),
	}
	if err := e.tradeSink.Append(ctx, record); err != nil {
		e.logger.Error("failed to append partial-fill trade record", err, core.F("order_id", o.ExchangeID))
	}
	return updated, nil
}

func (e *Engine) onOpenerFilled(ctx context.Context, opener core.Order, ticker core.OrderBookTicker) {
	if filled, err := order.ApplyFill(opener, opener.Quantity); err != nil {
		e.logger.Warn("opener fill rejected by order state machine", core.F("order_id", opener.ExchangeID), core.F("error", err.Error()))
	} else {
		opener = filled
	}
	e.bus.Publish(string(eventbus.EventOrderFilled), opener)
	e.risk.RecordFill(decimal.Zero, false)

	position := core.PositionEntry{
		OrderID: opener.ExchangeID, Symbol: opener.Symbol, Venue: e.exchange.Venue(),
		Quantity: opener.Quantity, EntryPrice: opener.Price, GridIndex: opener.GridIndex,
		CreatedAt: time.Now(),
	}
	e.positions.AddPosition(position)
	e.bus.Publish(string(eventbus.EventPositionChanged), position)

	var req core.PlaceOrderRequest
	var ok bool
	if opener.Side == core.SideBuy {
		req, ok = e.strategy.ShouldSell(position, ticker)
	} else {
		req, ok = e.strategy.ShouldCloseShort(position, ticker)
	}
	if !ok {
		return
	}
	req.Price, req.Quantity, ok = tradingutils.AlignOrder(req.Price, req.Quantity, e.rules)
	if !ok {
		e.logger.Warn("counter order failed trading-rule alignment", core.F("order_id", opener.ExchangeID))
		return
	}

	closer, err := e.placeOrder(ctx, req)
	if err != nil {
		e.logger.Error("failed to place counter order", err, core.F("order_id", opener.ExchangeID))
		return
	}
	closer.IsCounterFor = opener.ExchangeID
	e.mu.Lock()
	e.closers[closer.ExchangeID] = closer
	e.mu.Unlock()
}

func (e *Engine) onCloserFilled(ctx context.Context, closer core.Order) {
	if filled, err := order.ApplyFill(closer, closer.Quantity); err != nil {
		e.logger.Warn("closer fill rejected by order state machine", core.F("order_id", closer.ExchangeID), core.F("error", err.Error()))
	} else {
		closer = filled
	}
	e.bus.Publish(string(eventbus.EventOrderFilled), closer)

	position, ok := e.positions.RemovePosition(closer.IsCounterFor)
	if !ok {
		e.logger.Warn("counter order filled with no matching position", core.F("order_id", closer.ExchangeID))
		return
	}

	feeRate, err := e.exchange.GetFeeRate(ctx, closer.Symbol)
	if err != nil {
		e.logger.Warn("fee rate lookup failed, booking zero fee", core.F("order_id", closer.ExchangeID), core.F("error", err.Error()))
		feeRate = decimal.Zero
	}

	qty := position.Quantity.Abs()
	var buyPrice, sellPrice decimal.Decimal
	if closer.Side == core.SideSell {
		buyPrice, sellPrice = position.EntryPrice, closer.Price
	} else {
		buyPrice, sellPrice = closer.Price, position.EntryPrice
	}
	// CalculateNetProfit returns a per-unit result; scale both it and the fee
	// by qty so the round-trip law pnl+fee_total == (sell-buy)*qty holds.
	realizedPnL := tradingutils.CalculateNetProfit(buyPrice, sellPrice, feeRate, feeRate).Mul(qty)
	fee := buyPrice.Add(sellPrice).Mul(feeRate).Mul(qty)

	e.risk.RecordFill(realizedPnL, realizedPnL.IsNegative())
	if e.breaker != nil {
		e.breaker.RecordTrade(realizedPnL)
	}
	e.bus.Publish(string(eventbus.EventPositionChanged), position)

	record := core.TradeRecord{
		StrategyID: e.cfg.StrategyID, OrderID: closer.ExchangeID, Symbol: closer.Symbol,
		Side: closer.Side, Price: closer.Price, Quantity: closer.Quantity, Fee: fee,
		RealizedPnL: realizedPnL, ExecutedAt: time.Now(),
	}
	if err := e.tradeSink.Append(ctx, record); err != nil {
		e.logger.Error("failed to append trade record", err, core.F("order_id", closer.ExchangeID))
	}
}

// checkNewOrders opens new grid levels, gated by the risk governor.
func (e *Engine) checkNewOrders(ctx context.Context, ticker core.OrderBookTicker) {
	if e.risk.CircuitOpen() {
		return
	}
	if e.breaker != nil && e.breaker.IsTripped() {
		return
	}
	decision := e.risk.CanOpenPosition(e.positions.Count(e.cfg.Symbol))
	if !decision.Allowed {
		return
	}

	e.mu.Lock()
	open := make([]core.Order, 0, len(e.openers))
	for _, o := range e.openers {
		open = append(open, o)
	}
	e.mu.Unlock()

	reqs := e.strategy.ShouldBuyBatch(ticker, open)
	if e.strategy.IsNeutral() {
		reqs = append(reqs, e.strategy.ShouldShortBatch(ticker, open)...)
	}
	if len(reqs) == 0 {
		return
	}

	placed := e.placeOrdersBatch(ctx, reqs)
	e.mu.Lock()
	for _, o := range placed {
		e.openers[o.ExchangeID] = o
	}
	e.mu.Unlock()
}

// checkReprice moves resting orders that have drifted past the configured
// threshold by cancelling and replacing them at the strategy's new price.
func (e *Engine) checkReprice(ctx context.Context, ticker core.OrderBookTicker) {
	e.mu.Lock()
	candidates := make([]core.Order, 0, len(e.openers)+len(e.closers))
	for _, o := range e.openers {
		candidates = append(candidates, o)
	}
	for _, o := range e.closers {
		candidates = append(candidates, o)
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, o := range candidates {
		order := o
		var newPrice decimal.Decimal
		var ok bool
		if order.Side == core.SideBuy {
			newPrice, ok = e.strategy.ShouldReprice(order, ticker)
		} else {
			newPrice, ok = e.strategy.ShouldRepriceShort(order, ticker)
		}
		if !ok {
			continue
		}

		wg.Add(1)
		task := func() {
			defer wg.Done()
			e.repriceOrder(ctx, order, newPrice)
		}
		if e.pool != nil && e.pool.Submit(task) == nil {
			continue
		}
		task()
	}
	wg.Wait()
}

func (e *Engine) repriceOrder(ctx context.Context, order core.Order, newPrice decimal.Decimal) {
	newPrice = tradingutils.FloorToTick(newPrice, e.rules.TickSize)
	updated, err := e.exchange.EditOrder(ctx, order.Symbol, order.ExchangeID, newPrice, order.Quantity)
	if err != nil {
		e.logger.Warn("reprice failed", core.F("order_id", order.ExchangeID), core.F("error", err.Error()))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.openers[order.ExchangeID]; ok {
		delete(e.openers, order.ExchangeID)
		e.openers[updated.ExchangeID] = updated
	} else if prev, ok := e.closers[order.ExchangeID]; ok {
		updated.IsCounterFor = prev.IsCounterFor
		delete(e.closers, order.ExchangeID)
		e.closers[updated.ExchangeID] = updated
	}
}

// checkStopLoss cancels a position's resting counter order and liquidates
// it at a slippage-adjusted market price when the risk governor flags it.
func (e *Engine) checkStopLoss(ctx context.Context, ticker core.OrderBookTicker) {
	now := time.Now().Unix()
	for _, position := range e.positions.AllPositions(e.cfg.Symbol) {
		trigger, reason := e.risk.ShouldStopLoss(position, ticker, now)
		if !trigger {
			continue
		}
		e.executeStopLoss(ctx, position, ticker, reason)
	}
}

func (e *Engine) executeStopLoss(ctx context.Context, position core.PositionEntry, ticker core.OrderBookTicker, reason string) {
	e.logger.Warn("stop loss triggered", core.F("position_order_id", position.OrderID), core.F("reason", reason))
	e.bus.Publish(string(eventbus.EventStopLossTriggered), position)

	e.mu.Lock()
	var closerID string
	var preempted core.Order
	for id, c := range e.closers {
		if c.IsCounterFor == position.OrderID {
			closerID, preempted = id, c
			break
		}
	}
	if closerID != "" {
		delete(e.closers, closerID)
	}
	e.mu.Unlock()

	if closerID != "" {
		if _, err := order.Cancel(preempted); err != nil {
			e.logger.Warn("counter order in unexpected state before stop loss preemption",
				core.F("order_id", closerID), core.F("error", err.Error()))
		}
		if err := e.exchange.CancelOrder(ctx, e.cfg.Symbol, closerID); err != nil {
			e.logger.Warn("failed to cancel counter order before stop loss", core.F("order_id", closerID))
		}
	}

	slippage := e.cfg.StopLossSlippage
	if slippage.IsZero() {
		slippage = DefaultStopLossSlippage
	}

	var stopPrice decimal.Decimal
	var side core.OrderSide
	if position.Quantity.IsPositive() {
		side = core.SideSell
		stopPrice = ticker.LastPrice.Mul(decimal.NewFromInt(1).Sub(slippage))
	} else {
		side = core.SideBuy
		stopPrice = ticker.LastPrice.Mul(decimal.NewFromInt(1).Add(slippage))
	}
	stopPrice, qty, ok := tradingutils.AlignOrder(stopPrice, position.Quantity.Abs(), e.rules)
	if !ok {
		e.logger.Error("stop loss order failed trading-rule alignment", nil, core.F("position_order_id", position.OrderID))
		return
	}

	stopOrder, err := e.placeOrder(ctx, core.PlaceOrderRequest{Symbol: e.cfg.Symbol, Side: side, Price: stopPrice, Quantity: qty})
	if err != nil {
		e.logger.Error("stop loss order placement failed", err, core.F("position_order_id", position.OrderID))
		return
	}
	if filled, ferr := order.ApplyFill(stopOrder, stopOrder.Quantity); ferr != nil {
		e.logger.Warn("stop loss order fill rejected by order state machine", core.F("order_id", stopOrder.ExchangeID), core.F("error", ferr.Error()))
	} else {
		stopOrder = filled
	}

	e.positions.RemovePosition(position.OrderID)

	feeRate, ferr := e.exchange.GetFeeRate(ctx, stopOrder.Symbol)
	if ferr != nil {
		e.logger.Warn("fee rate lookup failed, booking zero fee", core.F("order_id", stopOrder.ExchangeID), core.F("error", ferr.Error()))
		feeRate = decimal.Zero
	}

	var buyPrice, sellPrice decimal.Decimal
	if side == core.SideSell {
		buyPrice, sellPrice = position.EntryPrice, stopOrder.Price
	} else {
		buyPrice, sellPrice = stopOrder.Price, position.EntryPrice
	}
	realizedPnL := tradingutils.CalculateNetProfit(buyPrice, sellPrice, feeRate, feeRate).Mul(qty)
	fee := buyPrice.Add(sellPrice).Mul(feeRate).Mul(qty)
	e.risk.RecordFill(realizedPnL, true)

	record := core.TradeRecord{
		StrategyID: e.cfg.StrategyID, OrderID: stopOrder.ExchangeID, Symbol: stopOrder.Symbol,
		Side: stopOrder.Side, Price: stopOrder.Price, Quantity: stopOrder.Quantity, Fee: fee,
		RealizedPnL: realizedPnL, ExecutedAt: time.Now(),
	}
	if err := e.tradeSink.Append(ctx, record); err != nil {
		e.logger.Error("failed to append stop loss trade record", err, core.F("order_id", stopOrder.ExchangeID))
	}
}

// periodicSync runs the position syncer's debounced cache repair, rate
// limited to cfg.ReconcileInterval.
func (e *Engine) periodicSync(ctx context.Context, ticker core.OrderBookTicker) {
	if time.Since(e.lastReconcile) < e.cfg.ReconcileInterval {
		return
	}
	e.lastReconcile = time.Now()

	e.mu.Lock()
	pending := make(map[string]core.Order, len(e.openers)+len(e.closers))
	for id, o := range e.openers {
		pending[id] = o
	}
	for id, o := range e.closers {
		pending[id] = o
	}
	e.mu.Unlock()

	report, err := e.syncer.Sync(ctx, e.cfg.Symbol, pending)
	if err != nil {
		e.logger.Error("periodic sync failed", err)
		return
	}
	if len(report.DroppedOrderIDs) == 0 {
		return
	}

	e.mu.Lock()
	for _, id := range report.DroppedOrderIDs {
		delete(e.openers, id)
		delete(e.closers, id)
	}
	e.mu.Unlock()
}

// publishStatus emits a StatusSnapshot, rate limited to
// cfg.StatusPublishInterval, and alerts once when the circuit breaker trips.
func (e *Engine) publishStatus(ctx context.Context, ticker core.OrderBookTicker) {
	if time.Since(e.lastStatusPublish) < e.cfg.StatusPublishInterval {
		return
	}
	e.lastStatusPublish = time.Now()
	e.forceStatusUpdate(ctx, "running")
}

func (e *Engine) forceStatusUpdate(ctx context.Context, status string) {
	ticker, err := e.exchange.GetTicker(ctx, e.cfg.Symbol)
	if err != nil {
		e.logger.Warn("status snapshot: ticker fetch failed", core.F("error", err.Error()))
	}

	e.mu.Lock()
	openCount := len(e.openers) + len(e.closers)
	e.mu.Unlock()

	snapshot := core.StatusSnapshot{
		StrategyID: e.cfg.StrategyID, Symbol: e.cfg.Symbol, Venue: e.exchange.Venue(), Status: status,
		LastPrice: ticker.LastPrice, OpenOrderCount: openCount,
		PositionCount: e.positions.Count(e.cfg.Symbol),
		UnrealizedPnL: e.positions.UnrealizedPnL(e.cfg.Symbol, ticker.LastPrice),
		CircuitOpen:   e.risk.CircuitOpen(), TakenAt: time.Now(),
	}
	e.bus.Publish("status", snapshot)

	if snapshot.CircuitOpen && !e.circuitAlerted {
		e.circuitAlerted = true
		e.notifier.Alert(ctx, e.cfg.StrategyID, "circuit breaker open",
			"risk governor has halted new orders", notify.Warning, nil)
	} else if !snapshot.CircuitOpen {
		e.circuitAlerted = false
	}
}

// placeOrder places a single order on the calling goroutine under the retry
// policy shared by every exchange call.
func (e *Engine) placeOrder(ctx context.Context, req core.PlaceOrderRequest) (core.Order, error) {
	var placed core.Order
	err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		o, err := e.exchange.PlaceOrder(ctx, req)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return core.Order{}, err
	}

	pending := order.New(placed.ID, placed.Symbol, placed.Side, placed.Price, placed.Quantity, placed.GridIndex)
	if _, terr := order.TryTransition(pending, placed.State); terr != nil {
		e.logger.Warn("exchange returned order in an unreachable initial state",
			core.F("order_id", placed.ExchangeID), core.F("error", terr.Error()))
	}
	e.bus.Publish(string(eventbus.EventOrderPlaced), placed)
	return placed, nil
}

// placeOrdersBatch aligns a batch of new grid-level orders to the trading
// rules, skips any that fail alignment, and hands the rest to the adapter's
// own PlaceOrdersBatch under the shared retry policy rather than
// re-implementing per-order concurrency here.
func (e *Engine) placeOrdersBatch(ctx context.Context, reqs []core.PlaceOrderRequest) []core.Order {
	aligned := make([]core.PlaceOrderRequest, 0, len(reqs))
	for _, r := range reqs {
		price, qty, ok := tradingutils.AlignOrder(r.Price, r.Quantity, e.rules)
		if !ok {
			e.logger.Warn("grid order failed trading-rule alignment, skipping", core.F("symbol", r.Symbol))
			continue
		}
		r.Price, r.Quantity = price, qty
		aligned = append(aligned, r)
	}
	if len(aligned) == 0 {
		return nil
	}

	var orders []core.Order
	err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		os, err := e.exchange.PlaceOrdersBatch(ctx, aligned)
		if err != nil {
			return err
		}
		orders = os
		return nil
	})
	if err != nil {
		e.logger.Error("batch order placement failed", err)
		return nil
	}
	return orders
}

// RestoreState seeds the engine's opener/closer maps from a prior run's
// open-order snapshot, used on worker restart so in-flight orders are not
// forgotten and immediately re-opened.
func (e *Engine) RestoreState(ctx context.Context) error {
	openOrders, err := e.exchange.GetOpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range openOrders {
		if o.IsCounterFor != "" {
			e.closers[o.ExchangeID] = o
		} else {
			e.openers[o.ExchangeID] = o
		}
	}
	e.logger.Info("state restored", core.F("openers", len(e.openers)), core.F("closers", len(e.closers)))
	return nil
}
