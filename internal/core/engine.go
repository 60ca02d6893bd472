// Package core runs the execution pipeline behind a single-writer
// actor goroutine. All mutable state (order table, gates, PnL, books)
// is owned by that goroutine; callers talk to it through channels.
package core

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/match"
	"main/internal/obs"
	"main/internal/orders"
	"main/internal/pipeline"
	"main/internal/pnl"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/throttle"
)

const (
	defaultQueueSize     = 8192
	defaultSweepInterval = 5 * time.Second
)

var ErrEngineStopped = errors.New("core engine stopped")

// Config assembles the pipeline configuration for one account.
type Config struct {
	QueueSize     int
	SweepInterval time.Duration

	Orders   orders.Config
	Throttle throttle.Config
	Risk     risk.Config
	PnL      pnl.Config
	Match    match.Config
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	return c
}

// SubmitResult is the synchronous outcome of an order command.
type SubmitResult struct {
	OrderID schema.OrderID
	Ok      bool
	Reject  schema.Reject
}

type requestKind uint8

const (
	reqSubmitNew requestKind = iota
	reqSubmitMod
	reqSubmitCxl
	reqQuote
	reqExternalFill
	reqCommand
	reqSweep
)

type request struct {
	kind requestKind

	params   orders.NewOrderParams
	orderID  schema.OrderID
	newPrice schema.Price
	quote    schema.Quote
	fill     schema.Fill
	command  schema.Command

	reply   chan SubmitResult
	cmdResp chan schema.Command
}

// Engine is the execution core actor. It owns the pipeline and
// processes one request at a time; matching engine callbacks run
// synchronously on the same goroutine.
type Engine struct {
	cfg      Config
	registry *schema.Registry

	table    *orders.Table
	throttle *throttle.Gate
	risk     *risk.Gate
	pnl      *pnl.Engine
	matcher  *match.Engine
	chain    *pipeline.Chain

	publisher *audit.Publisher
	metrics   *obs.Metrics
	trace     *obs.TraceGenerator
	alerts    schema.AlertSink

	ch   chan request
	done chan struct{}
	now  func() time.Time

	// traceID correlates every audit frame emitted while handling the
	// current request; it only changes on the actor goroutine.
	traceID uint64
}

// NewEngine wires the pipeline in its fixed stage order.
func NewEngine(cfg Config, registry *schema.Registry) (*Engine, error) {
	cfg = cfg.withDefaults()
	if registry == nil {
		return nil, errors.New("core: nil instrument registry")
	}

	table := orders.NewTable(cfg.Orders)
	throttleGate := throttle.NewGate(cfg.Throttle)
	riskGate, err := risk.NewGate(cfg.Risk, table)
	if err != nil {
		return nil, err
	}
	pnlEngine, err := pnl.NewEngine(cfg.PnL)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		table:    table,
		throttle: throttleGate,
		risk:     riskGate,
		pnl:      pnlEngine,
		trace:    obs.NewTraceGenerator(0),
		ch:       make(chan request, cfg.QueueSize),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	e.matcher = match.NewEngine(cfg.Match, e)

	tableStage := &pipeline.TableStage{Table: table, DispatchCancel: e.dispatchCancel}
	chain, err := pipeline.NewChain(
		&pipeline.ThrottleStage{Gate: throttleGate},
		&pipeline.RiskStage{Gate: riskGate},
		&pipeline.PnLStage{Engine: pnlEngine},
		tableStage,
		&pipeline.MatcherStage{Engine: e.matcher},
	)
	if err != nil {
		return nil, err
	}
	e.chain = chain
	pnlEngine.SetAlertSink(schema.AlertFunc(e.raiseAlert))
	return e, nil
}

// SetPublisher attaches the audit publisher.
func (e *Engine) SetPublisher(p *audit.Publisher) { e.publisher = p }

// SetMetrics attaches the Prometheus collectors.
func (e *Engine) SetMetrics(m *obs.Metrics) { e.metrics = m }

// SetAlertSink attaches the operator alert sink.
func (e *Engine) SetAlertSink(sink schema.AlertSink) { e.alerts = sink }

// SetClock overrides the time source for the actor and its components.
func (e *Engine) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	e.now = now
	e.table.SetClock(now)
	e.throttle.SetClock(now)
}

// Run processes requests until ctx is done. It must be called exactly
// once; submissions made before Run block until it starts.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		// cancellation wins over queued work: select picks randomly
		// among ready cases, so check ctx on its own first
		select {
		case <-ctx.Done():
			e.drain()
			return
		default:
		}
		select {
		case <-ctx.Done():
			e.drain()
			return
		case req := <-e.ch:
			e.handle(req)
		case <-ticker.C:
			e.handle(request{kind: reqSweep})
		}
	}
}

// drain answers queued requests with a stopped reject so callers do
// not hang on shutdown.
func (e *Engine) drain() {
	for {
		select {
		case req := <-e.ch:
			if req.reply != nil {
				req.reply <- SubmitResult{Ok: false, Reject: schema.GetRej(schema.RejectReasonGatewayDown, "core stopped")}
			}
			if req.cmdResp != nil {
				req.cmdResp <- schema.Command{Type: schema.CommandTypeResponse, Body: "core stopped"}
			}
		default:
			return
		}
	}
}

func (e *Engine) send(ctx context.Context, req request) error {
	select {
	case e.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineStopped
	}
}

// SubmitNew submits a new order and waits for the synchronous verdict.
func (e *Engine) SubmitNew(ctx context.Context, params orders.NewOrderParams) (SubmitResult, error) {
	reply := make(chan SubmitResult, 1)
	if err := e.send(ctx, request{kind: reqSubmitNew, params: params, reply: reply}); err != nil {
		return SubmitResult{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	}
}

// SubmitMod submits a price modify for a live order.
func (e *Engine) SubmitMod(ctx context.Context, orderID schema.OrderID, newPrice schema.Price) (SubmitResult, error) {
	reply := make(chan SubmitResult, 1)
	if err := e.send(ctx, request{kind: reqSubmitMod, orderID: orderID, newPrice: newPrice, reply: reply}); err != nil {
		return SubmitResult{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	}
}

// SubmitCxl submits a cancel for a live order.
func (e *Engine) SubmitCxl(ctx context.Context, orderID schema.OrderID) (SubmitResult, error) {
	reply := make(chan SubmitResult, 1)
	if err := e.send(ctx, request{kind: reqSubmitCxl, orderID: orderID, reply: reply}); err != nil {
		return SubmitResult{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	}
}

// PostQuote hands a market data update to the actor without blocking.
// Quotes are droppable: a newer one always follows.
func (e *Engine) PostQuote(quote schema.Quote) {
	select {
	case e.ch <- request{kind: reqQuote, quote: quote}:
	default:
		logs.Warnf("core queue full, dropped quote for instrument %d", quote.InstrumentID)
	}
}

// PostExternalFill injects a position adjustment that has no local
// order, e.g. recovered state or drop-copy reconciliation.
func (e *Engine) PostExternalFill(ctx context.Context, fill schema.Fill) error {
	fill.Type = schema.FillTypeExternal
	return e.send(ctx, request{kind: reqExternalFill, fill: fill})
}

// Execute runs an operator command and waits for the response.
func (e *Engine) Execute(ctx context.Context, cmd schema.Command) (schema.Command, error) {
	resp := make(chan schema.Command, 1)
	if err := e.send(ctx, request{kind: reqCommand, command: cmd, cmdResp: resp}); err != nil {
		return schema.Command{}, err
	}
	select {
	case out := <-resp:
		return out, nil
	case <-ctx.Done():
		return schema.Command{}, ctx.Err()
	}
}

func (e *Engine) handle(req request) {
	start := e.now()
	e.traceID = e.trace.Next()
	switch req.kind {
	case reqSubmitNew:
		req.reply <- e.handleSubmitNew(req.params)
	case reqSubmitMod:
		req.reply <- e.handleSubmitMod(req.orderID, req.newPrice)
	case reqSubmitCxl:
		req.reply <- e.handleSubmitCxl(req.orderID)
	case reqQuote:
		e.handleQuote(req.quote)
	case reqExternalFill:
		e.OnFill(req.fill)
	case reqCommand:
		req.cmdResp <- e.execute(req.command)
	case reqSweep:
		e.sweep()
	}
	if e.metrics != nil {
		e.metrics.ObserveRequest(e.now().Sub(start).Seconds())
	}
}

func (e *Engine) handleSubmitNew(params orders.NewOrderParams) SubmitResult {
	o := e.table.NewOrder(params)
	ok, rej := e.chain.SendNew(o)
	res := SubmitResult{OrderID: o.ID, Ok: ok, Reject: rej}
	if ok {
		e.auditOrder(schema.EventOrderNew, o, schema.RejectReasonNone)
		if e.metrics != nil {
			e.metrics.OrderSubmitted("new", o.Side)
		}
	} else {
		e.noteReject(rej)
		e.auditOrder(schema.EventOrderRej, o, rej.Reason)
		switch o.State {
		case schema.OrderStatePending:
			// A terminal-stage reject after the table registered the
			// order unwinds through the normal reject path.
			e.chain.OnNewRej(o, rej)
		default:
			// Gate and table rejects never register; the slot goes
			// straight back to the arena.
			e.table.Release(o)
		}
	}
	e.observeTable()
	return res
}

func (e *Engine) handleSubmitMod(orderID schema.OrderID, newPrice schema.Price) SubmitResult {
	o, ok := e.table.GetByID(orderID)
	if !ok {
		rej := schema.GetRej(schema.RejectReasonUnknownOrder, "modify unknown order")
		e.noteReject(rej)
		return SubmitResult{OrderID: orderID, Ok: false, Reject: rej}
	}
	accepted, rej := e.chain.SendMod(o, newPrice)
	if accepted {
		e.auditOrder(schema.EventOrderMod, o, schema.RejectReasonNone)
		if e.metrics != nil {
			e.metrics.OrderSubmitted("mod", o.Side)
		}
	} else {
		e.noteReject(rej)
		// a terminal-stage reject fires after the table moved the
		// order to Modifying; unwind it like an exchange reject
		if terminalReject(rej) {
			e.chain.OnModRej(o, rej)
		}
	}
	return SubmitResult{OrderID: orderID, Ok: accepted, Reject: rej}
}

func (e *Engine) handleSubmitCxl(orderID schema.OrderID) SubmitResult {
	o, ok := e.table.GetByID(orderID)
	if !ok {
		rej := schema.GetRej(schema.RejectReasonUnknownOrder, "cancel unknown order")
		e.noteReject(rej)
		return SubmitResult{OrderID: orderID, Ok: false, Reject: rej}
	}
	accepted, rej := e.chain.SendCxl(o)
	if accepted {
		e.auditOrder(schema.EventOrderCxl, o, schema.RejectReasonNone)
		if e.metrics != nil {
			e.metrics.OrderSubmitted("cxl", o.Side)
		}
	} else {
		e.noteReject(rej)
		if terminalReject(rej) {
			e.chain.OnCxlRej(o, rej)
		}
	}
	return SubmitResult{OrderID: orderID, Ok: accepted, Reject: rej}
}

// terminalReject reports whether the reject came from the matcher or
// gateway stage. Those fire after the table stage already transitioned
// the order, so the transition must be unwound.
func terminalReject(rej schema.Reject) bool {
	return rej.Subtype == schema.RejectSubtypeMatch || rej.Subtype == schema.RejectSubtypeGateway
}

func (e *Engine) handleQuote(quote schema.Quote) {
	e.pnl.OnQuote(quote)
	e.matcher.OnQuote(quote)
}

// dispatchCancel sends the deferred cancel armed while a prior action
// was in flight. It runs on the actor goroutine, called back from the
// table stage during event processing.
func (e *Engine) dispatchCancel(o *orders.Order) {
	if ok, rej := e.matcher.SendCxl(o); !ok {
		logs.Warnf("deferred cancel rejected for order %s: %s", o.ID, rej.Text)
	}
}

func (e *Engine) sweep() {
	alerts := e.table.SweepStuck(e.now())
	for _, alert := range alerts {
		e.raiseAlert(alert)
	}
	e.observeTable()
	if e.metrics != nil {
		e.metrics.SetThrottleLatched(e.throttle.Latched())
		if e.publisher != nil {
			e.metrics.SetAuditDrops(e.publisher.Drops())
		}
	}
	e.auditPnL()
}

func (e *Engine) raiseAlert(alert schema.Alert) {
	logs.Warnf("alert %s: %s", alert.Type, alert.Text)
	if e.metrics != nil {
		e.metrics.AlertRaised(alert.Type)
	}
	if e.publisher != nil {
		e.publisher.Alert(audit.SourceCore, alert)
	}
	if e.alerts != nil {
		e.alerts.OnAlert(alert)
	}
}

func (e *Engine) observeTable() {
	if e.metrics == nil {
		return
	}
	e.metrics.SetLiveOrders(e.table.LiveCount())
	for _, pos := range e.table.AccountPositions() {
		inst, ok := e.registry.Instrument(pos.InstrumentID)
		if !ok {
			continue
		}
		e.metrics.SetNetPosition(inst.Name, pos.NetPos)
	}
}

func (e *Engine) noteReject(rej schema.Reject) {
	if e.metrics != nil {
		e.metrics.OrderRejected(rej.Subtype)
	}
}

func (e *Engine) auditOrder(eventType schema.EventType, o *orders.Order, reason schema.RejectReason) {
	if e.publisher == nil {
		return
	}
	e.publisher.Order(eventType, audit.SourceCore, o.UpdatedTs, e.traceID, schema.OrderEvent{
		OrderID:      o.ID,
		AccountID:    o.AccountID,
		StrategyID:   o.StrategyID,
		InstrumentID: o.InstrumentID,
		Side:         o.Side,
		Type:         o.Type,
		TimeInForce:  o.TimeInForce,
		State:        o.State,
		Reason:       reason,
		Price:        o.Price,
		NewPrice:     o.NewPrice,
		Qty:          o.Qty,
		CumQty:       o.CumQty,
	})
}

func (e *Engine) auditPnL() {
	if e.publisher == nil {
		return
	}
	account := e.pnl.Account()
	e.publisher.PnL(audit.SourceCore, 0, e.traceID, schema.PnLSnapshot{
		AccountID:     e.risk.AccountID(),
		Position:      account.Position,
		AvgPrice:      account.AvgPrice,
		RealizedPnL:   account.RealizedPnL,
		UnrealizedPnL: account.UnrealizedPnL,
		FeesPaid:      account.FeesPaid,
		MaxPnL:        account.MaxPnL,
		MinPnL:        account.MinPnL,
	})
	if e.metrics != nil {
		e.metrics.SetTotalPnL("account", account.TotalPnL())
	}
}

// OnNewAck implements match.Listener on the actor goroutine.
func (e *Engine) OnNewAck(orderID schema.OrderID) {
	o, ok := e.table.GetByID(orderID)
	if !ok {
		e.untracked("new ack", orderID)
		return
	}
	e.chain.OnNewAck(o)
	e.auditOrder(schema.EventOrderAck, o, schema.RejectReasonNone)
}

// OnModAck implements match.Listener.
func (e *Engine) OnModAck(orderID schema.OrderID) {
	o, ok := e.table.GetByID(orderID)
	if !ok {
		e.untracked("mod ack", orderID)
		return
	}
	e.chain.OnModAck(o)
	e.auditOrder(schema.EventOrderAck, o, schema.RejectReasonNone)
}

// OnCxlAck implements match.Listener.
func (e *Engine) OnCxlAck(orderID schema.OrderID) {
	o, ok := e.table.GetByID(orderID)
	if !ok {
		e.untracked("cxl ack", orderID)
		return
	}
	e.chain.OnCxlAck(o)
	e.auditOrder(schema.EventOrderAck, o, schema.RejectReasonNone)
	e.observeTable()
}

// OnExpired implements match.Listener. The venue cancelled an
// unfilled remainder without a client cancel in flight.
func (e *Engine) OnExpired(orderID schema.OrderID) {
	o, ok := e.table.GetByID(orderID)
	if !ok {
		e.untracked("expire", orderID)
		return
	}
	e.chain.OnExpired(o)
	e.auditOrder(schema.EventOrderCxl, o, schema.RejectReasonNone)
	e.observeTable()
}

// OnFill implements match.Listener. External fills have no local
// order and only move the position counters and PnL.
func (e *Engine) OnFill(fill schema.Fill) {
	var o *orders.Order
	if fill.Type != schema.FillTypeExternal {
		var ok bool
		o, ok = e.table.GetByID(fill.OrderID)
		if !ok {
			e.untracked("fill", fill.OrderID)
			return
		}
	}
	e.chain.OnFill(o, fill)
	if e.metrics != nil {
		e.metrics.FillProcessed(fill.Type)
	}
	if e.publisher != nil {
		e.publisher.Fill(audit.SourceMatch, 0, e.traceID, fill)
		pos := e.table.AccountPosition(fill.AccountID, fill.InstrumentID)
		e.publisher.Position(audit.SourceCore, 0, e.traceID, schema.PositionUpdate{
			AccountID:    pos.AccountID,
			InstrumentID: pos.InstrumentID,
			OpenBid:      pos.OpenBid,
			OpenAsk:      pos.OpenAsk,
			NetPos:       pos.NetPos,
		})
	}
	e.observeTable()
}

func (e *Engine) untracked(event string, orderID schema.OrderID) {
	e.raiseAlert(schema.Alert{
		Type: schema.AlertTypeUntrackedMessage,
		Text: "untracked " + event + " for order " + orderID.String(),
	})
}
