package pnl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yanun0323/errors"

	"main/internal/orders"
	"main/internal/schema"
)

// Limits configures the loss and drawdown gates. Values are positive
// magnitudes; zero disables the individual check.
type Limits struct {
	MaxRealizedLoss       schema.Notional
	MaxUnrealizedLoss     schema.Notional
	MaxTotalLoss          schema.Notional
	MaxRealizedDrawdown   schema.Notional
	MaxUnrealizedDrawdown schema.Notional
}

func (l Limits) isZero() bool {
	return l == Limits{}
}

// Config defines the PnL engine limits for one account.
type Config struct {
	AccountID schema.AccountID
	Account   Limits
	// Strategies carries per-strategy limits; strategies without an
	// entry fall back to Default.
	Strategies map[schema.StrategyID]Limits
	Default    Limits
	// ProximityFraction raises an alert when a loss check passes but
	// exceeds this fraction of its limit. Zero disables the alert.
	ProximityFraction float64
}

type strategyNode struct {
	strategyID schema.StrategyID
	metrics    Metrics
	// leaves is the ordered observer list of child instrument ids.
	leaves []schema.InstrumentID
}

type leafKey struct {
	strategyID   schema.StrategyID
	instrumentID schema.InstrumentID
}

// Engine is the three-level PnL composite for one account: instrument
// leaves feed strategy aggregates which feed the account aggregate.
// All propagation is incremental; totals are never recomputed after a
// mutation. Not safe for concurrent use; the core serializes access.
type Engine struct {
	cfg Config

	account    Metrics
	strategies map[schema.StrategyID]*strategyNode
	// strategyOrder is the ordered observer list of child strategies.
	strategyOrder []schema.StrategyID
	leaves        map[leafKey]*leaf
	// byInstrument indexes leaves for quote fan-out, so a tick costs
	// O(leaves for that instrument).
	byInstrument map[schema.InstrumentID][]*leaf

	alerts schema.AlertSink
}

// NewEngine creates a PnL engine for one account. A zero account id is
// a hard initialization failure.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.AccountID == 0 {
		return nil, errors.New("pnl: account not configured")
	}
	return &Engine{
		cfg:          cfg,
		strategies:   make(map[schema.StrategyID]*strategyNode),
		leaves:       make(map[leafKey]*leaf),
		byInstrument: make(map[schema.InstrumentID][]*leaf),
	}, nil
}

// SetAlertSink registers the sink for loss-limit proximity alerts.
func (e *Engine) SetAlertSink(sink schema.AlertSink) {
	e.alerts = sink
}

// Account returns the account-level metrics snapshot.
func (e *Engine) Account() Metrics {
	return e.account
}

// Strategy returns the strategy-level metrics snapshot.
func (e *Engine) Strategy(strategyID schema.StrategyID) (Metrics, bool) {
	node, ok := e.strategies[strategyID]
	if !ok {
		return Metrics{}, false
	}
	return node.metrics, true
}

// Leaf returns the (strategy,instrument) leaf metrics snapshot.
func (e *Engine) Leaf(strategyID schema.StrategyID, instrumentID schema.InstrumentID) (Metrics, bool) {
	l, ok := e.leaves[leafKey{strategyID, instrumentID}]
	if !ok {
		return Metrics{}, false
	}
	return l.metrics, true
}

// node lookup creates leaves and strategy aggregates lazily; they are
// never destroyed during the process lifetime.
func (e *Engine) leafFor(strategyID schema.StrategyID, instrumentID schema.InstrumentID) *leaf {
	key := leafKey{strategyID, instrumentID}
	l, ok := e.leaves[key]
	if ok {
		return l
	}
	l = &leaf{strategyID: strategyID, instrumentID: instrumentID}
	e.leaves[key] = l
	e.byInstrument[instrumentID] = append(e.byInstrument[instrumentID], l)

	node, ok := e.strategies[strategyID]
	if !ok {
		node = &strategyNode{strategyID: strategyID}
		e.strategies[strategyID] = node
		e.strategyOrder = append(e.strategyOrder, strategyID)
	}
	node.leaves = append(node.leaves, instrumentID)
	return l
}

// propagate walks a leaf delta up through the strategy aggregate into
// the account aggregate.
func (e *Engine) propagate(strategyID schema.StrategyID, d delta) {
	if d.isZero() {
		return
	}
	e.strategies[strategyID].metrics.apply(d)
	e.account.apply(d)
}

// OnFill books an execution into the composite. External fills with no
// strategy attribution are booked under their fill's strategy id as
// position adjustments.
func (e *Engine) OnFill(fill schema.Fill) {
	if fill.Qty <= 0 {
		return
	}
	l := e.leafFor(fill.StrategyID, fill.InstrumentID)
	e.propagate(fill.StrategyID, l.applyFill(fill))
}

// OnQuote re-marks every leaf referencing the updated instrument.
func (e *Engine) OnQuote(quote schema.Quote) {
	if !quote.IsLevelUpdate() && !quote.IsNormalTrade() {
		return
	}
	mark := markPrice(quote)
	if mark <= 0 {
		return
	}
	for _, l := range e.byInstrument[quote.InstrumentID] {
		e.propagate(l.strategyID, l.applyMark(mark))
	}
}

// markPrice prefers the trade print, then the book mid.
func markPrice(quote schema.Quote) schema.Price {
	if quote.IsNormalTrade() {
		return quote.Last.Price
	}
	if len(quote.Bids) > 0 && len(quote.Asks) > 0 {
		return (quote.Bids[0].Price + quote.Asks[0].Price) / 2
	}
	if len(quote.Bids) > 0 {
		return quote.Bids[0].Price
	}
	if len(quote.Asks) > 0 {
		return quote.Asks[0].Price
	}
	return 0
}

// SendNew gates a new order against the account-level limits, then the
// strategy-level limits, in a fixed check order, short-circuiting on
// the first breach. A breached check still admits the order when it
// strictly reduces the current net position.
func (e *Engine) SendNew(o *orders.Order) (bool, schema.Reject) {
	if ok, rej := e.checkLevel(e.account, e.cfg.Account, o); !ok {
		return false, rej
	}
	node, exists := e.strategies[o.StrategyID]
	if !exists {
		// First order for this strategy: nothing accrued yet.
		return true, schema.Reject{}
	}
	return e.checkLevel(node.metrics, e.strategyLimits(o.StrategyID), o)
}

func (e *Engine) strategyLimits(strategyID schema.StrategyID) Limits {
	if limits, ok := e.cfg.Strategies[strategyID]; ok {
		return limits
	}
	return e.cfg.Default
}

type lossCheck struct {
	reason  schema.RejectReason
	current schema.Notional
	limit   schema.Notional
}

func levelChecks(m Metrics, limits Limits) []lossCheck {
	return []lossCheck{
		{schema.RejectReasonRealizedLoss, -m.RealizedPnL, limits.MaxRealizedLoss},
		{schema.RejectReasonUnrealizedLoss, -m.UnrealizedPnL, limits.MaxUnrealizedLoss},
		{schema.RejectReasonTotalLoss, -m.TotalPnL(), limits.MaxTotalLoss},
		{schema.RejectReasonRealizedDrawdown, m.RealizedDrawdown(), limits.MaxRealizedDrawdown},
		{schema.RejectReasonUnrealizedDrawdown, m.UnrealizedDrawdown(), limits.MaxUnrealizedDrawdown},
	}
}

func (e *Engine) checkLevel(m Metrics, limits Limits, o *orders.Order) (bool, schema.Reject) {
	if limits.isZero() {
		return true, schema.Reject{}
	}
	for _, check := range levelChecks(m, limits) {
		if check.limit <= 0 {
			continue
		}
		if check.current > check.limit {
			if reducesExposure(m.Position, o.Side) {
				continue
			}
			return false, schema.GetRej(check.reason,
				fmt.Sprintf("%d :: %d", check.current, check.limit))
		}
		e.maybeAlertProximity(o.StrategyID, check)
	}
	return true, schema.Reject{}
}

// reducesExposure reports whether the order strictly closes the
// current net position. A flat position blocks everything.
func reducesExposure(position schema.Quantity, side schema.OrderSide) bool {
	switch {
	case position > 0:
		return side == schema.OrderSideSell
	case position < 0:
		return side == schema.OrderSideBuy
	default:
		return false
	}
}

func (e *Engine) maybeAlertProximity(strategyID schema.StrategyID, check lossCheck) {
	if e.alerts == nil || e.cfg.ProximityFraction <= 0 || check.current <= 0 {
		return
	}
	threshold := schema.Notional(float64(check.limit) * e.cfg.ProximityFraction)
	if check.current >= threshold {
		e.alerts.OnAlert(schema.Alert{
			Type:       schema.AlertTypeLossLimitProximity,
			StrategyID: strategyID,
			Text:       fmt.Sprintf("loss limit proximity: %d :: %d", check.current, check.limit),
		})
	}
}

// PrintToString renders a snapshot of one strategy, or of every
// strategy when strategyID is zero.
func (e *Engine) PrintToString(strategyID schema.StrategyID) string {
	var b strings.Builder
	writeMetrics := func(label string, m Metrics) {
		fmt.Fprintf(&b, "%s pos=%d avg=%d real=%d unreal=%d fees=%d max=%d min=%d\n",
			label, m.Position, m.AvgPrice, m.RealizedPnL, m.UnrealizedPnL,
			m.FeesPaid, m.MaxPnL, m.MinPnL)
	}

	ids := e.strategyOrder
	if strategyID != 0 {
		ids = []schema.StrategyID{strategyID}
	}
	writeMetrics(fmt.Sprintf("account %d", e.cfg.AccountID), e.account)
	for _, id := range ids {
		node, ok := e.strategies[id]
		if !ok {
			fmt.Fprintf(&b, "strategy %d: no activity\n", id)
			continue
		}
		writeMetrics(fmt.Sprintf("  strategy %d", id), node.metrics)
		instruments := append([]schema.InstrumentID(nil), node.leaves...)
		sort.Slice(instruments, func(i, j int) bool { return instruments[i] < instruments[j] })
		for _, instrumentID := range instruments {
			l := e.leaves[leafKey{id, instrumentID}]
			writeMetrics(fmt.Sprintf("    instrument %d", instrumentID), l.metrics)
		}
	}
	return b.String()
}
