package orders

import (
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Limits bounds the modify/cancel counters of a single order.
type Limits struct {
	MaxMod    int
	MaxModRej int
	MaxCxlRej int
}

func (l Limits) withDefaults() Limits {
	if l.MaxMod <= 0 {
		l.MaxMod = 8
	}
	if l.MaxModRej <= 0 {
		l.MaxModRej = 3
	}
	if l.MaxCxlRej <= 0 {
		l.MaxCxlRej = 3
	}
	return l
}

// Config controls the order table.
type Config struct {
	Limits Limits
	// StuckAge is how long an order may sit in a transient state
	// before the sweep reports it.
	StuckAge time.Duration
	// RetiredDepth is how many filled orders stay resolvable for
	// trade busts before their slots are recycled.
	RetiredDepth int
}

func (c Config) withDefaults() Config {
	c.Limits = c.Limits.withDefaults()
	if c.StuckAge <= 0 {
		c.StuckAge = 30 * time.Second
	}
	if c.RetiredDepth <= 0 {
		c.RetiredDepth = 1024
	}
	return c
}

// Table owns the canonical set of live orders and the position
// counters derived from them. It is not safe for concurrent use; the
// core engine serializes all access.
type Table struct {
	cfg   Config
	arena *Arena
	byID  map[schema.OrderID]Ref

	// retired holds filled orders, oldest first, until the bust
	// horizon pushes them out.
	retired []Ref

	acctPos  map[AccountInstrKey]*AccountInstrPos
	stratPos map[StrategyInstrKey]*StrategyInstrPos

	now func() time.Time
}

// NewTable creates an empty order table.
func NewTable(cfg Config) *Table {
	return &Table{
		cfg:      cfg.withDefaults(),
		arena:    NewArena(256),
		byID:     make(map[schema.OrderID]Ref),
		acctPos:  make(map[AccountInstrKey]*AccountInstrPos),
		stratPos: make(map[StrategyInstrKey]*StrategyInstrPos),
		now:      time.Now,
	}
}

// SetClock overrides the table clock, for tests.
func (t *Table) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// NewOrderParams carries everything needed to allocate an order.
type NewOrderParams struct {
	AccountID    schema.AccountID
	StrategyID   schema.StrategyID
	InstrumentID schema.InstrumentID
	Side         schema.OrderSide
	Type         schema.OrderType
	TimeInForce  schema.TimeInForce
	Qty          schema.Quantity
	Price        schema.Price
}

// NewOrder allocates an order slot and assigns its identity. The order
// stays in Unknown state until SubmitNew registers it; if an upstream
// gate rejects it first, the caller releases the slot.
func (t *Table) NewOrder(params NewOrderParams) *Order {
	o, _ := t.arena.Alloc()
	o.ID = schema.NewOrderID()
	o.AccountID = params.AccountID
	o.StrategyID = params.StrategyID
	o.InstrumentID = params.InstrumentID
	o.Side = params.Side
	o.Type = params.Type
	o.TimeInForce = params.TimeInForce
	o.Qty = params.Qty
	o.Price = params.Price
	o.State = schema.OrderStateUnknown
	o.SubmittedTs = t.now().UnixNano()
	o.UpdatedTs = o.SubmittedTs
	return o
}

// Get resolves an order by arena reference.
func (t *Table) Get(ref Ref) (*Order, bool) {
	return t.arena.Get(ref)
}

// GetByID resolves a live (or recently filled) order by id.
func (t *Table) GetByID(id schema.OrderID) (*Order, bool) {
	ref, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return t.arena.Get(ref)
}

// Release returns an unregistered order slot to the arena.
func (t *Table) Release(o *Order) {
	t.arena.Release(o.ref)
}

// SubmitNew validates and registers a new order. On success the order
// moves to Pending and its open quantity is counted; any validation
// failure routes through the reject path and leaves the table unchanged.
func (t *Table) SubmitNew(o *Order) (bool, schema.Reject) {
	if o.State != schema.OrderStateUnknown {
		return false, t.rejectNew(o, schema.RejectReasonInvalidState,
			fmt.Sprintf("submit new from state %s", o.State))
	}
	if o.Qty <= 0 {
		return false, t.rejectNew(o, schema.RejectReasonInvalidQty,
			fmt.Sprintf("qty %d", o.Qty))
	}
	if o.Type == schema.OrderTypeLimit && o.Price <= 0 {
		return false, t.rejectNew(o, schema.RejectReasonInvalidPrice,
			fmt.Sprintf("price %d", o.Price))
	}
	if _, exists := t.byID[o.ID]; exists {
		return false, t.rejectNew(o, schema.RejectReasonDuplicateOrderID, o.ID.String())
	}

	o.State = schema.OrderStatePending
	o.LastAction = ActionNew
	o.UpdatedTs = t.now().UnixNano()
	t.byID[o.ID] = o.ref
	t.addOpenQty(o, o.Leaves())
	return true, schema.Reject{}
}

// SubmitMod requests a price change. Valid from Working (moves to
// Modifying) or re-entrantly from Modifying; multiple modifies may be
// in flight, tracked by a counter.
func (t *Table) SubmitMod(o *Order, newPrice schema.Price) (bool, schema.Reject) {
	if newPrice <= 0 {
		return false, schema.GetRej(schema.RejectReasonInvalidPrice,
			fmt.Sprintf("mod price %d", newPrice))
	}
	if newPrice == o.Price {
		return false, schema.GetRej(schema.RejectReasonSamePrice,
			fmt.Sprintf("price already %d", o.Price))
	}
	if o.modRejCount > t.cfg.Limits.MaxModRej {
		return false, schema.GetRej(schema.RejectReasonMaxModRej,
			fmt.Sprintf("%d mod rejects", o.modRejCount))
	}
	switch o.State {
	case schema.OrderStateWorking, schema.OrderStateModifying:
	default:
		return false, schema.GetRej(schema.RejectReasonInvalidState,
			fmt.Sprintf("submit mod from state %s", o.State))
	}
	if o.modsInFlight+1 > t.cfg.Limits.MaxMod {
		return false, schema.GetRej(schema.RejectReasonMaxMod,
			fmt.Sprintf("%d modifies in flight", o.modsInFlight))
	}

	o.modsInFlight++
	o.State = schema.OrderStateModifying
	o.LastAction = ActionMod
	o.NewPrice = newPrice
	o.UpdatedTs = t.now().UnixNano()
	return true, schema.Reject{}
}

// SubmitCxl requests a cancel. From Working/Modifying the order moves
// to Cancelling; from any other live state the cancel is deferred and
// honored when the in-flight action acknowledges.
func (t *Table) SubmitCxl(o *Order) (bool, schema.Reject) {
	if o.cxlRejCount > t.cfg.Limits.MaxCxlRej {
		return false, schema.GetRej(schema.RejectReasonMaxCxlRej,
			fmt.Sprintf("%d cxl rejects", o.cxlRejCount))
	}
	switch o.State {
	case schema.OrderStateWorking, schema.OrderStateModifying:
		o.State = schema.OrderStateCancelling
		o.LastAction = ActionCxl
		o.UpdatedTs = t.now().UnixNano()
		return true, schema.Reject{}
	case schema.OrderStatePending, schema.OrderStateCancelling:
		o.cancelOnAck = CancelOnAckPending
		o.UpdatedTs = t.now().UnixNano()
		return true, schema.Reject{}
	default:
		return false, schema.GetRej(schema.RejectReasonInvalidState,
			fmt.Sprintf("submit cxl from state %s", o.State))
	}
}

// rejectNew applies the local reject path for a failed submission: the
// order is marked Rejected and never registered.
func (t *Table) rejectNew(o *Order, reason schema.RejectReason, text string) schema.Reject {
	o.State = schema.OrderStateRejected
	o.UpdatedTs = t.now().UnixNano()
	return schema.GetRej(reason, text)
}

// Filter narrows Orders queries. Zero fields match everything.
type Filter struct {
	AccountID    schema.AccountID
	StrategyID   schema.StrategyID
	InstrumentID schema.InstrumentID
}

func (f Filter) matches(o *Order) bool {
	if f.AccountID != 0 && o.AccountID != f.AccountID {
		return false
	}
	if f.StrategyID != 0 && o.StrategyID != f.StrategyID {
		return false
	}
	if f.InstrumentID != 0 && o.InstrumentID != f.InstrumentID {
		return false
	}
	return true
}

// Orders returns the live orders matching the filter. Retired (filled)
// orders awaiting the bust horizon are excluded.
func (t *Table) Orders(filter Filter) []*Order {
	out := make([]*Order, 0, len(t.byID))
	for _, ref := range t.byID {
		o, ok := t.arena.Get(ref)
		if !ok || o.State.IsTerminal() {
			continue
		}
		if filter.matches(o) {
			out = append(out, o)
		}
	}
	return out
}

// LiveCount returns the number of live (non-terminal) orders.
func (t *Table) LiveCount() int {
	n := 0
	for _, ref := range t.byID {
		if o, ok := t.arena.Get(ref); ok && !o.State.IsTerminal() {
			n++
		}
	}
	return n
}

// remove reverses the order's open-quantity contribution and drops it
// from the live table. Filled orders stay resolvable until the bust
// horizon recycles them.
func (t *Table) remove(o *Order) {
	t.addOpenQty(o, -o.Leaves())
	if o.State == schema.OrderStateFilled {
		t.retire(o)
		return
	}
	delete(t.byID, o.ID)
	t.arena.Release(o.ref)
}

func (t *Table) retire(o *Order) {
	t.retired = append(t.retired, o.ref)
	for len(t.retired) > t.cfg.RetiredDepth {
		ref := t.retired[0]
		t.retired = t.retired[1:]
		if old, ok := t.arena.Get(ref); ok {
			delete(t.byID, old.ID)
			t.arena.Release(ref)
		}
	}
}

// unretire puts a busted-open order back on the live side.
func (t *Table) unretire(o *Order) {
	for i, ref := range t.retired {
		if ref == o.ref {
			t.retired = append(t.retired[:i], t.retired[i+1:]...)
			break
		}
	}
}

func (t *Table) logIgnored(event string, o *Order) {
	logs.Warnf("ignored %s for order %s in state %s", event, o.ID, o.State)
}
