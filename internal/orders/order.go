package orders

import "main/internal/schema"

// Action is the last command applied to an order.
type Action uint16

const (
	ActionNone Action = iota
	ActionNew
	ActionMod
	ActionCxl
)

// CancelOnAck marks a cancel requested while a prior action was still
// in flight. It is honored as soon as that action acknowledges.
type CancelOnAck uint16

const (
	CancelOnAckNone CancelOnAck = iota
	CancelOnAckPending
)

// Order is the canonical live-order record. The table exclusively owns
// the instance; every other component addresses it through its Ref.
type Order struct {
	ref Ref

	ID           schema.OrderID
	ClOrdID      string
	OrigClOrdID  string
	AccountID    schema.AccountID
	StrategyID   schema.StrategyID
	InstrumentID schema.InstrumentID
	Side         schema.OrderSide
	Type         schema.OrderType
	TimeInForce  schema.TimeInForce

	Qty      schema.Quantity
	CumQty   schema.Quantity
	Price    schema.Price
	NewPrice schema.Price

	State      schema.OrderState
	LastAction Action

	modsInFlight int
	modRejCount  int
	cxlRejCount  int
	cancelOnAck  CancelOnAck

	SubmittedTs int64
	UpdatedTs   int64
}

// Ref returns the arena reference of the order.
func (o *Order) Ref() Ref {
	return o.ref
}

// Leaves returns the open (unfilled) quantity.
func (o *Order) Leaves() schema.Quantity {
	leaves := o.Qty - o.CumQty
	if leaves < 0 {
		return 0
	}
	return leaves
}

// ModsInFlight returns the number of unacknowledged modifies.
func (o *Order) ModsInFlight() int {
	return o.modsInFlight
}

// CancelPending reports whether a deferred cancel is armed.
func (o *Order) CancelPending() bool {
	return o.cancelOnAck == CancelOnAckPending
}
