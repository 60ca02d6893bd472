package schema

// OrderEvent is the audit-facing snapshot of an order at a lifecycle
// transition. The event type in the surrounding header says which
// transition it was.
type OrderEvent struct {
	OrderID      OrderID
	AccountID    AccountID
	StrategyID   StrategyID
	InstrumentID InstrumentID
	Side         OrderSide
	Type         OrderType
	TimeInForce  TimeInForce
	State        OrderState
	Reason       RejectReason
	Price        Price
	NewPrice     Price
	Qty          Quantity
	CumQty       Quantity
}

// PositionUpdate is the audit-facing snapshot of one counter entry.
// StrategyID is zero for account-scoped entries.
type PositionUpdate struct {
	AccountID    AccountID
	StrategyID   StrategyID
	InstrumentID InstrumentID
	OpenBid      Quantity
	OpenAsk      Quantity
	NetPos       Quantity
}

// PnLSnapshot is the audit-facing snapshot of one PnL composite node.
// A zero StrategyID means the account aggregate; a zero InstrumentID
// means a strategy aggregate.
type PnLSnapshot struct {
	AccountID     AccountID
	StrategyID    StrategyID
	InstrumentID  InstrumentID
	Position      Quantity
	AvgPrice      Price
	RealizedPnL   Notional
	UnrealizedPnL Notional
	FeesPaid      Notional
	MaxPnL        Notional
	MinPnL        Notional
}
