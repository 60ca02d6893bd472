package schema

import "github.com/google/uuid"

// Price is a scaled integer. The scale is defined per instrument.
type Price int64

// Quantity is a scaled integer. The scale is defined per instrument.
type Quantity int64

// Notional is a scaled integer money amount in quote currency units.
type Notional int64

// Fee is a scaled integer in quote currency units.
type Fee int64

// AccountID is the numeric identifier for a trading account.
type AccountID uint32

// StrategyID is the numeric identifier for a strategy.
type StrategyID uint32

// OrderID is the process-unique order identifier.
type OrderID = uuid.UUID

// NewOrderID returns a fresh process-unique order id.
func NewOrderID() OrderID {
	return uuid.New()
}

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "Buy"
	case OrderSideSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return OrderSideUnknown
	}
}

// OrderType describes order type. OrderTypeSim marks synthetic resting
// depth inside the matching engine; a Sim order never leaves the book.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	OrderTypeSim
)

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceDay
	TimeInForceIOC
)

// OrderState tracks the lifecycle of an order.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStatePending
	OrderStateWorking
	OrderStateModifying
	OrderStateCancelling
	OrderStateFilled
	OrderStateCancelled
	OrderStateRejected
)

// IsTerminal reports whether the state removes the order from the table.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected:
		return true
	default:
		return false
	}
}

// IsTransient reports whether the order is waiting on an acknowledgment.
func (s OrderState) IsTransient() bool {
	switch s {
	case OrderStatePending, OrderStateModifying, OrderStateCancelling:
		return true
	default:
		return false
	}
}

func (s OrderState) String() string {
	switch s {
	case OrderStatePending:
		return "Pending"
	case OrderStateWorking:
		return "Working"
	case OrderStateModifying:
		return "Modifying"
	case OrderStateCancelling:
		return "Cancelling"
	case OrderStateFilled:
		return "Filled"
	case OrderStateCancelled:
		return "Cancelled"
	case OrderStateRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// FillType describes the origin of a fill.
type FillType uint16

const (
	FillTypeUnknown FillType = iota
	// FillTypeNormal is a regular execution against a local order.
	FillTypeNormal
	// FillTypeBusted reverses a previously reported execution.
	FillTypeBusted
	// FillTypeExternal adjusts position without a local order.
	FillTypeExternal
)

func (t FillType) String() string {
	switch t {
	case FillTypeNormal:
		return "Normal"
	case FillTypeBusted:
		return "Busted"
	case FillTypeExternal:
		return "External"
	default:
		return "Unknown"
	}
}

// Liquidity indicates whether a fill added or removed resting liquidity.
type Liquidity uint16

const (
	LiquidityUnknown Liquidity = iota
	LiquidityAdd
	LiquidityRemove
)

// Fill is an execution report consumed exactly once by the position
// tracker and the PnL engine, then handed to the audit collaborator.
type Fill struct {
	Type         FillType
	OrderID      OrderID
	AccountID    AccountID
	StrategyID   StrategyID
	InstrumentID InstrumentID
	Side         OrderSide
	Price        Price
	Qty          Quantity
	Fee          Fee
	Liquidity    Liquidity
}

// QuoteDepth is the fixed book depth carried by a quote.
const QuoteDepth = 5

// Quote flags.
const (
	QuoteFlagLevelUpdate uint16 = 1 << iota
	QuoteFlagNormalTrade
)

// QuoteLevel is a single price level of a quote book.
type QuoteLevel struct {
	Price Price
	Size  Quantity
}

// QuoteTrade is the optional last trade attached to a quote.
type QuoteTrade struct {
	Price Price
	Size  Quantity
}

// Quote is a fixed-depth market data update for a single instrument.
type Quote struct {
	InstrumentID InstrumentID
	Flags        uint16
	Bids         []QuoteLevel
	Asks         []QuoteLevel
	Last         *QuoteTrade
	TsEvent      int64
}

// IsLevelUpdate reports whether the quote changed book levels.
func (q Quote) IsLevelUpdate() bool {
	return q.Flags&QuoteFlagLevelUpdate != 0
}

// IsNormalTrade reports whether the quote carries a regular trade print.
func (q Quote) IsNormalTrade() bool {
	return q.Flags&QuoteFlagNormalTrade != 0 && q.Last != nil
}
