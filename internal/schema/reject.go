package schema

// RejectType separates locally produced rejects from exchange rejects.
type RejectType uint16

const (
	RejectTypeUnknown RejectType = iota
	RejectTypeInternal
	RejectTypeExternal
)

// RejectSubtype identifies which gate produced a reject.
type RejectSubtype uint16

const (
	RejectSubtypeUnknown RejectSubtype = iota
	RejectSubtypeThrottle
	RejectSubtypeRisk
	RejectSubtypePnL
	RejectSubtypeOrders
	RejectSubtypeMatch
	RejectSubtypeGateway
)

func (s RejectSubtype) String() string {
	switch s {
	case RejectSubtypeThrottle:
		return "Throttle"
	case RejectSubtypeRisk:
		return "Risk"
	case RejectSubtypePnL:
		return "PnL"
	case RejectSubtypeOrders:
		return "Orders"
	case RejectSubtypeMatch:
		return "Match"
	case RejectSubtypeGateway:
		return "Gateway"
	default:
		return "Unknown"
	}
}

// RejectReason is the enumerated failure code carried by a reject.
type RejectReason uint16

const (
	RejectReasonNone RejectReason = iota

	// ThrottleGate.
	RejectReasonThrottleNew
	RejectReasonThrottleMod
	RejectReasonThrottleCxl

	// RiskGate, in check order.
	RejectReasonAccountMismatch
	RejectReasonAccountDisabled
	RejectReasonInstrumentUnknown
	RejectReasonInstrumentDisabled
	RejectReasonClipSize
	RejectReasonMaxPosition

	// PnLEngine loss-limit gate.
	RejectReasonRealizedLoss
	RejectReasonUnrealizedLoss
	RejectReasonTotalLoss
	RejectReasonRealizedDrawdown
	RejectReasonUnrealizedDrawdown

	// OrderTable.
	RejectReasonDuplicateOrderID
	RejectReasonInvalidQty
	RejectReasonInvalidPrice
	RejectReasonInvalidState
	RejectReasonSamePrice
	RejectReasonMaxMod
	RejectReasonMaxModRej
	RejectReasonMaxCxlRej
	RejectReasonUnknownOrder

	// Matching engine / gateway.
	RejectReasonNoSuchBook
	RejectReasonGatewayDown
)

// Reject is a synchronously produced validation failure. It is a value
// type, returned to the caller and never queued.
type Reject struct {
	Type    RejectType
	Subtype RejectSubtype
	Reason  RejectReason
	Text    string
}

// reasonSubtypes maps each reason to the gate that produces it.
var reasonSubtypes = map[RejectReason]RejectSubtype{
	RejectReasonThrottleNew:        RejectSubtypeThrottle,
	RejectReasonThrottleMod:        RejectSubtypeThrottle,
	RejectReasonThrottleCxl:        RejectSubtypeThrottle,
	RejectReasonAccountMismatch:    RejectSubtypeRisk,
	RejectReasonAccountDisabled:    RejectSubtypeRisk,
	RejectReasonInstrumentUnknown:  RejectSubtypeRisk,
	RejectReasonInstrumentDisabled: RejectSubtypeRisk,
	RejectReasonClipSize:           RejectSubtypeRisk,
	RejectReasonMaxPosition:        RejectSubtypeRisk,
	RejectReasonRealizedLoss:       RejectSubtypePnL,
	RejectReasonUnrealizedLoss:     RejectSubtypePnL,
	RejectReasonTotalLoss:          RejectSubtypePnL,
	RejectReasonRealizedDrawdown:   RejectSubtypePnL,
	RejectReasonUnrealizedDrawdown: RejectSubtypePnL,
	RejectReasonDuplicateOrderID:   RejectSubtypeOrders,
	RejectReasonInvalidQty:         RejectSubtypeOrders,
	RejectReasonInvalidPrice:       RejectSubtypeOrders,
	RejectReasonInvalidState:       RejectSubtypeOrders,
	RejectReasonSamePrice:          RejectSubtypeOrders,
	RejectReasonMaxMod:             RejectSubtypeOrders,
	RejectReasonMaxModRej:          RejectSubtypeOrders,
	RejectReasonMaxCxlRej:          RejectSubtypeOrders,
	RejectReasonUnknownOrder:       RejectSubtypeOrders,
	RejectReasonNoSuchBook:         RejectSubtypeMatch,
	RejectReasonGatewayDown:        RejectSubtypeGateway,
}

// GetRej builds the canonical internal reject for a reason. Repeated
// calls with the same reason produce structurally equal values; the
// free-text detail is the only variable part.
func GetRej(reason RejectReason, text string) Reject {
	return Reject{
		Type:    RejectTypeInternal,
		Subtype: reasonSubtypes[reason],
		Reason:  reason,
		Text:    text,
	}
}

// GetExternalRej builds a reject carrying an exchange-originated failure.
func GetExternalRej(reason RejectReason, text string) Reject {
	rej := GetRej(reason, text)
	rej.Type = RejectTypeExternal
	return rej
}

// IsZero reports whether the reject carries no failure.
func (r Reject) IsZero() bool {
	return r.Reason == RejectReasonNone && r.Type == RejectTypeUnknown
}
