package schema

// CommandType is the top-level operator command category.
type CommandType uint16

const (
	CommandTypeUnknown CommandType = iota
	CommandTypeQuery
	CommandTypeControl
	CommandTypeResponse
)

// CommandSubType selects the concrete operation.
type CommandSubType uint16

const (
	CommandSubTypeUnknown CommandSubType = iota
	CommandSubTypeListOrders
	CommandSubTypeListPositions
	CommandSubTypePnLSnapshot
	CommandSubTypeThrottleReset
	CommandSubTypeUpdateAccount
	CommandSubTypeUpdateAccountInstrument
)

// Command is the generic operator console message. Responses are
// serialized back as the same shape; the connection id is opaque to
// the core.
type Command struct {
	Type    CommandType       `json:"type"`
	SubType CommandSubType    `json:"subType"`
	Params  map[string]string `json:"params,omitempty"`
	Body    string            `json:"body,omitempty"`
}
