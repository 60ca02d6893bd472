package schema

// AlertType classifies operator alerts raised by the core.
type AlertType uint16

const (
	AlertTypeUnknown AlertType = iota
	AlertTypeStuckOrders
	AlertTypeLossLimitProximity
	AlertTypeUntrackedMessage
	AlertTypeConnectivity
)

func (t AlertType) String() string {
	switch t {
	case AlertTypeStuckOrders:
		return "StuckOrders"
	case AlertTypeLossLimitProximity:
		return "LossLimitProximity"
	case AlertTypeUntrackedMessage:
		return "UntrackedMessage"
	case AlertTypeConnectivity:
		return "Connectivity"
	default:
		return "Unknown"
	}
}

// Alert is pushed to the registered alert sink. The core never blocks
// on the sink.
type Alert struct {
	Type       AlertType
	StrategyID StrategyID
	Text       string
}

// AlertSink receives alerts from the core.
type AlertSink interface {
	OnAlert(alert Alert)
}

// AlertFunc adapts a function to the AlertSink interface.
type AlertFunc func(alert Alert)

func (f AlertFunc) OnAlert(alert Alert) {
	f(alert)
}
