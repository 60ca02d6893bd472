package pipeline

import (
	"main/internal/orders"
	"main/internal/schema"
)

// Stage is one link of the fixed order chain. Outbound commands run
// through the stages in order and short-circuit on the first reject;
// inbound events run in reverse order.
type Stage interface {
	Name() string

	SendNew(o *orders.Order) (bool, schema.Reject)
	SendMod(o *orders.Order, newPrice schema.Price) (bool, schema.Reject)
	SendCxl(o *orders.Order) (bool, schema.Reject)

	OnNewAck(o *orders.Order)
	OnModAck(o *orders.Order)
	OnCxlAck(o *orders.Order)
	OnExpired(o *orders.Order)
	OnNewRej(o *orders.Order, rej schema.Reject)
	OnModRej(o *orders.Order, rej schema.Reject)
	OnCxlRej(o *orders.Order, rej schema.Reject)
	OnFill(fill schema.Fill)
}

// PassStage is a no-op base for stages that only care about a few
// hooks.
type PassStage struct{}

func (PassStage) SendNew(*orders.Order) (bool, schema.Reject) { return true, schema.Reject{} }
func (PassStage) SendMod(*orders.Order, schema.Price) (bool, schema.Reject) {
	return true, schema.Reject{}
}
func (PassStage) SendCxl(*orders.Order) (bool, schema.Reject) { return true, schema.Reject{} }
func (PassStage) OnNewAck(*orders.Order)                      {}
func (PassStage) OnModAck(*orders.Order)                      {}
func (PassStage) OnCxlAck(*orders.Order)                      {}
func (PassStage) OnExpired(*orders.Order)                     {}
func (PassStage) OnNewRej(*orders.Order, schema.Reject)       {}
func (PassStage) OnModRej(*orders.Order, schema.Reject)       {}
func (PassStage) OnCxlRej(*orders.Order, schema.Reject)       {}
func (PassStage) OnFill(schema.Fill)                          {}
