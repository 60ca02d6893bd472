package pipeline

import (
	"main/internal/orders"
	"main/internal/pnl"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/throttle"
)

// ThrottleStage adapts the throttle gate. A disabled gate passes
// everything through.
type ThrottleStage struct {
	PassStage
	Gate *throttle.Gate
}

func (s *ThrottleStage) Name() string { return "throttle" }

func (s *ThrottleStage) SendNew(o *orders.Order) (bool, schema.Reject) {
	return s.Gate.CheckNew()
}

func (s *ThrottleStage) SendMod(o *orders.Order, newPrice schema.Price) (bool, schema.Reject) {
	return s.Gate.CheckMod()
}

func (s *ThrottleStage) SendCxl(o *orders.Order) (bool, schema.Reject) {
	return s.Gate.CheckCxl()
}

// RiskStage adapts the risk gate. Modifies and cancels always pass.
type RiskStage struct {
	PassStage
	Gate *risk.Gate
}

func (s *RiskStage) Name() string { return "risk" }

func (s *RiskStage) SendNew(o *orders.Order) (bool, schema.Reject) {
	return s.Gate.SendNew(o)
}

// PnLStage adapts the loss-limit gate on the way out and the PnL
// accounting on the way back in.
type PnLStage struct {
	PassStage
	Engine *pnl.Engine
}

func (s *PnLStage) Name() string { return "pnl" }

func (s *PnLStage) SendNew(o *orders.Order) (bool, schema.Reject) {
	return s.Engine.SendNew(o)
}

func (s *PnLStage) OnFill(fill schema.Fill) {
	s.Engine.OnFill(fill)
}

// TableStage adapts the order table: state registration outbound,
// state transitions inbound. DispatchCancel, when set, is invoked for
// a deferred cancel armed by cancel-on-ack semantics.
type TableStage struct {
	PassStage
	Table          *orders.Table
	DispatchCancel func(o *orders.Order)
}

func (s *TableStage) Name() string { return "orders" }

func (s *TableStage) SendNew(o *orders.Order) (bool, schema.Reject) {
	return s.Table.SubmitNew(o)
}

func (s *TableStage) SendMod(o *orders.Order, newPrice schema.Price) (bool, schema.Reject) {
	return s.Table.SubmitMod(o, newPrice)
}

func (s *TableStage) SendCxl(o *orders.Order) (bool, schema.Reject) {
	return s.Table.SubmitCxl(o)
}

func (s *TableStage) OnNewAck(o *orders.Order) {
	if s.Table.OnNewAck(o) && s.DispatchCancel != nil {
		s.DispatchCancel(o)
	}
}

func (s *TableStage) OnModAck(o *orders.Order) {
	if s.Table.OnModAck(o) && s.DispatchCancel != nil {
		s.DispatchCancel(o)
	}
}

func (s *TableStage) OnCxlAck(o *orders.Order) {
	s.Table.OnCxlAck(o)
}

func (s *TableStage) OnExpired(o *orders.Order) {
	s.Table.OnExpired(o)
}

func (s *TableStage) OnNewRej(o *orders.Order, rej schema.Reject) {
	s.Table.OnNewRej(o)
}

func (s *TableStage) OnModRej(o *orders.Order, rej schema.Reject) {
	if s.Table.OnModRej(o, rej.Type == schema.RejectTypeInternal) && s.DispatchCancel != nil {
		s.DispatchCancel(o)
	}
}

func (s *TableStage) OnCxlRej(o *orders.Order, rej schema.Reject) {
	s.Table.OnCxlRej(o)
}

func (s *TableStage) OnFill(fill schema.Fill) {
	s.Table.OnFill(fill)
}
