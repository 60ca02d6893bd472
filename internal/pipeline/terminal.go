package pipeline

import (
	"main/internal/match"
	"main/internal/orders"
	"main/internal/schema"
)

// MatcherStage is the terminal stage in simulation mode: admitted
// commands are dispatched to the matching engine, whose events come
// back through the chain asynchronously.
type MatcherStage struct {
	PassStage
	Engine *match.Engine
}

func (s *MatcherStage) Name() string { return "matcher" }

func (s *MatcherStage) SendNew(o *orders.Order) (bool, schema.Reject) {
	return s.Engine.SendNew(o)
}

func (s *MatcherStage) SendMod(o *orders.Order, newPrice schema.Price) (bool, schema.Reject) {
	return s.Engine.SendMod(o, newPrice)
}

func (s *MatcherStage) SendCxl(o *orders.Order) (bool, schema.Reject) {
	return s.Engine.SendCxl(o)
}

// GatewaySender abstracts the live-mode exchange gateway at the
// pipeline edge. Wire translation and session transport live behind it.
type GatewaySender interface {
	SendNew(o *orders.Order) (bool, schema.Reject)
	SendMod(o *orders.Order, newPrice schema.Price) (bool, schema.Reject)
	SendCxl(o *orders.Order) (bool, schema.Reject)
}

// GatewayStage is the terminal stage in live mode.
type GatewayStage struct {
	PassStage
	Gateway GatewaySender
}

func (s *GatewayStage) Name() string { return "gateway" }

func (s *GatewayStage) SendNew(o *orders.Order) (bool, schema.Reject) {
	if s.Gateway == nil {
		return false, schema.GetRej(schema.RejectReasonGatewayDown, "no gateway")
	}
	return s.Gateway.SendNew(o)
}

func (s *GatewayStage) SendMod(o *orders.Order, newPrice schema.Price) (bool, schema.Reject) {
	if s.Gateway == nil {
		return false, schema.GetRej(schema.RejectReasonGatewayDown, "no gateway")
	}
	return s.Gateway.SendMod(o, newPrice)
}

func (s *GatewayStage) SendCxl(o *orders.Order) (bool, schema.Reject) {
	if s.Gateway == nil {
		return false, schema.GetRej(schema.RejectReasonGatewayDown, "no gateway")
	}
	return s.Gateway.SendCxl(o)
}
