package pipeline

import (
	"github.com/yanun0323/errors"

	"main/internal/orders"
	"main/internal/schema"
)

// Listener observes the outcome of inbound events after the chain has
// processed them. This is the strategy-facing edge of the pipeline.
type Listener interface {
	OnOrderAck(o *orders.Order)
	OnOrderRej(o *orders.Order, rej schema.Reject)
	OnOrderFill(o *orders.Order, fill schema.Fill)
}

// Chain is the fixed, statically composed order pipeline:
// throttle → risk → pnl → orders → terminal. Outbound commands walk
// forward and stop at the first reject; inbound events walk backward
// from the terminal stage toward the strategy listener.
type Chain struct {
	stages   []Stage
	listener Listener
}

// NewChain composes the pipeline from its ordered stages.
func NewChain(stages ...Stage) (*Chain, error) {
	if len(stages) == 0 {
		return nil, errors.New("pipeline: no stages")
	}
	return &Chain{stages: stages}, nil
}

// SetListener registers the strategy-facing event listener.
func (c *Chain) SetListener(listener Listener) {
	c.listener = listener
}

// SendNew runs a new order through every stage in order.
func (c *Chain) SendNew(o *orders.Order) (bool, schema.Reject) {
	for _, stage := range c.stages {
		if ok, rej := stage.SendNew(o); !ok {
			return false, rej
		}
	}
	return true, schema.Reject{}
}

// SendMod runs a modify through every stage in order.
func (c *Chain) SendMod(o *orders.Order, newPrice schema.Price) (bool, schema.Reject) {
	for _, stage := range c.stages {
		if ok, rej := stage.SendMod(o, newPrice); !ok {
			return false, rej
		}
	}
	return true, schema.Reject{}
}

// SendCxl runs a cancel through every stage in order.
func (c *Chain) SendCxl(o *orders.Order) (bool, schema.Reject) {
	for _, stage := range c.stages {
		if ok, rej := stage.SendCxl(o); !ok {
			return false, rej
		}
	}
	return true, schema.Reject{}
}

// reverse iterates the stages from the terminal end toward the
// strategy edge, skipping the terminal stage itself: it is the event
// source.
func (c *Chain) reverse(fn func(stage Stage)) {
	for i := len(c.stages) - 2; i >= 0; i-- {
		fn(c.stages[i])
	}
}

// OnNewAck delivers a new-order acknowledgment inbound.
func (c *Chain) OnNewAck(o *orders.Order) {
	c.reverse(func(stage Stage) { stage.OnNewAck(o) })
	if c.listener != nil {
		c.listener.OnOrderAck(o)
	}
}

// OnModAck delivers a modify acknowledgment inbound.
func (c *Chain) OnModAck(o *orders.Order) {
	c.reverse(func(stage Stage) { stage.OnModAck(o) })
	if c.listener != nil {
		c.listener.OnOrderAck(o)
	}
}

// OnCxlAck delivers a cancel acknowledgment inbound.
func (c *Chain) OnCxlAck(o *orders.Order) {
	c.reverse(func(stage Stage) { stage.OnCxlAck(o) })
	if c.listener != nil {
		c.listener.OnOrderAck(o)
	}
}

// OnExpired delivers a venue-initiated cancel inbound. The order had
// no client cancel in flight.
func (c *Chain) OnExpired(o *orders.Order) {
	c.reverse(func(stage Stage) { stage.OnExpired(o) })
	if c.listener != nil {
		c.listener.OnOrderAck(o)
	}
}

// OnNewRej delivers an exchange new-order reject inbound.
func (c *Chain) OnNewRej(o *orders.Order, rej schema.Reject) {
	c.reverse(func(stage Stage) { stage.OnNewRej(o, rej) })
	if c.listener != nil {
		c.listener.OnOrderRej(o, rej)
	}
}

// OnModRej delivers an exchange modify reject inbound.
func (c *Chain) OnModRej(o *orders.Order, rej schema.Reject) {
	c.reverse(func(stage Stage) { stage.OnModRej(o, rej) })
	if c.listener != nil {
		c.listener.OnOrderRej(o, rej)
	}
}

// OnCxlRej delivers an exchange cancel reject inbound.
func (c *Chain) OnCxlRej(o *orders.Order, rej schema.Reject) {
	c.reverse(func(stage Stage) { stage.OnCxlRej(o, rej) })
	if c.listener != nil {
		c.listener.OnOrderRej(o, rej)
	}
}

// OnFill delivers a fill inbound. o may be nil for external fills.
func (c *Chain) OnFill(o *orders.Order, fill schema.Fill) {
	c.reverse(func(stage Stage) { stage.OnFill(fill) })
	if c.listener != nil && o != nil {
		c.listener.OnOrderFill(o, fill)
	}
}
