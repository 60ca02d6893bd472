package orders

import (
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Event handlers mutate order state from exchange/matcher messages.
// Exchange reordering and duplication are expected: a handler called
// on an order outside the expected state logs and ignores the event.
// Each ack handler reports whether a deferred cancel should now be
// dispatched by the caller.

// OnNewAck moves Pending to Working.
func (t *Table) OnNewAck(o *Order) (cancelNow bool) {
	if o.State != schema.OrderStatePending {
		t.logIgnored("new ack", o)
		return false
	}
	o.State = schema.OrderStateWorking
	o.UpdatedTs = t.now().UnixNano()
	return t.takeDeferredCancel(o)
}

// OnModAck consumes one in-flight modify. When the last one
// acknowledges, the order returns to Working and adopts the new price.
func (t *Table) OnModAck(o *Order) (cancelNow bool) {
	if o.State != schema.OrderStateModifying {
		t.logIgnored("mod ack", o)
		return false
	}
	if o.modsInFlight > 0 {
		o.modsInFlight--
	}
	o.UpdatedTs = t.now().UnixNano()
	if o.modsInFlight > 0 {
		return false
	}
	o.State = schema.OrderStateWorking
	if o.NewPrice > 0 {
		o.Price = o.NewPrice
		o.NewPrice = 0
	}
	return t.takeDeferredCancel(o)
}

// OnCxlAck finalizes a cancel: the order is removed and its open
// quantity contribution reversed.
func (t *Table) OnCxlAck(o *Order) {
	if o.State != schema.OrderStateCancelling {
		t.logIgnored("cxl ack", o)
		return
	}
	o.State = schema.OrderStateCancelled
	o.UpdatedTs = t.now().UnixNano()
	t.remove(o)
}

// OnExpired applies a venue-initiated cancel. The remainder is gone
// without a client cancel in flight, so any live state is acceptable.
func (t *Table) OnExpired(o *Order) {
	if o.State.IsTerminal() {
		t.logIgnored("expire", o)
		return
	}
	o.State = schema.OrderStateCancelled
	o.cancelOnAck = CancelOnAckNone
	o.UpdatedTs = t.now().UnixNano()
	t.remove(o)
}

// OnNewRej removes a never-worked order.
func (t *Table) OnNewRej(o *Order) {
	if o.State != schema.OrderStatePending {
		t.logIgnored("new rej", o)
		return
	}
	o.State = schema.OrderStateRejected
	o.UpdatedTs = t.now().UnixNano()
	t.remove(o)
}

// OnModRej consumes one in-flight modify without adopting the price.
// A locally produced reject clears the pending price silently.
func (t *Table) OnModRej(o *Order, local bool) (cancelNow bool) {
	if o.State != schema.OrderStateModifying {
		t.logIgnored("mod rej", o)
		return false
	}
	o.modRejCount++
	if o.modsInFlight > 0 {
		o.modsInFlight--
	}
	if local {
		o.NewPrice = 0
	}
	o.UpdatedTs = t.now().UnixNano()
	if o.modsInFlight > 0 {
		return false
	}
	o.State = schema.OrderStateWorking
	o.NewPrice = 0
	return t.takeDeferredCancel(o)
}

// OnCxlRej reverts Cancelling to Working.
func (t *Table) OnCxlRej(o *Order) {
	o.cxlRejCount++
	if o.State != schema.OrderStateCancelling {
		t.logIgnored("cxl rej", o)
		return
	}
	o.State = schema.OrderStateWorking
	o.UpdatedTs = t.now().UnixNano()
}

// takeDeferredCancel consumes an armed cancel-on-ack flag, moving the
// order to Cancelling. The caller dispatches the actual cancel.
func (t *Table) takeDeferredCancel(o *Order) bool {
	if o.cancelOnAck != CancelOnAckPending {
		return false
	}
	o.cancelOnAck = CancelOnAckNone
	o.State = schema.OrderStateCancelling
	o.LastAction = ActionCxl
	return true
}

// OnFill applies an execution. Normal fills advance cumQty and may
// complete the order; busted fills reverse cumQty and may reopen a
// filled order; external fills adjust position counters only. The
// return value reports whether the fill was applied.
func (t *Table) OnFill(fill schema.Fill) bool {
	if fill.Type == schema.FillTypeExternal {
		t.changePosCounts(fill)
		return true
	}

	o, ok := t.GetByID(fill.OrderID)
	if !ok {
		logs.Warnf("fill for untracked order %s", fill.OrderID)
		return false
	}

	switch fill.Type {
	case schema.FillTypeNormal:
		if o.State.IsTerminal() {
			t.logIgnored("fill", o)
			return false
		}
		if fill.Qty <= 0 || fill.Qty > o.Leaves() {
			logs.Errorf("fill qty %d exceeds leaves %d on order %s", fill.Qty, o.Leaves(), o.ID)
			return false
		}
		o.CumQty += fill.Qty
		t.addOpenQty(o, -fill.Qty)
		t.changePosCounts(fill)
		o.UpdatedTs = t.now().UnixNano()
		if o.CumQty >= o.Qty {
			o.State = schema.OrderStateFilled
			t.remove(o)
		}
		return true

	case schema.FillTypeBusted:
		if fill.Qty <= 0 || fill.Qty > o.CumQty {
			logs.Errorf("bust qty %d exceeds cum qty %d on order %s", fill.Qty, o.CumQty, o.ID)
			return false
		}
		wasFilled := o.State == schema.OrderStateFilled
		o.CumQty -= fill.Qty
		t.changePosCounts(fill)
		o.UpdatedTs = t.now().UnixNano()
		if wasFilled {
			o.State = schema.OrderStateWorking
			t.unretire(o)
			t.addOpenQty(o, o.Leaves())
		} else {
			t.addOpenQty(o, fill.Qty)
		}
		return true

	default:
		logs.Warnf("fill with unknown type %d for order %s", fill.Type, fill.OrderID)
		return false
	}
}
