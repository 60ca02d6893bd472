package orders

import "main/internal/schema"

// AccountInstrKey identifies a per-(account,instrument) counter entry.
type AccountInstrKey struct {
	AccountID    schema.AccountID
	InstrumentID schema.InstrumentID
}

// StrategyInstrKey identifies a per-(strategy,instrument) counter entry.
type StrategyInstrKey struct {
	StrategyID   schema.StrategyID
	InstrumentID schema.InstrumentID
}

// AccountInstrPos holds resting open quantity and net position for an
// (account,instrument) pair. OpenBid/OpenAsk equal the sum of open
// quantity over all live orders on that side; NetPos is the signed sum
// of all fill quantities.
type AccountInstrPos struct {
	AccountID    schema.AccountID
	InstrumentID schema.InstrumentID
	OpenBid      schema.Quantity
	OpenAsk      schema.Quantity
	NetPos       schema.Quantity
}

// StrategyInstrPos is the strategy-scoped counterpart of AccountInstrPos.
type StrategyInstrPos struct {
	StrategyID   schema.StrategyID
	InstrumentID schema.InstrumentID
	OpenBid      schema.Quantity
	OpenAsk      schema.Quantity
	NetPos       schema.Quantity
}

// accountPos returns the counter entry, creating it lazily. Entries
// are never removed.
func (t *Table) accountPos(accountID schema.AccountID, instrumentID schema.InstrumentID) *AccountInstrPos {
	key := AccountInstrKey{AccountID: accountID, InstrumentID: instrumentID}
	pos, ok := t.acctPos[key]
	if !ok {
		pos = &AccountInstrPos{AccountID: accountID, InstrumentID: instrumentID}
		t.acctPos[key] = pos
	}
	return pos
}

func (t *Table) strategyPos(strategyID schema.StrategyID, instrumentID schema.InstrumentID) *StrategyInstrPos {
	key := StrategyInstrKey{StrategyID: strategyID, InstrumentID: instrumentID}
	pos, ok := t.stratPos[key]
	if !ok {
		pos = &StrategyInstrPos{StrategyID: strategyID, InstrumentID: instrumentID}
		t.stratPos[key] = pos
	}
	return pos
}

// addOpenQty applies a delta to the open-quantity counters for the
// order's side on both counter maps.
func (t *Table) addOpenQty(o *Order, delta schema.Quantity) {
	acct := t.accountPos(o.AccountID, o.InstrumentID)
	strat := t.strategyPos(o.StrategyID, o.InstrumentID)
	switch o.Side {
	case schema.OrderSideBuy:
		acct.OpenBid += delta
		strat.OpenBid += delta
	case schema.OrderSideSell:
		acct.OpenAsk += delta
		strat.OpenAsk += delta
	}
}

func signedQty(side schema.OrderSide, qty schema.Quantity) schema.Quantity {
	if side == schema.OrderSideSell {
		return -qty
	}
	return qty
}

// changePosCounts applies the net-position effect of a fill. A normal
// fill falls through into the external branch: both paths share the
// same signed net-position delta. This mirrors the reference
// accounting exactly, fall-through included.
func (t *Table) changePosCounts(fill schema.Fill) {
	acct := t.accountPos(fill.AccountID, fill.InstrumentID)
	strat := t.strategyPos(fill.StrategyID, fill.InstrumentID)
	switch fill.Type {
	case schema.FillTypeNormal:
		fallthrough
	case schema.FillTypeExternal:
		delta := signedQty(fill.Side, fill.Qty)
		acct.NetPos += delta
		strat.NetPos += delta
	case schema.FillTypeBusted:
		delta := signedQty(fill.Side, fill.Qty)
		acct.NetPos -= delta
		strat.NetPos -= delta
	}
}

// AccountPosition returns the (account,instrument) counters, creating
// the entry lazily. Callers must treat the result as read-only.
func (t *Table) AccountPosition(accountID schema.AccountID, instrumentID schema.InstrumentID) *AccountInstrPos {
	return t.accountPos(accountID, instrumentID)
}

// StrategyPosition returns the (strategy,instrument) counters, creating
// the entry lazily. Callers must treat the result as read-only.
func (t *Table) StrategyPosition(strategyID schema.StrategyID, instrumentID schema.InstrumentID) *StrategyInstrPos {
	return t.strategyPos(strategyID, instrumentID)
}

// AccountPositions returns all (account,instrument) counter entries.
func (t *Table) AccountPositions() []*AccountInstrPos {
	out := make([]*AccountInstrPos, 0, len(t.acctPos))
	for _, pos := range t.acctPos {
		out = append(out, pos)
	}
	return out
}

// StrategyPositions returns all (strategy,instrument) counter entries.
func (t *Table) StrategyPositions() []*StrategyInstrPos {
	out := make([]*StrategyInstrPos, 0, len(t.stratPos))
	for _, pos := range t.stratPos {
		out = append(out, pos)
	}
	return out
}
