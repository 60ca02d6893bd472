package state

import "main/internal/schema"

// PositionKey identifies one net position entry.
type PositionKey struct {
	AccountID    schema.AccountID
	StrategyID   schema.StrategyID
	InstrumentID schema.InstrumentID
}

// PositionReducer rebuilds net positions from fill events. It is the
// recovery-time counterpart of the live order table counters: normal
// and external fills add the signed quantity, busted fills subtract it.
type PositionReducer struct {
	positions map[PositionKey]schema.Quantity
}

// NewPositionReducer creates an empty reducer.
func NewPositionReducer() *PositionReducer {
	return &PositionReducer{positions: make(map[PositionKey]schema.Quantity)}
}

// ApplyFill updates the net position and returns the new quantity.
func (r *PositionReducer) ApplyFill(fill schema.Fill) schema.Quantity {
	key := PositionKey{
		AccountID:    fill.AccountID,
		StrategyID:   fill.StrategyID,
		InstrumentID: fill.InstrumentID,
	}
	delta := int64(fill.Qty)
	if fill.Side == schema.OrderSideSell {
		delta = -delta
	}
	if fill.Type == schema.FillTypeBusted {
		delta = -delta
	}
	next := schema.Quantity(int64(r.positions[key]) + delta)
	r.positions[key] = next
	return next
}

// ApplySnapshot replaces all positions with a snapshot.
func (r *PositionReducer) ApplySnapshot(snapshot Snapshot) {
	if r.positions == nil {
		r.positions = make(map[PositionKey]schema.Quantity, len(snapshot.Positions))
	} else {
		for key := range r.positions {
			delete(r.positions, key)
		}
	}
	for _, entry := range snapshot.Positions {
		r.positions[entry.key()] = entry.NetPos
	}
}

// Position returns the current net position for a key.
func (r *PositionReducer) Position(key PositionKey) schema.Quantity {
	return r.positions[key]
}

// Count returns the number of tracked entries.
func (r *PositionReducer) Count() int {
	return len(r.positions)
}
