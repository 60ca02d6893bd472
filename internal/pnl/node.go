package pnl

import "main/internal/schema"

// Metrics is the per-node PnL block kept at every level of the
// composite: instrument leaf, strategy aggregate, account aggregate.
type Metrics struct {
	Position      schema.Quantity
	AvgPrice      schema.Price
	RealizedPnL   schema.Notional
	UnrealizedPnL schema.Notional
	FeesPaid      schema.Notional

	// Water marks since the position last flattened to zero.
	MaxPnL          schema.Notional
	MinPnL          schema.Notional
	MaxRealizedPnL  schema.Notional
	MaxUnrealizedPnL schema.Notional
}

// TotalPnL is realized plus unrealized, fees-inclusive.
func (m Metrics) TotalPnL() schema.Notional {
	return m.RealizedPnL + m.UnrealizedPnL - m.FeesPaid
}

// RealizedDrawdown is the decline from the realized high-water mark.
func (m Metrics) RealizedDrawdown() schema.Notional {
	dd := m.MaxRealizedPnL - m.RealizedPnL
	if dd < 0 {
		return 0
	}
	return dd
}

// UnrealizedDrawdown is the decline from the unrealized high-water mark.
func (m Metrics) UnrealizedDrawdown() schema.Notional {
	dd := m.MaxUnrealizedPnL - m.UnrealizedPnL
	if dd < 0 {
		return 0
	}
	return dd
}

// delta is the incremental change propagated up the tree after a leaf
// mutation. Aggregates apply deltas; they never recompute from scratch.
type delta struct {
	position   schema.Quantity
	realized   schema.Notional
	unrealized schema.Notional
	fees       schema.Notional
}

func (d delta) isZero() bool {
	return d.position == 0 && d.realized == 0 && d.unrealized == 0 && d.fees == 0
}

// apply folds a child delta into an aggregate node and refreshes its
// water marks. A position flattening to zero resets the drawdown
// window at this level.
func (m *Metrics) apply(d delta) {
	m.Position += d.position
	m.RealizedPnL += d.realized
	m.UnrealizedPnL += d.unrealized
	m.FeesPaid += d.fees
	if d.position != 0 && m.Position == 0 {
		m.resetWindow()
		return
	}
	m.mark()
}

// mark refreshes the extreme water marks from the current values.
func (m *Metrics) mark() {
	total := m.TotalPnL()
	if total > m.MaxPnL {
		m.MaxPnL = total
	}
	if total < m.MinPnL {
		m.MinPnL = total
	}
	if m.RealizedPnL > m.MaxRealizedPnL {
		m.MaxRealizedPnL = m.RealizedPnL
	}
	if m.UnrealizedPnL > m.MaxUnrealizedPnL {
		m.MaxUnrealizedPnL = m.UnrealizedPnL
	}
}

// resetWindow restarts the drawdown window, keeping realized PnL as
// the new baseline.
func (m *Metrics) resetWindow() {
	total := m.TotalPnL()
	m.MaxPnL = total
	m.MinPnL = total
	m.MaxRealizedPnL = m.RealizedPnL
	m.MaxUnrealizedPnL = m.UnrealizedPnL
}

// leaf is the (strategy,instrument) node where fills and marks are
// accounted before deltas flow upward.
type leaf struct {
	strategyID   schema.StrategyID
	instrumentID schema.InstrumentID
	metrics      Metrics
	markPrice    schema.Price
}

// applyFill books an execution with weighted-average-cost accounting
// and returns the delta to propagate.
func (l *leaf) applyFill(fill schema.Fill) delta {
	qty := fill.Qty
	if fill.Type == schema.FillTypeBusted {
		// A bust reverses the original execution.
		qty = -qty
	}
	signed := qty
	if fill.Side == schema.OrderSideSell {
		signed = -signed
	}

	m := &l.metrics
	before := *m
	pos := m.Position

	switch {
	case pos == 0 || (pos > 0) == (signed > 0):
		// Opening or adding: new weighted average entry price.
		total := abs(pos) + abs(signed)
		if total != 0 {
			m.AvgPrice = schema.Price((int64(m.AvgPrice)*int64(abs(pos)) +
				int64(fill.Price)*int64(abs(signed))) / int64(total))
		}
		m.Position = pos + signed
	default:
		// Reducing or flipping.
		closeQty := abs(signed)
		if closeQty > abs(pos) {
			closeQty = abs(pos)
		}
		perUnit := int64(fill.Price) - int64(m.AvgPrice)
		if pos < 0 {
			perUnit = -perUnit
		}
		m.RealizedPnL += schema.Notional(perUnit * int64(closeQty))
		m.Position = pos + signed
		switch {
		case m.Position == 0:
			m.AvgPrice = 0
		case (m.Position > 0) != (pos > 0):
			// Flipped through zero: remainder opens at the fill price.
			m.AvgPrice = fill.Price
		}
	}

	m.FeesPaid += schema.Notional(fill.Fee)
	l.remark()

	if m.Position == 0 {
		m.resetWindow()
	} else {
		m.mark()
	}

	return delta{
		position:   m.Position - before.Position,
		realized:   m.RealizedPnL - before.RealizedPnL,
		unrealized: m.UnrealizedPnL - before.UnrealizedPnL,
		fees:       m.FeesPaid - before.FeesPaid,
	}
}

// applyMark recomputes unrealized PnL at a new mark price and returns
// the delta to propagate.
func (l *leaf) applyMark(mark schema.Price) delta {
	if mark <= 0 {
		return delta{}
	}
	l.markPrice = mark
	before := l.metrics.UnrealizedPnL
	l.remark()
	l.metrics.mark()
	return delta{unrealized: l.metrics.UnrealizedPnL - before}
}

func (l *leaf) remark() {
	m := &l.metrics
	if m.Position == 0 || l.markPrice <= 0 {
		m.UnrealizedPnL = 0
		return
	}
	m.UnrealizedPnL = schema.Notional(int64(m.Position) * (int64(l.markPrice) - int64(m.AvgPrice)))
}

func abs(q schema.Quantity) schema.Quantity {
	if q < 0 {
		return -q
	}
	return q
}
