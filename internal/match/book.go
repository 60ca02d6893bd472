package match

import (
	"sync"

	"github.com/google/btree"

	"main/internal/schema"
)

// resting is a single queued order at a price level: either a real
// client order or a synthetic slice of market depth. Synthetic entries
// never produce outward fills.
type resting struct {
	sim        bool
	id         schema.OrderID
	accountID  schema.AccountID
	strategyID schema.StrategyID
	side       schema.OrderSide
	price      schema.Price
	qty        schema.Quantity
}

// level is one price level: a FIFO queue of resting orders. Synthetic
// depth is kept as at most a leading and a trailing entry around the
// real client orders, so queue cancels can be applied at either end.
type level struct {
	price schema.Price
	queue []*resting
}

// size returns the aggregate open quantity of the level. The level
// invariant is that this always equals the sum over its resting orders.
func (l *level) size() schema.Quantity {
	var total schema.Quantity
	for _, r := range l.queue {
		total += r.qty
	}
	return total
}

func (l *level) simSize() schema.Quantity {
	var total schema.Quantity
	for _, r := range l.queue {
		if r.sim {
			total += r.qty
		}
	}
	return total
}

func (l *level) hasReal() bool {
	for _, r := range l.queue {
		if !r.sim {
			return true
		}
	}
	return false
}

// compact drops exhausted queue entries.
func (l *level) compact() {
	out := l.queue[:0]
	for _, r := range l.queue {
		if r.qty > 0 {
			out = append(out, r)
		}
	}
	l.queue = out
}

// frontSim returns the leading synthetic entry, if the queue starts
// with one.
func (l *level) frontSim() *resting {
	if len(l.queue) > 0 && l.queue[0].sim {
		return l.queue[0]
	}
	return nil
}

// backSim returns the trailing synthetic entry, if the queue ends with
// one.
func (l *level) backSim() *resting {
	if n := len(l.queue); n > 0 && l.queue[n-1].sim {
		return l.queue[n-1]
	}
	return nil
}

// growSim extends the trailing synthetic entry, creating one when the
// queue does not end with synthetic depth.
func (l *level) growSim(side schema.OrderSide, delta schema.Quantity) {
	if delta <= 0 {
		return
	}
	if back := l.backSim(); back != nil {
		back.qty += delta
		return
	}
	l.queue = append(l.queue, &resting{
		sim:   true,
		side:  side,
		price: l.price,
		qty:   delta,
	})
}

// shrinkSim removes synthetic quantity, splitting the reduction
// between the front and back of the queue by the configured front
// ratio. Whatever one end cannot absorb spills to the other.
func (l *level) shrinkSim(delta schema.Quantity, percentFront float64) {
	if delta <= 0 {
		return
	}
	front := schema.Quantity(float64(delta) * percentFront)
	if front > delta {
		front = delta
	}
	back := delta - front

	if fs := l.frontSim(); fs != nil {
		take := front
		if take > fs.qty {
			take = fs.qty
		}
		fs.qty -= take
		front -= take
	}
	back += front

	if bs := l.backSim(); bs != nil {
		take := back
		if take > bs.qty {
			take = bs.qty
		}
		bs.qty -= take
		back -= take
	}
	// Remainder goes to whichever synthetic entry still has size.
	if back > 0 {
		if fs := l.frontSim(); fs != nil {
			take := back
			if take > fs.qty {
				take = fs.qty
			}
			fs.qty -= take
		}
	}
	l.compact()
}

// book is the per-instrument synthetic order book. All mutation is
// guarded by mu; the engine releases the lock before notifying the
// listener.
type book struct {
	instrumentID schema.InstrumentID
	mu           sync.Mutex
	bids         *btree.BTreeG[*level]
	asks         *btree.BTreeG[*level]
	byOrder      map[schema.OrderID]*resting
}

// bidLevelLess orders bids by price descending so Min() is the best bid.
func bidLevelLess(a, b *level) bool {
	return a.price > b.price
}

// askLevelLess orders asks by price ascending so Min() is the best ask.
func askLevelLess(a, b *level) bool {
	return a.price < b.price
}

func newBook(instrumentID schema.InstrumentID) *book {
	const degree = 16
	return &book{
		instrumentID: instrumentID,
		bids:         btree.NewG(degree, bidLevelLess),
		asks:         btree.NewG(degree, askLevelLess),
		byOrder:      make(map[schema.OrderID]*resting),
	}
}

func (b *book) tree(side schema.OrderSide) *btree.BTreeG[*level] {
	if side == schema.OrderSideBuy {
		return b.bids
	}
	return b.asks
}

// levelAt returns the level for a side/price, optionally creating it.
func (b *book) levelAt(side schema.OrderSide, price schema.Price, create bool) *level {
	tree := b.tree(side)
	probe := &level{price: price}
	if lvl, ok := tree.Get(probe); ok {
		return lvl
	}
	if !create {
		return nil
	}
	lvl := &level{price: price}
	tree.ReplaceOrInsert(lvl)
	return lvl
}

// dropIfEmpty removes a level whose queue emptied.
func (b *book) dropIfEmpty(side schema.OrderSide, lvl *level) {
	lvl.compact()
	if len(lvl.queue) == 0 {
		b.tree(side).Delete(lvl)
	}
}

// best returns the top level of a side.
func (b *book) best(side schema.OrderSide) (*level, bool) {
	return b.tree(side).Min()
}

// BestBid returns the top bid price and size, for snapshots.
func (b *book) snapshotTop(side schema.OrderSide, depth int) []schema.QuoteLevel {
	out := make([]schema.QuoteLevel, 0, depth)
	b.tree(side).Ascend(func(lvl *level) bool {
		if len(out) >= depth {
			return false
		}
		if size := lvl.size(); size > 0 {
			out = append(out, schema.QuoteLevel{Price: lvl.price, Size: size})
		}
		return true
	})
	return out
}
