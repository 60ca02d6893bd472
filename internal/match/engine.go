package match

import (
	"github.com/yanun0323/logs"

	"main/internal/orders"
	"main/internal/schema"
)

// Listener receives simulator events. Only real client orders are
// reported; fills absorbed by synthetic depth stay silent. OnExpired
// reports a venue-initiated cancel of an unfilled remainder (IOC or
// market), which arrives without a prior client cancel.
type Listener interface {
	OnNewAck(orderID schema.OrderID)
	OnModAck(orderID schema.OrderID)
	OnCxlAck(orderID schema.OrderID)
	OnExpired(orderID schema.OrderID)
	OnFill(fill schema.Fill)
}

// Config controls synthetic liquidity behavior.
type Config struct {
	// PercentCancelFront is the share of a level shrink taken from the
	// front of the queue; the rest comes off the back.
	PercentCancelFront float64
}

func (c Config) withDefaults() Config {
	if c.PercentCancelFront < 0 {
		c.PercentCancelFront = 0
	}
	if c.PercentCancelFront > 1 {
		c.PercentCancelFront = 1
	}
	return c
}

type eventKind uint8

const (
	evNewAck eventKind = iota
	evModAck
	evCxlAck
	evExpire
	evFill
)

type event struct {
	kind    eventKind
	orderID schema.OrderID
	fill    schema.Fill
}

// events buffers listener notifications raised while the book lock is
// held; they flush after release in the order they occurred, so fills
// always precede the expire of their remainder.
type events struct {
	list []event
}

func (ev *events) ack(kind eventKind, orderID schema.OrderID) {
	ev.list = append(ev.list, event{kind: kind, orderID: orderID})
}

func (ev *events) fill(f schema.Fill) {
	ev.list = append(ev.list, event{kind: evFill, fill: f})
}

// Engine simulates an exchange: one synthetic book per instrument,
// built from live market data, matched in price-time priority.
type Engine struct {
	cfg      Config
	listener Listener
	books    map[schema.InstrumentID]*book
}

// NewEngine creates a matching engine.
func NewEngine(cfg Config, listener Listener) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		listener: listener,
		books:    make(map[schema.InstrumentID]*book),
	}
}

func (e *Engine) bookFor(instrumentID schema.InstrumentID) *book {
	b, ok := e.books[instrumentID]
	if !ok {
		b = newBook(instrumentID)
		e.books[instrumentID] = b
	}
	return b
}

// Snapshot returns the current top levels of an instrument's book.
func (e *Engine) Snapshot(instrumentID schema.InstrumentID, depth int) (bids, asks []schema.QuoteLevel) {
	b := e.bookFor(instrumentID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotTop(schema.OrderSideBuy, depth), b.snapshotTop(schema.OrderSideSell, depth)
}

func (e *Engine) flush(ev *events) {
	if e.listener == nil {
		return
	}
	for _, item := range ev.list {
		switch item.kind {
		case evNewAck:
			e.listener.OnNewAck(item.orderID)
		case evModAck:
			e.listener.OnModAck(item.orderID)
		case evCxlAck:
			e.listener.OnCxlAck(item.orderID)
		case evExpire:
			e.listener.OnExpired(item.orderID)
		case evFill:
			e.listener.OnFill(item.fill)
		}
	}
}

// SendNew accepts a client order: it matches immediately against the
// opposing book at acceptable prices, cancels any IOC or market
// remainder, and rests a Day remainder at its price.
func (e *Engine) SendNew(o *orders.Order) (bool, schema.Reject) {
	if o.Qty <= 0 {
		return false, schema.GetRej(schema.RejectReasonInvalidQty, "sim order qty")
	}
	b := e.bookFor(o.InstrumentID)
	var ev events

	b.mu.Lock()
	ev.ack(evNewAck, o.ID)

	taker := &resting{
		id:         o.ID,
		accountID:  o.AccountID,
		strategyID: o.StrategyID,
		side:       o.Side,
		price:      o.Price,
		qty:        o.Leaves(),
	}
	market := o.Type == schema.OrderTypeMarket
	remainder := e.consumeLocked(b, o.Side.Opposite(), o.Price, market, taker.qty, taker, &ev)

	switch {
	case remainder == 0:
	case market || o.TimeInForce == schema.TimeInForceIOC:
		ev.ack(evExpire, o.ID)
	default:
		taker.qty = remainder
		lvl := b.levelAt(o.Side, o.Price, true)
		lvl.queue = append(lvl.queue, taker)
		b.byOrder[o.ID] = taker
	}
	b.mu.Unlock()

	e.flush(&ev)
	return true, schema.Reject{}
}

// SendMod cancels and reinserts the order at the new price, losing
// queue priority. A crossing new price matches immediately.
func (e *Engine) SendMod(o *orders.Order, newPrice schema.Price) (bool, schema.Reject) {
	b := e.bookFor(o.InstrumentID)
	var ev events

	b.mu.Lock()
	entry, ok := b.byOrder[o.ID]
	if !ok {
		b.mu.Unlock()
		logs.Errorf("mod for order %s not resting on book %d", o.ID, o.InstrumentID)
		return false, schema.GetRej(schema.RejectReasonNoSuchBook, o.ID.String())
	}
	e.removeRestingLocked(b, entry)
	ev.ack(evModAck, o.ID)

	entry.price = newPrice
	remainder := e.consumeLocked(b, entry.side.Opposite(), newPrice, false, entry.qty, entry, &ev)
	if remainder > 0 {
		entry.qty = remainder
		lvl := b.levelAt(entry.side, newPrice, true)
		lvl.queue = append(lvl.queue, entry)
		b.byOrder[o.ID] = entry
	}
	b.mu.Unlock()

	e.flush(&ev)
	return true, schema.Reject{}
}

// SendCxl removes the order from its level, dropping the level when it
// empties. A cancel for an order not on the book logs and is a no-op.
func (e *Engine) SendCxl(o *orders.Order) (bool, schema.Reject) {
	b := e.bookFor(o.InstrumentID)
	var ev events

	b.mu.Lock()
	entry, ok := b.byOrder[o.ID]
	if !ok {
		b.mu.Unlock()
		logs.Errorf("cxl for order %s not resting on book %d", o.ID, o.InstrumentID)
		return false, schema.GetRej(schema.RejectReasonNoSuchBook, o.ID.String())
	}
	e.removeRestingLocked(b, entry)
	ev.ack(evCxlAck, o.ID)
	b.mu.Unlock()

	e.flush(&ev)
	return true, schema.Reject{}
}

func (e *Engine) removeRestingLocked(b *book, entry *resting) {
	delete(b.byOrder, entry.id)
	lvl := b.levelAt(entry.side, entry.price, false)
	if lvl == nil {
		logs.Errorf("level %d missing for resting order %s", entry.price, entry.id)
		return
	}
	for i, r := range lvl.queue {
		if r == entry {
			lvl.queue = append(lvl.queue[:i], lvl.queue[i+1:]...)
			break
		}
	}
	b.dropIfEmpty(entry.side, lvl)
}

// priceAcceptable reports whether a taker is willing to trade at a
// level price.
func priceAcceptable(takerSide schema.OrderSide, limit, levelPrice schema.Price, market bool) bool {
	if market {
		return true
	}
	if takerSide == schema.OrderSideBuy {
		return levelPrice <= limit
	}
	return levelPrice >= limit
}

// consumeLocked takes liquidity from one side of the book in
// price-time priority. taker is nil when market trades consume the
// book; a non-nil taker receives Remove-liquidity fills and resting
// real orders receive Add-liquidity fills. Returns the unfilled
// remainder.
func (e *Engine) consumeLocked(b *book, bookSide schema.OrderSide, limit schema.Price, market bool, qty schema.Quantity, taker *resting, ev *events) schema.Quantity {
	takerSide := bookSide.Opposite()
	for qty > 0 {
		lvl, ok := b.best(bookSide)
		if !ok {
			break
		}
		if !priceAcceptable(takerSide, limit, lvl.price, market) {
			break
		}
		for qty > 0 && len(lvl.queue) > 0 {
			r := lvl.queue[0]
			chunk := r.qty
			if chunk > qty {
				chunk = qty
			}
			r.qty -= chunk
			qty -= chunk
			if !r.sim {
				ev.fill(schema.Fill{
					Type:         schema.FillTypeNormal,
					OrderID:      r.id,
					AccountID:    r.accountID,
					StrategyID:   r.strategyID,
					InstrumentID: b.instrumentID,
					Side:         r.side,
					Price:        lvl.price,
					Qty:          chunk,
					Liquidity:    schema.LiquidityAdd,
				})
				if r.qty == 0 {
					delete(b.byOrder, r.id)
				}
			}
			if taker != nil {
				ev.fill(schema.Fill{
					Type:         schema.FillTypeNormal,
					OrderID:      taker.id,
					AccountID:    taker.accountID,
					StrategyID:   taker.strategyID,
					InstrumentID: b.instrumentID,
					Side:         taker.side,
					Price:        lvl.price,
					Qty:          chunk,
					Liquidity:    schema.LiquidityRemove,
				})
			}
			if r.qty == 0 {
				lvl.queue = lvl.queue[1:]
			}
		}
		b.dropIfEmpty(bookSide, lvl)
	}
	return qty
}
