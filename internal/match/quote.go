package match

import (
	"main/internal/schema"
)

// OnQuote rebuilds synthetic liquidity from a market data update. In
// order it applies the trade print, fills out crossed levels, then
// reconciles every level's size against the quoted market size.
func (e *Engine) OnQuote(quote schema.Quote) {
	if !quote.IsLevelUpdate() && !quote.IsNormalTrade() {
		return
	}
	b := e.bookFor(quote.InstrumentID)
	var ev events

	b.mu.Lock()
	if quote.IsNormalTrade() {
		e.applyTradeLocked(b, *quote.Last, &ev)
	}
	if quote.IsLevelUpdate() {
		e.applyCrossesLocked(b, quote, &ev)
		e.reconcileSideLocked(b, schema.OrderSideBuy, quote.Bids)
		e.reconcileSideLocked(b, schema.OrderSideSell, quote.Asks)
	}
	b.mu.Unlock()

	e.flush(&ev)
}

// applyTradeLocked consumes resting liquidity at or through the trade
// price on the side the aggressor hit, in price-time priority.
// Synthetic orders are consumed like any other; only real orders
// produce fills.
func (e *Engine) applyTradeLocked(b *book, trade schema.QuoteTrade, ev *events) {
	if trade.Size <= 0 || trade.Price <= 0 {
		return
	}
	if ask, ok := b.best(schema.OrderSideSell); ok && trade.Price >= ask.price {
		e.consumeLocked(b, schema.OrderSideSell, trade.Price, false, trade.Size, nil, ev)
		return
	}
	if bid, ok := b.best(schema.OrderSideBuy); ok && trade.Price <= bid.price {
		e.consumeLocked(b, schema.OrderSideBuy, trade.Price, false, trade.Size, nil, ev)
	}
}

// applyCrossesLocked fills out any book level crossed by the updated
// opposite top of book. A new best bid at or through resting asks
// consumes those levels entirely, and symmetrically for asks.
func (e *Engine) applyCrossesLocked(b *book, quote schema.Quote, ev *events) {
	if len(quote.Bids) > 0 {
		bestBid := quote.Bids[0].Price
		e.fillThroughLocked(b, schema.OrderSideSell, bestBid, ev)
	}
	if len(quote.Asks) > 0 {
		bestAsk := quote.Asks[0].Price
		e.fillThroughLocked(b, schema.OrderSideBuy, bestAsk, ev)
	}
}

// fillThroughLocked consumes every level on bookSide priced at or
// better than the crossing price.
func (e *Engine) fillThroughLocked(b *book, bookSide schema.OrderSide, crossPrice schema.Price, ev *events) {
	takerSide := bookSide.Opposite()
	for {
		lvl, ok := b.best(bookSide)
		if !ok || !priceAcceptable(takerSide, crossPrice, lvl.price, false) {
			return
		}
		size := lvl.size()
		if size <= 0 {
			b.dropIfEmpty(bookSide, lvl)
			continue
		}
		e.consumeLocked(b, bookSide, crossPrice, false, size, nil, ev)
	}
}

// reconcileSideLocked adjusts each level's synthetic quantity so the
// aggregate synthetic size matches the quoted market size. Quoted
// levels missing from the book are created; book levels inside the
// quoted range that vanished from the quote lose their synthetic size.
func (e *Engine) reconcileSideLocked(b *book, side schema.OrderSide, quoted []schema.QuoteLevel) {
	if len(quoted) == 0 {
		return
	}
	quotedAt := make(map[schema.Price]schema.Quantity, len(quoted))
	for _, q := range quoted {
		if q.Price > 0 && q.Size >= 0 {
			quotedAt[q.Price] = q.Size
		}
	}
	worst := quoted[len(quoted)-1].Price

	// Collect first: the btree must not be mutated mid-iteration.
	stale := make([]*level, 0, 4)
	b.tree(side).Ascend(func(lvl *level) bool {
		if side == schema.OrderSideBuy && lvl.price < worst {
			return false
		}
		if side == schema.OrderSideSell && lvl.price > worst {
			return false
		}
		if _, ok := quotedAt[lvl.price]; !ok {
			stale = append(stale, lvl)
		}
		return true
	})
	for _, lvl := range stale {
		if simSize := lvl.simSize(); simSize > 0 {
			lvl.shrinkSim(simSize, e.cfg.PercentCancelFront)
		}
		b.dropIfEmpty(side, lvl)
	}

	for price, target := range quotedAt {
		lvl := b.levelAt(side, price, target > 0)
		if lvl == nil {
			continue
		}
		current := lvl.simSize()
		switch {
		case target > current:
			lvl.growSim(side, target-current)
		case target < current:
			lvl.shrinkSim(current-target, e.cfg.PercentCancelFront)
		}
		b.dropIfEmpty(side, lvl)
	}
}
