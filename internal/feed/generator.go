package feed

import (
	"math/rand"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// GeneratorConfig controls the synthetic quote stream.
type GeneratorConfig struct {
	BasePrice  schema.Price
	BaseSize   schema.Quantity
	WalkRange  int64
	TradeEvery int
	Seed       int64
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.BaseSize <= 0 {
		c.BaseSize = 100
	}
	if c.WalkRange <= 0 {
		c.WalkRange = 3
	}
	if c.TradeEvery <= 0 {
		c.TradeEvery = 4
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Generator produces random-walk quotes for every registry instrument,
// round robin. The mid price of each instrument drifts by up to
// WalkRange ticks per update; every TradeEvery updates a trade print is
// attached at the touch.
type Generator struct {
	cfg   GeneratorConfig
	insts []schema.Instrument
	mids  []schema.Price
	rng   *rand.Rand
	index int
	count int
}

// NewGenerator creates a generator over all instruments in a registry.
func NewGenerator(cfg GeneratorConfig, reg *schema.Registry) (*Generator, error) {
	if reg == nil || reg.InstrumentCount() == 0 {
		return nil, errors.New("feed: registry has no instruments")
	}
	cfg = cfg.withDefaults()
	insts := make([]schema.Instrument, 0, reg.InstrumentCount())
	mids := make([]schema.Price, 0, reg.InstrumentCount())
	for i := 0; i < reg.InstrumentCount(); i++ {
		inst, ok := reg.InstrumentAt(i)
		if !ok {
			continue
		}
		base := cfg.BasePrice
		if base <= 0 {
			base = inst.TickSize * 10000
		}
		insts = append(insts, inst)
		mids = append(mids, base)
	}
	return &Generator{
		cfg:   cfg,
		insts: insts,
		mids:  mids,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Next produces the next quote in sequence.
func (g *Generator) Next(now time.Time) (schema.Instrument, schema.Quote) {
	i := g.index
	g.index = (g.index + 1) % len(g.insts)
	g.count++

	inst := g.insts[i]
	tick := inst.TickSize
	if tick <= 0 {
		tick = 1
	}

	walk := schema.Price(g.rng.Int63n(2*g.cfg.WalkRange+1)-g.cfg.WalkRange) * tick
	mid := g.mids[i] + walk
	if mid < tick*schema.Price(schema.QuoteDepth+1) {
		mid = tick * schema.Price(schema.QuoteDepth+1)
	}
	g.mids[i] = mid

	quote := schema.Quote{
		InstrumentID: inst.ID,
		Flags:        schema.QuoteFlagLevelUpdate,
		Bids:         make([]schema.QuoteLevel, 0, schema.QuoteDepth),
		Asks:         make([]schema.QuoteLevel, 0, schema.QuoteDepth),
		TsEvent:      now.UnixNano(),
	}
	half := tick / 2
	if half <= 0 {
		half = 1
	}
	for depth := 0; depth < schema.QuoteDepth; depth++ {
		offset := half + tick*schema.Price(depth)
		size := g.cfg.BaseSize + schema.Quantity(g.rng.Int63n(int64(g.cfg.BaseSize)))
		quote.Bids = append(quote.Bids, schema.QuoteLevel{Price: mid - offset, Size: size})
		size = g.cfg.BaseSize + schema.Quantity(g.rng.Int63n(int64(g.cfg.BaseSize)))
		quote.Asks = append(quote.Asks, schema.QuoteLevel{Price: mid + offset, Size: size})
	}

	if g.count%g.cfg.TradeEvery == 0 {
		side := g.rng.Intn(2)
		price := quote.Bids[0].Price
		if side == 1 {
			price = quote.Asks[0].Price
		}
		quote.Flags |= schema.QuoteFlagNormalTrade
		quote.Last = &schema.QuoteTrade{
			Price: price,
			Size:  1 + schema.Quantity(g.rng.Int63n(int64(g.cfg.BaseSize))),
		}
	}
	return inst, quote
}
