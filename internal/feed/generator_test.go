package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func testRegistry(t *testing.T, names ...string) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	for _, name := range names {
		_, err := reg.AddInstrument(name, 1, schema.ScaleSpec{PriceScale: 2})
		require.NoError(t, err)
	}
	return reg
}

func TestNewGeneratorRequiresInstruments(t *testing.T) {
	_, err := NewGenerator(GeneratorConfig{}, nil)
	assert.Error(t, err)

	_, err = NewGenerator(GeneratorConfig{}, schema.NewRegistry())
	assert.Error(t, err)
}

func TestNextProducesFullDepth(t *testing.T) {
	gen, err := NewGenerator(GeneratorConfig{BasePrice: 1_000_000, Seed: 1}, testRegistry(t, "BTCUSDT"))
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	for i := 0; i < 50; i++ {
		inst, quote := gen.Next(now)
		require.Equal(t, inst.ID, quote.InstrumentID)
		require.Len(t, quote.Bids, schema.QuoteDepth)
		require.Len(t, quote.Asks, schema.QuoteDepth)
		require.Equal(t, now.UnixNano(), quote.TsEvent)
		require.True(t, quote.IsLevelUpdate())

		require.Less(t, quote.Bids[0].Price, quote.Asks[0].Price)
		for depth := 1; depth < schema.QuoteDepth; depth++ {
			require.Less(t, quote.Bids[depth].Price, quote.Bids[depth-1].Price)
			require.Greater(t, quote.Asks[depth].Price, quote.Asks[depth-1].Price)
		}
		for depth := 0; depth < schema.QuoteDepth; depth++ {
			require.Positive(t, quote.Bids[depth].Price)
			require.Positive(t, quote.Bids[depth].Size)
			require.Positive(t, quote.Asks[depth].Size)
		}
	}
}

func TestNextRoundRobinsInstruments(t *testing.T) {
	reg := testRegistry(t, "BTCUSDT", "ETHUSDT")
	gen, err := NewGenerator(GeneratorConfig{BasePrice: 500_000, Seed: 7}, reg)
	require.NoError(t, err)

	now := time.Now()
	first, _ := gen.Next(now)
	second, _ := gen.Next(now)
	third, _ := gen.Next(now)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ID, third.ID)
}

func TestNextAttachesTradePrints(t *testing.T) {
	gen, err := NewGenerator(GeneratorConfig{BasePrice: 1_000_000, TradeEvery: 3, Seed: 9}, testRegistry(t, "BTCUSDT"))
	require.NoError(t, err)

	now := time.Now()
	for i := 1; i <= 12; i++ {
		_, quote := gen.Next(now)
		if i%3 != 0 {
			require.Nil(t, quote.Last, "update %d", i)
			continue
		}
		require.True(t, quote.IsNormalTrade(), "update %d", i)
		require.Positive(t, quote.Last.Size)
		touch := quote.Last.Price == quote.Bids[0].Price || quote.Last.Price == quote.Asks[0].Price
		require.True(t, touch, "trade print off the touch at update %d", i)
	}
}

func TestNextKeepsMidAboveFloor(t *testing.T) {
	// A tiny base price forces the floor clamp so the full depth of
	// bids stays strictly positive even after downward drift.
	gen, err := NewGenerator(GeneratorConfig{BasePrice: 1, WalkRange: 10, Seed: 3}, testRegistry(t, "BTCUSDT"))
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 200; i++ {
		_, quote := gen.Next(now)
		require.Positive(t, quote.Bids[schema.QuoteDepth-1].Price)
	}
}
