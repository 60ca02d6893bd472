package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/orders"
	"main/internal/schema"
)

type recordingListener struct {
	newAcks []schema.OrderID
	modAcks []schema.OrderID
	cxlAcks []schema.OrderID
	expires []schema.OrderID
	fills   []schema.Fill
}

func (l *recordingListener) OnNewAck(orderID schema.OrderID)  { l.newAcks = append(l.newAcks, orderID) }
func (l *recordingListener) OnModAck(orderID schema.OrderID)  { l.modAcks = append(l.modAcks, orderID) }
func (l *recordingListener) OnCxlAck(orderID schema.OrderID)  { l.cxlAcks = append(l.cxlAcks, orderID) }
func (l *recordingListener) OnExpired(orderID schema.OrderID) { l.expires = append(l.expires, orderID) }
func (l *recordingListener) OnFill(fill schema.Fill)          { l.fills = append(l.fills, fill) }

func newTestEngine(cfg Config) (*Engine, *recordingListener) {
	listener := &recordingListener{}
	return NewEngine(cfg, listener), listener
}

func levelUpdate(bids, asks []schema.QuoteLevel) schema.Quote {
	return schema.Quote{
		InstrumentID: 3,
		Flags:        schema.QuoteFlagLevelUpdate,
		Bids:         bids,
		Asks:         asks,
	}
}

func clientOrder(side schema.OrderSide, qty schema.Quantity, price schema.Price, tif schema.TimeInForce) *orders.Order {
	return &orders.Order{
		ID:           schema.NewOrderID(),
		AccountID:    1,
		StrategyID:   7,
		InstrumentID: 3,
		Side:         side,
		Type:         schema.OrderTypeLimit,
		TimeInForce:  tif,
		Qty:          qty,
		Price:        price,
	}
}

func TestAggressiveOrderFillsAgainstSyntheticDepth(t *testing.T) {
	e, listener := newTestEngine(Config{})
	e.OnQuote(levelUpdate(
		[]schema.QuoteLevel{{Price: 99, Size: 10}},
		[]schema.QuoteLevel{{Price: 101, Size: 10}, {Price: 102, Size: 10}},
	))

	o := clientOrder(schema.OrderSideBuy, 15, 102, schema.TimeInForceDay)
	ok, _ := e.SendNew(o)
	require.True(t, ok)

	require.Equal(t, []schema.OrderID{o.ID}, listener.newAcks)
	// synthetic counterparties stay silent: only taker fills surface
	require.Len(t, listener.fills, 2)
	assert.Equal(t, schema.Price(101), listener.fills[0].Price)
	assert.Equal(t, schema.Quantity(10), listener.fills[0].Qty)
	assert.Equal(t, schema.LiquidityRemove, listener.fills[0].Liquidity)
	assert.Equal(t, schema.Price(102), listener.fills[1].Price)
	assert.Equal(t, schema.Quantity(5), listener.fills[1].Qty)

	// remaining synthetic depth at 102
	_, asks := e.Snapshot(3, 5)
	require.Len(t, asks, 1)
	assert.Equal(t, schema.QuoteLevel{Price: 102, Size: 5}, asks[0])
}

func TestIOCRemainderExpires(t *testing.T) {
	e, listener := newTestEngine(Config{})
	e.OnQuote(levelUpdate(nil, []schema.QuoteLevel{{Price: 101, Size: 5}}))

	o := clientOrder(schema.OrderSideBuy, 10, 101, schema.TimeInForceIOC)
	ok, _ := e.SendNew(o)
	require.True(t, ok)

	assert.Equal(t, []schema.OrderID{o.ID}, listener.newAcks)
	// the venue expires the remainder; no client cancel was in flight
	assert.Equal(t, []schema.OrderID{o.ID}, listener.expires)
	assert.Empty(t, listener.cxlAcks)
	require.Len(t, listener.fills, 1)
	assert.Equal(t, schema.Quantity(5), listener.fills[0].Qty)

	bids, _ := e.Snapshot(3, 5)
	assert.Empty(t, bids, "IOC remainder must not rest")
}

func TestPassiveOrderRestsAndCancels(t *testing.T) {
	e, listener := newTestEngine(Config{})
	e.OnQuote(levelUpdate(
		[]schema.QuoteLevel{{Price: 99, Size: 10}},
		[]schema.QuoteLevel{{Price: 101, Size: 10}},
	))

	o := clientOrder(schema.OrderSideBuy, 5, 100, schema.TimeInForceDay)
	ok, _ := e.SendNew(o)
	require.True(t, ok)
	assert.Empty(t, listener.fills)

	bids, _ := e.Snapshot(3, 5)
	require.Len(t, bids, 2)
	assert.Equal(t, schema.QuoteLevel{Price: 100, Size: 5}, bids[0])

	ok, _ = e.SendCxl(o)
	require.True(t, ok)
	assert.Equal(t, []schema.OrderID{o.ID}, listener.cxlAcks)

	bids, _ = e.Snapshot(3, 5)
	require.Len(t, bids, 1)
	assert.Equal(t, schema.Price(99), bids[0].Price)
}

func TestCancelUnknownOrderRejected(t *testing.T) {
	e, _ := newTestEngine(Config{})
	o := clientOrder(schema.OrderSideBuy, 5, 100, schema.TimeInForceDay)

	ok, rej := e.SendCxl(o)
	assert.False(t, ok)
	assert.Equal(t, schema.RejectReasonNoSuchBook, rej.Reason)
}

func TestTradePrintFillsRestingRealOrderBehindSim(t *testing.T) {
	e, listener := newTestEngine(Config{})
	e.OnQuote(levelUpdate(
		[]schema.QuoteLevel{{Price: 99, Size: 10}},
		[]schema.QuoteLevel{{Price: 101, Size: 10}},
	))

	// rest a real bid behind the synthetic size at 99
	o := clientOrder(schema.OrderSideBuy, 5, 99, schema.TimeInForceDay)
	ok, _ := e.SendNew(o)
	require.True(t, ok)
	require.Empty(t, listener.fills)

	// a 12-lot trade at 99 eats the 10 synthetic first, then 2 of ours
	e.OnQuote(schema.Quote{
		InstrumentID: 3,
		Flags:        schema.QuoteFlagNormalTrade,
		Last:         &schema.QuoteTrade{Price: 99, Size: 12},
	})

	require.Len(t, listener.fills, 1)
	fill := listener.fills[0]
	assert.Equal(t, o.ID, fill.OrderID)
	assert.Equal(t, schema.Quantity(2), fill.Qty)
	assert.Equal(t, schema.Price(99), fill.Price)
	assert.Equal(t, schema.LiquidityAdd, fill.Liquidity)
}

func TestModReinsertsAtBackOfNewLevel(t *testing.T) {
	e, listener := newTestEngine(Config{})
	e.OnQuote(levelUpdate(
		[]schema.QuoteLevel{{Price: 99, Size: 10}},
		[]schema.QuoteLevel{{Price: 101, Size: 10}},
	))

	o := clientOrder(schema.OrderSideBuy, 5, 98, schema.TimeInForceDay)
	ok, _ := e.SendNew(o)
	require.True(t, ok)

	// repricing through the ask matches immediately
	ok, _ = e.SendMod(o, 101)
	require.True(t, ok)
	assert.Equal(t, []schema.OrderID{o.ID}, listener.modAcks)
	require.Len(t, listener.fills, 1)
	assert.Equal(t, schema.Quantity(5), listener.fills[0].Qty)
	assert.Equal(t, schema.Price(101), listener.fills[0].Price)
}

func TestFrontCancelAdvancesRealOrder(t *testing.T) {
	e, listener := newTestEngine(Config{PercentCancelFront: 1})
	e.OnQuote(levelUpdate(
		[]schema.QuoteLevel{{Price: 99, Size: 10}},
		[]schema.QuoteLevel{{Price: 101, Size: 10}},
	))

	o := clientOrder(schema.OrderSideBuy, 5, 99, schema.TimeInForceDay)
	ok, _ := e.SendNew(o)
	require.True(t, ok)

	// quoted size at 99 drops to 2: front cancels shrink the synthetic
	// entry queued ahead of the real order from 10 lots to 2
	e.OnQuote(levelUpdate(
		[]schema.QuoteLevel{{Price: 99, Size: 2}},
		[]schema.QuoteLevel{{Price: 101, Size: 10}},
	))

	// a 3-lot trade clears the 2 synthetic lots and reaches our order
	e.OnQuote(schema.Quote{
		InstrumentID: 3,
		Flags:        schema.QuoteFlagNormalTrade,
		Last:         &schema.QuoteTrade{Price: 99, Size: 3},
	})

	require.Len(t, listener.fills, 1)
	assert.Equal(t, o.ID, listener.fills[0].OrderID)
	assert.Equal(t, schema.Quantity(1), listener.fills[0].Qty)
}

func TestCrossedBookFillsRestingOrder(t *testing.T) {
	e, listener := newTestEngine(Config{})
	e.OnQuote(levelUpdate(
		[]schema.QuoteLevel{{Price: 99, Size: 10}},
		[]schema.QuoteLevel{{Price: 101, Size: 10}},
	))

	// rest a real ask inside the spread
	o := clientOrder(schema.OrderSideSell, 5, 100, schema.TimeInForceDay)
	ok, _ := e.SendNew(o)
	require.True(t, ok)

	// market bid moves up through our ask
	e.OnQuote(levelUpdate(
		[]schema.QuoteLevel{{Price: 100, Size: 8}},
		[]schema.QuoteLevel{{Price: 102, Size: 10}},
	))

	require.NotEmpty(t, listener.fills)
	fill := listener.fills[0]
	assert.Equal(t, o.ID, fill.OrderID)
	assert.Equal(t, schema.Quantity(5), fill.Qty)
	assert.Equal(t, schema.Price(100), fill.Price)
}

func TestSyntheticDepthTracksQuotes(t *testing.T) {
	e, _ := newTestEngine(Config{})
	e.OnQuote(levelUpdate(
		[]schema.QuoteLevel{{Price: 99, Size: 10}, {Price: 98, Size: 20}},
		[]schema.QuoteLevel{{Price: 101, Size: 10}},
	))

	bids, asks := e.Snapshot(3, 5)
	assert.Equal(t, []schema.QuoteLevel{{Price: 99, Size: 10}, {Price: 98, Size: 20}}, bids)
	assert.Equal(t, []schema.QuoteLevel{{Price: 101, Size: 10}}, asks)

	// a stale level inside the quoted range is cleaned up
	e.OnQuote(levelUpdate(
		[]schema.QuoteLevel{{Price: 99, Size: 4}, {Price: 97, Size: 20}},
		[]schema.QuoteLevel{{Price: 101, Size: 10}},
	))
	bids, _ = e.Snapshot(3, 5)
	assert.Equal(t, []schema.QuoteLevel{{Price: 99, Size: 4}, {Price: 97, Size: 20}}, bids)
}
