package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/audit"
	"main/internal/orders"
	"main/internal/pipeline"
	"main/internal/pnl"
	"main/internal/risk"
	"main/internal/schema"
)

const (
	testAccount    schema.AccountID    = 1
	testStrategy   schema.StrategyID   = 2
	testInstrument schema.InstrumentID = 1
)

// newUnstartedEngine builds an engine over a one-instrument registry
// with all limits disabled. The caller decides whether to run the
// actor.
func newUnstartedEngine(t *testing.T) *Engine {
	t.Helper()
	reg := schema.NewRegistry()
	_, err := reg.AddInstrument("BTCUSDT", 1, schema.ScaleSpec{PriceScale: 2})
	require.NoError(t, err)

	e, err := NewEngine(Config{
		Risk: risk.Config{
			AccountID: testAccount,
			Enabled:   true,
			Instruments: map[schema.InstrumentID]risk.InstrumentParams{
				testInstrument: {TradeEnabled: true},
			},
		},
		PnL: pnl.Config{AccountID: testAccount},
	}, reg)
	require.NoError(t, err)
	return e
}

// startEngine runs an engine actor that stops with the test.
func startEngine(t *testing.T) *Engine {
	t.Helper()
	e := newUnstartedEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go e.Run(ctx)
	return e
}

func postBook(e *Engine, mid schema.Price) {
	quote := schema.Quote{
		InstrumentID: testInstrument,
		Flags:        schema.QuoteFlagLevelUpdate,
	}
	for depth := schema.Price(1); depth <= schema.QuoteDepth; depth++ {
		quote.Bids = append(quote.Bids, schema.QuoteLevel{Price: mid - depth, Size: 10})
		quote.Asks = append(quote.Asks, schema.QuoteLevel{Price: mid + depth, Size: 10})
	}
	e.PostQuote(quote)
}

func newParams(side schema.OrderSide, price schema.Price, qty schema.Quantity) orders.NewOrderParams {
	return orders.NewOrderParams{
		AccountID:    testAccount,
		StrategyID:   testStrategy,
		InstrumentID: testInstrument,
		Side:         side,
		Type:         schema.OrderTypeLimit,
		TimeInForce:  schema.TimeInForceDay,
		Qty:          qty,
		Price:        price,
	}
}

type orderRow struct {
	OrderID string          `json:"orderId"`
	State   string          `json:"state"`
	Price   schema.Price    `json:"price"`
	Qty     schema.Quantity `json:"qty"`
	CumQty  schema.Quantity `json:"cumQty"`
}

func listOrders(t *testing.T, e *Engine) []orderRow {
	t.Helper()
	resp, err := e.Execute(context.Background(), schema.Command{
		Type:    schema.CommandTypeQuery,
		SubType: schema.CommandSubTypeListOrders,
	})
	require.NoError(t, err)
	var rows []orderRow
	require.NoError(t, sonic.UnmarshalString(resp.Body, &rows))
	return rows
}

type positionRow struct {
	InstrumentID schema.InstrumentID `json:"instrumentId"`
	OpenBid      schema.Quantity     `json:"openBid"`
	OpenAsk      schema.Quantity     `json:"openAsk"`
	NetPos       schema.Quantity     `json:"netPos"`
}

func accountPositions(t *testing.T, e *Engine) []positionRow {
	t.Helper()
	resp, err := e.Execute(context.Background(), schema.Command{
		Type:    schema.CommandTypeQuery,
		SubType: schema.CommandSubTypeListPositions,
	})
	require.NoError(t, err)
	var out struct {
		Account []positionRow `json:"account"`
	}
	require.NoError(t, sonic.UnmarshalString(resp.Body, &out))
	return out.Account
}

func TestPassiveOrderWorksAfterAck(t *testing.T) {
	e := startEngine(t)
	postBook(e, 10000)

	ctx := context.Background()
	res, err := e.SubmitNew(ctx, newParams(schema.OrderSideBuy, 9999, 5))
	require.NoError(t, err)
	require.True(t, res.Ok, "reject: %s", res.Reject.Text)
	require.NotEqual(t, schema.OrderID(uuid.Nil), res.OrderID)

	rows := listOrders(t, e)
	require.Len(t, rows, 1)
	assert.Equal(t, res.OrderID.String(), rows[0].OrderID)
	assert.Equal(t, schema.OrderStateWorking.String(), rows[0].State)
	assert.Equal(t, schema.Price(9999), rows[0].Price)

	positions := accountPositions(t, e)
	require.Len(t, positions, 1)
	assert.Equal(t, schema.Quantity(5), positions[0].OpenBid)
	assert.Equal(t, schema.Quantity(0), positions[0].NetPos)
}

func TestAggressiveOrderFillsAgainstBook(t *testing.T) {
	e := startEngine(t)
	postBook(e, 10000)

	ctx := context.Background()
	res, err := e.SubmitNew(ctx, newParams(schema.OrderSideBuy, 10001, 5))
	require.NoError(t, err)
	require.True(t, res.Ok)

	// Fully filled orders leave the live table.
	assert.Empty(t, listOrders(t, e))

	positions := accountPositions(t, e)
	require.Len(t, positions, 1)
	assert.Equal(t, schema.Quantity(5), positions[0].NetPos)
	assert.Equal(t, schema.Quantity(0), positions[0].OpenBid)
}

func TestIOCRemainderExpires(t *testing.T) {
	e := startEngine(t)
	postBook(e, 10000)

	// only 10 available at the top ask; the remainder must expire
	// instead of resting or sticking in the table
	params := newParams(schema.OrderSideBuy, 10001, 15)
	params.TimeInForce = schema.TimeInForceIOC
	res, err := e.SubmitNew(context.Background(), params)
	require.NoError(t, err)
	require.True(t, res.Ok, "reject: %s", res.Reject.Text)

	assert.Empty(t, listOrders(t, e))

	positions := accountPositions(t, e)
	require.Len(t, positions, 1)
	assert.Equal(t, schema.Quantity(10), positions[0].NetPos)
	assert.Equal(t, schema.Quantity(0), positions[0].OpenBid)
}

func TestModifyThenCancel(t *testing.T) {
	e := startEngine(t)
	postBook(e, 10000)

	ctx := context.Background()
	res, err := e.SubmitNew(ctx, newParams(schema.OrderSideSell, 10003, 4))
	require.NoError(t, err)
	require.True(t, res.Ok)

	mod, err := e.SubmitMod(ctx, res.OrderID, 10002)
	require.NoError(t, err)
	require.True(t, mod.Ok, "reject: %s", mod.Reject.Text)

	rows := listOrders(t, e)
	require.Len(t, rows, 1)
	assert.Equal(t, schema.Price(10002), rows[0].Price)

	cxl, err := e.SubmitCxl(ctx, res.OrderID)
	require.NoError(t, err)
	require.True(t, cxl.Ok)

	assert.Empty(t, listOrders(t, e))
	positions := accountPositions(t, e)
	require.Len(t, positions, 1)
	assert.Equal(t, schema.Quantity(0), positions[0].OpenAsk)
}

func TestUnknownOrderRejected(t *testing.T) {
	e := startEngine(t)
	ctx := context.Background()
	bogus := schema.OrderID(uuid.New())

	mod, err := e.SubmitMod(ctx, bogus, 100)
	require.NoError(t, err)
	assert.False(t, mod.Ok)
	assert.Equal(t, schema.RejectReasonUnknownOrder, mod.Reject.Reason)

	cxl, err := e.SubmitCxl(ctx, bogus)
	require.NoError(t, err)
	assert.False(t, cxl.Ok)
	assert.Equal(t, schema.RejectReasonUnknownOrder, cxl.Reject.Reason)
}

func TestExternalFillMovesPositionOnly(t *testing.T) {
	e := startEngine(t)
	ctx := context.Background()

	require.NoError(t, e.PostExternalFill(ctx, schema.Fill{
		AccountID:    testAccount,
		StrategyID:   testStrategy,
		InstrumentID: testInstrument,
		Side:         schema.OrderSideBuy,
		Price:        10000,
		Qty:          7,
	}))

	positions := accountPositions(t, e)
	require.Len(t, positions, 1)
	assert.Equal(t, schema.Quantity(7), positions[0].NetPos)
	assert.Empty(t, listOrders(t, e))
}

func TestExecuteRiskUpdates(t *testing.T) {
	e := startEngine(t)
	postBook(e, 10000)
	ctx := context.Background()

	resp, err := e.Execute(ctx, schema.Command{
		Type:    schema.CommandTypeControl,
		SubType: schema.CommandSubTypeUpdateAccount,
		Params:  map[string]string{"accountId": "1", "enabled": "false"},
	})
	require.NoError(t, err)
	assert.Equal(t, "account updated", resp.Body)

	res, err := e.SubmitNew(ctx, newParams(schema.OrderSideBuy, 9999, 1))
	require.NoError(t, err)
	require.False(t, res.Ok)
	assert.Equal(t, schema.RejectReasonAccountDisabled, res.Reject.Reason)

	resp, err = e.Execute(ctx, schema.Command{
		Type:    schema.CommandTypeControl,
		SubType: schema.CommandSubTypeUpdateAccount,
		Params:  map[string]string{"accountId": "9", "enabled": "true"},
	})
	require.NoError(t, err)
	assert.Equal(t, "account not managed here", resp.Body)
}

func TestExecuteThrottleReset(t *testing.T) {
	e := startEngine(t)
	resp, err := e.Execute(context.Background(), schema.Command{
		Type:    schema.CommandTypeControl,
		SubType: schema.CommandSubTypeThrottleReset,
	})
	require.NoError(t, err)
	assert.Equal(t, "throttle reset", resp.Body)
}

func TestShutdownDrainsPendingRequests(t *testing.T) {
	e := newUnstartedEngine(t)

	// Queue a request before the actor starts, then start it with an
	// already-cancelled context so it drains instead of serving.
	reply := make(chan SubmitResult, 1)
	e.ch <- request{kind: reqSubmitNew, params: newParams(schema.OrderSideBuy, 100, 1), reply: reply}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Run(ctx)

	res := <-reply
	assert.False(t, res.Ok)
	assert.Equal(t, schema.RejectReasonGatewayDown, res.Reject.Reason)
}

func TestSubmitTimesOutWithoutActor(t *testing.T) {
	e := newUnstartedEngine(t)

	// Run never starts, so the enqueued request gets no reply.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.SubmitNew(ctx, newParams(schema.OrderSideBuy, 100, 1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// rejectingTerminal stands in for a matcher that lost track of the
// order, the only stage that can reject after the table already
// transitioned the state.
type rejectingTerminal struct{ pipeline.PassStage }

func (rejectingTerminal) Name() string { return "terminal" }

func (rejectingTerminal) SendMod(*orders.Order, schema.Price) (bool, schema.Reject) {
	return false, schema.GetRej(schema.RejectReasonNoSuchBook, "not resting")
}

func (rejectingTerminal) SendCxl(*orders.Order) (bool, schema.Reject) {
	return false, schema.GetRej(schema.RejectReasonNoSuchBook, "not resting")
}

func TestTerminalRejectUnwindsTableState(t *testing.T) {
	e := newUnstartedEngine(t)
	chain, err := pipeline.NewChain(
		&pipeline.TableStage{Table: e.table},
		rejectingTerminal{},
	)
	require.NoError(t, err)
	e.chain = chain

	res := e.handleSubmitNew(newParams(schema.OrderSideBuy, 100, 5))
	require.True(t, res.Ok)
	e.OnNewAck(res.OrderID)

	o, ok := e.table.GetByID(res.OrderID)
	require.True(t, ok)
	require.Equal(t, schema.OrderStateWorking, o.State)

	mod := e.handleSubmitMod(res.OrderID, 101)
	require.False(t, mod.Ok)
	assert.Equal(t, schema.RejectSubtypeMatch, mod.Reject.Subtype)
	assert.Equal(t, schema.OrderStateWorking, o.State, "rejected modify must not leave the order Modifying")
	assert.Equal(t, schema.Price(100), o.Price)

	cxl := e.handleSubmitCxl(res.OrderID)
	require.False(t, cxl.Ok)
	assert.Equal(t, schema.OrderStateWorking, o.State, "rejected cancel must not leave the order Cancelling")
	assert.Equal(t, 1, e.table.LiveCount())
}

type headerSink struct {
	mu      sync.Mutex
	headers []schema.EventHeader
}

func (s *headerSink) Write(header schema.EventHeader, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, header)
	return nil
}

func (s *headerSink) Close() error { return nil }

func (s *headerSink) snapshot() []schema.EventHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.EventHeader(nil), s.headers...)
}

func TestAuditFramesShareRequestTrace(t *testing.T) {
	e := newUnstartedEngine(t)
	sink := &headerSink{}
	pub := audit.NewPublisher(64, sink)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	pub.Start(ctx)
	e.SetPublisher(pub)
	go e.Run(ctx)

	postBook(e, 10000)
	res, err := e.SubmitNew(ctx, newParams(schema.OrderSideBuy, 10001, 5))
	require.NoError(t, err)
	require.True(t, res.Ok)

	// one aggressive submit emits ack, fill, position and new frames
	require.Eventually(t, func() bool {
		return len(sink.snapshot()) >= 4
	}, 2*time.Second, 5*time.Millisecond)

	headers := sink.snapshot()
	first := headers[0].TraceID
	require.NotZero(t, first)
	for _, h := range headers {
		assert.Equal(t, first, h.TraceID)
	}

	// a second request gets its own trace id
	res, err = e.SubmitNew(ctx, newParams(schema.OrderSideBuy, 9999, 1))
	require.NoError(t, err)
	require.True(t, res.Ok)
	require.Eventually(t, func() bool {
		return len(sink.snapshot()) > len(headers)
	}, 2*time.Second, 5*time.Millisecond)
	later := sink.snapshot()
	assert.NotEqual(t, first, later[len(later)-1].TraceID)
}
