package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/codec"
	"main/internal/schema"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Write(header schema.EventHeader, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.events = append(s.events, Event{Header: header, Payload: buf})
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestPublisherSequencesAndEncodes(t *testing.T) {
	sink := &captureSink{}
	pub := NewPublisher(64, sink)
	now := time.Unix(1700000000, 42)
	pub.SetClock(func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub.Start(ctx)

	fill := schema.Fill{
		Type:         schema.FillTypeNormal,
		AccountID:    1,
		StrategyID:   2,
		InstrumentID: 3,
		Side:         schema.OrderSideBuy,
		Price:        10050,
		Qty:          7,
	}
	pub.Fill(SourceMatch, 123, 777, fill)
	pub.Position(SourceCore, 0, 777, schema.PositionUpdate{AccountID: 1, InstrumentID: 3, NetPos: 7})
	pub.Alert(SourceFeed, schema.Alert{Text: "feed stalled"})
	require.EqualValues(t, 3, pub.Seq())

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	events := sink.snapshot()
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Header.Seq)
		assert.Equal(t, uint16(schema.SchemaVersion), ev.Header.Version)
		assert.Equal(t, now.UnixNano(), ev.Header.TsRecv)
		assert.NotZero(t, ev.Header.TraceID)
	}

	// the caller's trace id spans the fill and its position update
	assert.Equal(t, uint64(777), events[0].Header.TraceID)
	assert.Equal(t, uint64(777), events[1].Header.TraceID)
	// alerts have no request context; the publisher assigns one
	assert.NotEqual(t, uint64(777), events[2].Header.TraceID)

	assert.Equal(t, schema.EventFill, events[0].Header.Type)
	assert.Equal(t, SourceMatch, events[0].Header.Source)
	assert.Equal(t, int64(123), events[0].Header.TsEvent)
	decoded, ok := codec.DecodeFill(events[0].Payload)
	require.True(t, ok)
	assert.Equal(t, fill, decoded)

	assert.Equal(t, schema.EventPositionUpdate, events[1].Header.Type)
	// A zero event timestamp falls back to receive time.
	assert.Equal(t, now.UnixNano(), events[1].Header.TsEvent)

	assert.Equal(t, schema.EventAlert, events[2].Header.Type)
	assert.Equal(t, "feed stalled", string(events[2].Payload))
}

func TestPublisherOverflowCountsDrops(t *testing.T) {
	sink := &captureSink{}
	pub := NewPublisher(1, sink)

	// Not started, so the queue only holds one event.
	pub.Alert(SourceCore, schema.Alert{Text: "a"})
	pub.Alert(SourceCore, schema.Alert{Text: "b"})
	pub.Alert(SourceCore, schema.Alert{Text: "c"})

	assert.EqualValues(t, 3, pub.Seq())
	assert.EqualValues(t, 2, pub.Drops())
}

func TestPublisherCloseClosesSinks(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	pub := NewPublisher(8, first, second)

	require.NoError(t, pub.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}
