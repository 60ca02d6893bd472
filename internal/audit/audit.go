package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/obs"
	"main/internal/recorder"
	"main/internal/schema"
)

// Event source identifiers carried in the frame header.
const (
	SourceCore uint16 = iota + 1
	SourceMatch
	SourceGateway
	SourceFeed
)

// Event is one encoded audit record ready for the sinks.
type Event struct {
	Header  schema.EventHeader
	Payload []byte
}

// Sink consumes encoded audit events.
type Sink interface {
	Write(header schema.EventHeader, payload []byte) error
	Close() error
}

// Publisher assigns sequence numbers, encodes domain events, and fans
// them out to the configured sinks through a bounded queue. Publishing
// never blocks the hot path; overflow is counted and dropped.
type Publisher struct {
	queue *bus.Queue[Event]
	sinks []Sink
	seq   uint64
	trace *obs.TraceGenerator
	now   func() time.Time
}

// NewPublisher creates a publisher over the given sinks.
func NewPublisher(queueSize int, sinks ...Sink) *Publisher {
	if queueSize <= 0 {
		queueSize = 4096
	}
	return &Publisher{
		queue: bus.NewQueue[Event](queueSize),
		sinks: sinks,
		trace: obs.NewTraceGenerator(0),
		now:   time.Now,
	}
}

// SetClock overrides the timestamp source.
func (p *Publisher) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Start drains the queue into the sinks until ctx is done.
func (p *Publisher) Start(ctx context.Context) {
	go p.queue.Run(ctx, func(ev Event) {
		for _, sink := range p.sinks {
			if err := sink.Write(ev.Header, ev.Payload); err != nil {
				logs.Errorf("audit sink write: %+v", err)
			}
		}
	})
}

// Close stops the queue and closes every sink.
func (p *Publisher) Close() error {
	p.queue.Close()
	var first error
	for _, sink := range p.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Seq returns the last assigned sequence number.
func (p *Publisher) Seq() uint64 { return atomic.LoadUint64(&p.seq) }

// Drops returns the number of events lost to queue overflow.
func (p *Publisher) Drops() uint64 { return p.queue.Drops() }

// publish stamps the frame header. A zero traceID means the caller has
// no request context; the publisher assigns a fresh one so every frame
// stays correlatable.
func (p *Publisher) publish(eventType schema.EventType, source uint16, tsEvent int64, traceID uint64, payload []byte) {
	seq := atomic.AddUint64(&p.seq, 1)
	tsRecv := p.now().UnixNano()
	if tsEvent == 0 {
		tsEvent = tsRecv
	}
	if traceID == 0 {
		traceID = p.trace.Next()
	}
	header := schema.NewHeader(eventType, source, seq, tsEvent, tsRecv)
	header.TraceID = traceID
	if err := p.queue.TryPublish(Event{Header: header, Payload: payload}); err != nil {
		logs.Warnf("audit queue overflow, dropped seq %d type %d", seq, eventType)
	}
}

// Order records an order lifecycle transition.
func (p *Publisher) Order(eventType schema.EventType, source uint16, tsEvent int64, traceID uint64, ev schema.OrderEvent) {
	payload := make([]byte, codec.OrderEventPayloadSize)
	codec.EncodeOrderEvent(payload, ev)
	p.publish(eventType, source, tsEvent, traceID, payload)
}

// Fill records an execution.
func (p *Publisher) Fill(source uint16, tsEvent int64, traceID uint64, fill schema.Fill) {
	payload := make([]byte, codec.FillPayloadSize)
	codec.EncodeFill(payload, fill)
	p.publish(schema.EventFill, source, tsEvent, traceID, payload)
}

// Position records a counter update.
func (p *Publisher) Position(source uint16, tsEvent int64, traceID uint64, update schema.PositionUpdate) {
	payload := make([]byte, codec.PositionUpdatePayloadSize)
	codec.EncodePositionUpdate(payload, update)
	p.publish(schema.EventPositionUpdate, source, tsEvent, traceID, payload)
}

// PnL records a profit and loss snapshot.
func (p *Publisher) PnL(source uint16, tsEvent int64, traceID uint64, snap schema.PnLSnapshot) {
	payload := make([]byte, codec.PnLSnapshotPayloadSize)
	codec.EncodePnLSnapshot(payload, snap)
	p.publish(schema.EventPnLSnapshot, source, tsEvent, traceID, payload)
}

// Alert records an operator alert as a UTF-8 text payload.
func (p *Publisher) Alert(source uint16, alert schema.Alert) {
	p.publish(schema.EventAlert, source, 0, 0, []byte(alert.Text))
}

// JournalSink adapts a recorder.Journal into a Sink.
type JournalSink struct {
	journal *recorder.Journal
}

// NewJournalSink wraps an already started journal.
func NewJournalSink(journal *recorder.Journal) *JournalSink {
	return &JournalSink{journal: journal}
}

func (s *JournalSink) Write(header schema.EventHeader, payload []byte) error {
	return s.journal.Append(header, payload)
}

func (s *JournalSink) Close() error {
	return s.journal.Close()
}
