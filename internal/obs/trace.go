package obs

import (
	"sync/atomic"
	"time"
)

// TraceGenerator hands out monotonically increasing IDs that correlate
// the audit frames produced while handling one core request. A nil
// generator yields zero, which readers treat as untraced.
type TraceGenerator struct {
	counter atomic.Uint64
}

// NewTraceGenerator seeds the counter. A zero seed falls back to wall
// time so IDs stay distinct across restarts.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	g := &TraceGenerator{}
	g.counter.Store(seed)
	return g
}

// Next returns the next trace ID.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return g.counter.Add(1)
}
