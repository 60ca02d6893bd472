package throttle

import (
	"fmt"
	"time"

	"main/internal/schema"
)

// Config sets per-message-type rate limits in messages per second.
// A zero value for every field disables the gate entirely.
type Config struct {
	NewPerSec int
	ModPerSec int
	CxlPerSec int
}

// Gate rate-limits order message flow for one account. New/modify
// breaches latch until Reset; cancel breaches clear on the next
// second. Not safe for concurrent use; the core serializes access.
type Gate struct {
	cfg Config
	now func() time.Time

	windowSec int64
	newCount  int
	modCount  int
	cxlCount  int
	latched   bool
}

// NewGate creates a throttle gate.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg, now: time.Now}
}

// SetClock overrides the gate clock, for tests.
func (g *Gate) SetClock(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// IsEnabled reports whether any limit is configured. A disabled gate
// is a pass-through.
func (g *Gate) IsEnabled() bool {
	return g.cfg.NewPerSec > 0 || g.cfg.ModPerSec > 0 || g.cfg.CxlPerSec > 0
}

// Latched reports whether the new/modify latch is set.
func (g *Gate) Latched() bool {
	return g.latched
}

// Reset clears the new/modify latch and the current-second counters.
func (g *Gate) Reset() {
	g.latched = false
	g.newCount = 0
	g.modCount = 0
	g.cxlCount = 0
}

// roll resets the per-second counters when the second changes. The
// latch survives the roll.
func (g *Gate) roll() {
	sec := g.now().Unix()
	if sec != g.windowSec {
		g.windowSec = sec
		g.newCount = 0
		g.modCount = 0
		g.cxlCount = 0
	}
}

// CheckNew admits or rejects a new-order message.
func (g *Gate) CheckNew() (bool, schema.Reject) {
	if !g.IsEnabled() || g.cfg.NewPerSec <= 0 {
		if g.IsEnabled() && g.latched {
			return false, schema.GetRej(schema.RejectReasonThrottleNew, "throttle latched")
		}
		return true, schema.Reject{}
	}
	g.roll()
	if g.latched {
		return false, schema.GetRej(schema.RejectReasonThrottleNew, "throttle latched")
	}
	g.newCount++
	if g.newCount > g.cfg.NewPerSec {
		g.latched = true
		return false, schema.GetRej(schema.RejectReasonThrottleNew,
			fmt.Sprintf("%d new msgs :: %d per sec", g.newCount, g.cfg.NewPerSec))
	}
	return true, schema.Reject{}
}

// CheckMod admits or rejects a modify message.
func (g *Gate) CheckMod() (bool, schema.Reject) {
	if !g.IsEnabled() || g.cfg.ModPerSec <= 0 {
		if g.IsEnabled() && g.latched {
			return false, schema.GetRej(schema.RejectReasonThrottleMod, "throttle latched")
		}
		return true, schema.Reject{}
	}
	g.roll()
	if g.latched {
		return false, schema.GetRej(schema.RejectReasonThrottleMod, "throttle latched")
	}
	g.modCount++
	if g.modCount > g.cfg.ModPerSec {
		g.latched = true
		return false, schema.GetRej(schema.RejectReasonThrottleMod,
			fmt.Sprintf("%d mod msgs :: %d per sec", g.modCount, g.cfg.ModPerSec))
	}
	return true, schema.Reject{}
}

// CheckCxl admits or rejects a cancel message. Cancel breaches reject
// only for the remainder of the current second.
func (g *Gate) CheckCxl() (bool, schema.Reject) {
	if !g.IsEnabled() || g.cfg.CxlPerSec <= 0 {
		return true, schema.Reject{}
	}
	g.roll()
	g.cxlCount++
	if g.cxlCount > g.cfg.CxlPerSec {
		return false, schema.GetRej(schema.RejectReasonThrottleCxl,
			fmt.Sprintf("%d cxl msgs :: %d per sec", g.cxlCount, g.cfg.CxlPerSec))
	}
	return true, schema.Reject{}
}
