package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func gateAt(cfg Config, sec *int64) *Gate {
	g := NewGate(cfg)
	g.SetClock(func() time.Time { return time.Unix(*sec, 0) })
	return g
}

func TestDisabledGatePassesEverything(t *testing.T) {
	sec := int64(100)
	g := gateAt(Config{}, &sec)
	assert.False(t, g.IsEnabled())

	for i := 0; i < 1000; i++ {
		ok, _ := g.CheckNew()
		require.True(t, ok)
		ok, _ = g.CheckMod()
		require.True(t, ok)
		ok, _ = g.CheckCxl()
		require.True(t, ok)
	}
}

func TestNewBreachLatchesUntilReset(t *testing.T) {
	sec := int64(100)
	g := gateAt(Config{NewPerSec: 2, ModPerSec: 2, CxlPerSec: 2}, &sec)

	ok, _ := g.CheckNew()
	require.True(t, ok)
	ok, _ = g.CheckNew()
	require.True(t, ok)

	ok, rej := g.CheckNew()
	require.False(t, ok)
	assert.Equal(t, schema.RejectReasonThrottleNew, rej.Reason)
	assert.True(t, g.Latched())

	// the latch blocks modifies too and survives the second rolling
	ok, rej = g.CheckMod()
	require.False(t, ok)
	assert.Equal(t, schema.RejectReasonThrottleMod, rej.Reason)

	sec = 101
	ok, _ = g.CheckNew()
	assert.False(t, ok)
	assert.True(t, g.Latched())

	g.Reset()
	assert.False(t, g.Latched())
	ok, _ = g.CheckNew()
	assert.True(t, ok)
}

func TestCxlBreachClearsOnNextSecond(t *testing.T) {
	sec := int64(100)
	g := gateAt(Config{CxlPerSec: 1}, &sec)

	ok, _ := g.CheckCxl()
	require.True(t, ok)
	ok, rej := g.CheckCxl()
	require.False(t, ok)
	assert.Equal(t, schema.RejectReasonThrottleCxl, rej.Reason)
	assert.False(t, g.Latched(), "cancel breach must not latch")

	sec = 101
	ok, _ = g.CheckCxl()
	assert.True(t, ok)
}

func TestCountersRollPerSecond(t *testing.T) {
	sec := int64(100)
	g := gateAt(Config{NewPerSec: 1}, &sec)

	ok, _ := g.CheckNew()
	require.True(t, ok)
	sec = 101
	ok, _ = g.CheckNew()
	require.True(t, ok)
	sec = 102
	ok, _ = g.CheckNew()
	require.True(t, ok)
	assert.False(t, g.Latched())
}
