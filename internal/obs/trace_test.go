package obs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceGeneratorMonotonic(t *testing.T) {
	g := NewTraceGenerator(100)
	require.Equal(t, uint64(101), g.Next())
	require.Equal(t, uint64(102), g.Next())
	require.Equal(t, uint64(103), g.Next())
}

func TestTraceGeneratorZeroSeedStillProduces(t *testing.T) {
	g := NewTraceGenerator(0)
	assert.NotZero(t, g.Next())
}

func TestTraceGeneratorNilYieldsZero(t *testing.T) {
	var g *TraceGenerator
	assert.Zero(t, g.Next())
}
