package sinkworker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionGainRampsPowerWiseToTarget(t *testing.T) {
	g := newTransitionGain(1.0)
	g.SetTarget(0.0, 48000, 10) // 10ms ramp at 48kHz -> 480 steps

	require.InDelta(t, 1.0, g.Value(), 1e-9, "ramp starts at the previous gain")

	for i := 0; i < 480; i++ {
		g.Advance()
	}
	require.True(t, g.Done())
	require.InDelta(t, 0.0, g.Value(), 1e-6, "ramp reaches target after enough steps")
}

func TestTransitionGainRetargetResetsFromCurrent(t *testing.T) {
	g := newTransitionGain(0.2)
	g.SetTarget(1.0, 48000, 100)
	for i := 0; i < 100; i++ {
		g.Advance()
	}
	mid := g.Value()
	require.Greater(t, mid, 0.2)
	require.Less(t, mid, 1.0)

	// Retargeting resets from <- current value, not from the original start.
	g.SetTarget(0.0, 48000, 100)
	require.InDelta(t, mid, g.Value(), 1e-9)
}

func TestTransitionGainMinimumStepNeverZero(t *testing.T) {
	g := newTransitionGain(1.0)
	g.SetTarget(0.0, 1, 0) // degenerate ramp: totalSteps would be 0
	require.GreaterOrEqual(t, g.step, 1.0)
}
