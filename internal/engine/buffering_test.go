package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/friendsincode/stellatune/internal/model"
)

func TestNextBufferingStatePlayingAboveLowWatermarkStaysPlaying(t *testing.T) {
	wm := ExclusiveWatermarks(2000, 500)
	next, enabled := NextBufferingState(model.StatePlaying, 1200, wm)
	require.Equal(t, model.StatePlaying, next)
	require.True(t, enabled)
}

func TestNextBufferingStatePlayingAtLowWatermarkDropsToBuffering(t *testing.T) {
	wm := ExclusiveWatermarks(2000, 500)
	next, enabled := NextBufferingState(model.StatePlaying, 500, wm)
	require.Equal(t, model.StateBuffering, next)
	require.False(t, enabled)
}

func TestNextBufferingStatePlayingBelowLowWatermarkDropsToBuffering(t *testing.T) {
	wm := ExclusiveWatermarks(2000, 500)
	next, enabled := NextBufferingState(model.StatePlaying, 10, wm)
	require.Equal(t, model.StateBuffering, next)
	require.False(t, enabled)
}

func TestNextBufferingStateBufferingBelowHighWatermarkStaysBuffering(t *testing.T) {
	wm := ExclusiveWatermarks(2000, 500)
	next, enabled := NextBufferingState(model.StateBuffering, 1999, wm)
	require.Equal(t, model.StateBuffering, next)
	require.False(t, enabled)
}

func TestNextBufferingStateBufferingAtHighWatermarkPromotesToPlaying(t *testing.T) {
	wm := ExclusiveWatermarks(2000, 500)
	next, enabled := NextBufferingState(model.StateBuffering, 2000, wm)
	require.Equal(t, model.StatePlaying, next)
	require.True(t, enabled)
}

func TestNextBufferingStateOtherStatesAreLeftUntouched(t *testing.T) {
	wm := ExclusiveWatermarks(2000, 500)
	next, enabled := NextBufferingState(model.StatePaused, 0, wm)
	require.Equal(t, model.StatePaused, next)
	require.False(t, enabled)

	next, enabled = NextBufferingState(model.StateStopped, 50000, wm)
	require.Equal(t, model.StateStopped, next)
	require.False(t, enabled)
}
