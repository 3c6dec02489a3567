package engine

import "github.com/friendsincode/stellatune/internal/model"

// Watermarks is the pair of buffered-ms thresholds that drive Playing <-> Buffering
// transitions, distinct for exclusive vs shared-mode sinks (spec §4.E "Buffering";
// spec §9 Open Question: exact numeric values live in config, not contractually).
type Watermarks struct {
	HighMS int64
	LowMS  int64
}

// ExclusiveWatermarks and SharedWatermarks build a Watermarks pair from the process
// config (internal/config.Config's HighWatermark*MS/LowWatermark*MS fields).
func ExclusiveWatermarks(highMS, lowMS int64) Watermarks { return Watermarks{HighMS: highMS, LowMS: lowMS} }
func SharedWatermarks(highMS, lowMS int64) Watermarks    { return Watermarks{HighMS: highMS, LowMS: lowMS} }

// NextBufferingState applies the watermark rule for one engine tick: the sink is
// enabled once buffered_ms reaches the high watermark, and disabled (re-entering
// Buffering) once it falls to or below the low watermark. Any other observed state is
// left untouched — buffering transitions only ever move between Playing and Buffering.
func NextBufferingState(current model.PlayerState, bufferedMS float64, wm Watermarks) (next model.PlayerState, outputEnabled bool) {
	switch current {
	case model.StatePlaying:
		if bufferedMS <= float64(wm.LowMS) {
			return model.StateBuffering, false
		}
		return model.StatePlaying, true
	case model.StateBuffering:
		if bufferedMS >= float64(wm.HighMS) {
			return model.StatePlaying, true
		}
		return model.StateBuffering, false
	default:
		return current, false
	}
}
