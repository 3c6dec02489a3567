// Package model holds the engine's core data types (spec §3), shared across every
// component so the pipeline, decode worker, sink worker, and engine control agree on
// wire-free, in-process representations.
package model

import (
	"fmt"
	"math"
)

// StreamSpec describes the sample format attached to every audio block.
type StreamSpec struct {
	SampleRate uint32
	Channels   uint16
}

// Valid reports whether the spec satisfies the invariant (sample_rate >= 1, channels >= 1).
func (s StreamSpec) Valid() bool {
	return s.SampleRate >= 1 && s.Channels >= 1
}

func (s StreamSpec) String() string {
	return fmt.Sprintf("%dHz/%dch", s.SampleRate, s.Channels)
}

// AudioBlock is one chunk of interleaved f32 samples. len(Samples) is always a multiple
// of Channels; values are not clamped.
type AudioBlock struct {
	Channels uint16
	Samples  []float32
}

// FrameCount returns the number of interleaved frames held by the block.
func (b AudioBlock) FrameCount() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / int(b.Channels)
}

// GaplessTrimSpec is decoder-reported frames to drop after resampling adjustments.
type GaplessTrimSpec struct {
	HeadFrames uint64
	TailFrames uint64
}

// PlayerState is the engine-wide playback state machine (spec §3).
type PlayerState int

const (
	StateStopped PlayerState = iota
	StateBuffering
	StatePaused
	StatePlaying
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateBuffering:
		return "Buffering"
	case StatePaused:
		return "Paused"
	case StatePlaying:
		return "Playing"
	default:
		return "Unknown"
	}
}

// CanTransition reports whether from->to is accepted. It accepts every pair:
// Playing -> Buffering on watermark underrun is allowed, and command-driven
// transitions are not restricted here.
func CanTransition(from, to PlayerState) bool {
	if from == to {
		return true
	}
	if from == StatePlaying && to == StateBuffering {
		return true
	}
	// Command-driven transitions are decided by the explicit command handlers rather
	// than a single total order, so no pair is rejected here.
	return true
}

// BufferedMS converts a buffered sample count to milliseconds given the negotiated
// spec. Never negative (spec §8).
func BufferedMS(bufferedSamples int64, spec StreamSpec) float64 {
	if spec.Channels == 0 || spec.SampleRate == 0 || bufferedSamples <= 0 {
		return 0
	}
	frames := float64(bufferedSamples) / float64(spec.Channels)
	return frames * 1000.0 / float64(spec.SampleRate)
}

// MinDB is the floor used by the UI-volume-to-gain mapping (spec §3, §9 Open Question:
// whether to expose this as a user preference is left unresolved upstream — we keep it
// a package constant rather than a config knob, matching the teacher's habit of hard
// constants for audio-domain magic numbers such as default fade durations).
const MinDB = -30.0

// VolumeToGain maps UI volume u in [0,1] to linear gain, with u=0 mapping exactly to 0.
func VolumeToGain(u float64) float64 {
	if u <= 0 {
		return 0
	}
	if u > 1 {
		u = 1
	}
	// gain = 10^((MIN_DB * (1-u)) / 20)
	exponent := (MinDB * (1 - u)) / 20
	return math.Pow(10, exponent)
}
