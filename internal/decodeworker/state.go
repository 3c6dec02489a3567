// Package decodeworker pulls decoded audio through the assembled pipeline and writes it
// to the sink, owning the single dedicated decode thread per session and the cross-fade
// behavior around discontinuities (spec §4.D).
package decodeworker

import (
	"sync"

	"github.com/friendsincode/stellatune/internal/model"
	"github.com/friendsincode/stellatune/internal/pipeline"
)

// TransitionTimePolicy governs how a requested ramp duration is adapted to the amount
// of audio actually available before a discontinuity (spec §4.D).
type TransitionTimePolicy int

const (
	// PolicyFixed always uses the requested ramp_ms regardless of availability.
	PolicyFixed TransitionTimePolicy = iota
	// PolicyFitToAvailable clamps ramp_ms to the available frames' duration.
	PolicyFitToAvailable
)

// MasterGainHotControl is a process-wide snapshot that survives runner rebuilds — owned
// by worker state, read by the active runner, so pausing/stopping never resets it
// (spec §4.D "Master-gain hot control").
type MasterGainHotControl struct {
	Level  float64
	RampMS int64
}

// PendingStageControl is a stage control that targeted an unknown stage key (not
// present in the current runner's graph) and is stored for replay the next time a
// runner is built with a matching key (spec §4.D "Stage-control routing").
type PendingStageControl struct {
	StageKey   string
	ControlJSON string
}

// ActiveRunner is the live decode/transform/write loop bound to one AssembledPipeline
// generation. A new Generation forces the worker to rebuild its runner.
type ActiveRunner struct {
	Assembled *pipeline.AssembledPipeline

	applyCounts map[string]int // stage_key -> number of times a control has been applied

	trimmer    *pipeline.GaplessTrimmer
	resampler  *pipeline.LinearResampler
}

func newRunner(assembled *pipeline.AssembledPipeline) *ActiveRunner {
	return &ActiveRunner{Assembled: assembled, applyCounts: make(map[string]int)}
}

// HasStageKey reports whether the runner's graph contains key.
func (r *ActiveRunner) HasStageKey(key string) bool {
	return r.Assembled.Plan.Transform.HasKey(key)
}

// State is the decode worker's full internal state (spec §4.D "State").
type State struct {
	mu sync.Mutex

	Player          model.PlayerState
	ActiveInputWire string // wire-form TrackToken, empty if none
	Runner          *ActiveRunner

	QueuedNextInputWire string
	PrewarmedNext       bool

	PinnedPlan      *pipeline.PipelinePlan
	ResampleQuality string
	LfeMode         string

	MasterGain MasterGainHotControl

	pendingControls []PendingStageControl
}

// NewState returns a fresh, stopped worker state.
func NewState() *State {
	return &State{Player: model.StateStopped}
}

// StorePendingControl records a control for replay against a future runner whose graph
// contains stageKey.
func (s *State) StorePendingControl(stageKey, controlJSON string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingControls = append(s.pendingControls, PendingStageControl{StageKey: stageKey, ControlJSON: controlJSON})
}

// ReplayPendingControls returns and clears every pending control whose stage key is
// present in runner's graph, applying the rest back as still-pending.
func (s *State) ReplayPendingControls(runner *ActiveRunner) []PendingStageControl {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toApply, stillPending []PendingStageControl
	for _, pc := range s.pendingControls {
		if runner.HasStageKey(pc.StageKey) {
			toApply = append(toApply, pc)
		} else {
			stillPending = append(stillPending, pc)
		}
	}
	s.pendingControls = stillPending
	return toApply
}
