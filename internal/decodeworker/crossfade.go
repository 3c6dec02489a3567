package decodeworker

import (
	"time"

	"github.com/friendsincode/stellatune/internal/model"
	"github.com/friendsincode/stellatune/internal/pipeline"
)

// FadeRequest describes the fade-out issued before Seek/Pause/Stop/SwitchTrack, or the
// matching fade-in issued by a subsequent Seek/SwitchTrack (spec §4.D "Cross-fade
// around discontinuities").
type FadeRequest struct {
	TargetGain      float64
	RequestedRampMS int64
	Policy          TransitionTimePolicy
}

// ResolveRampMS applies the available-frames-hint transformation (spec §4.D steps 1-2,
// delegated to pipeline.PipelinePlan.AvailableFramesHint) and, under
// PolicyFitToAvailable, clamps the requested ramp to what's actually available:
// actual_ramp_ms = min(requested_ramp_ms, available_frames * 1000 / sample_rate).
func ResolveRampMS(req FadeRequest, plan pipeline.PipelinePlan, estimatedRemaining uint64, trim *model.GaplessTrimSpec, decoderSampleRate uint32) int64 {
	if req.Policy != PolicyFitToAvailable {
		return req.RequestedRampMS
	}
	availableFrames := plan.AvailableFramesHint(estimatedRemaining, trim, decoderSampleRate)
	if decoderSampleRate == 0 {
		return req.RequestedRampMS
	}
	availableMS := int64(float64(availableFrames) * 1000.0 / float64(decoderSampleRate))
	if availableMS < req.RequestedRampMS {
		return availableMS
	}
	return req.RequestedRampMS
}

// WaitForFadeCompletion blocks until isDone reports true or interruptMaxExtraWaitMS
// beyond rampMS elapses, whichever comes first (spec §4.D "Timeouts on transitions use
// interrupt_max_extra_wait_ms beyond the requested ramp"). Returns false on timeout.
func WaitForFadeCompletion(rampMS, interruptMaxExtraWaitMS int64, isDone func() bool, tick time.Duration) bool {
	deadline := time.Now().Add(time.Duration(rampMS+interruptMaxExtraWaitMS) * time.Millisecond)
	for {
		if isDone() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(tick)
	}
}
