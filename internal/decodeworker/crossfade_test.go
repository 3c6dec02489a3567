package decodeworker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/friendsincode/stellatune/internal/model"
	"github.com/friendsincode/stellatune/internal/pipeline"
)

func TestResolveRampMSFixedPolicyIgnoresAvailability(t *testing.T) {
	plan := pipeline.NewPlan(pipeline.SourceStage{}, pipeline.DecoderStage{}, pipeline.SinkStage{})
	req := FadeRequest{RequestedRampMS: 500, Policy: PolicyFixed}
	ramp := ResolveRampMS(req, plan, 10, nil, 44100)
	require.Equal(t, int64(500), ramp)
}

func TestResolveRampMSFitToAvailableClampsToWhatRemains(t *testing.T) {
	plan := pipeline.NewPlan(pipeline.SourceStage{}, pipeline.DecoderStage{}, pipeline.SinkStage{})
	req := FadeRequest{RequestedRampMS: 2000, Policy: PolicyFitToAvailable}

	// 4410 remaining frames at 44100 Hz is 100ms of audio, well under the requested ramp.
	ramp := ResolveRampMS(req, plan, 4410, nil, 44100)
	require.Equal(t, int64(100), ramp)
}

func TestResolveRampMSFitToAvailableDoesNotExtendBeyondRequested(t *testing.T) {
	plan := pipeline.NewPlan(pipeline.SourceStage{}, pipeline.DecoderStage{}, pipeline.SinkStage{})
	req := FadeRequest{RequestedRampMS: 50, Policy: PolicyFitToAvailable}

	// Plenty of audio left; the clamp never grows the ramp past what was asked for.
	ramp := ResolveRampMS(req, plan, 1_000_000, nil, 44100)
	require.Equal(t, int64(50), ramp)
}

func TestResolveRampMSSubtractsGaplessTrimTailBeforeScaling(t *testing.T) {
	plan := pipeline.NewPlan(pipeline.SourceStage{}, pipeline.DecoderStage{}, pipeline.SinkStage{})
	req := FadeRequest{RequestedRampMS: 2000, Policy: PolicyFitToAvailable}
	trim := &model.GaplessTrimSpec{TailFrames: 4410}

	// 8820 remaining minus 4410 trimmed tail leaves 4410 frames == 100ms at 44100 Hz.
	ramp := ResolveRampMS(req, plan, 8820, trim, 44100)
	require.Equal(t, int64(100), ramp)
}

func TestWaitForFadeCompletionReturnsTrueWhenPredicateSatisfiesImmediately(t *testing.T) {
	done := WaitForFadeCompletion(10, 10, func() bool { return true }, time.Millisecond)
	require.True(t, done)
}

func TestWaitForFadeCompletionTimesOutPastInterruptWindow(t *testing.T) {
	done := WaitForFadeCompletion(5, 5, func() bool { return false }, time.Millisecond)
	require.False(t, done)
}
