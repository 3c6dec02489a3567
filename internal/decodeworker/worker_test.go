package decodeworker

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/friendsincode/stellatune/internal/eventhub"
	"github.com/friendsincode/stellatune/internal/pipeline"
	"github.com/friendsincode/stellatune/internal/sinkworker"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	hub := eventhub.New(8)
	sink := sinkworker.New(nil, "", "", 8, 1000, 5, zerolog.Nop())
	assembler := pipeline.NewAssembler()
	return New(nil, assembler, sink, hub, zerolog.Nop())
}

func TestFadeWithoutActiveDecoderFallsBackToRequestedRamp(t *testing.T) {
	w := newTestWorker(t)
	w.fadeOutAndWait(PolicyFitToAvailable, 500)

	require.Len(t, w.TransitionLog, 1)
	entry := w.TransitionLog[0]
	require.Equal(t, 0.0, entry.TargetGain)
	require.Nil(t, entry.AvailableFramesHint, "no decoder handle means no hint can be computed")
	require.Equal(t, int64(500), entry.ResolvedRampMS)
}

func TestFadeInRecordsTargetGainOfOne(t *testing.T) {
	w := newTestWorker(t)
	w.fadeInAndWait(PolicyFixed)

	require.Len(t, w.TransitionLog, 1)
	require.Equal(t, 1.0, w.TransitionLog[0].TargetGain)
}

func TestDispatchQueueNextStoresInputWire(t *testing.T) {
	w := newTestWorker(t)
	resp := make(chan error, 1)
	stop := w.dispatch(Command{Kind: CmdQueueNext, QueueInputWire: "track-b", Resp: resp})

	require.False(t, stop)
	require.NoError(t, <-resp)
	require.Equal(t, "track-b", w.state.QueuedNextInputWire)
}

func TestDispatchShutdownStopsWorker(t *testing.T) {
	w := newTestWorker(t)
	resp := make(chan error, 1)
	stop := w.dispatch(Command{Kind: CmdShutdown, Resp: resp})

	require.True(t, stop)
	require.NoError(t, <-resp)
}

func TestHandleStageControlStoresPendingWhenNoRunnerMatches(t *testing.T) {
	w := newTestWorker(t)
	err := w.handleStageControl(Command{StageKey: "external.probe", ControlJSON: `{"x":1}`})
	require.NoError(t, err)

	replayed := w.state.ReplayPendingControls(newRunner(&pipeline.AssembledPipeline{
		Plan: pipeline.NewPlan(pipeline.SourceStage{}, pipeline.DecoderStage{}, pipeline.SinkStage{}),
	}))
	// DefaultGraph doesn't contain "external.probe", so the pending control is still
	// not replayable against a runner built from the default graph.
	require.Empty(t, replayed)
}

func TestHandlePlayWithoutActiveDecoderReturnsNoActivePipelineError(t *testing.T) {
	w := newTestWorker(t)
	err := w.handlePlay()
	require.Error(t, err)
}

func TestHandleSeekWithoutActiveDecoderReturnsNoActivePipelineError(t *testing.T) {
	w := newTestWorker(t)
	err := w.handleSeek(Command{PositionMS: 1000})
	require.Error(t, err)
}
