package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/friendsincode/stellatune/internal/stellaerr"
)

func TestMutationInsertRejectsDuplicateStageKey(t *testing.T) {
	g := DefaultGraph()
	err := g.Apply(Mutation{
		Kind:    MutationInsert,
		Segment: SegmentMain,
		Stage:   Stage{Key: StageKeyGaplessTrim, Kind: "external.probe"},
	})
	require.Error(t, err)
	require.True(t, stellaerr.Is(err, stellaerr.KindInvalidArg))
	// Graph is left untouched on a rejected mutation.
	require.Len(t, g.Main, 2)
}

func TestMutationRemoveUnknownKeyReturnsStageNotFound(t *testing.T) {
	g := DefaultGraph()
	err := g.Apply(Mutation{Kind: MutationRemove, TargetKey: "external.probe"})
	require.Error(t, err)
	require.True(t, stellaerr.Is(err, stellaerr.KindTransformStageNotFound))
}

func TestMutationMovePreservesStageAcrossSegments(t *testing.T) {
	g := DefaultGraph()
	err := g.Apply(Mutation{
		Kind:      MutationMove,
		TargetKey: StageKeyTransitionGain,
		Segment:   SegmentPostMix,
		Position:  PositionFront,
	})
	require.NoError(t, err)

	_, seg, ok := g.Find(StageKeyTransitionGain)
	require.True(t, ok)
	require.Equal(t, SegmentPostMix, seg)
	require.Equal(t, StageKeyTransitionGain, g.PostMix[0].Key)
}

func TestAssemblerApplyMutationBumpsGenerationAndPreservesRetainedStageState(t *testing.T) {
	a := NewAssembler()
	plan := NewPlan(SourceStage{InputRef: "track-a"}, DecoderStage{PluginID: "p1"}, SinkStage{PluginID: "s1"})
	assembled := a.Ensure(plan)
	firstGen := assembled.Generation

	err := a.ApplyMutation(Mutation{
		Kind:    MutationInsert,
		Segment: SegmentMain,
		Stage:   Stage{Key: "external.probe", Kind: "dsp"},
	})
	require.NoError(t, err)

	current, ok := a.Current()
	require.True(t, ok)
	require.Greater(t, current.Generation, firstGen)

	_, _, found := current.Plan.Transform.Find(StageKeyGaplessTrim)
	require.True(t, found, "retained built-in stage survives the mutation")
}

func TestGaplessTrimReturnsNilWhenStageHasNoConfig(t *testing.T) {
	g := DefaultGraph()
	require.Nil(t, g.GaplessTrim())
}

func TestGaplessTrimParsesStageConfig(t *testing.T) {
	g := DefaultGraph()
	err := g.Apply(Mutation{
		Kind:      MutationReplace,
		TargetKey: StageKeyGaplessTrim,
		Stage:     Stage{Key: StageKeyGaplessTrim, Kind: "gapless_trim", Config: `{"HeadFrames":10,"TailFrames":20}`},
	})
	require.NoError(t, err)

	trim := g.GaplessTrim()
	require.NotNil(t, trim)
	require.Equal(t, uint64(10), trim.HeadFrames)
	require.Equal(t, uint64(20), trim.TailFrames)
}

func TestGaplessTrimReturnsNilWhenStageAbsent(t *testing.T) {
	g := &TransformGraph{}
	require.Nil(t, g.GaplessTrim())
}
