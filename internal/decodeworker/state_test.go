package decodeworker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/friendsincode/stellatune/internal/pipeline"
)

func newTestRunner(keys ...string) *ActiveRunner {
	g := &pipeline.TransformGraph{}
	for _, k := range keys {
		g.Main = append(g.Main, pipeline.Stage{Key: k, Kind: "test"})
	}
	return newRunner(&pipeline.AssembledPipeline{
		Plan: pipeline.PipelinePlan{Transform: g},
	})
}

func TestStageControlReplaysOnceKeyExistsInRebuiltRunner(t *testing.T) {
	s := NewState()

	// ApplyStageControl arrives before the stage exists in any runner: it is stored
	// rather than erroring outright (spec §4.D "Stage-control routing").
	runnerWithoutKey := newTestRunner(pipeline.StageKeyGaplessTrim)
	require.False(t, runnerWithoutKey.HasStageKey("plugin.custom_eq"))
	s.StorePendingControl("plugin.custom_eq", `{"gain_db":3}`)

	applied := s.ReplayPendingControls(runnerWithoutKey)
	require.Empty(t, applied, "control stays pending while its key is still absent")

	// A later rebuild whose graph now contains the key replays it exactly once.
	runnerWithKey := newTestRunner(pipeline.StageKeyGaplessTrim, "plugin.custom_eq")
	applied = s.ReplayPendingControls(runnerWithKey)
	require.Len(t, applied, 1)
	require.Equal(t, "plugin.custom_eq", applied[0].StageKey)

	// Replaying again finds nothing left pending for that key.
	applied = s.ReplayPendingControls(runnerWithKey)
	require.Empty(t, applied)
}

func TestStageControlLeavesOtherPendingControlsUntouched(t *testing.T) {
	s := NewState()
	s.StorePendingControl("plugin.a", `{}`)
	s.StorePendingControl("plugin.b", `{}`)

	runner := newTestRunner("plugin.a")
	applied := s.ReplayPendingControls(runner)
	require.Len(t, applied, 1)
	require.Equal(t, "plugin.a", applied[0].StageKey)

	// plugin.b is still pending for a future runner.
	runnerB := newTestRunner("plugin.b")
	applied = s.ReplayPendingControls(runnerB)
	require.Len(t, applied, 1)
	require.Equal(t, "plugin.b", applied[0].StageKey)
}
