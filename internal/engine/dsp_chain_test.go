package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/friendsincode/stellatune/internal/model"
	"github.com/friendsincode/stellatune/internal/pipeline"
)

func TestDSPChainResolveProducesOneStagePerDesiredEntryInOrder(t *testing.T) {
	c := NewDSPChain()
	c.SetDesired([]DesiredStage{
		{PluginID: "eq10", TypeID: "parametric_eq", ConfigJSON: `{"bands":10}`},
		{PluginID: "limiter", TypeID: "brickwall", ConfigJSON: `{}`},
	})

	stages := c.Resolve(model.StreamSpec{SampleRate: 44100, Channels: 2})
	require.Len(t, stages, 2)
	require.Equal(t, "dsp.eq10.parametric_eq", stages[0].Key)
	require.Equal(t, "dsp.limiter.brickwall", stages[1].Key)
	require.Equal(t, `{"bands":10}`, stages[0].Config)
}

func TestDSPChainApplyToInsertsNewStagesIntoMainSegment(t *testing.T) {
	c := NewDSPChain()
	c.SetDesired([]DesiredStage{{PluginID: "eq10", TypeID: "parametric_eq", ConfigJSON: "{}"}})

	graph := &pipeline.TransformGraph{}
	require.NoError(t, c.ApplyTo(graph, model.StreamSpec{SampleRate: 44100, Channels: 2}))

	require.True(t, graph.HasKey("dsp.eq10.parametric_eq"))
	require.Len(t, graph.Main, 1)
}

func TestDSPChainApplyToIsIdempotentOnRepeatedResolution(t *testing.T) {
	c := NewDSPChain()
	c.SetDesired([]DesiredStage{{PluginID: "eq10", TypeID: "parametric_eq", ConfigJSON: "{}"}})
	spec := model.StreamSpec{SampleRate: 44100, Channels: 2}

	graph := &pipeline.TransformGraph{}
	require.NoError(t, c.ApplyTo(graph, spec))
	require.NoError(t, c.ApplyTo(graph, spec))

	require.Len(t, graph.Main, 1, "re-applying the same desired chain must not duplicate stages")
}

func TestDSPChainApplyToReplacesExistingStageWhenConfigChanges(t *testing.T) {
	c := NewDSPChain()
	spec := model.StreamSpec{SampleRate: 44100, Channels: 2}
	graph := &pipeline.TransformGraph{}

	c.SetDesired([]DesiredStage{{PluginID: "eq10", TypeID: "parametric_eq", ConfigJSON: `{"bands":10}`}})
	require.NoError(t, c.ApplyTo(graph, spec))

	c.SetDesired([]DesiredStage{{PluginID: "eq10", TypeID: "parametric_eq", ConfigJSON: `{"bands":31}`}})
	require.NoError(t, c.ApplyTo(graph, spec))

	require.Len(t, graph.Main, 1)
	require.Equal(t, `{"bands":31}`, graph.Main[0].Config)
}

func TestDSPChainDesiredReturnsACopyNotTheBackingSlice(t *testing.T) {
	c := NewDSPChain()
	c.SetDesired([]DesiredStage{{PluginID: "eq10", TypeID: "parametric_eq"}})

	got := c.Desired()
	got[0].PluginID = "mutated"

	require.Equal(t, "eq10", c.Desired()[0].PluginID)
}
