package engine

import (
	"github.com/friendsincode/stellatune/internal/model"
	"github.com/friendsincode/stellatune/internal/pipeline"
)

// DesiredStage is one entry of the desired DSP chain the engine stores independently
// of any resolved pipeline (spec §4.E "DSP chain"): `[{plugin_id, type_id,
// config_json}, ...]`.
type DesiredStage struct {
	PluginID   string
	TypeID     string
	ConfigJSON string
}

// DSPChain holds the desired chain and turns it into concrete pipeline.Stage values
// whenever a session begins or the desired chain changes. The plugin host is not
// consulted, and the session's sample rate/channels do not affect the result.
type DSPChain struct {
	desired []DesiredStage
}

// NewDSPChain returns an empty desired chain.
func NewDSPChain() *DSPChain { return &DSPChain{} }

// SetDesired replaces the desired chain wholesale.
func (c *DSPChain) SetDesired(stages []DesiredStage) { c.desired = stages }

// Desired returns the current desired chain.
func (c *DSPChain) Desired() []DesiredStage { return append([]DesiredStage{}, c.desired...) }

// Resolve materialises the desired chain into pipeline.Stage values for the Main
// segment, one per entry, keyed "dsp.<plugin_id>.<type_id>". spec is accepted but not
// used: the stages carry no spec, and the same chain yields the same stages at any
// sample rate/channels.
func (c *DSPChain) Resolve(spec model.StreamSpec) []pipeline.Stage {
	stages := make([]pipeline.Stage, 0, len(c.desired))
	for _, d := range c.desired {
		stages = append(stages, pipeline.Stage{
			Key:      "dsp." + d.PluginID + "." + d.TypeID,
			Kind:     "dsp",
			PluginID: d.PluginID,
			TypeID:   d.TypeID,
			Config:   d.ConfigJSON,
		})
	}
	return stages
}

// ApplyTo inserts every resolved stage of the desired chain into graph's Main segment,
// replacing any stage with the same key first so repeated resolution at the same spec
// is idempotent.
func (c *DSPChain) ApplyTo(graph *pipeline.TransformGraph, spec model.StreamSpec) error {
	for _, st := range c.Resolve(spec) {
		if graph.HasKey(st.Key) {
			if err := graph.Apply(pipeline.Mutation{Kind: pipeline.MutationReplace, TargetKey: st.Key, Stage: st}); err != nil {
				return err
			}
			continue
		}
		if err := graph.Apply(pipeline.Mutation{
			Kind:     pipeline.MutationInsert,
			Segment:  pipeline.SegmentMain,
			Position: pipeline.PositionBack,
			Stage:    st,
		}); err != nil {
			return err
		}
	}
	return nil
}
