package pipeline

// Built-in transform slot keys (spec §4.C: "gapless_trim, transition_gain, master_gain
// ... occupy fixed logical positions within Main/PostMix and may be toggled
// independently").
const (
	StageKeyGaplessTrim    = "builtin.gapless_trim"
	StageKeyTransitionGain = "builtin.transition_gain"
	StageKeyMasterGain     = "builtin.master_gain"
)

// DefaultGraph returns the graph every new pipeline starts with: gapless_trim and
// transition_gain in Main (trim first so the fade math downstream sees already-trimmed
// frame counts), master_gain in PostMix (applied last, just before the sink stage).
func DefaultGraph() *TransformGraph {
	return &TransformGraph{
		Main: []Stage{
			{Key: StageKeyGaplessTrim, Kind: "gapless_trim"},
			{Key: StageKeyTransitionGain, Kind: "transition_gain"},
		},
		PostMix: []Stage{
			{Key: StageKeyMasterGain, Kind: "master_gain"},
		},
	}
}

// ToggleStage enables/disables a built-in stage in place without removing its key from
// the graph, so stage-control replay (spec §4.D "stage-control routing") keeps working
// against a toggled-off stage. Toggling is modeled via the Config field convention
// `"enabled":false` rather than a separate boolean, matching how the cabi layer already
// treats all stage config as opaque JSON the stage implementation interprets.
func ToggleStage(g *TransformGraph, key string, enabled string) bool {
	st, seg, ok := g.Find(key)
	if !ok {
		return false
	}
	st.Config = enabled
	slice := g.segmentSlice(seg)
	for i := range *slice {
		if (*slice)[i].Key == key {
			(*slice)[i] = st
		}
	}
	return true
}
