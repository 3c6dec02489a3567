// Package pipeline assembles and mutates the transform graph between a track's decoder
// and its sink: PreMix -> Main -> PostMix segments, optional mixer/resampler, terminal
// sink (spec §4.C).
package pipeline

import (
	"encoding/json"

	"github.com/friendsincode/stellatune/internal/model"
	"github.com/friendsincode/stellatune/internal/stellaerr"
)

// Segment is one of the three fixed-order transform segments (spec §3 "TransformGraph").
type Segment int

const (
	SegmentPreMix Segment = iota
	SegmentMain
	SegmentPostMix
)

func (s Segment) String() string {
	switch s {
	case SegmentPreMix:
		return "PreMix"
	case SegmentMain:
		return "Main"
	case SegmentPostMix:
		return "PostMix"
	default:
		return "Unknown"
	}
}

// Position is where within a segment a mutation inserts or moves a stage.
type Position int

const (
	PositionFront Position = iota
	PositionBack
)

// Stage is one transform in the graph, identified by a key unique across every
// segment (spec §3 invariant: "stage_key is unique across all segments").
type Stage struct {
	Key      string
	Kind     string // e.g. "gapless_trim", "transition_gain", "master_gain", or a plugin DSP kind
	PluginID string // empty for built-in stages
	TypeID   string
	Config   string // opaque JSON, interpreted by the stage implementation
}

// TransformGraph holds the ordered stage lists for all three segments.
type TransformGraph struct {
	PreMix  []Stage
	Main    []Stage
	PostMix []Stage
}

// segmentSlice returns a pointer to the named segment's backing slice.
func (g *TransformGraph) segmentSlice(seg Segment) *[]Stage {
	switch seg {
	case SegmentPreMix:
		return &g.PreMix
	case SegmentMain:
		return &g.Main
	default:
		return &g.PostMix
	}
}

// Find returns the stage with key and the segment it lives in, if present.
func (g *TransformGraph) Find(key string) (Stage, Segment, bool) {
	for _, seg := range []Segment{SegmentPreMix, SegmentMain, SegmentPostMix} {
		for _, st := range *g.segmentSlice(seg) {
			if st.Key == key {
				return st, seg, true
			}
		}
	}
	return Stage{}, 0, false
}

// HasKey reports whether any segment already contains key (used to enforce the
// cross-segment uniqueness invariant before any mutation is applied).
func (g *TransformGraph) HasKey(key string) bool {
	_, _, ok := g.Find(key)
	return ok
}

// GaplessTrim returns the gapless_trim stage's configured trim spec, or nil if the
// stage is absent or carries no parseable config (spec §4.D step 1: "Subtract
// gapless_trim_spec().tail_frames if present").
func (g *TransformGraph) GaplessTrim() *model.GaplessTrimSpec {
	st, _, ok := g.Find(StageKeyGaplessTrim)
	if !ok || st.Config == "" {
		return nil
	}
	var spec model.GaplessTrimSpec
	if err := json.Unmarshal([]byte(st.Config), &spec); err != nil {
		return nil
	}
	return &spec
}

// Clone returns a deep copy so mutation attempts can be validated against a scratch
// graph before committing (spec §4.C: "violation is an error and the mutation is
// rejected" — i.e. failed mutations must not partially apply).
func (g *TransformGraph) Clone() *TransformGraph {
	clone := &TransformGraph{
		PreMix:  append([]Stage{}, g.PreMix...),
		Main:    append([]Stage{}, g.Main...),
		PostMix: append([]Stage{}, g.PostMix...),
	}
	return clone
}

// MutationKind enumerates the mutation operations from spec §4.C.
type MutationKind int

const (
	MutationInsert MutationKind = iota
	MutationReplace
	MutationRemove
	MutationMove
)

// Mutation is one `MutateTransformGraph` operation:
// {Insert(segment, position), Replace(target_key), Remove(target_key),
// Move(target_key, segment, position)} (spec §4.C).
type Mutation struct {
	Kind      MutationKind
	Stage     Stage // Insert, Replace
	TargetKey string // Replace, Remove, Move
	Segment   Segment // Insert, Move
	Position  Position // Insert, Move
}

// Apply validates and applies m to g, returning a typed error and leaving g unchanged
// if the mutation would violate stage-key uniqueness or target an unknown key.
func (g *TransformGraph) Apply(m Mutation) error {
	scratch := g.Clone()
	if err := scratch.applyUnchecked(m); err != nil {
		return err
	}
	*g = *scratch
	return nil
}

func (g *TransformGraph) applyUnchecked(m Mutation) error {
	switch m.Kind {
	case MutationInsert:
		if g.HasKey(m.Stage.Key) {
			return stellaerr.New(stellaerr.KindInvalidArg, "duplicate stage_key: "+m.Stage.Key)
		}
		g.insertInto(m.Segment, m.Stage, m.Position)
		return nil

	case MutationReplace:
		_, seg, ok := g.Find(m.TargetKey)
		if !ok {
			return stellaerr.StageNotFound(m.TargetKey)
		}
		if m.Stage.Key != m.TargetKey && g.HasKey(m.Stage.Key) {
			return stellaerr.New(stellaerr.KindInvalidArg, "duplicate stage_key: "+m.Stage.Key)
		}
		slice := g.segmentSlice(seg)
		for i := range *slice {
			if (*slice)[i].Key == m.TargetKey {
				(*slice)[i] = m.Stage
				break
			}
		}
		return nil

	case MutationRemove:
		_, seg, ok := g.Find(m.TargetKey)
		if !ok {
			return stellaerr.StageNotFound(m.TargetKey)
		}
		slice := g.segmentSlice(seg)
		out := (*slice)[:0]
		for _, st := range *slice {
			if st.Key != m.TargetKey {
				out = append(out, st)
			}
		}
		*slice = out
		return nil

	case MutationMove:
		st, seg, ok := g.Find(m.TargetKey)
		if !ok {
			return stellaerr.StageNotFound(m.TargetKey)
		}
		slice := g.segmentSlice(seg)
		out := (*slice)[:0]
		for _, existing := range *slice {
			if existing.Key != m.TargetKey {
				out = append(out, existing)
			}
		}
		*slice = out
		g.insertInto(m.Segment, st, m.Position)
		return nil

	default:
		return stellaerr.New(stellaerr.KindInvalidArg, "unknown mutation kind")
	}
}

func (g *TransformGraph) insertInto(seg Segment, st Stage, pos Position) {
	slice := g.segmentSlice(seg)
	if pos == PositionFront {
		*slice = append([]Stage{st}, (*slice)...)
		return
	}
	*slice = append(*slice, st)
}
