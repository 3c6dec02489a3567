package pluginhost

import (
	"sort"

	"github.com/friendsincode/stellatune/internal/pluginhost/cabi"
	"github.com/friendsincode/stellatune/internal/stellaerr"
)

// defaultDecoderTypeID is used for tie-breaking (spec §4.A: "ties broken by
// (plugin_id, type_id) lexicographic order"). Each plugin here exposes at most one
// decoder capability rather than a sub-registry of typed decoders — see DESIGN.md for
// why the ABI was not widened to a decoder sub-registry — so type_id is always this
// constant.
const defaultDecoderTypeID = "default"

// DecoderCandidate is one scored decoder candidate from decoder selection.
type DecoderCandidate struct {
	PluginID string
	TypeID   string
	Score    uint8
	gen      *Generation
}

// SelectDecoder scores every active plugin's decoder capability against ext/header and
// returns candidates sorted by descending score, with ties broken by (plugin_id,
// type_id) lexicographic order (spec §4.A "Decoder selection").
func (h *Host) SelectDecoder(ext string, header []byte) []DecoderCandidate {
	var out []DecoderCandidate
	for _, gen := range h.ActiveGenerations() {
		if !gen.Vtable().HasDecoder() {
			continue
		}
		if !gen.IncInflight() {
			continue
		}
		dec, err := cabi.NewDecoder(gen.Vtable())
		if err == nil {
			score := dec.Probe(ext, header)
			out = append(out, DecoderCandidate{PluginID: gen.pluginID, TypeID: defaultDecoderTypeID, Score: score, gen: gen})
		}
		gen.DecInflight()
	}

	sortCandidates(out)
	return out
}

// sortCandidates orders by descending score, ties broken by (plugin_id, type_id)
// lexicographic order (spec §4.A).
func sortCandidates(candidates []DecoderCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].PluginID != candidates[j].PluginID {
			return candidates[i].PluginID < candidates[j].PluginID
		}
		return candidates[i].TypeID < candidates[j].TypeID
	})
}

// SelectDecoderExplicit returns the generation for an explicitly chosen (plugin_id,
// type_id) pair. A selector with only one of the two fields set is rejected by the
// caller before reaching here (spec §6: "partial selectors are rejected").
func (h *Host) SelectDecoderExplicit(pluginID, typeID string) (*Generation, error) {
	gen, ok := h.ActiveGeneration(pluginID)
	if !ok {
		return nil, stellaerr.New(stellaerr.KindInvalidArg, "no active plugin generation for id "+pluginID)
	}
	if !gen.Vtable().HasDecoder() {
		return nil, stellaerr.New(stellaerr.KindUnsupported, "plugin "+pluginID+" exposes no decoder capability")
	}
	if typeID != "" && typeID != defaultDecoderTypeID {
		return nil, stellaerr.New(stellaerr.KindInvalidArg, "unknown decoder type_id "+typeID)
	}
	return gen, nil
}

// OpenDecoder opens a new cabi.Decoder instance on gen for argsJSON, bumping the
// generation's inflight/instance counters appropriately. The returned closer must be
// called exactly once to release both the plugin instance and the generation's
// instance-count reservation.
func (h *Host) OpenDecoder(gen *Generation, argsJSON string) (*cabi.Decoder, func(), error) {
	if !gen.IncInflight() {
		return nil, nil, stellaerr.New(stellaerr.KindNotPrepared, "plugin generation is no longer active")
	}
	dec, err := cabi.NewDecoder(gen.Vtable())
	if err != nil {
		gen.DecInflight()
		return nil, nil, pluginCallError("open decoder", err)
	}
	if err := dec.Open(argsJSON); err != nil {
		gen.DecInflight()
		return nil, nil, stellaerr.Wrap(stellaerr.KindDecode, "decoder open failed", err)
	}
	gen.RegisterInstance()
	gen.DecInflight()

	closer := func() {
		dec.Close()
		gen.DeregisterInstance()
	}
	return dec, closer, nil
}
