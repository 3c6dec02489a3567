package pluginhost

import (
	"sync/atomic"

	"github.com/friendsincode/stellatune/internal/pluginhost/cabi"
	"github.com/friendsincode/stellatune/internal/telemetry"
)

// Generation is a reference-counted epoch tied to one successful plugin load (spec
// §4.A "Generation model", glossary "Generation"). Every entry into a plugin function
// wraps the call with IncInflight/DecInflight; unload is cooperative — it only happens
// once the generation is inactive and its inflight-call count has drained to zero.
type Generation struct {
	id       uint64
	pluginID string

	lib    *cabi.Library
	vtable *cabi.PluginVtableHandle

	active        atomic.Bool
	inflightCalls atomic.Int64
	liveInstances atomic.Int64

	shadowDir string
}

func newGeneration(id uint64, pluginID string, lib *cabi.Library, vtable *cabi.PluginVtableHandle, shadowDir string) *Generation {
	g := &Generation{id: id, pluginID: pluginID, lib: lib, vtable: vtable, shadowDir: shadowDir}
	g.active.Store(true)
	telemetry.PluginGenerationsActive.WithLabelValues(pluginID).Inc()
	return g
}

// IncInflight marks the start of a call into plugin code. Returns false if the
// generation is no longer active and the caller must not proceed.
func (g *Generation) IncInflight() bool {
	if !g.active.Load() {
		return false
	}
	g.inflightCalls.Add(1)
	if !g.active.Load() {
		g.inflightCalls.Add(-1)
		return false
	}
	return true
}

// DecInflight marks the end of a call into plugin code.
func (g *Generation) DecInflight() {
	g.inflightCalls.Add(-1)
}

// RegisterInstance/DeregisterInstance track live plugin-owned objects (decoder, DSP,
// source stream, sink, lyrics provider — spec glossary "InstanceId": "Deregistration on
// drop").
func (g *Generation) RegisterInstance()   { g.liveInstances.Add(1) }
func (g *Generation) DeregisterInstance() { g.liveInstances.Add(-1) }

// Deactivate marks the generation inactive (on reload/disable). The library stays
// mapped until ReadyForUnload.
func (g *Generation) Deactivate() {
	g.active.Store(false)
	telemetry.PluginGenerationsActive.WithLabelValues(g.pluginID).Dec()
}

// ReadyForUnload reports whether dlclose can safely be called: the generation is
// inactive, and both inflight calls and live instances have drained to zero (spec §8
// invariant: "a generation whose library is unloaded has zero of both").
func (g *Generation) ReadyForUnload() bool {
	return !g.active.Load() && g.inflightCalls.Load() == 0 && g.liveInstances.Load() == 0
}

// Unload closes the underlying library. Callers must have verified ReadyForUnload.
func (g *Generation) Unload() error {
	return g.lib.Close()
}

// Vtable returns the plugin's vtable handle for the lifetime of this generation.
func (g *Generation) Vtable() *cabi.PluginVtableHandle { return g.vtable }
