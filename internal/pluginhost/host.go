// Package pluginhost discovers, loads, and safely calls third-party plugins across the
// C-ABI boundary defined in internal/pluginhost/cabi, managing per-plugin generations so
// a plugin can be hot-reloaded or uninstalled without ever pre-empting an in-flight call
// (spec §4.A).
package pluginhost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/friendsincode/stellatune/internal/pluginhost/cabi"
	"github.com/friendsincode/stellatune/internal/storedb"
)

// Config configures a Host.
type Config struct {
	PluginsRoot string
	ScratchRoot string
	RuntimeRoot string
}

type pluginEntry struct {
	manifest   Manifest
	dir        string
	generation *Generation
	shadowDirs []string // retired generations awaiting cleanup
}

// Host is the plugin manager. Its internal map is protected by mu, but — per spec line
// "all calls into plugin code happen while not holding the mutex" — every call into
// plugin-owned code first clones out the Generation pointer under the lock and then
// calls IncInflight/DecInflight without holding it.
type Host struct {
	cfg    Config
	store  *storedb.Store
	logger zerolog.Logger

	hostServices *hostServicesImpl
	hostHandle   *cabi.HostHandle

	mu      sync.Mutex
	plugins map[string]*pluginEntry

	nextGenID atomic.Uint64
}

// New constructs a Host bound to store for receipts/pending-uninstalls/disabled-set
// persistence (spec §6).
func New(cfg Config, store *storedb.Store, logger zerolog.Logger) *Host {
	svc := newHostServicesImpl(cfg.RuntimeRoot)
	h := &Host{
		cfg:          cfg,
		store:        store,
		logger:       logger.With().Str("component", "pluginhost").Logger(),
		hostServices: svc,
		plugins:      make(map[string]*pluginEntry),
	}
	svc.logger = h.logger
	h.hostHandle = cabi.NewHostHandle(svc)
	return h
}

// Discover enumerates cfg.PluginsRoot's child directories, parses each manifest, skips
// plugins in the disabled set, and loads the rest (spec §4.A "Discovery"). It also
// retries any pending uninstalls recorded by a previous run (SPEC_FULL.md §D
// supplement: retried from discovery, not a timer).
func (h *Host) Discover() error {
	disabled, err := h.store.DisabledPluginIDs()
	if err != nil {
		return fmt.Errorf("load disabled plugin set: %w", err)
	}

	h.retryPendingUninstalls()

	entries, err := os.ReadDir(h.cfg.PluginsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read plugins root %s: %w", h.cfg.PluginsRoot, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(h.cfg.PluginsRoot, e.Name())
		manifest, err := loadManifest(dir)
		if err != nil {
			h.logger.Warn().Err(err).Str("dir", dir).Msg("skipping plugin directory with invalid manifest")
			continue
		}
		if disabled[manifest.ID] {
			h.logger.Info().Str("plugin_id", manifest.ID).Msg("skipping disabled plugin")
			continue
		}
		if err := h.Load(manifest, dir); err != nil {
			h.logger.Warn().Err(err).Str("plugin_id", manifest.ID).Msg("failed to load plugin")
		}
	}
	return nil
}

// Load shadow-copies dir, dlopens the copy, invokes the entry symbol (which checks the
// vtable's api_version against the host's), validates the exported metadata id against
// manifest.ID, and activates a new Generation for
// manifest.ID — deactivating (not unloading) any prior generation for the same id.
func (h *Host) Load(manifest Manifest, dir string) error {
	shadowDir, err := shadowCopy(h.cfg.ScratchRoot, dir)
	if err != nil {
		return err
	}

	libPath := filepath.Join(shadowDir, manifest.LibraryFile)
	lib, err := cabi.Open(libPath)
	if err != nil {
		_ = cleanupShadowCopy(shadowDir)
		return fmt.Errorf("open plugin library %s: %w", libPath, err)
	}

	vtable, err := lib.Entry(manifest.entrySymbolOrDefault(), h.hostHandle)
	if err != nil {
		_ = lib.Close()
		_ = cleanupShadowCopy(shadowDir)
		return fmt.Errorf("invoke entry symbol for %s: %w", manifest.ID, err)
	}
	var meta struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(vtable.MetadataJSON()), &meta); err != nil || meta.ID != manifest.ID {
		_ = lib.Close()
		_ = cleanupShadowCopy(shadowDir)
		return fmt.Errorf("plugin %s: exported metadata id %q does not match manifest", manifest.ID, meta.ID)
	}

	genID := h.nextGenID.Add(1)
	gen := newGeneration(genID, manifest.ID, lib, vtable, shadowDir)

	h.mu.Lock()
	prev, had := h.plugins[manifest.ID]
	entry := &pluginEntry{manifest: manifest, dir: dir, generation: gen}
	if had {
		prev.generation.Deactivate()
		entry.shadowDirs = append(append([]string{}, prev.shadowDirs...), prev.generation.shadowDir)
	}
	h.plugins[manifest.ID] = entry
	h.mu.Unlock()

	h.reapRetiredGenerations()

	h.logger.Info().Str("plugin_id", manifest.ID).Uint64("generation", genID).Msg("plugin generation activated")
	return nil
}

// reapRetiredGenerations unloads and cleans up shadow copies for any generation that has
// become unloadable. Called opportunistically after load/reload/disable — unload is
// cooperative, never pre-emptive (spec §4.A).
func (h *Host) reapRetiredGenerations() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, entry := range h.plugins {
		if entry.generation.active.Load() {
			continue
		}
		if !entry.generation.ReadyForUnload() {
			continue
		}
		if err := entry.generation.Unload(); err != nil {
			h.logger.Warn().Err(err).Str("plugin_id", id).Msg("failed to unload retired generation")
			continue
		}
		for _, dir := range entry.shadowDirs {
			_ = cleanupShadowCopy(dir)
		}
		_ = cleanupShadowCopy(entry.generation.shadowDir)
		delete(h.plugins, id)
	}
}

// Disable deactivates a plugin's current generation and records it in the disabled set
// so future Discover calls skip it.
func (h *Host) Disable(pluginID string) error {
	if err := h.store.SetPluginDisabled(pluginID, true); err != nil {
		return err
	}
	h.mu.Lock()
	entry, ok := h.plugins[pluginID]
	h.mu.Unlock()
	if ok {
		entry.generation.Deactivate()
	}
	h.reapRetiredGenerations()
	return nil
}

// Enable clears the disabled flag; the plugin loads again on the next Discover.
func (h *Host) Enable(pluginID string) error {
	return h.store.SetPluginDisabled(pluginID, false)
}

// ActiveGeneration returns the currently active generation for pluginID, if any.
func (h *Host) ActiveGeneration(pluginID string) (*Generation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.plugins[pluginID]
	if !ok || !entry.generation.active.Load() {
		return nil, false
	}
	return entry.generation, true
}

// ActiveGenerations returns every currently active generation, used by decoder
// selection to scan all loaded plugins.
func (h *Host) ActiveGenerations() []*Generation {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Generation, 0, len(h.plugins))
	for _, entry := range h.plugins {
		if entry.generation.active.Load() {
			out = append(out, entry.generation)
		}
	}
	return out
}

// Close deactivates every generation and blocks only to the extent that already-drained
// generations unload immediately; generations with live instances are left for the
// caller to drain and reap via reapRetiredGenerations. The host handle is released only
// when no generation remains loaded.
func (h *Host) Close() {
	h.mu.Lock()
	for _, entry := range h.plugins {
		entry.generation.Deactivate()
	}
	h.mu.Unlock()
	h.reapRetiredGenerations()
	h.mu.Lock()
	remaining := len(h.plugins)
	h.mu.Unlock()
	if remaining == 0 {
		h.hostHandle.Release()
	}
}
