package pluginhost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Manifest is the per-plugin-directory manifest from spec §6: "{id, api_version,
// name?, entry_symbol?, metadata?} plus the dynamic library."
type Manifest struct {
	ID           string          `json:"id"`
	APIVersion   uint32          `json:"api_version"`
	Name         string          `json:"name,omitempty"`
	EntrySymbol  string          `json:"entry_symbol,omitempty"`
	LibraryFile  string          `json:"library_file"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

const manifestFileName = "plugin.json"
const defaultEntrySymbol = "stellatune_plugin_entry"

// entrySymbolOrDefault returns m.EntrySymbol, defaulting to the well-known entry symbol
// name from spec §6 when unset.
func (m Manifest) entrySymbolOrDefault() string {
	if m.EntrySymbol == "" {
		return defaultEntrySymbol
	}
	return m.EntrySymbol
}

// loadManifest reads and parses manifestFileName from dir.
func loadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, manifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.ID == "" {
		return Manifest{}, fmt.Errorf("manifest %s: missing id", path)
	}
	if m.LibraryFile == "" {
		return Manifest{}, fmt.Errorf("manifest %s: missing library_file", path)
	}
	return m, nil
}
