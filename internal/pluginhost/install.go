package pluginhost

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/friendsincode/stellatune/internal/pluginhost/cabi"
	"github.com/friendsincode/stellatune/internal/stellaerr"
	"github.com/friendsincode/stellatune/internal/storedb"
)

const pendingUninstallMaxRetries = 8

// InstallArtifact installs either a single dynamic library or a zip archive located at
// artifactPath, naming the result pluginID's directory under cfg.PluginsRoot (spec
// §4.A "Install/uninstall"). Exactly one valid plugin library must be found in the
// artifact; zero or more than one is rejected.
func (h *Host) InstallArtifact(artifactPath string) (Manifest, error) {
	staging, err := os.MkdirTemp(h.cfg.ScratchRoot, "install-staging-*")
	if err != nil {
		return Manifest{}, fmt.Errorf("create install staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if strings.HasSuffix(strings.ToLower(artifactPath), ".zip") {
		if err := extractZipSafely(artifactPath, staging); err != nil {
			return Manifest{}, err
		}
	} else {
		if err := copyFile(artifactPath, filepath.Join(staging, filepath.Base(artifactPath))); err != nil {
			return Manifest{}, err
		}
	}

	candidates, err := findCandidateLibraries(staging)
	if err != nil {
		return Manifest{}, err
	}

	valid, manifest, err := h.validateCandidates(candidates)
	if err != nil {
		return Manifest{}, err
	}

	pluginRoot := filepath.Join(h.cfg.PluginsRoot, manifest.ID)
	if err := os.RemoveAll(pluginRoot); err != nil {
		return Manifest{}, fmt.Errorf("clear existing plugin root: %w", err)
	}
	if err := copyFile(valid, filepath.Join(pluginRoot, manifest.LibraryFile)); err != nil {
		return Manifest{}, fmt.Errorf("install library into plugin root: %w", err)
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(pluginRoot, manifestFileName), manifestJSON, 0o644); err != nil {
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}

	receipt := storedb.PluginReceipt{
		PluginID:        manifest.ID,
		Name:            manifest.Name,
		APIVersion:      int(manifest.APIVersion),
		LibraryRelPath:  manifest.LibraryFile,
		ManifestJSON:    string(manifestJSON),
		InstalledAtUnix: time.Now().Unix(),
	}
	if err := h.store.UpsertReceipt(receipt); err != nil {
		return Manifest{}, fmt.Errorf("write install receipt: %w", err)
	}

	h.logger.Info().Str("plugin_id", manifest.ID).Msg("plugin installed")
	return manifest, h.Load(manifest, pluginRoot)
}

// validateCandidates probes each candidate library's exported metadata and returns the
// single valid one plus its derived manifest, or a typed error if zero or more than one
// qualify (spec §4.A: "rejects artifacts that contain zero or more than one valid
// plugin").
func (h *Host) validateCandidates(candidates []string) (string, Manifest, error) {
	type found struct {
		path     string
		manifest Manifest
	}
	var matches []found

	for _, path := range candidates {
		lib, err := cabi.Open(path)
		if err != nil {
			continue
		}
		vtable, err := lib.Entry(defaultEntrySymbol, h.hostHandle)
		if err != nil {
			_ = lib.Close()
			continue
		}
		metadataJSON := vtable.MetadataJSON()
		var meta struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			APIVersion uint32 `json:"api_version"`
		}
		if err := json.Unmarshal([]byte(metadataJSON), &meta); err != nil || meta.ID == "" {
			_ = lib.Close()
			continue
		}
		_ = lib.Close()

		matches = append(matches, found{
			path: path,
			manifest: Manifest{
				ID:          meta.ID,
				Name:        meta.Name,
				APIVersion:  meta.APIVersion,
				LibraryFile: filepath.Base(path),
			},
		})
	}

	switch len(matches) {
	case 0:
		return "", Manifest{}, stellaerr.New(stellaerr.KindInvalidArg, "artifact contains no valid plugin library")
	case 1:
		return matches[0].path, matches[0].manifest, nil
	default:
		return "", Manifest{}, stellaerr.New(stellaerr.KindInvalidArg, "artifact contains more than one valid plugin library")
	}
}

func findCandidateLibraries(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".so", ".dylib", ".dll":
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// extractZipSafely extracts archivePath into destDir, rejecting any entry whose
// resolved path escapes destDir (spec §4.A: "no absolute paths, no ..").
func extractZipSafely(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip %s: %w", archivePath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if filepath.IsAbs(f.Name) {
			return stellaerr.New(stellaerr.KindInvalidArg, "zip entry has absolute path: "+f.Name)
		}
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return stellaerr.New(stellaerr.KindInvalidArg, "zip entry escapes destination: "+f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// Uninstall deletes pluginID's plugin root. If deletion fails (e.g. file-in-use on
// Windows) it records a pending-uninstall marker to retry from the next Discover call
// rather than a separate timer (SPEC_FULL.md §D supplement).
func (h *Host) Uninstall(pluginID string) error {
	h.mu.Lock()
	entry, ok := h.plugins[pluginID]
	h.mu.Unlock()
	if ok {
		entry.generation.Deactivate()
	}
	h.reapRetiredGenerations()

	pluginRoot := filepath.Join(h.cfg.PluginsRoot, pluginID)
	if err := os.RemoveAll(pluginRoot); err != nil {
		return h.store.UpsertPendingUninstall(storedb.PendingUninstall{
			PluginID:     pluginID,
			QueuedAtUnix: time.Now().Unix(),
			RetryCount:   0,
			LastError:    err.Error(),
			State:        "pending",
		})
	}
	return h.store.DeleteReceipt(pluginID)
}

// retryPendingUninstalls re-attempts every recorded pending uninstall. Called at the
// start of Discover. Entries that exceed pendingUninstallMaxRetries are left recorded
// (with their last error) for operator attention rather than retried forever.
func (h *Host) retryPendingUninstalls() {
	pending, err := h.store.ListPendingUninstalls()
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to list pending uninstalls")
		return
	}
	for _, p := range pending {
		if p.RetryCount >= pendingUninstallMaxRetries {
			continue
		}
		pluginRoot := filepath.Join(h.cfg.PluginsRoot, p.PluginID)
		if err := os.RemoveAll(pluginRoot); err != nil {
			p.RetryCount++
			p.LastError = err.Error()
			_ = h.store.UpsertPendingUninstall(p)
			continue
		}
		_ = h.store.DeleteReceipt(p.PluginID)
		_ = h.store.DeletePendingUninstall(p.PluginID)
	}
}
