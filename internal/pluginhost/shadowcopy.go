package pluginhost

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// shadowCopy copies srcDir into a fresh per-load scratch directory under scratchRoot so
// the host can dlopen the copy while leaving the operator free to replace or delete the
// original plugin directory (spec §4.A "Shadow-copy load"). The returned directory
// handle is deleted only once the owning generation becomes unloadable — see
// cleanupShadowCopy, called from the discovery pass's reload/disable path.
func shadowCopy(scratchRoot, srcDir string) (string, error) {
	if err := os.MkdirAll(scratchRoot, 0o755); err != nil {
		return "", fmt.Errorf("create shadow-copy scratch root: %w", err)
	}

	dstDir := filepath.Join(scratchRoot, uuid.NewString())
	if err := copyDirTree(srcDir, dstDir); err != nil {
		_ = os.RemoveAll(dstDir)
		return "", stellaerrShadowCopyFailed(err)
	}
	return dstDir, nil
}

// cleanupShadowCopy removes a shadow-copy directory. Must only be called after the
// owning generation's ReadyForUnload reports true.
func cleanupShadowCopy(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

func copyDirTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
