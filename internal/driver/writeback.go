package driver

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/robert-at-pretension-io/postpatch/internal/linebuf"
)

// writeAtomic replaces path with the buffer contents. The new content is
// written to a sibling temp file and renamed into place, so a failed write
// never leaves a truncated backend file.
func writeAtomic(path string, perm fs.FileMode, buf *linebuf.Buffer) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".patch-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := buf.WriteTo(tmp); err != nil {
		cleanup()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("setting mode of %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
