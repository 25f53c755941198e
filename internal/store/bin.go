package store

import (
	"os"
	"path/filepath"
	"runtime"
)

// LinkBins symlinks each entry of a package's `bin` map (name -> relative
// script path within the package) into binDir, matching the convention
// that §6's script environment relies on (`node_modules/.bin` prepended to
// PATH). On Windows, where symlinks to files require elevated privileges
// by default, this falls back to a copy.
func LinkBins(packageDir, binDir string, bins map[string]string) error {
	if len(bins) == 0 {
		return nil
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return &IOError{"linkbins:mkdir", err}
	}

	for name, rel := range bins {
		src := filepath.Join(packageDir, rel)
		dest := filepath.Join(binDir, name)
		_ = os.Remove(dest)

		var err error
		if runtime.GOOS == "windows" {
			err = copyFile(src, dest, 0o755)
		} else {
			err = os.Symlink(src, dest)
			if err == nil {
				err = os.Chmod(src, 0o755)
			}
		}
		if err != nil {
			return &IOError{"linkbins", err}
		}
	}
	return nil
}
