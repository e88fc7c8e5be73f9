package sysfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codeberg.org/mutker/battmon/internal/errors"
)

// DefaultDiscoveryDepth matches how deep power_supply and platform charger
// attributes usually sit below their class directory.
const DefaultDiscoveryDepth = 3

// Discover lists files named filename below base, at most maxDepth
// directory levels deep. Unreadable directories are skipped. Symlinked
// directories (the norm in /sys/class) are followed one level at a time.
func Discover(base, filename string, maxDepth int) ([]string, error) {
	errFactory := errors.New()

	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		return nil, errFactory.WithData(ErrDiscoveryFailed, base)
	}

	var found []string
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if depth <= 0 {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}

		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			isDir := entry.IsDir()
			if entry.Type()&fs.ModeSymlink != 0 {
				if target, err := os.Stat(full); err == nil {
					isDir = target.IsDir()
				}
			}

			if isDir {
				walk(full, depth-1)
				continue
			}
			if entry.Name() == filename {
				found = append(found, full)
			}
		}
	}
	walk(base, maxDepth)

	sort.Strings(found)

	return found, nil
}

// Relative trims root from path for display.
func Relative(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}

	return rel
}
