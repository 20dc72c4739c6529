package csvgrid

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"flowval/domain/core"
)

// Discover returns the site keys of files in dir whose name ends in match
// (optionally followed by .gz), in lexicographic order. Subdirectories are
// skipped. The key is the file name with suffix removed, so that
// <dir>/<key><suffix> resolves back to the file.
func Discover(dir, match, suffix string) ([]core.SiteKey, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, core.NewNoInputError("directory " + dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[core.SiteKey]bool)
	var keys []core.SiteKey
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".gz")
		if !strings.HasSuffix(name, match) || !strings.HasSuffix(name, suffix) {
			continue
		}
		key := core.SiteKey(strings.TrimSuffix(name, suffix))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, core.NewNoInputError("no *" + match + " files in " + dir)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// Resolve returns the path of key's file in dir, preferring the plain file
// over its .gz variant.
func Resolve(dir string, key core.SiteKey, suffix string) (string, error) {
	plain := filepath.Join(dir, string(key)+suffix)
	if fileExists(plain) {
		return plain, nil
	}
	if fileExists(plain + ".gz") {
		return plain + ".gz", nil
	}
	return "", core.NewNoInputError(plain)
}

// fileExists returns whether a regular file exists
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Locator implements ports.GridLocator over the local filesystem.
type Locator struct{}

func (Locator) Discover(dir, match, suffix string) ([]core.SiteKey, error) {
	return Discover(dir, match, suffix)
}

func (Locator) Resolve(dir string, key core.SiteKey, suffix string) (string, error) {
	return Resolve(dir, key, suffix)
}
