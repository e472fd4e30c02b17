package asset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// normalize maps a request path to its registry key: slash separated, cleaned, and relative to
// the root when it lies inside it. Case is preserved.
func (r *registry) normalize(path string) string {
	p := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(r.root, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			p = rel
		}
	}
	return filepath.ToSlash(p)
}

// resolve finds the file for a request path: first the exact path under the root, then the
// first file in lexical walk order whose base name matches case-insensitively.
func (r *registry) resolve(path string) (string, error) {
	candidate := filepath.FromSlash(path)
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.root, candidate)
	}
	if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
		return candidate, nil
	}

	want := filepath.Base(candidate)
	var found string
	_ = filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.EqualFold(d.Name(), want) {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if found != "" {
		r.logger.Debug("asset resolved by name search", "requested", path, "resolved", found)
		return found, nil
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, path)
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
