package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathAllowList is the set of roots fs.* capability calls may touch:
// the current working directory subtree, the process temporary
// directory, and the current user's documents directory, per
// spec.md §4.5.
type PathAllowList struct {
	Roots []string
}

// DefaultPathAllowList builds the normative allow-list from the
// process's current environment.
func DefaultPathAllowList() PathAllowList {
	roots := []string{}
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, cwd)
	}
	roots = append(roots, os.TempDir())
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, "Documents"))
	}
	return PathAllowList{Roots: roots}
}

// Resolve validates that path, once made absolute and symlink-resolved,
// falls within one of the allow-listed roots. It returns the resolved
// absolute path on success.
func (a PathAllowList) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("path %q: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// A path that does not exist yet (e.g. fs.move's destination)
		// cannot be symlink-resolved; fall back to containment-checking
		// the unresolved absolute path itself.
		resolved = abs
	}

	for _, root := range a.Roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootResolved, err := filepath.EvalSymlinks(rootAbs)
		if err != nil {
			rootResolved = rootAbs
		}
		if withinRoot(resolved, rootResolved) {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("path %q escapes the allowed roots", path)
}

func withinRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
