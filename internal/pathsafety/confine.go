// Package pathsafety confines a target path to a root directory, rejecting
// symlink escapes; PathBuilder's validate step uses it. It reads the real
// disk through the os package. Adapted from the corpus's own path-confinement
// helper (internal/platform/fs).
package pathsafety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfineAbsPath resolves symlinks on both rootAbs and targetAbs and verifies
// the resolved target is rootAbs or a descendant of it. Neither path need
// exist yet — for a missing path, the nearest existing ancestor is resolved
// instead and the remaining (non-existent) suffix is reattached.
func ConfineAbsPath(rootAbs, targetAbs string) (string, error) {
	if !filepath.IsAbs(rootAbs) || !filepath.IsAbs(targetAbs) {
		return "", fmt.Errorf("pathsafety: both root and target must be absolute")
	}

	realRoot, err := resolvePossiblyMissing(rootAbs)
	if err != nil {
		return "", fmt.Errorf("pathsafety: resolve root: %w", err)
	}

	realTarget, err := resolvePossiblyMissing(targetAbs)
	if err != nil {
		return "", fmt.Errorf("pathsafety: resolve target: %w", err)
	}

	rel, err := filepath.Rel(realRoot, realTarget)
	if err != nil {
		return "", fmt.Errorf("pathsafety: compute relation: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("pathsafety: target %q escapes root %q", targetAbs, rootAbs)
	}
	return realTarget, nil
}

// ConfineRelPath joins rel onto root and confines the result, rejecting any
// rel containing ".." traversal components or an absolute path.
func ConfineRelPath(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("pathsafety: expected relative path, got %q", rel)
	}
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("pathsafety: backslashes are not allowed in %q", rel)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	target := filepath.Join(absRoot, rel)
	return ConfineAbsPath(absRoot, target)
}

func resolveExisting(p string) (string, error) {
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", err
	}
	return real, nil
}

// resolvePossiblyMissing resolves symlinks on the longest existing prefix of
// p, then reattaches the remaining path components unresolved.
func resolvePossiblyMissing(p string) (string, error) {
	if _, err := os.Lstat(p); err == nil {
		return resolveExisting(p)
	}

	parent := filepath.Dir(p)
	remainder := []string{filepath.Base(p)}
	for {
		if _, err := os.Lstat(parent); err == nil {
			realParent, err := resolveExisting(parent)
			if err != nil {
				return "", err
			}
			parts := append([]string{realParent}, remainder...)
			return filepath.Join(parts...), nil
		}
		if parent == filepath.Dir(parent) {
			// reached filesystem root without finding an existing ancestor
			return p, nil
		}
		remainder = append([]string{filepath.Base(parent)}, remainder...)
		parent = filepath.Dir(parent)
	}
}

// IsRegularFile returns an error if path does not exist or is not a regular file.
func IsRegularFile(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("pathsafety: %q is not a regular file", path)
	}
	return nil
}
