// Package pathutil confines the files roadrunner writes (trajectories,
// metrics snapshots, history exports) to known directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideOutputDirs is returned for a path that resolves outside every
// allowed output directory.
var ErrOutsideOutputDirs = errors.New("path is outside the allowed output directories")

// OutputDirs is the set of directories output files may be created in.
type OutputDirs []string

// DefaultOutputDirs allows the working directory, the system temp directory
// and any non-empty extra directories (typically the store directory).
func DefaultOutputDirs(extra ...string) (OutputDirs, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	dirs := OutputDirs{wd, os.TempDir()}
	for _, dir := range extra {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}

// Check returns nil when path, after resolving symlinks on its existing
// ancestors, lies inside one of the directories.
func (d OutputDirs) Check(path string) error {
	if path == "" {
		return errors.New("output path is empty")
	}
	if strings.ContainsRune(path, 0) {
		return errors.New("output path contains a null byte")
	}

	target, err := resolve(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", Redact(path), err)
	}

	for _, dir := range d {
		root, err := resolve(dir)
		if err != nil {
			continue
		}
		if within(target, root) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrOutsideOutputDirs, Redact(target))
}

// Create checks path and creates (or truncates) it with owner-only
// permissions.
func (d OutputDirs) Create(path string) (*os.File, error) {
	if err := d.Check(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", Redact(path), err)
	}
	return f, nil
}

// Redact shortens path to .../<parent>/<base> for error messages, so
// "/home/user/.roadrunner/trace.jsonl" becomes ".../.roadrunner/trace.jsonl".
func Redact(path string) string {
	if path == "" {
		return ""
	}
	path = filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(path))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(path)
	}
	return ".../" + parent + "/" + filepath.Base(path)
}

// resolve makes path absolute and evaluates symlinks on its deepest existing
// ancestor. The missing tail, if any, is appended unchanged.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	existing, tail := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(resolved, tail), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return "", err
		}
		tail = filepath.Join(filepath.Base(existing), tail)
		existing = parent
	}
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
