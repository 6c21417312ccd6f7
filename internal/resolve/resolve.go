// Package resolve turns the application source tree into a platform-pure
// build tree for one OS family.
//
// Resolution is two-phase: the source directory is scanned into an abstract
// tree model, platform rules run as a pure function over that model, and the
// result is materialized into a fresh destination directory. Platform rules
// drop scripts belonging to other families, drop generic scripts shadowed by
// a family-specific sibling, and rewrite import specifiers so callers pick
// up the specific file without the author editing imports per platform.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"

	"qjspack/internal/target"
)

// Resolve mirrors srcDir into destDir for the given family. destDir is
// recreated from scratch on every call; build trees are never reused across
// runs.
func Resolve(srcDir, destDir string, fam target.Family) error {
	if !fam.Valid() {
		return fmt.Errorf("unknown OS family: %q", fam)
	}

	tree, err := Scan(srcDir)
	if err != nil {
		return err
	}

	resolved, err := ApplyPlatform(tree, fam)
	if err != nil {
		return err
	}

	return Materialize(resolved, destDir)
}

// Materialize writes the tree under destDir, which is removed first.
func Materialize(root *Dir, destDir string) error {
	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("clean build tree %s: %w", destDir, err)
	}
	return writeDir(root, destDir)
}

func writeDir(d *Dir, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	for _, f := range d.Files {
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(filepath.Join(path, f.Name), f.Content, mode); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Join(path, f.Name), err)
		}
	}
	for _, child := range d.Dirs {
		if err := writeDir(child, filepath.Join(path, child.Name)); err != nil {
			return err
		}
	}
	return nil
}
