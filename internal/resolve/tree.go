package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// ScriptExt is the guest script extension. Everything else is an opaque
// asset copied byte-for-byte.
const ScriptExt = ".mjs"

// IgnoreFile, when present at the source root, filters the scan with
// gitignore syntax. The file itself never reaches the build tree.
const IgnoreFile = ".qjspackignore"

// FileKind tags a build tree file.
type FileKind int

const (
	// KindScript files participate in platform selection and import
	// rewriting.
	KindScript FileKind = iota
	// KindAsset files are copied verbatim.
	KindAsset
)

// File is a leaf of the tree model. Content is loaded at scan time so the
// platform rules can run as a pure function without touching a filesystem.
type File struct {
	Name    string
	Kind    FileKind
	Mode    os.FileMode
	Content []byte
}

// Dir is an interior node. Children are kept in lexical order so every
// derived tree and every materialized output is deterministic.
type Dir struct {
	Name  string
	Dirs  []*Dir
	Files []*File
}

// lookupDir returns the child directory with the given name, or nil.
func (d *Dir) lookupDir(name string) *Dir {
	for _, c := range d.Dirs {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// hasFile reports whether the directory contains a file with the given name.
func (d *Dir) hasFile(name string) bool {
	for _, f := range d.Files {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Scan reads srcDir into a tree model. Entries matched by the optional
// ignore file are skipped.
func Scan(srcDir string) (*Dir, error) {
	var matcher *ignore.GitIgnore
	ignorePath := filepath.Join(srcDir, IgnoreFile)
	if _, err := os.Stat(ignorePath); err == nil {
		matcher, err = ignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", IgnoreFile, err)
		}
	}

	root := &Dir{Name: "."}
	if err := scanInto(root, srcDir, "", matcher); err != nil {
		return nil, err
	}
	return root, nil
}

func scanInto(node *Dir, dir, rel string, matcher *ignore.GitIgnore) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		entryRel := name
		if rel != "" {
			entryRel = rel + "/" + name
		}
		if rel == "" && name == IgnoreFile {
			continue
		}
		if matcher != nil && matcher.MatchesPath(entryRel) {
			continue
		}

		if entry.IsDir() {
			child := &Dir{Name: name}
			if err := scanInto(child, filepath.Join(dir, name), entryRel, matcher); err != nil {
				return err
			}
			node.Dirs = append(node.Dirs, child)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("scan %s: %w", filepath.Join(dir, name), err)
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("scan %s: %w", filepath.Join(dir, name), err)
		}

		kind := KindAsset
		if strings.HasSuffix(name, ScriptExt) {
			kind = KindScript
		}
		node.Files = append(node.Files, &File{
			Name:    name,
			Kind:    kind,
			Mode:    info.Mode().Perm(),
			Content: content,
		})
	}
	return nil
}
