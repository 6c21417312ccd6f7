// Package manifest loads the project manifest describing what to build:
// the entry point, the optimization toggle, and the native modules to
// register with the vendored interpreter.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// DefaultEntryPoint is the conventional entry point used when the manifest
// omits one.
const DefaultEntryPoint = "src/main.mjs"

// Registration binds a guest-visible module name to the native source file
// implementing it. The source path is resolved against the project root
// before the manifest is returned.
type Registration struct {
	// Name is the import identifier guest scripts use. It must be a valid
	// C identifier because it is spliced into init-function names in the
	// vendor sources.
	Name string

	// SourcePath is the absolute path to the native source file.
	SourcePath string
}

// Manifest is the canonicalized project description.
//
// All paths are absolute. Registrations are sorted by name so patch and
// compile ordering is deterministic regardless of JSON map iteration.
type Manifest struct {
	// Root is the project root directory (the manifest's directory).
	Root string

	// EntryPoint is the application entry script, inside Root.
	EntryPoint string

	// Optimize enables the higher optimization level, whole-program
	// optimization, and pre-compiler feature stripping.
	Optimize bool

	// Registrations are the native modules to register, sorted by name.
	Registrations []Registration

	// ExecShimPath points at the platform exec fragment to inject into the
	// vendor library source. Empty means the exec patches are skipped.
	ExecShimPath string
}

type manifestFile struct {
	EntryPoint string            `json:"entryPoint"`
	Optimize   bool              `json:"optimize"`
	Modules    map[string]string `json:"modules"`
	ExecShim   string            `json:"execShim"`
}

// Load reads and canonicalizes the manifest at path.
//
// The decode is strict: unknown fields and trailing data are rejected so a
// misspelled key fails loudly instead of silently changing the build.
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var mf manifestFile
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&mf); err != nil {
		return nil, fmt.Errorf("parse manifest json: %w", err)
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("parse manifest json: trailing data")
		}
		return nil, fmt.Errorf("parse manifest json: %w", err)
	}

	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	entry := mf.EntryPoint
	if entry == "" {
		entry = DefaultEntryPoint
	}

	m := &Manifest{
		Root:       root,
		EntryPoint: joinRoot(root, entry),
		Optimize:   mf.Optimize,
	}
	if mf.ExecShim != "" {
		m.ExecShimPath = joinRoot(root, mf.ExecShim)
	}

	names := make([]string, 0, len(mf.Modules))
	for name := range mf.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !validModuleName(name) {
			return nil, fmt.Errorf("module name %q is not a valid identifier", name)
		}
		src := mf.Modules[name]
		if src == "" {
			return nil, fmt.Errorf("module %q: source path is empty", name)
		}
		m.Registrations = append(m.Registrations, Registration{
			Name:       name,
			SourcePath: joinRoot(root, src),
		})
	}

	return m, nil
}

func joinRoot(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// validModuleName reports whether name can be spliced into a C init-function
// name: a letter or underscore followed by letters, digits, or underscores.
func validModuleName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
