// Package patch applies reversible, idempotent textual patches to the
// vendored interpreter sources.
//
// A patch is a structured description (anchor text, insertion text,
// idempotency marker) applied by a generic primitive, so the logic is
// testable against synthetic fixtures instead of real vendor files. The
// Manager keeps a backup of every file it touches and restores all of them,
// best-effort, at the end of a run.
package patch

import (
	"bytes"
	"fmt"
	"os"
	"sort"
)

// BackupSuffix is appended to a source path to form its backup path.
const BackupSuffix = ".qjspack-orig"

// Position says where an insertion lands relative to its anchor.
type Position int

const (
	Before Position = iota
	After
)

// Insert describes one idempotent insertion. If Marker is already present in
// the file the insert is a no-op; otherwise Text is spliced in at the first
// occurrence of Anchor.
type Insert struct {
	Path   string
	Anchor string
	Text   string
	Marker string
	Where  Position
}

// Replace describes one idempotent replacement of Old by New. Marker must be
// a substring of New so a second application detects the first.
type Replace struct {
	Path   string
	Old    string
	New    string
	Marker string
}

// RestoreOutcome records the result of restoring a single backup.
type RestoreOutcome struct {
	Path string
	Err  error
}

// Manager applies patches and tracks which files have backups. One Manager
// corresponds to one build run: RestoreAll must be called exactly once after
// all targets have been attempted.
type Manager struct {
	// backups maps source path to backup path, first write wins.
	backups map[string]string
}

func NewManager() *Manager {
	return &Manager{backups: make(map[string]string)}
}

// ApplyInsert applies ins. Idempotent: a file already carrying the marker is
// left byte-identical and no backup is created for it.
func (m *Manager) ApplyInsert(ins Insert) error {
	if ins.Marker == "" {
		return fmt.Errorf("patch %s: empty marker", ins.Path)
	}
	content, err := os.ReadFile(ins.Path)
	if err != nil {
		return fmt.Errorf("patch %s: %w", ins.Path, err)
	}
	if bytes.Contains(content, []byte(ins.Marker)) {
		return nil
	}

	idx := bytes.Index(content, []byte(ins.Anchor))
	if idx < 0 {
		return fmt.Errorf("patch %s: anchor %q not found", ins.Path, ins.Anchor)
	}
	at := idx
	if ins.Where == After {
		at = idx + len(ins.Anchor)
	}

	patched := make([]byte, 0, len(content)+len(ins.Text))
	patched = append(patched, content[:at]...)
	patched = append(patched, ins.Text...)
	patched = append(patched, content[at:]...)

	return m.write(ins.Path, content, patched)
}

// ApplyReplace applies rep. Idempotent via rep.Marker, which must occur in
// rep.New.
func (m *Manager) ApplyReplace(rep Replace) error {
	if rep.Marker == "" || !bytes.Contains([]byte(rep.New), []byte(rep.Marker)) {
		return fmt.Errorf("patch %s: marker must be a substring of the replacement", rep.Path)
	}
	content, err := os.ReadFile(rep.Path)
	if err != nil {
		return fmt.Errorf("patch %s: %w", rep.Path, err)
	}
	if bytes.Contains(content, []byte(rep.Marker)) {
		return nil
	}

	idx := bytes.Index(content, []byte(rep.Old))
	if idx < 0 {
		return fmt.Errorf("patch %s: replacement target not found", rep.Path)
	}

	patched := make([]byte, 0, len(content)-len(rep.Old)+len(rep.New))
	patched = append(patched, content[:idx]...)
	patched = append(patched, rep.New...)
	patched = append(patched, content[idx+len(rep.Old):]...)

	return m.write(rep.Path, content, patched)
}

// write backs up original (once per file per run) and writes patched.
func (m *Manager) write(path string, original, patched []byte) error {
	if _, done := m.backups[path]; !done {
		backup := path + BackupSuffix
		if err := os.WriteFile(backup, original, 0o644); err != nil {
			return fmt.Errorf("backup %s: %w", path, err)
		}
		m.backups[path] = backup
	}
	if err := os.WriteFile(path, patched, 0o644); err != nil {
		return fmt.Errorf("patch %s: %w", path, err)
	}
	return nil
}

// RestoreAll copies every backup over its source file and deletes the
// backup. Restoration is best-effort per file: a missing or unreadable
// backup is reported in the outcome but does not stop the remaining
// restores. Outcomes are returned in a stable order.
func (m *Manager) RestoreAll() []RestoreOutcome {
	paths := make([]string, 0, len(m.backups))
	for p := range m.backups {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	outcomes := make([]RestoreOutcome, 0, len(paths))
	for _, path := range paths {
		backup := m.backups[path]
		outcome := RestoreOutcome{Path: path}
		data, err := os.ReadFile(backup)
		if err != nil {
			outcome.Err = fmt.Errorf("read backup: %w", err)
		} else if err := os.WriteFile(path, data, 0o644); err != nil {
			outcome.Err = fmt.Errorf("restore: %w", err)
		} else if err := os.Remove(backup); err != nil {
			outcome.Err = fmt.Errorf("remove backup: %w", err)
		}
		delete(m.backups, path)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
