package resolve

import (
	"strings"
	"testing"

	"qjspack/internal/target"
)

func script(name, content string) *File {
	return &File{Name: name, Kind: KindScript, Content: []byte(content)}
}

func asset(name, content string) *File {
	return &File{Name: name, Kind: KindAsset, Content: []byte(content)}
}

func fileNames(d *Dir) []string {
	var names []string
	for _, f := range d.Files {
		names = append(names, f.Name)
	}
	return names
}

func findFile(d *Dir, name string) *File {
	for _, f := range d.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func TestApplyPlatform_GenericSpecificExclusivity(t *testing.T) {
	tree := &Dir{Name: ".", Files: []*File{
		script("m.mjs", "generic"),
		script("m.darwin.mjs", "darwin specific"),
	}}

	darwin, err := ApplyPlatform(tree, target.FamilyDarwin)
	if err != nil {
		t.Fatalf("darwin: %v", err)
	}
	if f := findFile(darwin, "m.darwin.mjs"); f == nil || string(f.Content) != "darwin specific" {
		t.Errorf("darwin tree must keep the specific file under its own name: %v", fileNames(darwin))
	}
	if findFile(darwin, "m.mjs") != nil {
		t.Error("darwin tree must not contain the shadowed generic file")
	}

	linux, err := ApplyPlatform(tree, target.FamilyLinux)
	if err != nil {
		t.Fatalf("linux: %v", err)
	}
	if f := findFile(linux, "m.mjs"); f == nil || string(f.Content) != "generic" {
		t.Errorf("linux tree must keep the generic file: %v", fileNames(linux))
	}
	if findFile(linux, "m.darwin.mjs") != nil {
		t.Error("linux tree must not contain another family's file")
	}
}

func TestApplyPlatform_CrossFamilyExclusion(t *testing.T) {
	tree := &Dir{Name: ".", Files: []*File{
		script("x.win32.mjs", "win"),
	}}

	for _, fam := range []target.Family{target.FamilyDarwin, target.FamilyLinux} {
		out, err := ApplyPlatform(tree, fam)
		if err != nil {
			t.Fatalf("%s: %v", fam, err)
		}
		if len(out.Files) != 0 {
			t.Errorf("%s tree contains %v, want empty", fam, fileNames(out))
		}
	}
}

func TestApplyPlatform_ImportRewrite(t *testing.T) {
	tree := &Dir{Name: ".", Files: []*File{
		script("main.mjs", "import {f} from './util.mjs';\nf();\n"),
		script("util.mjs", "export function f() {}\n"),
		script("util.darwin.mjs", "export function f() { /* darwin */ }\n"),
	}}

	darwin, err := ApplyPlatform(tree, target.FamilyDarwin)
	if err != nil {
		t.Fatalf("darwin: %v", err)
	}
	main := findFile(darwin, "main.mjs")
	if main == nil {
		t.Fatal("main.mjs missing")
	}
	if !strings.Contains(string(main.Content), "from './util.darwin.mjs'") {
		t.Errorf("import not rewritten to the specific sibling:\n%s", main.Content)
	}

	// No override for linux: the import text must be unchanged and resolve
	// to the copied generic file.
	linux, err := ApplyPlatform(tree, target.FamilyLinux)
	if err != nil {
		t.Fatalf("linux: %v", err)
	}
	main = findFile(linux, "main.mjs")
	if !strings.Contains(string(main.Content), "from './util.mjs'") {
		t.Errorf("import changed despite no override:\n%s", main.Content)
	}
	if findFile(linux, "util.mjs") == nil {
		t.Error("generic util.mjs missing from linux tree")
	}
}

func TestApplyPlatform_ImportRewriteAcrossDirectories(t *testing.T) {
	tree := &Dir{
		Name: ".",
		Dirs: []*Dir{
			{Name: "app", Files: []*File{
				script("main.mjs", "import {open} from '../lib/fs.mjs';\nopen();\n"),
			}},
			{Name: "lib", Files: []*File{
				script("fs.mjs", "export function open() {}\n"),
				script("fs.win32.mjs", "export function open() { /* win */ }\n"),
			}},
		},
	}

	win, err := ApplyPlatform(tree, target.FamilyWindows)
	if err != nil {
		t.Fatalf("windows: %v", err)
	}
	app := win.lookupDir("app")
	main := findFile(app, "main.mjs")
	if main == nil {
		t.Fatal("main.mjs missing")
	}
	if !strings.Contains(string(main.Content), "from '../lib/fs.win32.mjs'") {
		t.Errorf("cross-directory import not rewritten:\n%s", main.Content)
	}
	lib := win.lookupDir("lib")
	if findFile(lib, "fs.mjs") != nil {
		t.Error("shadowed generic file materialized in lib/")
	}
	if findFile(lib, "fs.win32.mjs") == nil {
		t.Error("specific file missing from lib/")
	}
}

func TestApplyPlatform_SpecificSpecifierLeftAlone(t *testing.T) {
	tree := &Dir{Name: ".", Files: []*File{
		script("main.mjs", "import {f} from './util.linux.mjs';\n"),
		script("util.linux.mjs", "export function f() {}\n"),
	}}

	linux, err := ApplyPlatform(tree, target.FamilyLinux)
	if err != nil {
		t.Fatalf("linux: %v", err)
	}
	main := findFile(linux, "main.mjs")
	if !strings.Contains(string(main.Content), "from './util.linux.mjs'") {
		t.Errorf("already-specific import modified:\n%s", main.Content)
	}
}

func TestApplyPlatform_AssetsPassThroughUntouched(t *testing.T) {
	tree := &Dir{Name: ".", Files: []*File{
		asset("logo.png", "\x89PNG bytes"),
		asset("data.win32.json", "not a script"),
		script("m.mjs", "export const x = 1;\n"),
	}}

	linux, err := ApplyPlatform(tree, target.FamilyLinux)
	if err != nil {
		t.Fatalf("linux: %v", err)
	}
	if findFile(linux, "logo.png") == nil {
		t.Error("asset dropped")
	}
	// Platform suffixes only apply to scripts.
	if findFile(linux, "data.win32.json") == nil {
		t.Error("non-script file dropped by platform rules")
	}
}

func TestApplyPlatform_DoesNotMutateInput(t *testing.T) {
	original := "import {f} from './util.mjs';\n"
	tree := &Dir{Name: ".", Files: []*File{
		script("main.mjs", original),
		script("util.mjs", "export function f() {}\n"),
		script("util.darwin.mjs", "export function f() {}\n"),
	}}

	if _, err := ApplyPlatform(tree, target.FamilyDarwin); err != nil {
		t.Fatalf("darwin: %v", err)
	}
	if string(tree.Files[0].Content) != original {
		t.Error("platform rules mutated the scanned tree")
	}
}

func TestSplitPlatform(t *testing.T) {
	cases := []struct {
		name        string
		base, token string
		ok          bool
	}{
		{"m.darwin.mjs", "m", "darwin", true},
		{"m.win32.mjs", "m", "win32", true},
		{"a.b.linux.mjs", "a.b", "linux", true},
		{"m.mjs", "", "", false},
		{"m.freebsd.mjs", "", "", false},
	}
	for _, c := range cases {
		base, token, ok := splitPlatform(c.name)
		if base != c.base || token != c.token || ok != c.ok {
			t.Errorf("splitPlatform(%q) = (%q,%q,%v), want (%q,%q,%v)",
				c.name, base, token, ok, c.base, c.token, c.ok)
		}
	}
}
