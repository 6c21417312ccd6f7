package resolve

import (
	"fmt"
	"strings"

	"qjspack/internal/target"
)

// platformTokens are the recognized OS-family suffixes in script names
// (m.win32.mjs, m.linux.mjs, m.darwin.mjs).
var platformTokens = map[string]bool{
	target.FamilyWindows.Suffix(): true,
	target.FamilyLinux.Suffix():   true,
	target.FamilyDarwin.Suffix():  true,
}

// splitPlatform splits a script name into its base and platform token.
// "m.darwin.mjs" yields ("m", "darwin", true); names with no recognized
// token yield ok=false.
func splitPlatform(name string) (base, token string, ok bool) {
	stem := strings.TrimSuffix(name, ScriptExt)
	dot := strings.LastIndex(stem, ".")
	if dot < 0 {
		return "", "", false
	}
	token = stem[dot+1:]
	if !platformTokens[token] {
		return "", "", false
	}
	return stem[:dot], token, true
}

// ApplyPlatform derives the build tree for one OS family as a pure function
// over the scanned model:
//
//   - scripts suffixed for another family are dropped;
//   - a generic script shadowed by a family-specific sibling is dropped
//     (the specific file keeps its own name; import rewriting is what
//     rebinds callers);
//   - surviving scripts get their relative import specifiers rewritten to
//     the family-specific sibling whenever one exists next to the target;
//   - assets pass through untouched.
//
// The input tree is never mutated.
func ApplyPlatform(root *Dir, fam target.Family) (*Dir, error) {
	r := &platformRules{fam: fam, root: root}
	return r.dir(root, nil)
}

type platformRules struct {
	fam  target.Family
	root *Dir
}

func (r *platformRules) dir(d *Dir, segs []string) (*Dir, error) {
	out := &Dir{Name: d.Name}

	for _, child := range d.Dirs {
		childSegs := make([]string, len(segs)+1)
		copy(childSegs, segs)
		childSegs[len(segs)] = child.Name

		resolved, err := r.dir(child, childSegs)
		if err != nil {
			return nil, err
		}
		out.Dirs = append(out.Dirs, resolved)
	}

	suffix := r.fam.Suffix()
	for _, f := range d.Files {
		if f.Kind != KindScript {
			out.Files = append(out.Files, f)
			continue
		}

		if _, token, ok := splitPlatform(f.Name); ok {
			if token != suffix {
				continue // other family's file
			}
		} else {
			// Generic script: shadowed by a family-specific sibling?
			stem := strings.TrimSuffix(f.Name, ScriptExt)
			if d.hasFile(stem + "." + suffix + ScriptExt) {
				continue
			}
		}

		rewritten, err := r.rewriteFile(f, segs)
		if err != nil {
			return nil, err
		}
		out.Files = append(out.Files, rewritten)
	}

	return out, nil
}

// rewriteFile rebinds the script's relative imports to family-specific
// siblings where they exist. The sibling check runs against the original
// scanned tree, matching what will be on disk after materialization.
func (r *platformRules) rewriteFile(f *File, segs []string) (*File, error) {
	spans, err := ExtractImports(f.Content)
	if err != nil {
		return nil, fmt.Errorf("scan imports in %s: %w", f.Name, err)
	}
	if len(spans) == 0 {
		return f, nil
	}

	content := RewriteImports(f.Content, spans, func(spec string) (string, bool) {
		return r.rewriteSpec(spec, segs)
	})
	if string(content) == string(f.Content) {
		return f, nil
	}

	out := *f
	out.Content = content
	return &out, nil
}

// rewriteSpec maps one import specifier. Only relative script specifiers
// with no platform token are candidates; everything else is left untouched.
func (r *platformRules) rewriteSpec(spec string, segs []string) (string, bool) {
	if !strings.HasSuffix(spec, ScriptExt) {
		return "", false
	}
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		return "", false
	}

	dir, name := splitSpec(spec)
	if _, _, ok := splitPlatform(name); ok {
		return "", false // already family-specific
	}

	targetDir := r.navigate(segs, dir)
	if targetDir == nil {
		return "", false
	}

	specific := strings.TrimSuffix(name, ScriptExt) + "." + r.fam.Suffix() + ScriptExt
	if !targetDir.hasFile(specific) {
		return "", false
	}
	return dir + specific, true
}

// splitSpec splits "./a/b.mjs" into ("./a/", "b.mjs").
func splitSpec(spec string) (dir, name string) {
	slash := strings.LastIndex(spec, "/")
	return spec[:slash+1], spec[slash+1:]
}

// navigate resolves a slash-separated relative directory against the
// importing file's directory in the original tree. Returns nil when the
// path escapes the tree or does not exist.
func (r *platformRules) navigate(segs []string, rel string) *Dir {
	stack := append([]string(nil), segs...)
	for _, part := range strings.Split(strings.Trim(rel, "/"), "/") {
		switch part {
		case "", ".":
		case "..":
			if len(stack) == 0 {
				return nil
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, part)
		}
	}

	d := r.root
	for _, name := range stack {
		if d = d.lookupDir(name); d == nil {
			return nil
		}
	}
	return d
}
