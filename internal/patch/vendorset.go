package patch

import (
	"fmt"
	"os"
	"path/filepath"

	"qjspack/internal/manifest"
)

// Vendor source files touched by the patch set.
const (
	LibSource         = "quickjs-libc.c"
	InterpreterSource = "qjs.c"
	PrecompilerSource = "qjsc.c"
)

// Anchors in the pristine vendor sources. These are literal text, not
// patterns; if the vendored interpreter is upgraded and an anchor moves, the
// patch fails loudly instead of landing somewhere else.
const (
	anchorLibcInclude = `#include "quickjs-libc.h"`
	anchorOSFuncTable = "static const JSCFunctionListEntry js_os_funcs[] = {"
	anchorOSInitCall  = `js_init_module_os(ctx, "os");`
	anchorOSEmbedLine = `namelist_add(&cmodule_list, "os", "os", 0);`
)

// win32Prelude provides the header and marker macro the spawn shim needs on
// the windows family. It is inserted together with the shim fragment; when no
// shim is configured, none of the exec patches apply.
const win32PreludeMarker = "#define QJSPACK_WIN32_SPAWN 1"

const win32Prelude = `
#if defined(_WIN32)
#include <process.h>
` + win32PreludeMarker + `
#endif
`

const execShimMarker = "/* qjspack: win32 exec shim */"

// execEntryOld is the single-family function-table entry the vendor ships:
// exec is only registered on POSIX. execEntryNew registers the injected
// win32 implementation on windows and the original everywhere else.
const (
	execEntryOld = `#if !defined(_WIN32)
    JS_CFUNC_DEF("exec", 1, js_os_exec ),`
	execEntryMarker = "/* qjspack: exec on both families */"
	execEntryNew    = `#if defined(_WIN32) ` + execEntryMarker + `
    JS_CFUNC_DEF("exec", 1, js_os_exec ),
#else
    JS_CFUNC_DEF("exec", 1, js_os_exec ),`
)

// VendorSet is the full, ordered patch set for one run: the win32 exec shim
// plus one declaration/call/embed triple per registered module.
type VendorSet struct {
	// VendorDir is the vendored interpreter source tree.
	VendorDir string

	// Registrations come from the manifest, already sorted by name.
	Registrations []manifest.Registration

	// ExecShimPath is the platform fragment implementing exec for the
	// windows family. Empty skips the exec patches entirely.
	ExecShimPath string
}

// Apply applies every patch in the set through mgr. Any failure is fatal for
// the whole run; the caller still invokes mgr.RestoreAll afterwards.
func (s *VendorSet) Apply(mgr *Manager) error {
	lib := filepath.Join(s.VendorDir, LibSource)
	interp := filepath.Join(s.VendorDir, InterpreterSource)
	precomp := filepath.Join(s.VendorDir, PrecompilerSource)

	if s.ExecShimPath != "" {
		shim, err := os.ReadFile(s.ExecShimPath)
		if err != nil {
			return fmt.Errorf("read exec shim: %w", err)
		}

		if err := mgr.ApplyInsert(Insert{
			Path:   lib,
			Anchor: anchorLibcInclude,
			Text:   win32Prelude,
			Marker: win32PreludeMarker,
			Where:  After,
		}); err != nil {
			return err
		}

		if err := mgr.ApplyInsert(Insert{
			Path:   lib,
			Anchor: anchorOSFuncTable,
			Text:   execShimMarker + "\n" + string(shim) + "\n",
			Marker: execShimMarker,
			Where:  Before,
		}); err != nil {
			return err
		}

		if err := mgr.ApplyReplace(Replace{
			Path:   lib,
			Old:    execEntryOld,
			New:    execEntryNew,
			Marker: execEntryMarker,
		}); err != nil {
			return err
		}
	}

	for _, reg := range s.Registrations {
		decl := DeclarationFor(reg.Name)

		// Forward declaration in the library and both helper-tool sources.
		// The declaration text is its own marker.
		for _, path := range []string{lib, interp, precomp} {
			if err := mgr.ApplyInsert(Insert{
				Path:   path,
				Anchor: anchorLibcInclude,
				Text:   "\n" + decl,
				Marker: decl,
				Where:  After,
			}); err != nil {
				return err
			}
		}

		// Interpreter: register the module next to the standard ones.
		call := InitCallFor(reg.Name)
		if err := mgr.ApplyInsert(Insert{
			Path:   interp,
			Anchor: anchorOSInitCall,
			Text:   "\n    " + call,
			Marker: call,
			Where:  After,
		}); err != nil {
			return err
		}

		// Pre-compiler: embed the module in compiled output, anchored after
		// the standard OS-services module.
		embed := EmbedLineFor(reg.Name)
		if err := mgr.ApplyInsert(Insert{
			Path:   precomp,
			Anchor: anchorOSEmbedLine,
			Text:   "\n    " + embed,
			Marker: embed,
			Where:  After,
		}); err != nil {
			return err
		}
	}

	return nil
}
