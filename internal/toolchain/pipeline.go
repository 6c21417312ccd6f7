package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"qjspack/internal/resolve"
	"qjspack/internal/target"
)

// baseSources is the vendor compilation-unit list shared by every helper and
// application build. The order is fixed so all targets compile an identical
// unit sequence.
var baseSources = []string{
	"cutils.c",
	"libregexp.c",
	"libunicode.c",
	"libbf.c",
	"quickjs.c",
	"quickjs-libc.c",
}

// replStub satisfies the pre-compiled REPL image the interactive-mode vendor
// source links against; batch builds carry this zero-size stand-in instead.
const replStub = `#include <stdint.h>
const uint32_t qjsc_repl_size = 0;
const uint8_t qjsc_repl[1] = { 0 };
`

// featureStripFlags disable interpreter subsystems the pre-compiler can omit
// from embedded output, shrinking the final binary under optimization.
var featureStripFlags = []string{
	"-fno-eval",
	"-fno-regexp",
	"-fno-proxy",
	"-fno-map",
	"-fno-typedarray",
	"-fno-promise",
}

// Pipeline drives the two-stage compilation for targets. It is safe for
// concurrent Build calls on distinct targets: each target owns its build
// tree and output names, and the only shared state (the intermediate
// ledger) is mutex-guarded.
type Pipeline struct {
	// Toolchain is the retargetable C compiler executable.
	Toolchain string

	// VendorDir is the (already patched) interpreter source tree.
	VendorDir string

	// SourceDir is the application entry-point directory; EntryName is the
	// entry script's name within it.
	SourceDir string
	EntryName string

	// BuildDir, ToolsDir, DistDir receive build trees, helper binaries, and
	// final binaries respectively.
	BuildDir string
	ToolsDir string
	DistDir  string

	// ModuleSources are the native extension sources, in registration order.
	ModuleSources []string

	// Optimize raises the optimization level, enables whole-program
	// optimization, and strips unused interpreter features.
	Optimize bool

	// Host selects the pre-compiler binary that runs on this machine.
	Host target.Descriptor

	Invoker *Invoker

	mu            sync.Mutex
	intermediates []string
}

// Build runs the full per-target pipeline, strictly ordered: resolve tree,
// build helpers, pre-compile entry point with the host helper, link. The
// first failing step aborts this target only.
func (p *Pipeline) Build(ctx context.Context, d target.Descriptor) error {
	treeDir := p.TreeDir(d)
	if err := resolve.Resolve(p.SourceDir, treeDir, d.Family); err != nil {
		return fmt.Errorf("resolve tree: %w", err)
	}
	// The host triple's helpers already exist from the host-tools stage.
	// Rewriting them here would race concurrent Precompile calls, which exec
	// the host pre-compiler binary.
	if d.Triple != p.Host.Triple {
		if err := p.BuildHelpers(ctx, d); err != nil {
			return fmt.Errorf("build helpers: %w", err)
		}
	}
	intermediate, err := p.Precompile(ctx, d)
	if err != nil {
		return fmt.Errorf("pre-compile: %w", err)
	}
	if err := p.Link(ctx, d, intermediate); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return nil
}

// TreeDir returns the resolved build tree directory for a target.
func (p *Pipeline) TreeDir(d target.Descriptor) string {
	return filepath.Join(p.BuildDir, d.Triple, "src")
}

// BuildHelpers compiles the interpreter and pre-compiler binaries for d from
// the stable vendor base sources, the native module sources, and the REPL
// stub. It is also called once for the host descriptor before the target
// loop, so the host pre-compiler embeds the same patched registrations.
func (p *Pipeline) BuildHelpers(ctx context.Context, d target.Descriptor) error {
	stub := filepath.Join(p.BuildDir, d.Triple, "repl_stub.c")
	if err := os.MkdirAll(filepath.Dir(stub), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(stub, []byte(replStub), 0o644); err != nil {
		return fmt.Errorf("write repl stub: %w", err)
	}

	interp := p.compileArgs(d, false)
	interp = append(interp, filepath.Join(p.VendorDir, "qjs.c"), stub)
	interp = append(interp, p.ModuleSources...)
	interp = append(interp, "-o", filepath.Join(p.ToolsDir, d.InterpreterBin))
	interp = append(interp, d.LinkFlags...)
	if err := p.Invoker.Run(ctx, p.Toolchain, interp...); err != nil {
		return err
	}

	precomp := p.compileArgs(d, false)
	precomp = append(precomp, filepath.Join(p.VendorDir, "qjsc.c"))
	precomp = append(precomp, p.ModuleSources...)
	precomp = append(precomp, "-o", filepath.Join(p.ToolsDir, d.PrecompilerBin))
	precomp = append(precomp, d.LinkFlags...)
	return p.Invoker.Run(ctx, p.Toolchain, precomp...)
}

// Precompile runs the host's own pre-compiler over the resolved entry point,
// producing the embeddable intermediate C source for d. The intermediate is
// recorded for deletion in the cleanup stage.
func (p *Pipeline) Precompile(ctx context.Context, d target.Descriptor) (string, error) {
	hostPrecompiler := filepath.Join(p.ToolsDir, p.Host.PrecompilerBin)
	entry := filepath.Join(p.TreeDir(d), p.EntryName)
	out := filepath.Join(p.BuildDir, d.Triple, "app.c")

	args := []string{"-e"}
	if p.Optimize {
		args = append(args, featureStripFlags...)
	}
	args = append(args, "-o", out, "-m", entry)

	if err := p.Invoker.Run(ctx, hostPrecompiler, args...); err != nil {
		return "", err
	}

	p.mu.Lock()
	p.intermediates = append(p.intermediates, out)
	p.mu.Unlock()
	return out, nil
}

// Link produces the final application binary for d from the intermediate
// source, the vendor base sources, and the native module sources.
func (p *Pipeline) Link(ctx context.Context, d target.Descriptor, intermediate string) error {
	args := p.compileArgs(d, p.Optimize)
	args = append(args, intermediate)
	args = append(args, p.ModuleSources...)
	args = append(args, "-o", filepath.Join(p.DistDir, d.AppBin))
	args = append(args, d.LinkFlags...)
	if p.Optimize && d.Family == target.FamilyWindows {
		args = append(args, "-fuse-ld=lld")
	}
	return p.Invoker.Run(ctx, p.Toolchain, args...)
}

// compileArgs assembles the shared leading arguments: target selection,
// per-target compile flags, the optimization level, the vendor include path,
// and the base source list in its fixed order.
func (p *Pipeline) compileArgs(d target.Descriptor, optimize bool) []string {
	args := []string{"-target", d.Triple}
	args = append(args, d.CompileFlags...)
	if optimize {
		args = append(args, "-O3", "-flto")
	} else {
		args = append(args, "-Os")
	}
	args = append(args, "-I", p.VendorDir)
	for _, src := range baseSources {
		args = append(args, filepath.Join(p.VendorDir, src))
	}
	return args
}

// CleanIntermediates deletes the recorded single-file compiled sources.
// Best-effort: failures are returned for logging and do not affect the run's
// exit status.
func (p *Pipeline) CleanIntermediates() []error {
	p.mu.Lock()
	paths := append([]string(nil), p.intermediates...)
	p.intermediates = nil
	p.mu.Unlock()

	var errs []error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	return errs
}
