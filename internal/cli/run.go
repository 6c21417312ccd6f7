package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"qjspack/internal/config"
	"qjspack/internal/fetch"
	"qjspack/internal/manifest"
	"qjspack/internal/orchestrate"
	"qjspack/internal/patch"
	"qjspack/internal/report"
	"qjspack/internal/target"
	"qjspack/internal/toolchain"
)

// Run is the high-level CLI entrypoint suitable for black-box tests. It
// accepts the argument slice (excluding argv[0]) and returns the semantic
// exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	inv, err := ParseInvocation(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeFor(err)
	}
	return Execute(ctx, inv, stdout, stderr)
}

func exitCodeFor(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		return invErr.ExitCode
	}
	return ExitInternalError
}

// Execute dispatches a parsed invocation.
func Execute(ctx context.Context, inv Invocation, stdout, stderr io.Writer) int {
	switch inv.Command {
	case CommandTargets:
		return runTargets(stdout)
	case CommandFetch:
		return runFetch(ctx, inv.Fetch, stdout, stderr)
	case CommandBuild:
		return runBuild(ctx, inv.Build, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unhandled command %q\n", inv.Command)
		return ExitInternalError
	}
}

func runTargets(stdout io.Writer) int {
	for _, d := range target.All() {
		fmt.Fprintf(stdout, "%-24s %s\n", d.Triple, d.Family)
	}
	return ExitSuccess
}

func runFetch(ctx context.Context, opts FetchOptions, stdout, stderr io.Writer) int {
	cache := config.CacheDir()
	toolchainPath := filepath.Join(cache, "toolchain", "cc")
	vendorDir := filepath.Join(cache, "vendor")

	if err := fetch.Executable(ctx, opts.ToolchainURL, toolchainPath); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitSetupError
	}
	if err := fetch.TarXZ(ctx, opts.VendorURL, vendorDir); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitSetupError
	}

	fmt.Fprintf(stdout, "toolchain: %s\nvendor:    %s\n", toolchainPath, vendorDir)
	return ExitSuccess
}

// vendorPatcher pairs the patch set with the backup manager behind the
// orchestrator's Patcher interface.
type vendorPatcher struct {
	mgr *patch.Manager
	set *patch.VendorSet
}

func (p vendorPatcher) Apply() error                       { return p.set.Apply(p.mgr) }
func (p vendorPatcher) RestoreAll() []patch.RestoreOutcome { return p.mgr.RestoreAll() }

func runBuild(ctx context.Context, opts BuildOptions, stdout, stderr io.Writer) int {
	cfg, err := config.New(config.Options{
		ProjectRoot: opts.ProjectRoot,
		Toolchain:   opts.Toolchain,
		VendorDir:   opts.VendorDir,
		Jobs:        opts.Jobs,
		ToolTimeout: opts.ToolTimeout,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitSetupError
	}

	if _, err := os.Stat(cfg.ToolchainPath); err != nil {
		fmt.Fprintf(stderr, "toolchain not found at %s\n", cfg.ToolchainPath)
		return ExitSetupError
	}

	man, err := manifest.Load(cfg.ManifestPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitSetupError
	}

	targets, err := target.Select(opts.Targets)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitInvalidInvocation
	}

	moduleSources := make([]string, 0, len(man.Registrations))
	for _, reg := range man.Registrations {
		moduleSources = append(moduleSources, reg.SourcePath)
	}

	reporter := report.New(stdout)
	reporter.Plain = opts.Plain

	pipeline := &toolchain.Pipeline{
		Toolchain:     cfg.ToolchainPath,
		VendorDir:     cfg.VendorDir,
		SourceDir:     filepath.Dir(man.EntryPoint),
		EntryName:     filepath.Base(man.EntryPoint),
		BuildDir:      cfg.BuildDir,
		ToolsDir:      cfg.ToolsDir,
		DistDir:       cfg.DistDir,
		ModuleSources: moduleSources,
		Optimize:      man.Optimize,
		Host:          cfg.Host,
		Invoker:       &toolchain.Invoker{Timeout: cfg.ToolTimeout},
	}

	orch := &orchestrate.Orchestrator{
		Targets: targets,
		Host:    cfg.Host,
		Builder: pipeline,
		Patcher: vendorPatcher{
			mgr: patch.NewManager(),
			set: &patch.VendorSet{
				VendorDir:     cfg.VendorDir,
				Registrations: man.Registrations,
				ExecShimPath:  man.ExecShimPath,
			},
		},
		Reporter: reporter,
		Dirs:     []string{cfg.BuildDir, cfg.ToolsDir, cfg.DistDir},
		Jobs:     cfg.Jobs,
	}

	result, err := orch.Run(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitSetupError
	}
	if result.AnyFailed() {
		return ExitTargetFailure
	}
	return ExitSuccess
}
