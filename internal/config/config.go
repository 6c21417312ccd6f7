// Package config builds the immutable run configuration.
//
// Every environment- or host-derived value is resolved here, once, at
// startup. Downstream packages receive a Config (or a piece of it) and never
// consult process globals themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/xyproto/env/v2"

	"qjspack/internal/target"
)

// Config is the fully resolved description of one build run. All paths are
// absolute. The struct is constructed once by New and never mutated.
type Config struct {
	// ProjectRoot is the application project directory.
	ProjectRoot string

	// ManifestPath is the project manifest inside ProjectRoot.
	ManifestPath string

	// ToolchainPath is the retargetable C compiler executable.
	ToolchainPath string

	// VendorDir is the vendored interpreter source tree. It is the only
	// shared mutable state of a run: patched before any target builds and
	// restored after the last one.
	VendorDir string

	// BuildDir holds per-target resolved source trees and intermediates.
	// ToolsDir holds per-target helper binaries. DistDir holds the final
	// application binaries.
	BuildDir string
	ToolsDir string
	DistDir  string

	// Host is the descriptor matching the machine running the build; its
	// pre-compiler helper is the one executed locally during step three.
	Host target.Descriptor

	// Jobs is the number of targets built concurrently. 1 preserves the
	// strictly sequential log ordering.
	Jobs int

	// ToolTimeout bounds every toolchain invocation.
	ToolTimeout time.Duration
}

// Options carries the raw, possibly empty values collected from the command
// line. New fills the gaps from the environment and the host.
type Options struct {
	ProjectRoot string
	Toolchain   string
	VendorDir   string
	Jobs        int
	ToolTimeout time.Duration
}

// Environment variables consulted for defaults. They exist so CI setups can
// point every invocation at a shared toolchain and vendor checkout without
// repeating flags.
const (
	EnvToolchain = "QJSPACK_TOOLCHAIN"
	EnvVendor    = "QJSPACK_VENDOR"
	EnvCache     = "QJSPACK_CACHE"
)

// DefaultToolTimeout bounds a single toolchain invocation. Cross-linking a
// full interpreter is slow on small machines, so the bound is generous.
const DefaultToolTimeout = 10 * time.Minute

// New resolves opts into a Config. It is the only place the process
// environment and host identity are read.
func New(opts Options) (*Config, error) {
	root := opts.ProjectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve project root: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	toolchain := opts.Toolchain
	if toolchain == "" {
		toolchain = env.Str(EnvToolchain)
	}
	if toolchain == "" {
		return nil, fmt.Errorf("no toolchain: pass --toolchain or set %s", EnvToolchain)
	}

	vendor := opts.VendorDir
	if vendor == "" {
		vendor = env.Str(EnvVendor)
	}
	if vendor == "" {
		return nil, fmt.Errorf("no vendor source tree: pass --vendor or set %s", EnvVendor)
	}
	vendor, err = filepath.Abs(vendor)
	if err != nil {
		return nil, fmt.Errorf("resolve vendor dir: %w", err)
	}

	host, err := target.Host(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return nil, err
	}

	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}
	timeout := opts.ToolTimeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}

	return &Config{
		ProjectRoot:   root,
		ManifestPath:  filepath.Join(root, "qjspack.json"),
		ToolchainPath: toolchain,
		VendorDir:     vendor,
		BuildDir:      filepath.Join(root, "build"),
		ToolsDir:      filepath.Join(root, "build", "tools"),
		DistDir:       filepath.Join(root, "dist"),
		Host:          host,
		Jobs:          jobs,
		ToolTimeout:   timeout,
	}, nil
}

// CacheDir returns the directory where fetched archives are unpacked.
// Separate from New because only the fetch subcommand needs it.
func CacheDir() string {
	if dir := env.Str(EnvCache); dir != "" {
		return dir
	}
	return filepath.Join(env.HomeDir(), ".cache", "qjspack")
}
