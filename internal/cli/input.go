package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

// Exit codes. Per-target compile failures map to ExitTargetFailure even
// though every fatal stage succeeded; setup problems (missing manifest,
// missing toolchain, patch failure) map to ExitSetupError.
const (
	ExitSuccess           = 0
	ExitTargetFailure     = 1
	ExitInvalidInvocation = 2
	ExitSetupError        = 3
	ExitInternalError     = 4
)

// Command is the parsed subcommand.
type Command string

const (
	CommandBuild   Command = "build"
	CommandFetch   Command = "fetch"
	CommandTargets Command = "targets"
)

// BuildOptions are the raw build flags; empty values are filled from the
// environment by the config package.
type BuildOptions struct {
	ProjectRoot string
	Toolchain   string
	VendorDir   string
	Targets     []string
	Jobs        int
	ToolTimeout time.Duration
	Plain       bool
}

// FetchOptions name the artifacts to acquire into the cache directory.
type FetchOptions struct {
	ToolchainURL string
	VendorURL    string
}

// Invocation is the canonicalized description of one CLI run.
type Invocation struct {
	Command Command
	Build   BuildOptions
	Fetch   FetchOptions
}

// InvocationError carries the exit code for a rejected invocation.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

const usage = `usage: qjspack <command> [flags]

commands:
  build     compile the project for every (or selected) target
  fetch     download the toolchain and vendor sources into the cache
  targets   list supported target triples
`

// ParseInvocation parses the argument slice (excluding argv[0]).
func ParseInvocation(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{}, invalidInvocationf("%s", usage)
	}

	switch args[0] {
	case "build":
		return parseBuild(args[1:])
	case "fetch":
		return parseFetch(args[1:])
	case "targets":
		if len(args) > 1 {
			return Invocation{}, invalidInvocationf("targets takes no arguments")
		}
		return Invocation{Command: CommandTargets}, nil
	case "-h", "--help", "help":
		return Invocation{}, invalidInvocationf("%s", usage)
	default:
		return Invocation{}, invalidInvocationf("unknown command %q\n%s", args[0], usage)
	}
}

func parseBuild(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("qjspack build", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var opts BuildOptions
	var targets string

	fs.StringVar(&opts.ProjectRoot, "project", "", "Project root (default: current directory).")
	fs.StringVar(&opts.Toolchain, "toolchain", "", "C compiler executable.")
	fs.StringVar(&opts.VendorDir, "vendor", "", "Vendored interpreter source tree.")
	fs.StringVar(&targets, "targets", "", "Comma-separated target triples (default: all).")
	fs.IntVar(&opts.Jobs, "jobs", 1, "Targets built concurrently.")
	fs.DurationVar(&opts.ToolTimeout, "tool-timeout", 0, "Per-invocation toolchain timeout.")
	fs.BoolVar(&opts.Plain, "plain", false, "Disable colored output.")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}
	if opts.Jobs < 1 {
		return Invocation{}, invalidInvocationf("--jobs must be at least 1")
	}

	if targets != "" {
		for _, t := range strings.Split(targets, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				return Invocation{}, invalidInvocationf("--targets contains an empty triple")
			}
			opts.Targets = append(opts.Targets, t)
		}
	}

	return Invocation{Command: CommandBuild, Build: opts}, nil
}

func parseFetch(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("qjspack fetch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts FetchOptions
	fs.StringVar(&opts.ToolchainURL, "toolchain-url", "", "Toolchain executable URL. Required.")
	fs.StringVar(&opts.VendorURL, "vendor-url", "", "Vendor source .tar.xz URL. Required.")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}
	if opts.ToolchainURL == "" {
		return Invocation{}, invalidInvocationf("--toolchain-url is required")
	}
	if opts.VendorURL == "" {
		return Invocation{}, invalidInvocationf("--vendor-url is required")
	}

	return Invocation{Command: CommandFetch, Fetch: opts}, nil
}
