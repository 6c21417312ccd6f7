// Package target defines the static registry of supported compilation targets.
package target

import (
	"fmt"
	"sort"
	"strings"
)

// Family identifies the OS family of a target. It drives platform-specific
// source selection in the resolver and the exec-shim branch in the vendor
// patch set.
type Family string

const (
	FamilyWindows Family = "windows"
	FamilyLinux   Family = "linux"
	FamilyDarwin  Family = "darwin"
)

// Suffix returns the file-name token used by platform-specific script files
// (m.<suffix>.mjs). The windows token follows the interpreter's own platform
// naming rather than the triple's.
func (f Family) Suffix() string {
	if f == FamilyWindows {
		return "win32"
	}
	return string(f)
}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	switch f {
	case FamilyWindows, FamilyLinux, FamilyDarwin:
		return true
	}
	return false
}

// Descriptor describes one compilation target: its compiler triple, OS
// family, output binary names, and toolchain flags.
//
// Descriptors are immutable. They are constructed once from the static table
// below and read by every build stage.
type Descriptor struct {
	// Triple is the compiler target triple and the unique registry key.
	Triple string

	// Family selects platform-specific sources and the exec-shim branch.
	Family Family

	// InterpreterBin and PrecompilerBin name the two helper binaries
	// produced in the tools directory for this target.
	InterpreterBin string
	PrecompilerBin string

	// AppBin names the final application binary in the dist directory.
	AppBin string

	// CompileFlags and LinkFlags are passed, in order, to the toolchain for
	// every compile/link invocation targeting this triple.
	CompileFlags []string
	LinkFlags    []string
}

// exeSuffix returns the executable suffix for the family.
func exeSuffix(f Family) string {
	if f == FamilyWindows {
		return ".exe"
	}
	return ""
}

func descriptor(triple string, family Family, extraLink ...string) Descriptor {
	suffix := exeSuffix(family)
	link := []string{"-lm"}
	link = append(link, extraLink...)
	return Descriptor{
		Triple:         triple,
		Family:         family,
		InterpreterBin: "qjs-" + triple + suffix,
		PrecompilerBin: "qjsc-" + triple + suffix,
		AppBin:         "app-" + triple + suffix,
		CompileFlags:   []string{"-D_GNU_SOURCE", "-DCONFIG_VERSION=\"qjspack\""},
		LinkFlags:      link,
	}
}

// registry is the static table of supported targets. Order here is the
// stable build order reported to the user.
var registry = []Descriptor{
	descriptor("x86_64-linux-musl", FamilyLinux, "-lpthread", "-static"),
	descriptor("aarch64-linux-musl", FamilyLinux, "-lpthread", "-static"),
	descriptor("x86_64-macos-none", FamilyDarwin),
	descriptor("aarch64-macos-none", FamilyDarwin),
	descriptor("x86_64-windows-gnu", FamilyWindows),
}

// All returns the registry in stable order. The returned slice is a copy;
// callers cannot mutate the registry.
func All() []Descriptor {
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the descriptor for the given triple.
func Lookup(triple string) (Descriptor, error) {
	for _, d := range registry {
		if d.Triple == triple {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("unknown target triple %q (supported: %s)", triple, strings.Join(Triples(), ", "))
}

// Select returns descriptors for the requested triples, or the full registry
// when triples is empty. Duplicate requests are collapsed; order follows the
// registry, not the request, so build order stays stable across runs.
func Select(triples []string) ([]Descriptor, error) {
	if len(triples) == 0 {
		return All(), nil
	}
	want := make(map[string]bool, len(triples))
	for _, t := range triples {
		if _, err := Lookup(t); err != nil {
			return nil, err
		}
		want[t] = true
	}
	var out []Descriptor
	for _, d := range registry {
		if want[d.Triple] {
			out = append(out, d)
		}
	}
	return out, nil
}

// Host returns the descriptor matching the host OS and architecture. The
// host descriptor selects which pre-compiler helper binary runs locally
// during the pre-compile step, regardless of the target being built.
func Host(goos, goarch string) (Descriptor, error) {
	var family Family
	switch goos {
	case "linux":
		family = FamilyLinux
	case "darwin":
		family = FamilyDarwin
	case "windows":
		family = FamilyWindows
	default:
		return Descriptor{}, fmt.Errorf("unsupported host OS: %q", goos)
	}

	var arch string
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return Descriptor{}, fmt.Errorf("unsupported host architecture: %q", goarch)
	}

	for _, d := range registry {
		if d.Family == family && hasArch(d.Triple, arch) {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("no registered target matches host %s/%s", goos, goarch)
}

func hasArch(triple, arch string) bool {
	return len(triple) > len(arch) && triple[:len(arch)] == arch && triple[len(arch)] == '-'
}

// Triples returns the sorted triples of the registry, for error messages and
// the targets listing.
func Triples() []string {
	out := make([]string, 0, len(registry))
	for _, d := range registry {
		out = append(out, d.Triple)
	}
	sort.Strings(out)
	return out
}
