// Package report prints the operator-facing progress of a build run: stage
// banners, per-target lines, restore confirmations, and the completion
// summary.
package report

import (
	"fmt"
	"io"

	"github.com/gookit/color"
)

// Reporter writes progress to Out. Plain mode disables color tags, which
// keeps test output and non-TTY logs clean.
type Reporter struct {
	Out   io.Writer
	Plain bool
}

func New(out io.Writer) *Reporter {
	return &Reporter{Out: out}
}

func (r *Reporter) printf(tagged, format string, args ...any) {
	if r == nil || r.Out == nil {
		return
	}
	if r.Plain {
		fmt.Fprintf(r.Out, format, args...)
		return
	}
	color.Fprintf(r.Out, tagged, args...)
}

// Stage announces a pipeline stage.
func (r *Reporter) Stage(name string) {
	r.printf("<cyan>==></> %s\n", "==> %s\n", name)
}

// TargetStart announces that a target's build began.
func (r *Reporter) TargetStart(triple string) {
	r.printf("  <comment>-></> building %s\n", "  -> building %s\n", triple)
}

// TargetBuilt reports a successful target.
func (r *Reporter) TargetBuilt(triple, appBin string) {
	r.printf("  <green>ok</>  %s (%s)\n", "  ok  %s (%s)\n", triple, appBin)
}

// TargetFailed reports a failed target together with the underlying tool
// diagnostic. The failure does not stop the remaining targets.
func (r *Reporter) TargetFailed(triple string, err error) {
	r.printf("  <red>fail</> %s: %v\n", "  fail %s: %v\n", triple, err)
}

// Restored confirms one vendor file was restored to its pristine bytes.
func (r *Reporter) Restored(path string) {
	r.printf("  <green>restored</> %s\n", "  restored %s\n", path)
}

// RestoreFailed reports a best-effort restore failure; it never changes the
// run's exit status.
func (r *Reporter) RestoreFailed(path string, err error) {
	r.printf("  <red>restore failed</> %s: %v\n", "  restore failed %s: %v\n", path, err)
}

// CleanupFailed reports a best-effort temp-file cleanup failure.
func (r *Reporter) CleanupFailed(err error) {
	r.printf("  <yellow>cleanup:</> %v\n", "  cleanup: %v\n", err)
}

// Done prints the completion banner with built and failed counts.
func (r *Reporter) Done(built, failed int) {
	if failed == 0 {
		r.printf("<green>build complete:</> %d target(s) built\n", "build complete: %d target(s) built\n", built)
		return
	}
	r.printf("<yellow>build complete:</> %d built, %d failed\n", "build complete: %d built, %d failed\n", built, failed)
}
