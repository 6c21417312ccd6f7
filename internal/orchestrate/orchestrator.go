// Package orchestrate sequences a build run: patch the vendor sources, build
// every target, clean up intermediates, and restore the vendor tree to its
// pristine bytes no matter what happened in between.
package orchestrate

import (
	"context"
	"fmt"
	"os"
	"sync"

	"qjspack/internal/patch"
	"qjspack/internal/report"
	"qjspack/internal/target"
)

// Builder is the per-target compilation pipeline. BuildHelpers is invoked
// once for the host descriptor before any target so the host pre-compiler
// exists; Build runs the full pipeline for one target.
type Builder interface {
	BuildHelpers(ctx context.Context, d target.Descriptor) error
	Build(ctx context.Context, d target.Descriptor) error
	CleanIntermediates() []error
}

// Patcher applies the vendor patch set and restores the backups. Apply runs
// exactly once before any compilation; RestoreAll runs exactly once after
// the last target, success or failure.
type Patcher interface {
	Apply() error
	RestoreAll() []patch.RestoreOutcome
}

// Orchestrator owns one build run.
//
// Ordering invariants:
//   - the patch stage is durable on disk before any target work starts (the
//     vendor tree is the single piece of shared mutable state);
//   - a target's helper binaries are built before its application binary;
//   - restoration happens after every target has been attempted.
type Orchestrator struct {
	Targets  []target.Descriptor
	Host     target.Descriptor
	Builder  Builder
	Patcher  Patcher
	Reporter *report.Reporter

	// Dirs are created up front (build, tools, dist).
	Dirs []string

	// Jobs is the worker count for the target loop. 1 keeps the original
	// strictly sequential ordering of target log output.
	Jobs int

	mu sync.Mutex // serializes reporter output from workers
}

// Run drives the state machine. A StageError means a fatal stage failed
// (targets may not have been attempted); per-target failures are returned
// inside RunResult with a nil error.
//
// RestoreAll is reached on every path after patching has begun.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	if err := o.clean(); err != nil {
		return nil, &StageError{Stage: StageClean, Err: err}
	}

	o.Reporter.Stage("patching vendor sources")
	if err := o.Patcher.Apply(); err != nil {
		o.restore()
		return nil, &StageError{Stage: StagePatch, Err: err}
	}

	o.Reporter.Stage("building host tools")
	if err := o.Builder.BuildHelpers(ctx, o.Host); err != nil {
		o.restore()
		return nil, &StageError{Stage: StageHostTools, Err: err}
	}

	o.Reporter.Stage(fmt.Sprintf("building %d target(s)", len(o.Targets)))
	result := o.buildTargets(ctx)

	o.cleanup()
	o.restore()

	o.Reporter.Done(result.Built, result.Failed)
	return result, nil
}

func (o *Orchestrator) clean() error {
	for _, dir := range o.Dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// buildTargets runs the target loop with up to Jobs workers. Targets are
// mutually independent (distinct build trees and output names), so a failed
// target never blocks the rest; it is recorded and the loop continues.
func (o *Orchestrator) buildTargets(ctx context.Context) *RunResult {
	jobs := o.Jobs
	if jobs < 1 {
		jobs = 1
	}
	if jobs > len(o.Targets) {
		jobs = len(o.Targets)
	}

	results := make([]TargetResult, len(o.Targets))

	if jobs <= 1 {
		for i, d := range o.Targets {
			results[i] = o.buildOne(ctx, d)
		}
		return summarize(results)
	}

	type item struct {
		index int
		desc  target.Descriptor
	}
	work := make(chan item)
	var wg sync.WaitGroup
	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range work {
				results[it.index] = o.buildOne(ctx, it.desc)
			}
		}()
	}
	for i, d := range o.Targets {
		work <- item{index: i, desc: d}
	}
	close(work)
	wg.Wait()

	return summarize(results)
}

func (o *Orchestrator) buildOne(ctx context.Context, d target.Descriptor) TargetResult {
	o.say(func() { o.Reporter.TargetStart(d.Triple) })

	if err := o.Builder.Build(ctx, d); err != nil {
		o.say(func() { o.Reporter.TargetFailed(d.Triple, err) })
		return TargetResult{Triple: d.Triple, Status: TargetFailed, Err: err}
	}

	o.say(func() { o.Reporter.TargetBuilt(d.Triple, d.AppBin) })
	return TargetResult{Triple: d.Triple, Status: TargetBuilt}
}

// say serializes reporter calls across workers so lines never interleave.
func (o *Orchestrator) say(f func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f()
}

// cleanup deletes intermediate compiled sources. Best-effort: failures are
// logged and ignored. Build trees stay on disk for inspection.
func (o *Orchestrator) cleanup() {
	o.Reporter.Stage("cleaning up intermediates")
	for _, err := range o.Builder.CleanIntermediates() {
		o.Reporter.CleanupFailed(err)
	}
}

// restore puts the vendor tree back, best-effort per file, and confirms each
// restored file.
func (o *Orchestrator) restore() {
	o.Reporter.Stage("restoring vendor sources")
	for _, outcome := range o.Patcher.RestoreAll() {
		if outcome.Err != nil {
			o.Reporter.RestoreFailed(outcome.Path, outcome.Err)
			continue
		}
		o.Reporter.Restored(outcome.Path)
	}
}

func summarize(results []TargetResult) *RunResult {
	r := &RunResult{Targets: results}
	for _, tr := range results {
		if tr.Status == TargetBuilt {
			r.Built++
		} else {
			r.Failed++
		}
	}
	return r
}
