package orchestrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"qjspack/internal/patch"
	"qjspack/internal/report"
	"qjspack/internal/target"
)

type fakeBuilder struct {
	mu         sync.Mutex
	failTriple string
	hostErr    error

	hostBuilt   bool
	built       []string
	cleaned     bool
	patchedSeen bool // records whether patching had happened when Build ran

	patcher *fakePatcher
}

func (b *fakeBuilder) BuildHelpers(ctx context.Context, d target.Descriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hostBuilt = true
	return b.hostErr
}

func (b *fakeBuilder) Build(ctx context.Context, d target.Descriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.patcher != nil && b.patcher.applied {
		b.patchedSeen = true
	}
	if d.Triple == b.failTriple {
		return fmt.Errorf("synthetic failure for %s", d.Triple)
	}
	b.built = append(b.built, d.Triple)
	return nil
}

func (b *fakeBuilder) CleanIntermediates() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleaned = true
	return nil
}

type fakePatcher struct {
	mu       sync.Mutex
	applyErr error
	applied  bool
	restores int
}

func (p *fakePatcher) Apply() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applyErr != nil {
		return p.applyErr
	}
	p.applied = true
	return nil
}

func (p *fakePatcher) RestoreAll() []patch.RestoreOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restores++
	return []patch.RestoreOutcome{{Path: "vendor/quickjs-libc.c"}}
}

func newOrchestrator(t *testing.T, builder *fakeBuilder, patcher *fakePatcher, jobs int) (*Orchestrator, *bytes.Buffer) {
	t.Helper()
	builder.patcher = patcher
	host, err := target.Host("linux", "amd64")
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	reporter := report.New(&out)
	reporter.Plain = true
	return &Orchestrator{
		Targets:  target.All(),
		Host:     host,
		Builder:  builder,
		Patcher:  patcher,
		Reporter: reporter,
		Dirs:     []string{t.TempDir()},
		Jobs:     jobs,
	}, &out
}

func TestRun_TargetIndependence(t *testing.T) {
	builder := &fakeBuilder{failTriple: target.All()[1].Triple}
	patcher := &fakePatcher{}
	orch, _ := newOrchestrator(t, builder, patcher, 1)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}
	if result.Built != len(target.All())-1 {
		t.Errorf("built = %d, want %d", result.Built, len(target.All())-1)
	}
	if !result.AnyFailed() {
		t.Error("AnyFailed must report the partial failure")
	}

	// Every non-failing target was still attempted and succeeded.
	for _, tr := range result.Targets {
		if tr.Triple == builder.failTriple {
			if tr.Status != TargetFailed || tr.Err == nil {
				t.Errorf("failing target recorded as %v", tr)
			}
			continue
		}
		if tr.Status != TargetBuilt {
			t.Errorf("target %s not built after sibling failure", tr.Triple)
		}
	}
}

func TestRun_PatchHappensBeforeAllTargetWork(t *testing.T) {
	builder := &fakeBuilder{}
	patcher := &fakePatcher{}
	orch, _ := newOrchestrator(t, builder, patcher, 1)

	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !builder.patchedSeen {
		t.Error("a target built before the vendor patches were applied")
	}
	if !builder.hostBuilt {
		t.Error("host helpers never built")
	}
}

func TestRun_RestoreRunsAfterTargetsEvenOnFailures(t *testing.T) {
	builder := &fakeBuilder{failTriple: target.All()[0].Triple}
	patcher := &fakePatcher{}
	orch, out := newOrchestrator(t, builder, patcher, 1)

	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if patcher.restores != 1 {
		t.Errorf("restore ran %d times, want exactly 1", patcher.restores)
	}
	if !builder.cleaned {
		t.Error("intermediate cleanup skipped")
	}
	if !bytes.Contains(out.Bytes(), []byte("restored vendor/quickjs-libc.c")) {
		t.Errorf("no per-file restore confirmation in output:\n%s", out.String())
	}
}

func TestRun_PatchFailureIsFatalButStillRestores(t *testing.T) {
	builder := &fakeBuilder{}
	patcher := &fakePatcher{applyErr: errors.New("anchor not found")}
	orch, _ := newOrchestrator(t, builder, patcher, 1)

	_, err := orch.Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal stage error")
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StagePatch {
		t.Errorf("expected patch StageError, got %v", err)
	}
	if len(builder.built) != 0 || builder.hostBuilt {
		t.Error("compilation attempted after patch failure")
	}
	if patcher.restores != 1 {
		t.Errorf("restore ran %d times after patch failure, want 1", patcher.restores)
	}
}

func TestRun_HostToolFailureIsFatalButStillRestores(t *testing.T) {
	builder := &fakeBuilder{hostErr: errors.New("cc exploded")}
	patcher := &fakePatcher{}
	orch, _ := newOrchestrator(t, builder, patcher, 1)

	_, err := orch.Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageHostTools {
		t.Errorf("expected host-tools StageError, got %v", err)
	}
	if len(builder.built) != 0 {
		t.Error("targets attempted without host tools")
	}
	if patcher.restores != 1 {
		t.Errorf("restore ran %d times, want 1", patcher.restores)
	}
}

func TestRun_WorkerPoolBuildsEverything(t *testing.T) {
	builder := &fakeBuilder{}
	patcher := &fakePatcher{}
	orch, _ := newOrchestrator(t, builder, patcher, 4)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Built != len(target.All()) || result.Failed != 0 {
		t.Errorf("built=%d failed=%d, want all built", result.Built, result.Failed)
	}
	// Results stay in registry order regardless of completion order.
	for i, tr := range result.Targets {
		if tr.Triple != target.All()[i].Triple {
			t.Errorf("result %d is %s, want %s", i, tr.Triple, target.All()[i].Triple)
		}
	}
	if patcher.restores != 1 {
		t.Errorf("restore ran %d times with worker pool, want 1", patcher.restores)
	}
}

func TestRun_CompletionBannerReportsCounts(t *testing.T) {
	builder := &fakeBuilder{failTriple: target.All()[2].Triple}
	patcher := &fakePatcher{}
	orch, out := newOrchestrator(t, builder, patcher, 1)

	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := fmt.Sprintf("build complete: %d built, 1 failed", len(target.All())-1)
	if !bytes.Contains(out.Bytes(), []byte(want)) {
		t.Errorf("completion banner missing %q:\n%s", want, out.String())
	}
}
