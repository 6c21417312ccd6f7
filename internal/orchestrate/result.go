package orchestrate

import "fmt"

// Stage identifies one phase of the run's state machine:
// Clean -> Patch -> HostTools -> Targets -> Cleanup -> Restore -> Done.
type Stage string

const (
	StageClean     Stage = "clean"
	StagePatch     Stage = "patch"
	StageHostTools Stage = "host-tools"
	StageTargets   Stage = "targets"
	StageCleanup   Stage = "cleanup"
	StageRestore   Stage = "restore"
)

// StageError is a fatal failure of one of the setup stages. Per-target
// failures never become StageErrors; they are recorded in the RunResult and
// the loop continues.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// TargetStatus is the terminal state of one target's build.
type TargetStatus int

const (
	TargetBuilt TargetStatus = iota
	TargetFailed
)

// TargetResult records the outcome of one target.
type TargetResult struct {
	Triple string
	Status TargetStatus
	Err    error
}

// RunResult summarizes a completed run. Targets appear in registry order
// regardless of the order workers finished in.
type RunResult struct {
	Targets []TargetResult
	Built   int
	Failed  int
}

// AnyFailed reports whether at least one target failed. The CLI maps this to
// a non-zero exit status even though the fatal stages all succeeded.
func (r *RunResult) AnyFailed() bool {
	return r.Failed > 0
}
