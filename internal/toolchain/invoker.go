// Package toolchain wraps the retargetable C compiler and the vendor helper
// binaries: it builds the per-target interpreter and pre-compiler, runs the
// host pre-compiler over the resolved entry point, and links the final
// application binary.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// ToolError is the failure of one external tool invocation. It carries the
// tool's captured output so per-target failure logs show the actual
// diagnostic, not just an exit code. Some compilers report on stdout, so it
// is used when stderr is empty.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed (exit %d)", e.Tool, e.ExitCode)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	diag := e.Stderr
	if len(bytes.TrimSpace(diag)) == 0 {
		diag = e.Stdout
	}
	if len(bytes.TrimSpace(diag)) > 0 {
		msg += "\n" + string(bytes.TrimSpace(diag))
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Invoker runs external tools synchronously with a per-invocation deadline.
// A hung tool is killed (the whole process group, so compiler-spawned
// children die with it) and reported as an ordinary failure.
type Invoker struct {
	// Timeout bounds a single invocation. Zero means no bound.
	Timeout time.Duration
}

// Run executes tool with args, waiting for exit. A non-zero exit, a timeout,
// or a start failure all surface as *ToolError.
func (inv *Invoker) Run(ctx context.Context, tool string, args ...string) error {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.Command(tool, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &ToolError{Tool: tool, Args: args, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return &ToolError{Tool: tool, Args: args, Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Err: ctx.Err()}
	case err = <-done:
	}

	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			err = nil
		}
		return &ToolError{
			Tool:     tool,
			Args:     args,
			ExitCode: exitCode,
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			Err:      err,
		}
	}
	return nil
}
