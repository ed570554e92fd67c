package shaper

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Result is the outcome of one external command invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the command exited zero.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Diagnostic returns the most useful error text the command produced:
// stderr first, then stdout. The kernel tools put their root-cause
// explanation in one of the two and it must be surfaced verbatim.
func (r Result) Diagnostic() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Stdout); s != "" {
		return s
	}
	return "unknown error"
}

// Runner executes external commands as argv vectors. Arguments are never
// passed through a shell, so interface names and numbers reach the command
// exactly as built.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// DefaultCommandTimeout bounds a single ip/tc invocation. A hung command
// would otherwise hold its device lock indefinitely.
const DefaultCommandTimeout = 10 * time.Second

// ExecRunner runs commands via os/exec with a per-invocation timeout.
// Timeouts are reported as command failures.
type ExecRunner struct {
	Timeout time.Duration
}

func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &ExecRunner{Timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) Result {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	} else {
		res.ExitCode = -1
	}
	if res.ExitCode == 0 {
		res.ExitCode = -1
	}
	if res.Stderr == "" {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Stderr = ctxErr.Error()
		} else {
			res.Stderr = err.Error()
		}
	}
	return res
}
