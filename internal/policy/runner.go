package policy

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// CommandRunner executes a shell command with a timeout and reports its
// exit code and combined output, the same os/exec+bytes.Buffer+
// context.WithTimeout shape internal/vcs.RealExecutor uses for git
// subprocesses. Policies that shell out (RequireTests,
// ArchitectureValidation) take one as a dependency so tests can substitute
// a fake without spawning a real process.
type CommandRunner interface {
	Run(ctx context.Context, dir, command string, timeout time.Duration) (exitCode int, output string, err error)
}

// execRunner is the production CommandRunner, running command through the
// shell in dir.
type execRunner struct{}

// NewCommandRunner returns the default CommandRunner.
func NewCommandRunner() CommandRunner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, dir, command string, timeout time.Duration) (int, string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return -1, buf.String(), context.DeadlineExceeded
	}
	if err == nil {
		return 0, buf.String(), nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), buf.String(), nil
	}
	return -1, buf.String(), err
}
