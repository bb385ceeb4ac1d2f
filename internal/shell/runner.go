package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
)

// ErrCommandFailed is returned when a command exits with a code that is not allowed.
var ErrCommandFailed = errors.New("command failed")

// Command describes one external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// OKExitCodes lists exit codes treated as success. Zero is always accepted.
	OKExitCodes []int
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that was considered successful.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Warned reports whether the command wrote to stderr or exited with an
// allowed non-zero code.
func (r Result) Warned() bool {
	return r.ExitCode != 0 || strings.TrimSpace(r.Stderr) != ""
}

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *slog.Logger
}

// NewExecRunner creates a runner that logs each invocation at debug level.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{Logger: logger}
}

// Run executes cmd and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	r.Logger.Debug("running command", "cmd", cmd.String(), "dir", cmd.Dir)
	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if !slices.Contains(cmd.OKExitCodes, res.ExitCode) {
			return res, fmt.Errorf("%w: %s exited with code %d: %s",
				ErrCommandFailed, cmd.Name, res.ExitCode, firstLine(res.Stderr))
		}
	default:
		return res, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}

	r.Logger.Debug("command finished", "cmd", cmd.Name, "exit_code", res.ExitCode)
	return res, nil
}

// Output runs cmd and returns its trimmed stdout.
func Output(ctx context.Context, r Runner, cmd Command) (string, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
