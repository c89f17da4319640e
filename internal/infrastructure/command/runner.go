// Package command runs external tools (npm, git, python) for the adapters
// that have no library equivalent.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Result holds the captured output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout followed by stderr.
func (r *Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Lines returns the non-empty trimmed lines of stdout.
func (r *Result) Lines() []string {
	var out []string
	for _, line := range strings.Split(r.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Runner executes a command in dir.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	env []string
}

// NewExecRunner creates a runner. extraEnv entries ("KEY=value") are appended
// to the process environment.
func NewExecRunner(extraEnv ...string) *ExecRunner {
	return &ExecRunner{env: extraEnv}
}

// Run executes name with args. A non-zero exit is returned as an error
// together with the captured output.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (*Result, error) {
	const op = "command.Run"

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	if ctx.Err() != nil {
		return res, rperrors.TimeoutWrap(ctx.Err(), op, fmt.Sprintf("%s interrupted", name))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}

	msg := fmt.Sprintf("%s %s failed", name, strings.Join(args, " "))
	if tail := lastLine(res.Stderr); tail != "" {
		msg += ": " + tail
	}
	return res, rperrors.WrapSafe(err, rperrors.KindIO, op, msg)
}

// LookPath reports whether name is on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
