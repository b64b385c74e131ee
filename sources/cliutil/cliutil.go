// Package cliutil runs provider CLIs (gh, acli) for the adapters that shell
// out instead of speaking HTTP. It caps concurrent subprocess creation with
// a weighted semaphore so the work store's concurrent fan-out cannot
// saturate process spawning, and decodes the JSON the CLIs emit.
package cliutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limit of concurrent provider subprocesses across all CLI adapters.
const maxConcurrentSubprocesses = 3

// DefaultTimeout bounds a single CLI invocation when the caller's context
// carries no deadline of its own.
const DefaultTimeout = 30 * time.Second

var subprocessSem = semaphore.NewWeighted(maxConcurrentSubprocesses)

// ErrCLINotFound is returned when the requested executable is not on PATH.
var ErrCLINotFound = errors.New("cli executable not found")

// CLIError describes a CLI invocation that exited non-zero.
type CLIError struct {
	Command  string
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

// IsInstalled reports whether the executable can be resolved on PATH.
func IsInstalled(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Run executes a CLI command and returns its trimmed stdout and stderr.
// Acquisition of the subprocess semaphore honors context cancellation, and
// the command itself runs under the context (with DefaultTimeout applied
// when the context has no deadline).
func Run(ctx context.Context, name string, args ...string) (string, string, error) {
	if !IsInstalled(name) {
		return "", "", fmt.Errorf("%w: %s", ErrCLINotFound, name)
	}

	if err := subprocessSem.Acquire(ctx, 1); err != nil {
		return "", "", fmt.Errorf("failed to acquire subprocess slot: %w", err)
	}
	defer subprocessSem.Release(1)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = nil
	// Once the context is done, stop waiting for output after a short grace
	// period; a child process of the command may still hold the pipes open.
	cmd.WaitDelay = 500 * time.Millisecond

	err := cmd.Run()
	stdoutStr := strings.TrimSpace(stdout.String())
	stderrStr := strings.TrimSpace(stderr.String())

	if err != nil {
		if ctx.Err() != nil {
			return stdoutStr, stderrStr, fmt.Errorf("command %s timed out: %w", name, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdoutStr, stderrStr, &CLIError{
				Command:  name + " " + strings.Join(args, " "),
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderrStr,
			}
		}
		return stdoutStr, stderrStr, fmt.Errorf("failed to run %s: %w", name, err)
	}

	return stdoutStr, stderrStr, nil
}

// FetchJSON runs a CLI command and decodes its stdout into out. An empty
// stdout decodes as a no-op so "no results" does not read as a failure.
func FetchJSON(ctx context.Context, out any, name string, args ...string) error {
	stdout, _, err := Run(ctx, name, args...)
	if err != nil {
		return err
	}
	if stdout == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(stdout), out); err != nil {
		return fmt.Errorf("failed to decode %s output: %w", name, err)
	}
	return nil
}
