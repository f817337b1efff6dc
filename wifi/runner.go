package wifi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes a platform command and returns its standard output.
// Implementations must honour ctx cancellation.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

// ExecRunner runs commands as subprocesses.
type ExecRunner struct {
	Logger *slog.Logger
}

var permissionHints = []string{
	"permission denied",
	"not authorized",
	"access is denied",
	"requires elevation",
	"insufficient privileges",
	"operation not permitted",
}

// Run wraps exec.CommandContext to capture stderr and wrap errors.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	c := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	c.Stderr = &stderr
	if r.Logger != nil {
		r.Logger.Debug("running command", "cmd", c.String())
	}
	out, err := c.Output()
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("failed to run command: %s: %w", c.String(), ctx.Err())
		}
		return out, classify(fmt.Errorf("failed to run command: %s: %w: %s", c.String(), err, strings.TrimSpace(stderr.String())), stderr.String()+string(out))
	}
	return out, nil
}

// classify wraps err with ErrPermissionDenied when the command output
// indicates a privilege problem, since retrying those will not help.
func classify(err error, output string) error {
	lower := strings.ToLower(output)
	for _, hint := range permissionHints {
		if strings.Contains(lower, hint) {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
	}
	return err
}

// CheckPermission returns ErrPermissionDenied if output indicates a
// privilege problem. It is used for tools that exit zero on failure.
func CheckPermission(output string) error {
	lower := strings.ToLower(output)
	for _, hint := range permissionHints {
		if strings.Contains(lower, hint) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(output))
		}
	}
	return nil
}
