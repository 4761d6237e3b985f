package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Runner executes an external command and returns its stdout
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs child processes with a bounded wall-clock timeout
type ExecRunner struct {
	logger  *zap.Logger
	timeout time.Duration
	env     []string
}

// NewExecRunner creates a runner. Extra env entries (KEY=VALUE) are appended
// to the inherited environment of every child.
func NewExecRunner(logger *zap.Logger, timeout time.Duration, env ...string) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{logger: logger, timeout: timeout, env: env}
}

// Run executes name with args. A non-zero exit code or a start failure is
// reported as an error. A timeout or a cancelled ctx wraps the context error.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	r.logger.Debug("Command finished",
		zap.String("command", name),
		zap.Strings("args", args),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return nil, fmt.Errorf("%s: command execution timeout: %w", name, ctxErr)
	case errors.Is(ctxErr, context.Canceled):
		return nil, fmt.Errorf("%s: command cancelled: %w", name, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), fmt.Errorf("%s exited with code %d: %s",
				name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("failed to execute %s: %w", name, err)
	}

	return stdout.Bytes(), nil
}
