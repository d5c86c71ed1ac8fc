package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"ndforge/internal/config"
	"ndforge/internal/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
)

// stderrTail bounds the stderr kept for error messages.
const stderrTail = 4096

// ExecToolchain runs the configured driver command:
//
//	<cmd> primary --kind K --material M --tape T [--companion C] [--temperatures "a b"] --output O
//	<cmd> coupled --material M --neutron N --thermal T [--temperatures "a b"] --output O
//
// Its stdout and stderr go to the job log.
type ExecToolchain struct {
	cfg config.ToolchainConfig
}

// NewExecToolchain creates a toolchain from settings.
func NewExecToolchain(cfg config.ToolchainConfig) *ExecToolchain {
	logging.BuildDebug("Creating ExecToolchain: command=%s, timeout=%s", cfg.Command, cfg.Timeout)
	return &ExecToolchain{cfg: cfg}
}

// ProcessPrimary runs the primary subcommand.
func (e *ExecToolchain) ProcessPrimary(ctx context.Context, job PrimaryJob) error {
	return e.run(ctx, PrimaryArgs(job), job.Output, job.Log)
}

// ProcessCoupled runs the coupled subcommand.
func (e *ExecToolchain) ProcessCoupled(ctx context.Context, job CoupledJob) error {
	return e.run(ctx, CoupledArgs(job), job.Output, job.Log)
}

// PrimaryArgs returns the driver arguments of a primary job.
func PrimaryArgs(job PrimaryJob) []string {
	args := []string{"primary",
		"--kind", string(job.Kind),
		"--material", job.Material,
		"--tape", job.Tape.Path,
	}
	if job.Companion != nil {
		args = append(args, "--companion", job.Companion.Path)
	}
	if len(job.Temperatures) > 0 {
		args = append(args, "--temperatures", joinInts(job.Temperatures))
	}
	return append(args, "--output", job.Output)
}

// CoupledArgs returns the driver arguments of a coupled job.
func CoupledArgs(job CoupledJob) []string {
	args := []string{"coupled",
		"--material", job.Material,
		"--companion", job.Companion,
		"--neutron", job.Neutron.Path,
		"--thermal", job.Thermal.Path,
	}
	if len(job.Temperatures) > 0 {
		args = append(args, "--temperatures", joinInts(job.Temperatures))
	}
	return append(args, "--output", job.Output)
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

func (e *ExecToolchain) run(ctx context.Context, args []string, output string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	args = append(append([]string(nil), e.cfg.Args...), args...)

	if timeout := e.cfg.GetTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	cmd.Env = e.buildEnvironment()
	cmd.WaitDelay = time.Second

	stdout := &zapio.Writer{Log: log, Level: zap.InfoLevel}
	stderr := &zapio.Writer{Log: log, Level: zap.WarnLevel}
	defer stdout.Close()
	defer stderr.Close()
	tail := &tailWriter{max: stderrTail}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, tail)

	log.Info("toolchain started", zap.String("command", e.cfg.Command), zap.Strings("args", args))
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			log.Warn("toolchain killed", zap.Error(ctx.Err()), zap.Duration("elapsed", elapsed))
			return fmt.Errorf("toolchain %s: %w", args[len(e.cfg.Args)], ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Error("toolchain failed", zap.Int("exit_code", exitErr.ExitCode()), zap.Duration("elapsed", elapsed))
			return fmt.Errorf("toolchain exited with code %d: %s", exitErr.ExitCode(), tail.String())
		}
		log.Error("toolchain could not start", zap.Error(err))
		return fmt.Errorf("failed to run toolchain %s: %w", e.cfg.Command, err)
	}

	if _, err := os.Stat(output); err != nil {
		log.Error("toolchain produced no artifact", zap.String("output", output))
		return fmt.Errorf("toolchain produced no artifact at %s: %w", output, err)
	}
	log.Info("toolchain completed", zap.Duration("elapsed", elapsed), zap.String("output", output))
	return nil
}

// buildEnvironment creates the environment variable list.
func (e *ExecToolchain) buildEnvironment() []string {
	env := make([]string, 0, len(e.cfg.AllowedEnvVars))
	for _, key := range e.cfg.AllowedEnvVars {
		if val := os.Getenv(key); val != "" {
			env = append(env, fmt.Sprintf("%s=%s", key, val))
		}
	}
	return env
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	buf bytes.Buffer
	max int
}

func (t *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailWriter) String() string {
	return strings.TrimSpace(t.buf.String())
}
