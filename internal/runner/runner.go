// Package runner implements the Command Runner (component A): spawning
// child processes with enforced timeouts, a bounded retry policy for
// idempotent read-style commands, and output buffering, in the style of
// the teacher's App.RunAdbCommand / newAdbCommand (device.go, app.go).
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/automobile-core/server/internal/coreerrors"
)

// killGrace is the pause between SIGTERM and SIGKILL on cancellation,
// shared by every subprocess kind per §4.1 step 4 and §5.
const killGrace = 2 * time.Second

// retryableCommands lists the idempotent, read-style command prefixes
// that are safe to retry unconditionally on non-zero exit, per §4.1 step
// 5. Write-style commands are never retried here.
var retryableCommands = []string{
	"devices",
	"dumpsys",
	"getprop",
	"screencap",
	"uiautomator dump",
	"list-targets",
	"describe-ui",
	"/status",
}

// slowLogPrefixes are commands logged at INFO even when they complete
// under the 10ms threshold, because they are known to be heavy (§4.1).
var slowLogPrefixes = []string{
	"screencap",
	"uiautomator",
	"getevent",
	"describe-ui",
}

// Result is the outcome of a completed command.
type Result struct {
	Stdout   string
	Stderr   string
	Attempts int
}

// Runner spawns subprocesses with timeout, retry and logging.
type Runner struct {
	log      zerolog.Logger
	maxBuf   int
	attempts int
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger attaches a structured logger used for the §4.1 slow-command
// INFO logging rule.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithMaxAttempts overrides the retry cap (default 3, per §4.1/§8
// invariant 2).
func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// New constructs a Runner with sane defaults.
func New(opts ...Option) *Runner {
	r := &Runner{log: zerolog.Nop(), maxBuf: 10 << 20, attempts: 3}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Command describes a single invocation.
type Command struct {
	// Path is the resolved absolute path to the tool binary (from
	// Tool-Location Discovery).
	Path string
	// Args are the command-line arguments; Retryable commands are
	// identified by matching Args against retryableCommands.
	Args []string
	// Timeout is the deadline for the whole invocation; zero means no
	// deadline (Command Runner default per §5).
	Timeout time.Duration
	// MaxBuffer caps combined stdout+stderr capture; zero uses the
	// Runner's default (10 MiB).
	MaxBuffer int
	// ForceRetry overrides the idempotent-command heuristic, for callers
	// that already know a command is safe to retry.
	ForceRetry bool
}

func isRetryable(args []string, force bool) bool {
	if force {
		return true
	}
	joined := strings.Join(args, " ")
	for _, p := range retryableCommands {
		if strings.Contains(joined, p) {
			return true
		}
	}
	return false
}

func isSlow(args []string) bool {
	joined := strings.Join(args, " ")
	for _, p := range slowLogPrefixes {
		if strings.Contains(joined, p) {
			return true
		}
	}
	return false
}

// Execute runs the command, retrying up to the configured attempt cap on
// non-zero exit when the command is idempotent (§4.1 steps 1-5).
func (r *Runner) Execute(ctx context.Context, cmd Command) (Result, error) {
	attempts := r.attempts
	if attempts <= 0 {
		attempts = 3
	}
	retryable := isRetryable(cmd.Args, cmd.ForceRetry)

	var lastErr error
	var res Result
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		res, lastErr = r.once(ctx, cmd)
		res.Attempts = attempt
		elapsed := time.Since(start)

		if lastErr == nil {
			r.logCompletion(cmd, elapsed, attempt)
			return res, nil
		}

		var timeoutErr *coreerrors.TimeoutErr
		if errors.As(lastErr, &timeoutErr) {
			// Timeouts are surfaced to the caller, never retried silently (§7).
			return res, lastErr
		}

		var notFound *coreerrors.NotFoundErr
		if errors.As(lastErr, &notFound) {
			return res, lastErr
		}

		if !retryable || attempt == attempts {
			break
		}
	}
	return res, lastErr
}

func (r *Runner) once(ctx context.Context, cmd Command) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	// Not bound to runCtx: expiry is handled below by terminate, which
	// gives the process killGrace to exit after SIGTERM.
	c := exec.Command(cmd.Path, cmd.Args...)
	c.Stdin = nil

	var stdout, stderr bytes.Buffer
	maxBuf := cmd.MaxBuffer
	if maxBuf <= 0 {
		maxBuf = r.maxBuf
	}
	c.Stdout = &limitedWriter{buf: &stdout, max: maxBuf}
	c.Stderr = &limitedWriter{buf: &stderr, max: maxBuf}

	if err := c.Start(); err != nil {
		return Result{}, &coreerrors.NotFoundErr{Tool: cmd.Path}
	}

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	select {
	case err := <-done:
		return r.classify(cmd, stdout.String(), stderr.String(), err)
	case <-runCtx.Done():
		r.terminate(c)
		<-done
		return Result{Stdout: stdout.String(), Stderr: stderr.String()},
			&coreerrors.TimeoutErr{Op: strings.Join(append([]string{cmd.Path}, cmd.Args...), " "), Timeout: cmd.Timeout.String()}
	}
}

// terminate implements the SIGTERM-then-grace-then-SIGKILL sequence
// shared by every cancellable subprocess in §4.1 step 4 and §5.
func (r *Runner) terminate(c *exec.Cmd) {
	if c.Process == nil {
		return
	}
	_ = c.Process.Signal(syscall.SIGTERM)
	timer := time.NewTimer(killGrace)
	defer timer.Stop()
	exited := make(chan struct{})
	go func() {
		_, _ = c.Process.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-timer.C:
		_ = c.Process.Kill()
	}
}

func (r *Runner) classify(cmd Command, stdout, stderr string, err error) (Result, error) {
	res := Result{Stdout: stdout, Stderr: stderr}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &coreerrors.NonZeroExit{
			Command: strings.Join(append([]string{cmd.Path}, cmd.Args...), " "),
			Code:    exitErr.ExitCode(),
			Stderr:  stderr,
		}
	}
	return res, err
}

func (r *Runner) logCompletion(cmd Command, elapsed time.Duration, attempt int) {
	if elapsed <= 10*time.Millisecond && !isSlow(cmd.Args) {
		return
	}
	r.log.Info().
		Str("cmd", strings.Join(append([]string{cmd.Path}, cmd.Args...), " ")).
		Dur("elapsed", elapsed).
		Int("attempt", attempt).
		Msg("command completed")
}

// Spawn launches a detached long-running process (e.g. `emulator -avd`,
// the WebDriverAgent xcodebuild host) and returns a handle the caller can
// use to observe or kill it later.
func (r *Runner) Spawn(ctx context.Context, path string, args ...string) (*Handle, error) {
	c := exec.CommandContext(ctx, path, args...)
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, &coreerrors.NotFoundErr{Tool: path}
	}
	return &Handle{cmd: c, Stdout: stdout, Stderr: stderr, runner: r}, nil
}

// Handle is a running detached subprocess.
type Handle struct {
	cmd    *exec.Cmd
	Stdout interface{ Read([]byte) (int, error) }
	Stderr interface{ Read([]byte) (int, error) }
	runner *Runner

	mu   sync.Mutex
	done bool
}

// Wait blocks until the process exits.
func (h *Handle) Wait() error {
	return h.cmd.Wait()
}

// Kill terminates the process using the shared SIGTERM/grace/SIGKILL
// sequence.
func (h *Handle) Kill() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.done = true
	h.runner.terminate(h.cmd)
}

// limitedWriter caps the number of bytes written into buf, silently
// dropping the overflow the way a bounded maxBuffer capture would.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.buf.Len() >= w.max {
		return len(p), nil
	}
	remaining := w.max - w.buf.Len()
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}
