// Package sb2gs wraps the sb2gs command-line decompiler, turning an .sb3
// project archive into a directory of goboscript sources.
package sb2gs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sb2gs-service/internal/scratch"
)

// DefaultBinary is the executable looked up on PATH when none is configured.
const DefaultBinary = "sb2gs"

// stderrTail bounds how many stderr lines are kept for the error message.
const stderrTail = 20

// maxLineBytes is the longest output line kept; longer output is drained unread.
const maxLineBytes = 1 << 20

// Stream identifies which output stream a line came from.
type Stream int

// Output streams.
const (
	Stdout Stream = iota
	Stderr
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(Stream, string)) error
}

// Option configures the Runner.
type Option func(*Runner)

// WithExecutor injects a custom executor, used by tests.
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// Config holds the decompiler invocation settings.
type Config struct {
	Binary  string
	Timeout time.Duration
}

// Runner invokes the decompiler synchronously. It implements scratch.Decompiler.
type Runner struct {
	binary  string
	timeout time.Duration
	exec    Executor
	logger  *zap.Logger
}

// New constructs a Runner.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Runner, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = DefaultBinary
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("decompiler timeout must be non-negative")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		binary:  binary,
		timeout: cfg.Timeout,
		exec:    commandExecutor{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Args builds the command-line arguments for req.
func Args(req scratch.DecompileRequest) []string {
	args := make([]string, 0, 4)
	if req.Overwrite {
		args = append(args, "--overwrite")
	}
	if req.Verify {
		args = append(args, "--verify")
	}
	return append(args, req.Input, req.Output)
}

// Decompile runs the decompiler on req.Input, writing into req.Output. A
// non-zero exit becomes a KindDecompile error carrying the tail of stderr.
func (r *Runner) Decompile(ctx context.Context, req scratch.DecompileRequest) error {
	if req.Input == "" || req.Output == "" {
		return scratch.NewError(scratch.KindInternal, "", errors.New("decompile input and output paths are required"))
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tail := newLineTail(stderrTail)
	args := Args(req)
	start := time.Now()
	r.logger.Debug("running decompiler", zap.String("binary", r.binary), zap.Strings("args", args))

	err := r.exec.Run(runCtx, r.binary, args, func(stream Stream, line string) {
		if stream == Stderr {
			tail.add(line)
			return
		}
		r.logger.Debug("decompiler output", zap.String("line", line))
	})
	if err == nil {
		r.logger.Debug("decompiler finished", zap.Duration("duration", time.Since(start)))
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("decompile canceled: %w", ctxErr)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return scratch.NewError(scratch.KindDecompile, fmt.Sprintf("timed out after %s", r.timeout), err)
	}
	r.logger.Warn("decompiler failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
	return scratch.NewError(scratch.KindDecompile, tail.String(), err)
}

// lineTail keeps the last n non-empty lines written to it.
type lineTail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) add(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(Stream, string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	scan := func(r io.Reader, stream Stream) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			if onLine != nil {
				onLine(stream, scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			if onLine != nil {
				onLine(stream, fmt.Sprintf("output unreadable, discarding the rest: %v", err))
			}
			// Keep the pipe drained so the process never blocks on a full buffer.
			_, _ = io.Copy(io.Discard, r)
		}
	}

	wg.Add(2)
	go scan(stdout, Stdout)
	go scan(stderr, Stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

// Available reports whether the configured binary can be resolved.
func (r *Runner) Available() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("decompiler binary %q: %w", r.binary, err)
	}
	return nil
}
