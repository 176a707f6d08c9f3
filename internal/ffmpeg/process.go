package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ErrFailed matches every error produced by a failed ffmpeg or ffprobe run.
var ErrFailed = errors.New("ffmpeg: process failed")

// ErrNotFound is returned when a tool binary cannot be located.
var ErrNotFound = errors.New("ffmpeg: executable not found")

// ExitError reports a tool that exited unsuccessfully.
type ExitError struct {
	Tool   string
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() []error {
	return []error{ErrFailed, e.Err}
}

var _ error = (*ExitError)(nil)

const stderrTailSize = 4096

// tailBuffer keeps only the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// process is a started tool whose stdout is read by the caller.
type process struct {
	ctx    context.Context
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	waitOnce sync.Once
	waitErr  error
}

func startProcess(ctx context.Context, path string, args []string, stdin io.Reader) (*process, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = stdin
	stderr := &tailBuffer{max: stderrTailSize}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe stdout of %s: %w", path, err)
	}

	slog.Debug("starting process", "tool", path, "args", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}

	return &process{ctx: ctx, cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// wait reaps the process once stdout has been drained.
// Cancellation of the start context takes precedence over the exit status.
func (p *process) wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		if err == nil {
			return
		}
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			p.waitErr = ctxErr
			return
		}
		p.waitErr = &ExitError{
			Tool:   filepath.Base(p.cmd.Path),
			Err:    err,
			Stderr: p.stderr.String(),
		}
	})
	return p.waitErr
}

// kill stops the process if it is still running and reaps it.
func (p *process) kill() {
	if p.cmd.Process != nil {
		// Already-exited processes return an error here; nothing to do.
		_ = p.cmd.Process.Kill()
	}
	_ = p.wait()
}

// output runs a tool to completion and returns its stdout.
func output(ctx context.Context, path string, args []string) ([]byte, error) {
	p, err := startProcess(ctx, path, args, nil)
	if err != nil {
		return nil, err
	}
	data, readErr := io.ReadAll(p.stdout)
	if err := p.wait(); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read output of %s: %w", path, readErr)
	}
	return data, nil
}
