package ffmpeg

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestTailBufferKeepsLastBytes(t *testing.T) {
	buf := &tailBuffer{max: 8}
	for _, chunk := range []string{"abc", "defgh", "ijklmnop", "qr"} {
		n, err := buf.Write([]byte(chunk))
		if err != nil || n != len(chunk) {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}
	if got, want := buf.String(), "klmnopqr"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestExitErrorMatchesFailed(t *testing.T) {
	inner := errors.New("exit status 1")
	err := error(&ExitError{Tool: "ffmpeg", Err: inner, Stderr: "Invalid data found"})

	if !errors.Is(err, ErrFailed) {
		t.Error("errors.Is(err, ErrFailed) = false, want true")
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is(err, inner) = false, want true")
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("Error() = %q, want stderr tail", err.Error())
	}
}

func TestOutputReportsStderr(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found on PATH")
	}

	_, err = output(context.Background(), sh, []string{"-c", "echo boom >&2; exit 3"})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("output() error = %v, want *ExitError", err)
	}
	if exitErr.Stderr != "boom" {
		t.Errorf("Stderr = %q, want %q", exitErr.Stderr, "boom")
	}
	if exitErr.Tool != "sh" {
		t.Errorf("Tool = %q, want %q", exitErr.Tool, "sh")
	}
}

func TestStartProcessMissingBinary(t *testing.T) {
	_, err := startProcess(context.Background(), "framegrab-no-such-tool", nil, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("startProcess() error = %v, want ErrNotFound", err)
	}
}
