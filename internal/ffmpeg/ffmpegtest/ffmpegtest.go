// Package ffmpegtest renders small synthetic media files for tests that
// exercise the real ffmpeg binary.
package ffmpegtest

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// RequireFFmpeg skips the test unless ffmpeg and ffprobe are on PATH.
func RequireFFmpeg(t testing.TB) {
	t.Helper()
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found on PATH", tool)
		}
	}
}

// RequireEncoder skips the test unless ffmpeg was built with encoder.
func RequireEncoder(t testing.TB, encoder string) {
	t.Helper()
	RequireFFmpeg(t)

	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		t.Fatalf("failed to list ffmpeg encoders: %v", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == encoder {
			return
		}
	}
	t.Skipf("ffmpeg encoder %s not available", encoder)
}

// Video describes a clip rendered from the lavfi testsrc pattern.
type Video struct {
	Width  int
	Height int
	Rate   int
	Frames int

	// Codec is the ffmpeg encoder, mpeg4 by default.
	Codec string

	// GOP is the keyframe interval. Zero leaves the encoder default.
	GOP int

	// Name is the output file name, which picks the container.
	Name string
}

func (v Video) withDefaults() Video {
	if v.Width == 0 {
		v.Width = 64
	}
	if v.Height == 0 {
		v.Height = 48
	}
	if v.Rate == 0 {
		v.Rate = 10
	}
	if v.Frames == 0 {
		v.Frames = 10
	}
	if v.Codec == "" {
		v.Codec = "mpeg4"
	}
	if v.Name == "" {
		v.Name = "clip.mp4"
	}
	return v
}

// WriteVideo renders v into a temporary directory and returns its path.
func WriteVideo(t testing.TB, v Video) string {
	t.Helper()
	RequireFFmpeg(t)
	if v.Codec == "libx264" {
		RequireEncoder(t, "libx264")
	}
	v = v.withDefaults()

	path := filepath.Join(t.TempDir(), v.Name)
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc=size=%dx%d:rate=%d", v.Width, v.Height, v.Rate),
		"-frames:v", strconv.Itoa(v.Frames),
		"-pix_fmt", "yuv420p",
		"-c:v", v.Codec,
	}
	if v.GOP > 0 {
		args = append(args, "-g", strconv.Itoa(v.GOP), "-sc_threshold", "0")
	}
	if v.Codec == "libx264" {
		args = append(args, "-bf", "0")
	}
	run(t, append(args, path)...)
	return path
}

// WriteAudio renders one second of a sine tone with no video stream.
func WriteAudio(t testing.TB) string {
	t.Helper()
	RequireFFmpeg(t)

	path := filepath.Join(t.TempDir(), "tone.wav")
	run(t,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=1",
		"-c:a", "pcm_s16le",
		path,
	)
	return path
}

func run(t testing.TB, args ...string) {
	t.Helper()
	var stderr bytes.Buffer
	cmd := exec.Command("ffmpeg", args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("ffmpeg %s: %v: %s", strings.Join(args, " "), err, stderr.String())
	}
}
