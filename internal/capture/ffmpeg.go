package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FFmpegDevice records from a V4L2 camera and an ALSA microphone via an
// ffmpeg child process. This is the host-integration layer: the same
// pattern the rest of the client uses for location helpers.
type FFmpegDevice struct {
	FFmpeg      string // binary name or path
	VideoDevice string // e.g. /dev/video0
	AudioDevice string // e.g. "default"
	SpoolDir    string // scratch directory for in-flight recordings
}

// Acquire probes the camera device and hands back a stream. Probing up
// front lets denial and missing hardware surface before the operator is
// told recording is about to start.
func (d *FFmpegDevice) Acquire(_ context.Context) (Stream, error) {
	if _, err := exec.LookPath(d.FFmpeg); err != nil {
		return nil, &Error{Cause: CauseNotFound, cause: fmt.Errorf("ffmpeg not installed: %w", err)}
	}
	f, err := os.OpenFile(d.VideoDevice, os.O_RDONLY, 0)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, &Error{Cause: CausePermission, cause: err}
		case errors.Is(err, fs.ErrNotExist):
			return nil, &Error{Cause: CauseNotFound, cause: err}
		}
		return nil, &Error{Cause: CauseOther, cause: err}
	}
	_ = f.Close()
	return &ffmpegStream{device: d}, nil
}

func (d *FFmpegDevice) Describe() string {
	return fmt.Sprintf("ffmpeg (%s + alsa:%s)", d.VideoDevice, d.AudioDevice)
}

type ffmpegStream struct {
	device *FFmpegDevice
	closed bool
}

func (s *ffmpegStream) MIME() string { return "video/webm" }

// Record runs one bounded ffmpeg capture with the verification code
// burned into every frame. Early stop is an interrupt, not a kill, so
// ffmpeg finalizes the container and the clip stays playable.
func (s *ffmpegStream) Record(ctx context.Context, code string, d time.Duration) ([]byte, error) {
	if s.closed {
		return nil, &Error{Cause: CauseOther, cause: errors.New("stream is closed")}
	}
	dev := s.device
	outPath := filepath.Join(dev.SpoolDir, fmt.Sprintf("rec-%s.webm", uuid.New()))
	defer os.Remove(outPath)

	overlay := fmt.Sprintf(
		"drawtext=text='CODE %s':fontsize=64:fontcolor=white:box=1:boxcolor=black@0.6:x=(w-text_w)/2:y=h-120",
		sanitizeCode(code),
	)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2", "-i", dev.VideoDevice,
		"-f", "alsa", "-i", dev.AudioDevice,
		"-t", fmt.Sprintf("%.1f", d.Seconds()),
		"-vf", overlay,
		"-c:v", "libvpx", "-c:a", "libopus",
		"-y", outPath,
	}

	cmd := exec.Command(dev.FFmpeg, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, &Error{Cause: CauseOther, cause: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var stoppedEarly bool
	select {
	case err := <-done:
		if err != nil {
			return nil, &Error{Cause: CauseOther, cause: fmt.Errorf("%w: %s", err, firstLine(stderr.String()))}
		}
	case <-ctx.Done():
		stoppedEarly = true
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
			<-done
		}
	}

	data, err := os.ReadFile(outPath)
	if err != nil || len(data) == 0 {
		if stoppedEarly {
			return nil, &Error{Cause: CauseOther, cause: errors.New("recording stopped before any frames were captured")}
		}
		return nil, &Error{Cause: CauseOther, cause: fmt.Errorf("no recording produced: %v", err)}
	}
	return data, nil
}

func (s *ffmpegStream) Close() error {
	s.closed = true
	return nil
}

// sanitizeCode strips characters that would break the drawtext filter
// expression. Codes are short numerics; anything else is dropped.
func sanitizeCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s
}
