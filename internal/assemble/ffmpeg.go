package assemble

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// FFmpegTranscoder shells out to a local ffmpeg binary, feeding WAV on stdin
// and reading MP3 from stdout.
type FFmpegTranscoder struct {
	binary  string
	bitrate string
	timeout time.Duration
}

// NewFFmpegTranscoder resolves the encoder binary on PATH. It returns an
// error when the binary is missing so callers can run without a transcoder
// instead of failing every generation.
func NewFFmpegTranscoder(binary string, timeout time.Duration) (*FFmpegTranscoder, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("transcode binary %q not found: %w", binary, err)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FFmpegTranscoder{binary: path, bitrate: "64k", timeout: timeout}, nil
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, wavData []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.binary,
		"-hide_banner", "-loglevel", "error",
		"-f", "wav", "-i", "pipe:0",
		"-codec:a", "libmp3lame", "-b:a", t.bitrate,
		"-f", "mp3", "pipe:1",
	)
	cmd.Stdin = bytes.NewReader(wavData)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("ffmpeg: %s", detail)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}
	return stdout.Bytes(), nil
}
