package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Transcoder turns a media URL into an Ogg Opus stream starting at offset.
type Transcoder interface {
	Start(ctx context.Context, url string, offset time.Duration) (io.ReadCloser, error)
}

// FFmpeg transcodes with an ffmpeg binary. The zero value uses "ffmpeg" from
// PATH at 96 kbps.
type FFmpeg struct {
	Binary  string
	Bitrate string
	Logger  *zap.Logger
}

func (f FFmpeg) args(url string, offset time.Duration) []string {
	bitrate := f.Bitrate
	if bitrate == "" {
		bitrate = "96k"
	}

	args := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
	}
	if offset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64))
	}
	return append(args,
		"-i", url,
		"-vn",
		"-c:a", "libopus",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", bitrate,
		"-vbr", "on",
		"-frame_duration", "20",
		"-application", "audio",
		"-f", "ogg",
		"-loglevel", "warning",
		"pipe:1",
	)
}

func (f FFmpeg) Start(ctx context.Context, url string, offset time.Duration) (io.ReadCloser, error) {
	binary := f.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, binary, f.args(url, offset)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug("ffmpeg", zap.String("line", scanner.Text()))
		}
	}()

	return &ffmpegStream{ReadCloser: stdout, cmd: cmd}, nil
}

type ffmpegStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *ffmpegStream) Close() error {
	err := s.ReadCloser.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return err
}
