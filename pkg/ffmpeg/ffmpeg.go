// Package ffmpeg runs ffmpeg and ffprobe as subprocesses. Arguments are passed as argv, never through a shell.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// maxStderr bounds the stderr tail kept on errors.
const maxStderr = 2048

// FFmpeg wraps ffmpeg and ffprobe functionality
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// New creates a new FFmpeg instance
func New(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
	}
}

// ValidateBinaries checks if ffmpeg and ffprobe are available
func (f *FFmpeg) ValidateBinaries() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFmpegNotFound, f.ffmpegPath)
	}
	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFprobeNotFound, f.ffprobePath)
	}
	return nil
}

// AudioOptions is the target encoding for extracted speech audio.
type AudioOptions struct {
	SampleRate int    // Hz
	Channels   int
	Bitrate    string // e.g. "64k"
}

// SpeechAudio is mono 16 kHz at a fixed bitrate, enough for speech with a predictable size.
var SpeechAudio = AudioOptions{SampleRate: 16000, Channels: 1, Bitrate: "64k"}

// ExtractAudio writes the audio of input in [start, start+duration) to output as mp3.
// duration <= 0 extracts to the end.
func (f *FFmpeg) ExtractAudio(ctx context.Context, input, output string, start, duration float64, opts AudioOptions) error {
	args, err := extractArgs(input, output, start, duration, opts)
	if err != nil {
		return err
	}
	_, err = f.run(ctx, f.ffmpegPath, "extract_audio", input, args)
	return err
}

func extractArgs(input, output string, start, duration float64, opts AudioOptions) ([]string, error) {
	if input == "" || output == "" || strings.HasPrefix(input, "-") || strings.HasPrefix(output, "-") {
		return nil, fmt.Errorf("%w: input %q output %q", ErrInvalidArgument, input, output)
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: negative start %f", ErrInvalidArgument, start)
	}
	if opts.SampleRate <= 0 || opts.Channels <= 0 || opts.Bitrate == "" {
		return nil, fmt.Errorf("%w: incomplete audio options", ErrInvalidArgument)
	}
	args := []string{"-hide_banner", "-nostdin", "-y"}
	if start > 0 {
		args = append(args, "-ss", formatSeconds(start))
	}
	args = append(args, "-i", input)
	if duration > 0 {
		args = append(args, "-t", formatSeconds(duration))
	}
	args = append(args,
		"-vn",
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-b:a", opts.Bitrate,
		"-f", "mp3",
		output,
	)
	return args, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// run executes a binary with the instance timeout and returns stdout.
func (f *FFmpeg) run(ctx context.Context, bin, op, file string, args []string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrProcessingTimeout, err)
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, NewProcessingError(op, file, err, tail(stderr.String()), code)
	}
	return stdout.Bytes(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxStderr {
		return s
	}
	return s[len(s)-maxStderr:]
}
