package ffmpeg

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrFFmpegNotFound    = errors.New("ffmpeg binary not found")
	ErrFFprobeNotFound   = errors.New("ffprobe binary not found")
	ErrNoDuration        = errors.New("media has no measurable duration")
	ErrProcessingTimeout = errors.New("media processing timeout")
	ErrInvalidArgument   = errors.New("invalid ffmpeg argument")
)

// ProcessingError is a failed ffmpeg/ffprobe invocation.
type ProcessingError struct {
	Operation string // e.g. "probe", "extract_audio"
	File      string
	Err       error
	Stderr    string
	ExitCode  int // -1 when the process did not exit normally
}

func (e *ProcessingError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("ffmpeg %s failed for %s (exit %d): %v (stderr: %s)", e.Operation, e.File, e.ExitCode, e.Err, e.Stderr)
	}
	return fmt.Sprintf("ffmpeg %s failed for %s (exit %d): %v", e.Operation, e.File, e.ExitCode, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError creates a new ProcessingError
func NewProcessingError(operation, file string, err error, stderr string, exitCode int) *ProcessingError {
	return &ProcessingError{
		Operation: operation,
		File:      file,
		Err:       err,
		Stderr:    stderr,
		ExitCode:  exitCode,
	}
}
