package ffmpeg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractArgs(t *testing.T) {
	args, err := extractArgs("/tmp/in.mp4", "/tmp/out.mp3", 120, 60, SpeechAudio)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-hide_banner", "-nostdin", "-y",
		"-ss", "120.000",
		"-i", "/tmp/in.mp4",
		"-t", "60.000",
		"-vn", "-ac", "1", "-ar", "16000", "-b:a", "64k", "-f", "mp3",
		"/tmp/out.mp3",
	}, args)
}

func TestExtractArgsWholeFile(t *testing.T) {
	args, err := extractArgs("in.mp4", "out.mp3", 0, 0, SpeechAudio)
	require.NoError(t, err)
	assert.NotContains(t, args, "-ss")
	assert.NotContains(t, args, "-t")
}

func TestExtractArgsRejectsOptionInjection(t *testing.T) {
	_, err := extractArgs("-filter_complex", "out.mp3", 0, 0, SpeechAudio)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = extractArgs("in.mp4", "out.mp3", -1, 0, SpeechAudio)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = extractArgs("in.mp4", "out.mp3", 0, 0, AudioOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseProbe(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "600.512000", "size": "10485760", "bit_rate": "139000", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"},
		"streams": [{"codec_type": "video"}, {"codec_type": "audio"}]
	}`)
	md, err := parseProbe(raw, "in.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 600.512, md.Duration, 1e-9)
	assert.Equal(t, int64(10485760), md.Size)
	assert.True(t, md.HasAudio)
	assert.True(t, md.HasVideo)
}

func TestParseProbeStreamDurationFallback(t *testing.T) {
	raw := []byte(`{"format": {}, "streams": [{"codec_type": "audio", "duration": "42.5"}]}`)
	md, err := parseProbe(raw, "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, 42.5, md.Duration)
}

func TestParseProbeNoDuration(t *testing.T) {
	_, err := parseProbe([]byte(`{"format": {}}`), "x")
	assert.ErrorIs(t, err, ErrNoDuration)

	_, err = parseProbe([]byte(`not json`), "x")
	var perr *ProcessingError
	assert.True(t, errors.As(err, &perr))
}

func TestRunMissingBinaryIsTypedError(t *testing.T) {
	f := New("/nonexistent/ffmpeg", "/nonexistent/ffprobe", time.Second)

	_, err := f.Probe(context.Background(), "in.mp4")
	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "probe", perr.Operation)
	assert.Equal(t, -1, perr.ExitCode)

	assert.ErrorIs(t, f.ValidateBinaries(), ErrFFmpegNotFound)
}
