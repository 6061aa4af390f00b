package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ffprobeOutput represents the JSON structure returned by ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		Bitrate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// Metadata is the subset of ffprobe output the pipeline needs.
type Metadata struct {
	Duration   float64 // seconds
	Size       int64
	Bitrate    int
	FormatName string
	HasAudio   bool
	HasVideo   bool
}

// Probe reads container metadata with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*Metadata, error) {
	args := []string{
		"-v", "quiet",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	}
	out, err := f.run(ctx, f.ffprobePath, "probe", path, args)
	if err != nil {
		return nil, err
	}
	return parseProbe(out, path)
}

// Duration returns the media duration in seconds.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	md, err := f.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return md.Duration, nil
}

func parseProbe(raw []byte, path string) (*Metadata, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, NewProcessingError("probe_parse", path, err, "", 0)
	}
	md := &Metadata{FormatName: output.Format.FormatName}
	if d, err := strconv.ParseFloat(output.Format.Duration, 64); err == nil {
		md.Duration = d
	}
	if s, err := strconv.ParseInt(output.Format.Size, 10, 64); err == nil {
		md.Size = s
	}
	if b, err := strconv.Atoi(output.Format.Bitrate); err == nil {
		md.Bitrate = b
	}
	for _, s := range output.Streams {
		switch s.CodecType {
		case "audio":
			md.HasAudio = true
		case "video":
			md.HasVideo = true
		}
		// Some containers only report duration on the stream.
		if md.Duration == 0 {
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				md.Duration = d
			}
		}
	}
	if md.Duration <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDuration, path)
	}
	return md, nil
}
