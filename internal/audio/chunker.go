// Package audio splits long recordings into audio chunks that fit the transcription size limit.
package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/aura-webinar/meeting-pipeline/internal/metrics"
	"github.com/aura-webinar/meeting-pipeline/pkg/ffmpeg"
)

const (
	// DefaultCeiling is the transcription service's upload limit.
	DefaultCeiling int64 = 25 * 1024 * 1024
	// SafetyFactor leaves headroom for encoding variance between the sample and the chunks.
	SafetyFactor = 0.8
	// SampleSeconds bounds the bitrate probe sample.
	SampleSeconds = 60.0
)

// Tool is the transcoding subset the chunker needs.
type Tool interface {
	Duration(ctx context.Context, path string) (float64, error)
	ExtractAudio(ctx context.Context, input, output string, start, duration float64, opts ffmpeg.AudioOptions) error
}

// Chunk is a time slice of the recording's audio on local disk.
type Chunk struct {
	Index int
	Path  string
	// Start is where this chunk's own content begins on the original timeline.
	Start    float64
	Duration float64
	// OverlapStart is where extraction began when overlap is used (Start minus overlap), else Start.
	OverlapStart float64
	Size         int64
	// Whole is set when the chunk is the original file itself; it is never deleted by Remove.
	Whole bool
}

// Offset is the original-timeline position of the first second of audio in the chunk file.
func (c Chunk) Offset() float64 { return c.OverlapStart }

// Chunker measures and splits media files.
type Chunker struct {
	tool    Tool
	ceiling int64
	overlap float64
	opts    ffmpeg.AudioOptions
	logger  *zap.Logger
}

// NewChunker creates a chunker. overlap is in seconds; ceiling <= 0 uses DefaultCeiling.
func NewChunker(tool Tool, ceiling int64, overlap float64, logger *zap.Logger) *Chunker {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if overlap < 0 {
		overlap = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{tool: tool, ceiling: ceiling, overlap: overlap, opts: ffmpeg.SpeechAudio, logger: logger}
}

// Ceiling returns the configured size ceiling in bytes.
func (c *Chunker) Ceiling() int64 { return c.ceiling }

// ChunkCount is the minimum number of equal chunks so that each stays within ceiling*SafetyFactor.
func ChunkCount(totalBytes, ceiling int64) int {
	if totalBytes <= 0 || ceiling <= 0 {
		return 1
	}
	limit := float64(ceiling) * SafetyFactor
	n := int(math.Ceil(float64(totalBytes) / limit))
	if n < 1 {
		n = 1
	}
	return n
}

// Plan lays out count uniform chunks over duration seconds. Every chunk after the first also
// covers the overlap seconds before its start.
func Plan(duration float64, count int, overlap float64) []Chunk {
	if count < 1 {
		count = 1
	}
	size := duration / float64(count)
	chunks := make([]Chunk, count)
	for i := range chunks {
		start := float64(i) * size
		from := start
		if i > 0 && overlap > 0 {
			from = math.Max(0, start-overlap)
		}
		chunks[i] = Chunk{Index: i, Start: start, Duration: size, OverlapStart: from}
	}
	return chunks
}

// Split returns the chunks to transcribe for path. A file within the ceiling is returned as a
// single Whole chunk and nothing is written. Otherwise chunk files are created in dir; on error
// every file created so far is removed.
func (c *Chunker) Split(ctx context.Context, path, dir string) ([]Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}
	if info.Size() <= c.ceiling {
		return []Chunk{{Index: 0, Path: path, Size: info.Size(), Whole: true}}, nil
	}

	duration, err := c.tool.Duration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}
	bps, err := c.bytesPerSecond(ctx, path, dir, duration)
	if err != nil {
		return nil, err
	}
	total := int64(math.Ceil(bps * duration))
	count := ChunkCount(total, c.ceiling)
	plan := Plan(duration, count, c.overlap)

	c.logger.Info("splitting audio",
		zap.String("path", path),
		zap.Float64("duration_sec", duration),
		zap.Float64("bytes_per_sec", bps),
		zap.Int64("estimated_bytes", total),
		zap.Int("chunks", count),
	)

	base := filepath.Base(path)
	out := make([]Chunk, 0, len(plan))
	for _, ch := range plan {
		ch.Path = filepath.Join(dir, fmt.Sprintf("%s.chunk%03d.mp3", base, ch.Index))
		length := ch.Duration + (ch.Start - ch.OverlapStart)
		if err := c.tool.ExtractAudio(ctx, path, ch.Path, ch.OverlapStart, length, c.opts); err != nil {
			_ = os.Remove(ch.Path)
			Remove(out)
			return nil, fmt.Errorf("extract chunk %d: %w", ch.Index, err)
		}
		st, err := os.Stat(ch.Path)
		if err != nil {
			Remove(append(out, ch))
			return nil, fmt.Errorf("stat chunk %d: %w", ch.Index, err)
		}
		ch.Size = st.Size()
		if ch.Size > c.ceiling {
			// Not re-split: reported so the estimate can be tuned.
			metrics.Degraded.WithLabelValues(metrics.ReasonOversizeChunk).Inc()
			c.logger.Warn("chunk exceeds size ceiling",
				zap.Int("index", ch.Index), zap.Int64("size", ch.Size), zap.Int64("ceiling", c.ceiling))
		}
		out = append(out, ch)
	}
	return out, nil
}

// bytesPerSecond encodes a short sample at the target encoding and measures its size.
func (c *Chunker) bytesPerSecond(ctx context.Context, path, dir string, duration float64) (float64, error) {
	sampleLen := math.Min(SampleSeconds, duration)
	if sampleLen <= 0 {
		return 0, fmt.Errorf("media has no duration: %s", path)
	}
	sample := filepath.Join(dir, filepath.Base(path)+".sample.mp3")
	defer os.Remove(sample)

	if err := c.tool.ExtractAudio(ctx, path, sample, 0, sampleLen, c.opts); err != nil {
		return 0, fmt.Errorf("extract sample: %w", err)
	}
	st, err := os.Stat(sample)
	if err != nil {
		return 0, fmt.Errorf("stat sample: %w", err)
	}
	if st.Size() == 0 {
		return 0, fmt.Errorf("empty audio sample for %s", path)
	}
	return float64(st.Size()) / sampleLen, nil
}

// Remove deletes chunk files created by Split. The Whole chunk (the source file) is left alone.
func Remove(chunks []Chunk) {
	for _, ch := range chunks {
		if ch.Whole || ch.Path == "" {
			continue
		}
		_ = os.Remove(ch.Path)
	}
}
