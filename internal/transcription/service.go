// Package transcription converts recordings to text: chunked Whisper calls with context carry,
// boundary stitching and hallucination scrubbing.
package transcription

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-webinar/meeting-pipeline/internal/audio"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

// Splitter produces the chunks to transcribe for a media file.
type Splitter interface {
	Split(ctx context.Context, path, dir string) ([]audio.Chunk, error)
}

// Result is a full transcript.
type Result struct {
	Text     string
	Segments []models.Segment
	Chunks   int
}

// Service orchestrates chunking and transcription of one recording.
type Service struct {
	splitter Splitter
	workDir  string
	logger   *zap.Logger
}

// NewService creates a transcription service writing chunk files under workDir. An empty
// workDir puts chunks next to the media file.
func NewService(splitter Splitter, workDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{splitter: splitter, workDir: workDir, logger: logger}
}

// Transcribe splits path as needed, transcribes chunks in order carrying context forward, stitches
// and scrubs the result. Chunk files are removed before returning, on every path.
func (s *Service) Transcribe(ctx context.Context, tr Transcriber, path, language string) (*Result, error) {
	dir := s.workDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	chunks, err := s.splitter.Split(ctx, path, dir)
	if err != nil {
		return nil, fmt.Errorf("split audio: %w", err)
	}
	defer audio.Remove(chunks)

	base := DefaultPrompt(language)
	results := make([]ChunkResult, 0, len(chunks))
	carried := ""
	for _, ch := range chunks {
		res, err := tr.Transcribe(ctx, ch.Path, Request{Prompt: BuildPrompt(base, carried), Language: language})
		if err != nil {
			return nil, fmt.Errorf("transcribe chunk %d/%d: %w", ch.Index+1, len(chunks), err)
		}
		res.Offset = ch.Offset()
		results = append(results, *res)
		carried = TailContext(res.Text, ContextRunes)
		s.logger.Debug("chunk transcribed",
			zap.Int("index", ch.Index), zap.Float64("offset", res.Offset), zap.Int("chars", len([]rune(res.Text))))
	}

	scrubber := Scrubber{Prompts: []string{base}}
	text := scrubber.Scrub(Join(Stitch(results)))
	segments := RebaseSegments(results)
	for i := range segments {
		segments[i].Text = scrubber.Scrub(segments[i].Text)
	}
	return &Result{Text: strings.TrimSpace(text), Segments: segments, Chunks: len(chunks)}, nil
}
