// Package summary produces meeting summaries from transcripts with a chat model.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	// LongThreshold is the transcript length, in characters, above which map-reduce is used.
	LongThreshold = 30000
	// PartSize is the target size of each part in map-reduce mode.
	PartSize = 12000
)

// ErrEmptyTranscript is returned when there is nothing to summarize.
var ErrEmptyTranscript = errors.New("empty transcript")

// Result is a finished summary.
type Result struct {
	Text string
	// JSON is the raw structured object; nil unless the style is structured.
	JSON        json.RawMessage
	ActionItems []string
	Parts       int
}

// Service summarizes transcripts.
type Service struct {
	threshold int
	partSize  int
	logger    *zap.Logger
}

// NewService creates a summarizer with the default thresholds.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{threshold: LongThreshold, partSize: PartSize, logger: logger}
}

// Summarize returns a summary of transcript in the requested style and language.
// Transcripts longer than the threshold are summarized part by part first.
func (s *Service) Summarize(ctx context.Context, c Completer, transcript string, style Style, language string) (*Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}
	p := promptsFor(language)

	input := transcript
	parts := 1
	if len([]rune(transcript)) > s.threshold {
		condensed, n, err := s.condense(ctx, c, p, transcript)
		if err != nil {
			return nil, err
		}
		input, parts = condensed, n
	}

	reply, err := c.Complete(ctx, p.system, p.style(style, input), style == StyleStructured)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	res := &Result{Text: strings.TrimSpace(reply), Parts: parts}
	if style != StyleStructured {
		return res, nil
	}

	st, err := ParseStructured(reply)
	if err != nil {
		// Keep the reply as prose rather than failing the recording.
		s.logger.Warn("structured summary not parseable, storing as text", zap.Error(err))
		return res, nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	res.Text = st.Render()
	res.JSON = raw
	res.ActionItems = st.ActionItemLines()
	return res, nil
}

// condense summarizes each part and concatenates the partial summaries under [Part N] labels.
func (s *Service) condense(ctx context.Context, c Completer, p promptSet, transcript string) (string, int, error) {
	chunks := SplitText(transcript, s.partSize)
	var b strings.Builder
	for i, chunk := range chunks {
		reply, err := c.Complete(ctx, p.system, fmt.Sprintf(p.partial, chunk), false)
		if err != nil {
			return "", 0, fmt.Errorf("summarize part %d/%d: %w", i+1, len(chunks), err)
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, p.partLabel, i+1)
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(reply))
	}
	s.logger.Info("long transcript condensed", zap.Int("parts", len(chunks)), zap.Int("chars", len([]rune(transcript))))
	return b.String(), len(chunks), nil
}

// SplitText cuts text into pieces of at most size runes, preferring to end each piece after a
// sentence terminator in its last fifth.
func SplitText(text string, size int) []string {
	r := []rune(text)
	if size <= 0 || len(r) <= size {
		return []string{text}
	}
	var out []string
	for len(r) > 0 {
		if len(r) <= size {
			out = append(out, string(r))
			break
		}
		cut := size
		for i := size - 1; i >= size*4/5; i-- {
			if strings.ContainsRune("。．！？.!?\n", r[i]) {
				cut = i + 1
				break
			}
		}
		out = append(out, string(r[:cut]))
		r = r[cut:]
	}
	return out
}
