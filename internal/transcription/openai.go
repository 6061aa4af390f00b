package transcription

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/pkg/retry"
)

// Request carries per-call transcription options.
type Request struct {
	Prompt   string
	Language string
}

// Transcriber turns one audio file into text with segment timings.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, req Request) (*ChunkResult, error)
}

// OpenAI transcribes with the Whisper API.
type OpenAI struct {
	client *openai.Client
	model  string
	policy retry.Policy
}

// NewOpenAI wraps an API client. model defaults to whisper-1.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAI{client: client, model: model, policy: retry.Default}
}

// Transcribe sends the file as verbose_json so segment timestamps come back.
func (o *OpenAI) Transcribe(ctx context.Context, path string, req Request) (*ChunkResult, error) {
	var resp openai.AudioResponse
	err := retry.Do(ctx, o.policy, func() error {
		var err error
		resp, err = o.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    o.model,
			FilePath: path,
			Prompt:   req.Prompt,
			Language: req.Language,
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		return retry.Classify(err, statusOf(err))
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("whisper transcription: %w", err)
	}
	out := &ChunkResult{Text: resp.Text}
	for _, s := range resp.Segments {
		out.Segments = append(out.Segments, models.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return out, nil
}

// statusOf extracts the HTTP status from go-openai errors, or 0.
func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
