// Package clients builds API clients for a tenant's resolved credentials and caches them by key.
package clients

import (
	"errors"
	"net/http"
	"sync"

	"github.com/jomei/notionapi"
	openai "github.com/sashabaranov/go-openai"

	"github.com/aura-webinar/meeting-pipeline/config"
	"github.com/aura-webinar/meeting-pipeline/internal/summary"
	"github.com/aura-webinar/meeting-pipeline/internal/transcription"
)

// ErrNoKey is returned when the credential a client needs is empty.
var ErrNoKey = errors.New("credential not configured")

// Factory hands out clients scoped to one credential. Clients are safe for concurrent use and
// are reused across recordings of tenants sharing a key.
type Factory struct {
	cfg        config.OpenAIConfig
	httpClient *http.Client

	mu     sync.Mutex
	openai map[string]*openai.Client
	notion map[string]*notionapi.Client
}

// NewFactory creates a factory. A nil httpClient uses one with cfg.RequestTimeout.
func NewFactory(cfg config.OpenAIConfig, httpClient *http.Client) *Factory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Factory{
		cfg:        cfg,
		httpClient: httpClient,
		openai:     make(map[string]*openai.Client),
		notion:     make(map[string]*notionapi.Client),
	}
}

func (f *Factory) openAIClient(key string) (*openai.Client, error) {
	if key == "" {
		return nil, ErrNoKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.openai[key]; ok {
		return c, nil
	}
	cc := openai.DefaultConfig(key)
	if f.cfg.BaseURL != "" {
		cc.BaseURL = f.cfg.BaseURL
	}
	cc.HTTPClient = f.httpClient
	c := openai.NewClientWithConfig(cc)
	f.openai[key] = c
	return c, nil
}

// Transcriber returns a Whisper client for key.
func (f *Factory) Transcriber(key string) (transcription.Transcriber, error) {
	c, err := f.openAIClient(key)
	if err != nil {
		return nil, err
	}
	return transcription.NewOpenAI(c, f.cfg.TranscriptionModel), nil
}

// Summarizer returns a chat completion client for key.
func (f *Factory) Summarizer(key string) (summary.Completer, error) {
	c, err := f.openAIClient(key)
	if err != nil {
		return nil, err
	}
	return summary.NewOpenAI(c, f.cfg.SummaryModel), nil
}

// Notion returns a Notion API client for an integration token.
func (f *Factory) Notion(token string) (*notionapi.Client, error) {
	if token == "" {
		return nil, ErrNoKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.notion[token]; ok {
		return c, nil
	}
	c := notionapi.NewClient(notionapi.Token(token), notionapi.WithHTTPClient(f.httpClient))
	f.notion[token] = c
	return c, nil
}
