// Package credentials resolves per-tenant integration credentials with process-wide fallbacks.
package credentials

import (
	"github.com/aura-webinar/meeting-pipeline/config"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

// Credentials is the effective credential set for one tenant.
type Credentials struct {
	WebhookSecret       string
	TranscriptionKey    string
	SummarizationKey    string
	YouTubeRefreshToken string
	SheetID             string
	NotionKey           string
	NotionDatabaseID    string
	NotesSecret         string
	SummaryStyle        string
	Language            string
}

// Resolver picks the tenant value when set, else the process default, per field.
type Resolver struct {
	defaults Credentials
}

// NewResolver builds a resolver from the process configuration.
func NewResolver(d config.DefaultsConfig, p config.PipelineConfig) *Resolver {
	return &Resolver{defaults: Credentials{
		WebhookSecret:       d.WebhookSecret,
		TranscriptionKey:    d.TranscriptionKey,
		SummarizationKey:    d.SummarizationKey,
		YouTubeRefreshToken: d.YouTubeRefreshToken,
		SheetID:             d.SheetID,
		NotionKey:           d.NotionKey,
		NotionDatabaseID:    d.NotionDatabaseID,
		NotesSecret:         d.NotesSecret,
		SummaryStyle:        p.SummaryStyle,
		Language:            p.Language,
	}}
}

// Defaults returns the process-wide credential set.
func (r *Resolver) Defaults() Credentials { return r.defaults }

// Resolve returns the effective credentials. A nil tenant yields the defaults.
func (r *Resolver) Resolve(t *models.Tenant) Credentials {
	c := r.defaults
	if t == nil {
		return c
	}
	pick(&c.WebhookSecret, t.WebhookSecret)
	pick(&c.TranscriptionKey, t.TranscriptionKey)
	pick(&c.SummarizationKey, t.SummarizationKey)
	pick(&c.YouTubeRefreshToken, t.YouTubeRefreshToken)
	pick(&c.SheetID, t.SheetID)
	pick(&c.NotionKey, t.NotionKey)
	pick(&c.NotionDatabaseID, t.NotionDatabaseID)
	pick(&c.NotesSecret, t.NotesSecret)
	pick(&c.SummaryStyle, t.SummaryStyle)
	pick(&c.Language, t.Language)
	return c
}

func pick(dst *string, tenantValue string) {
	if tenantValue != "" {
		*dst = tenantValue
	}
}

// SheetsConfigured reports whether the spreadsheet destination can be written.
func (c Credentials) SheetsConfigured() bool { return c.SheetID != "" }

// NotionConfigured reports whether the document-workspace destination can be written.
func (c Credentials) NotionConfigured() bool { return c.NotionKey != "" && c.NotionDatabaseID != "" }

// YouTubeConfigured reports whether video hosting is available.
func (c Credentials) YouTubeConfigured() bool { return c.YouTubeRefreshToken != "" }
