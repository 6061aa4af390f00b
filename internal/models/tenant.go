package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the owner of recordings and the holder of per-tenant integration credentials.
// Empty credential fields mean "use the process default".
type Tenant struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	ZoomAccountID       string    `json:"zoom_account_id,omitempty"`
	WebhookSecret       string    `json:"-"`
	TranscriptionKey    string    `json:"-"`
	SummarizationKey    string    `json:"-"`
	YouTubeRefreshToken string    `json:"-"`
	SheetID             string    `json:"sheet_id,omitempty"`
	NotionKey           string    `json:"-"`
	NotionDatabaseID    string    `json:"notion_database_id,omitempty"`
	NotesSecret         string    `json:"-"`
	NotesEnabled        bool      `json:"notes_enabled"`
	WaitForNotes        bool      `json:"wait_for_notes"`
	SummaryStyle        string    `json:"summary_style,omitempty"`
	Language            string    `json:"language,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ClientURL is a registered meeting URL of one of the tenant's clients, used to tag recordings.
type ClientURL struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	ClientName string    `json:"client_name"`
	URL        string    `json:"url"`
}
