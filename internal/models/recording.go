package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordingStatus is a stage in the recording lifecycle.
type RecordingStatus string

const (
	StatusPending      RecordingStatus = "PENDING"
	StatusDownloading  RecordingStatus = "DOWNLOADING"
	StatusUploading    RecordingStatus = "UPLOADING"
	StatusTranscribing RecordingStatus = "TRANSCRIBING"
	StatusSummarizing  RecordingStatus = "SUMMARIZING"
	StatusWaitingNotes RecordingStatus = "WAITING_NOTES"
	StatusSyncing      RecordingStatus = "SYNCING"
	StatusCompleted    RecordingStatus = "COMPLETED"
	StatusFailed       RecordingStatus = "FAILED"
)

var (
	// ErrInvalidTransition is returned when a status change is not in the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStatusConflict is returned by stores when the stored status changed under a status update.
	ErrStatusConflict = errors.New("recording status changed concurrently")
)

// transitions lists the forward edges. FAILED and DOWNLOADING are handled in ValidateTransition.
var transitions = map[RecordingStatus][]RecordingStatus{
	StatusPending:      {StatusDownloading},
	StatusDownloading:  {StatusUploading},
	StatusUploading:    {StatusTranscribing},
	StatusTranscribing: {StatusSummarizing},
	StatusSummarizing:  {StatusSyncing, StatusWaitingNotes},
	StatusWaitingNotes: {StatusSyncing},
	StatusSyncing:      {StatusCompleted},
}

// Valid reports whether s is a known status.
func (s RecordingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusUploading, StatusTranscribing, StatusSummarizing,
		StatusWaitingNotes, StatusSyncing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no pipeline work follows s without a new attempt.
func (s RecordingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidateTransition checks a status change.
// DOWNLOADING opens an attempt and is reachable from any state (retry, reprocess).
// FAILED is reachable from any non-terminal state. Every other change must follow the table.
func ValidateTransition(from, to RecordingStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
	}
	if to == StatusDownloading {
		return nil
	}
	if to == StatusFailed {
		if from.Terminal() {
			return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
		}
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Outcome is the result of writing a recording to one external destination.
// Success is nil when the destination is not configured for the tenant.
type Outcome struct {
	Success *bool   `json:"success"`
	Error   *string `json:"error"`
	Ref     *string `json:"ref"`
}

// NotConfigured is the outcome for a destination the tenant has not set up.
func NotConfigured() Outcome { return Outcome{} }

// Succeeded builds a successful outcome with an optional reference id.
func Succeeded(ref string) Outcome {
	ok := true
	o := Outcome{Success: &ok}
	if ref != "" {
		o.Ref = &ref
	}
	return o
}

// Failed builds a failed outcome carrying the error text and no reference.
func Failed(err error) Outcome {
	ok := false
	msg := err.Error()
	return Outcome{Success: &ok, Error: &msg}
}

// Segment is a timed slice of a transcript, in seconds from the start of the recording.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Recording tracks one source meeting through the pipeline. Unique per (TenantID, ExternalID).
type Recording struct {
	ID                 uuid.UUID       `json:"id"`
	TenantID           uuid.UUID       `json:"tenant_id"`
	ExternalID         string          `json:"external_id"`
	MeetingNumber      string          `json:"meeting_number,omitempty"`
	Title              string          `json:"title"`
	HostID             string          `json:"host_id,omitempty"`
	HostEmail          string          `json:"host_email,omitempty"`
	StartTime          time.Time       `json:"start_time"`
	DurationSeconds    *int            `json:"duration_seconds"`
	SourceURL          string          `json:"source_url,omitempty"`
	ClientTag          *string         `json:"client_tag"`
	Status             RecordingStatus `json:"status"`
	ErrorMessage       *string         `json:"error_message"`
	RetryCount         int             `json:"retry_count"`
	DownloadedAt       *time.Time      `json:"downloaded_at"`
	UploadedAt         *time.Time      `json:"uploaded_at"`
	TranscribedAt      *time.Time      `json:"transcribed_at"`
	SummarizedAt       *time.Time      `json:"summarized_at"`
	SyncedAt           *time.Time      `json:"synced_at"`
	CompletedAt        *time.Time      `json:"completed_at"`
	Transcript         *string         `json:"transcript,omitempty"`
	TranscriptSegments []Segment       `json:"transcript_segments,omitempty"`
	Summary            *string         `json:"summary"`
	SummaryJSON        json.RawMessage `json:"summary_json,omitempty"`
	Notes              *string         `json:"notes"`
	ActionItems        []string        `json:"action_items,omitempty"`
	NotesReceivedAt    *time.Time      `json:"notes_received_at"`
	YouTubeID          *string         `json:"youtube_id"`
	YouTubeURL         *string         `json:"youtube_url"`
	YouTube            Outcome         `json:"youtube"`
	Sheets             Outcome         `json:"sheets"`
	Notion             Outcome         `json:"notion"`
	Archive            Outcome         `json:"archive"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// HasTranscript reports whether a non-empty transcript is stored.
func (r *Recording) HasTranscript() bool {
	return r.Transcript != nil && *r.Transcript != ""
}

// HasNotes reports whether the meeting-notes payload has been merged.
func (r *Recording) HasNotes() bool {
	return r.NotesReceivedAt != nil
}

// MaxErrorMessage bounds the stored error text.
const MaxErrorMessage = 2000

// TruncateError shortens msg to MaxErrorMessage runes.
func TruncateError(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxErrorMessage {
		return msg
	}
	return string(r[:MaxErrorMessage])
}
