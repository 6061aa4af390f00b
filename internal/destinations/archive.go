package destinations

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/pkg/storage"
)

// ObjectStore is the subset of the S3 archive the destination uses.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
}

// Archive keeps transcript and summary artifacts in object storage.
type Archive struct {
	store ObjectStore
}

// NewArchive creates the destination. A nil store disables it.
func NewArchive(store ObjectStore) *Archive {
	return &Archive{store: store}
}

func (a *Archive) Name() string { return NameArchive }

func (a *Archive) Configured(credentials.Credentials) bool { return a.store != nil }

// archivedSummary is the summary.json document.
type archivedSummary struct {
	RecordingID string          `json:"recording_id"`
	ExternalID  string          `json:"external_id"`
	Title       string          `json:"title"`
	StartTime   time.Time       `json:"start_time"`
	Summary     *string         `json:"summary"`
	Structured  json.RawMessage `json:"structured,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
	ActionItems []string        `json:"action_items,omitempty"`
	YouTubeURL  *string         `json:"youtube_url,omitempty"`
}

// Write uploads transcript.txt, segments.json and summary.json and returns the folder prefix.
func (a *Archive) Write(ctx context.Context, _ credentials.Credentials, rec *models.Recording) (string, error) {
	tenant, id := rec.TenantID.String(), rec.ID.String()
	if rec.HasTranscript() {
		if err := a.put(ctx, storage.ArchiveKey(tenant, id, storage.ObjectTranscript), "text/plain; charset=utf-8", []byte(*rec.Transcript)); err != nil {
			return "", err
		}
	}
	if len(rec.TranscriptSegments) > 0 {
		b, err := json.Marshal(rec.TranscriptSegments)
		if err != nil {
			return "", err
		}
		if err := a.put(ctx, storage.ArchiveKey(tenant, id, storage.ObjectSegments), "application/json", b); err != nil {
			return "", err
		}
	}
	b, err := json.Marshal(archivedSummary{
		RecordingID: id,
		ExternalID:  rec.ExternalID,
		Title:       rec.Title,
		StartTime:   rec.StartTime,
		Summary:     rec.Summary,
		Structured:  rec.SummaryJSON,
		Notes:       rec.Notes,
		ActionItems: rec.ActionItems,
		YouTubeURL:  rec.YouTubeURL,
	})
	if err != nil {
		return "", err
	}
	if err := a.put(ctx, storage.ArchiveKey(tenant, id, storage.ObjectSummary), "application/json", b); err != nil {
		return "", err
	}
	return storage.ArchivePrefix(tenant, id), nil
}

func (a *Archive) put(ctx context.Context, key, contentType string, body []byte) error {
	return a.store.Upload(ctx, key, contentType, bytes.NewReader(body), int64(len(body)))
}
