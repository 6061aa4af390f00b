package pipeline

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/destinations"
	"github.com/aura-webinar/meeting-pipeline/internal/events"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/internal/summary"
	"github.com/aura-webinar/meeting-pipeline/internal/transcription"
	"github.com/aura-webinar/meeting-pipeline/internal/youtube"
	"github.com/aura-webinar/meeting-pipeline/internal/zoom"
)

// Store persists recordings. Implemented by recordings.Repository.
type Store interface {
	Upsert(ctx context.Context, rec *models.Recording) (*models.Recording, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Recording, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RecordingStatus, errMsg string) error
	SaveUpload(ctx context.Context, id uuid.UUID, o models.Outcome, videoURL *string) error
	SaveTranscript(ctx context.Context, id uuid.UUID, text *string, segments []models.Segment) error
	SaveSummary(ctx context.Context, id uuid.UUID, text *string, structured json.RawMessage) error
	SaveSync(ctx context.Context, id uuid.UUID, sheets, notion, archive models.Outcome) error
}

// Tenants loads tenant settings.
type Tenants interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// MediaSource looks up fresh download URLs for a meeting.
type MediaSource interface {
	Configured() bool
	GetRecordingFiles(ctx context.Context, meetingUUID string) (*zoom.Meeting, error)
	Token(ctx context.Context) (string, error)
}

// Downloader fetches a media file into dir.
type Downloader interface {
	Download(ctx context.Context, rawURL, token, dir string) (string, int64, error)
}

// VideoHost uploads the recording video.
type VideoHost interface {
	Configured(refreshToken string) bool
	Upload(ctx context.Context, refreshToken, path string, m youtube.Metadata) (*youtube.Video, error)
}

// Transcriber turns a media file into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, tr transcription.Transcriber, path, language string) (*transcription.Result, error)
}

// Summarizer turns a transcript into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, c summary.Completer, transcript string, style summary.Style, language string) (*summary.Result, error)
}

// Clients builds API clients for a tenant's keys.
type Clients interface {
	Transcriber(key string) (transcription.Transcriber, error)
	Summarizer(key string) (summary.Completer, error)
}

// Syncer writes a recording to the downstream destinations.
type Syncer interface {
	Run(ctx context.Context, creds credentials.Credentials, rec *models.Recording) destinations.Outcomes
}

// Publisher broadcasts status changes.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Notifier announces finished and failed recordings.
type Notifier interface {
	Completed(ctx context.Context, rec *models.Recording)
	Failed(ctx context.Context, rec *models.Recording, cause error)
}

// Deps are the collaborators of a Pipeline. Publisher and Notifier may be nil.
type Deps struct {
	Store       Store
	Tenants     Tenants
	Credentials *credentials.Resolver
	Media       MediaSource
	Downloader  Downloader
	Video       VideoHost
	Transcriber Transcriber
	Summarizer  Summarizer
	Clients     Clients
	Syncer      Syncer
	Publisher   Publisher
	Notifier    Notifier
}
