package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

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

var errNotFound = errors.New("not found")

// memStore mirrors the status and upsert semantics of the Postgres repository.
type memStore struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*models.Recording
	failOn  string
	upserts int

	// onStatus runs after a status change to the key status is committed, outside the lock.
	onStatus map[models.RecordingStatus]func(id uuid.UUID)
}

func newMemStore() *memStore { return &memStore{rows: map[uuid.UUID]*models.Recording{}} }

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		return fmt.Errorf("%s: connection reset", op)
	}
	return nil
}

func (s *memStore) Upsert(_ context.Context, rec *models.Recording) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	for _, row := range s.rows {
		if row.TenantID == rec.TenantID && row.ExternalID == rec.ExternalID {
			row.Title = rec.Title
			cp := *row
			return &cp, nil
		}
	}
	row := *rec
	row.ID = uuid.New()
	row.Status = models.StatusPending
	s.rows[row.ID] = &row
	cp := row
	return &cp, nil
}

func (s *memStore) Get(_ context.Context, tenantID, id uuid.UUID) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, errNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RecordingStatus, errMsg string) error {
	if err := s.updateStatus(ctx, id, from, to, errMsg); err != nil {
		return err
	}
	if hook := s.onStatus[to]; hook != nil {
		hook(id)
	}
	return nil
}

func (s *memStore) updateStatus(_ context.Context, id uuid.UUID, from, to models.RecordingStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("status:" + string(to)); err != nil {
		return err
	}
	row := s.rows[id]
	if row.Status != from {
		return fmt.Errorf("%w: %s != %s", models.ErrStatusConflict, row.Status, from)
	}
	switch to {
	case models.StatusDownloading:
		row.ErrorMessage = nil
		if from != models.StatusPending {
			row.RetryCount++
		}
	case models.StatusFailed:
		msg := models.TruncateError(errMsg)
		row.ErrorMessage = &msg
	}
	row.Status = to
	return nil
}

func (s *memStore) SaveUpload(_ context.Context, id uuid.UUID, o models.Outcome, videoURL *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id].YouTube, s.rows[id].YouTubeID, s.rows[id].YouTubeURL = o, o.Ref, videoURL
	return nil
}

func (s *memStore) SaveTranscript(_ context.Context, id uuid.UUID, text *string, segments []models.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id].Transcript, s.rows[id].TranscriptSegments = text, segments
	return nil
}

func (s *memStore) SaveSummary(_ context.Context, id uuid.UUID, text *string, structured json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id].Summary, s.rows[id].SummaryJSON = text, structured
	return nil
}

func (s *memStore) SaveSync(_ context.Context, id uuid.UUID, sheets, notion, archive models.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("sync"); err != nil {
		return err
	}
	s.rows[id].Sheets, s.rows[id].Notion, s.rows[id].Archive = sheets, notion, archive
	return nil
}

// mergeNotes stores notes the way the notes matcher does and returns the status they landed under.
func (s *memStore) mergeNotes(id uuid.UUID, notes string) models.RecordingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	row := s.rows[id]
	row.Notes, row.ActionItems, row.NotesReceivedAt = &notes, []string{"Send the deck"}, &now
	return row.Status
}

func (s *memStore) only() *models.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		cp := *row
		return &cp
	}
	return nil
}

type fakeTenants map[uuid.UUID]*models.Tenant

func (f fakeTenants) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	return f[id], nil
}

type fakeMedia struct {
	configured bool
	err        error
	url        string
}

func (f *fakeMedia) Configured() bool { return f.configured }

func (f *fakeMedia) GetRecordingFiles(context.Context, string) (*zoom.Meeting, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &zoom.Meeting{RecordingFiles: []zoom.RecordingFile{{FileType: "MP4", DownloadURL: f.url}}}, nil
}

func (f *fakeMedia) Token(context.Context) (string, error) { return "fresh-token", nil }

type fakeDownloader struct {
	err      error
	gotURL   string
	gotToken string
	calls    int
}

func (f *fakeDownloader) Download(_ context.Context, rawURL, token, dir string) (string, int64, error) {
	f.calls++
	f.gotURL, f.gotToken = rawURL, token
	if f.err != nil {
		return "", 0, f.err
	}
	path := filepath.Join(dir, "recording.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o600); err != nil {
		return "", 0, err
	}
	return path, 5, nil
}

type fakeVideo struct {
	configured bool
	err        error
}

func (f *fakeVideo) Configured(token string) bool { return f.configured && token != "" }

func (f *fakeVideo) Upload(context.Context, string, string, youtube.Metadata) (*youtube.Video, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &youtube.Video{ID: "vid1", URL: youtube.WatchURL + "vid1"}, nil
}

type fakeTranscriber struct {
	err    error
	text   string
	calls  int
	during func()
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ transcription.Transcriber, path, _ string) (*transcription.Result, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return nil, f.err
	}
	// Chunks are written next to the media file, inside the job directory.
	if err := os.WriteFile(path+".chunk0.mp3", []byte("a"), 0o600); err != nil {
		return nil, err
	}
	return &transcription.Result{Text: f.text, Segments: []models.Segment{{Start: 0, End: 1, Text: f.text}}, Chunks: 1}, nil
}

type fakeSummarizer struct {
	err     error
	calls   int
	panicOn any
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ summary.Completer, transcript string, _ summary.Style, _ string) (*summary.Result, error) {
	f.calls++
	if f.panicOn != nil {
		panic(f.panicOn)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &summary.Result{Text: "Summary of: " + transcript, Parts: 1}, nil
}

type fakeClients struct{}

func (fakeClients) Transcriber(string) (transcription.Transcriber, error) { return nil, nil }
func (fakeClients) Summarizer(string) (summary.Completer, error)         { return nil, nil }

type fakeSyncer struct {
	calls int
	seen  *models.Recording
}

func (f *fakeSyncer) Run(_ context.Context, _ credentials.Credentials, rec *models.Recording) destinations.Outcomes {
	f.calls++
	cp := *rec
	f.seen = &cp
	return destinations.Outcomes{
		destinations.NameSheets: models.Succeeded("Meetings!A2:K2"),
		destinations.NameNotion: models.Failed(errors.New("notion down")),
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []models.RecordingStatus
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, ev.Status)
	return nil
}

type fakeNotifier struct {
	completed int
	failed    []error
}

func (n *fakeNotifier) Completed(context.Context, *models.Recording) { n.completed++ }
func (n *fakeNotifier) Failed(_ context.Context, _ *models.Recording, cause error) {
	n.failed = append(n.failed, cause)
}

