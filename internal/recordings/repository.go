package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

var (
	// ErrNotFound is returned when a recording does not exist for the tenant.
	ErrNotFound = errors.New("recording not found")
	// ErrStatusConflict is returned when the stored status changed under a status update.
	ErrStatusConflict = models.ErrStatusConflict
)

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordingColumns = `id, tenant_id, external_id, COALESCE(meeting_number,''), title, COALESCE(host_id,''),
	COALESCE(host_email,''), start_time, duration_seconds, COALESCE(source_url,''), client_tag, status,
	error_message, retry_count, downloaded_at, uploaded_at, transcribed_at, summarized_at, synced_at,
	completed_at, transcript, transcript_segments, summary, summary_json, notes, action_items,
	notes_received_at, youtube_id, youtube_url, youtube_success, youtube_error, sheets_success,
	sheets_error, sheets_ref, notion_success, notion_error, notion_page_id, archive_success,
	archive_error, archive_key, created_at, updated_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var (
		rec         models.Recording
		segments    []byte
		summaryJSON []byte
		actionItems []byte
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.ExternalID, &rec.MeetingNumber, &rec.Title, &rec.HostID,
		&rec.HostEmail, &rec.StartTime, &rec.DurationSeconds, &rec.SourceURL, &rec.ClientTag, &rec.Status,
		&rec.ErrorMessage, &rec.RetryCount, &rec.DownloadedAt, &rec.UploadedAt, &rec.TranscribedAt, &rec.SummarizedAt, &rec.SyncedAt,
		&rec.CompletedAt, &rec.Transcript, &segments, &rec.Summary, &summaryJSON, &rec.Notes, &actionItems,
		&rec.NotesReceivedAt, &rec.YouTubeID, &rec.YouTubeURL, &rec.YouTube.Success, &rec.YouTube.Error, &rec.Sheets.Success,
		&rec.Sheets.Error, &rec.Sheets.Ref, &rec.Notion.Success, &rec.Notion.Error, &rec.Notion.Ref, &rec.Archive.Success,
		&rec.Archive.Error, &rec.Archive.Ref, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.YouTube.Ref = rec.YouTubeID
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &rec.TranscriptSegments); err != nil {
			return nil, fmt.Errorf("decode transcript_segments: %w", err)
		}
	}
	if len(summaryJSON) > 0 {
		rec.SummaryJSON = json.RawMessage(summaryJSON)
	}
	if len(actionItems) > 0 {
		if err := json.Unmarshal(actionItems, &rec.ActionItems); err != nil {
			return nil, fmt.Errorf("decode action_items: %w", err)
		}
	}
	return &rec, nil
}

func collect(rows pgx.Rows) ([]models.Recording, error) {
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// Upsert inserts a PENDING recording or refreshes the metadata of the existing row with the same
// (tenant_id, external_id). Status and artifacts of an existing row are left alone.
func (r *Repository) Upsert(ctx context.Context, rec *models.Recording) (*models.Recording, error) {
	q := `INSERT INTO recordings (tenant_id, external_id, meeting_number, title, host_id, host_email,
			start_time, duration_seconds, source_url, client_tag, status)
		VALUES ($1, $2, NULLIF($3,''), $4, NULLIF($5,''), NULLIF($6,''), $7, $8, NULLIF($9,''), $10, $11)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			meeting_number   = COALESCE(EXCLUDED.meeting_number, recordings.meeting_number),
			title            = CASE WHEN EXCLUDED.title <> '' THEN EXCLUDED.title ELSE recordings.title END,
			host_id          = COALESCE(EXCLUDED.host_id, recordings.host_id),
			host_email       = COALESCE(EXCLUDED.host_email, recordings.host_email),
			start_time       = EXCLUDED.start_time,
			duration_seconds = COALESCE(EXCLUDED.duration_seconds, recordings.duration_seconds),
			source_url       = COALESCE(EXCLUDED.source_url, recordings.source_url),
			client_tag       = COALESCE(EXCLUDED.client_tag, recordings.client_tag),
			updated_at       = NOW()
		RETURNING ` + recordingColumns
	out, err := scanRecording(r.pool.QueryRow(ctx, q, rec.TenantID, rec.ExternalID, rec.MeetingNumber, rec.Title,
		rec.HostID, rec.HostEmail, rec.StartTime, rec.DurationSeconds, rec.SourceURL, rec.ClientTag, models.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("upsert recording: %w", err)
	}
	return out, nil
}

// Get returns a recording of the tenant by id.
func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE tenant_id = $1 AND id = $2`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// GetByExternalID returns the recording of the tenant for a source meeting id.
func (r *Repository) GetByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE tenant_id = $1 AND external_id = $2`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, tenantID, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get recording by external id: %w", err)
	}
	return rec, nil
}

// ListFilter narrows List.
type ListFilter struct {
	Status models.RecordingStatus
	Limit  int
	Offset int
}

// List returns the tenant's recordings, newest first.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]models.Recording, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	q := `SELECT ` + recordingColumns + ` FROM recordings
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY start_time DESC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, q, tenantID, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return collect(rows)
}

// stampColumn is the timestamp recorded when a recording enters a status: the stage before it finished.
var stampColumn = map[models.RecordingStatus]string{
	models.StatusUploading:    "downloaded_at",
	models.StatusTranscribing: "uploaded_at",
	models.StatusSummarizing:  "transcribed_at",
	models.StatusWaitingNotes: "summarized_at",
	models.StatusSyncing:      "summarized_at",
	models.StatusCompleted:    "synced_at",
}

// UpdateStatus moves a recording from one status to another. The row must still be in from;
// otherwise ErrStatusConflict is returned. Entering DOWNLOADING from anything but PENDING counts a
// retry and clears the previous error; entering FAILED stores errMsg.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RecordingStatus, errMsg string) error {
	set := []string{"status = $3", "updated_at = NOW()"}
	switch to {
	case models.StatusDownloading:
		set = append(set, "error_message = NULL", "completed_at = NULL")
		if from != models.StatusPending {
			set = append(set, "retry_count = retry_count + 1")
		}
	case models.StatusFailed:
		set = append(set, "error_message = $4")
	case models.StatusCompleted:
		set = append(set, "completed_at = NOW()")
	}
	if col, ok := stampColumn[to]; ok {
		set = append(set, col+" = NOW()")
	}
	q := `UPDATE recordings SET ` + strings.Join(set, ", ") + ` WHERE id = $1 AND status = $2`
	args := []any{id, from, to}
	if to == models.StatusFailed {
		args = append(args, models.TruncateError(errMsg))
	}
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s expected %s", ErrStatusConflict, id, from)
	}
	return nil
}

// SaveUpload stores the video hosting outcome.
func (r *Repository) SaveUpload(ctx context.Context, id uuid.UUID, o models.Outcome, videoURL *string) error {
	const q = `UPDATE recordings SET youtube_success = $2, youtube_error = $3, youtube_id = $4,
		youtube_url = $5, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, o.Success, o.Error, o.Ref, videoURL); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	return nil
}

// SaveTranscript stores the transcript text and segments. A nil text clears both.
func (r *Repository) SaveTranscript(ctx context.Context, id uuid.UUID, text *string, segments []models.Segment) error {
	var raw []byte
	if text != nil && len(segments) > 0 {
		b, err := json.Marshal(segments)
		if err != nil {
			return err
		}
		raw = b
	}
	const q = `UPDATE recordings SET transcript = $2, transcript_segments = $3, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, text, raw); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// SaveSummary stores the summary text and the structured summary, if any.
func (r *Repository) SaveSummary(ctx context.Context, id uuid.UUID, text *string, structured json.RawMessage) error {
	var raw []byte
	if len(structured) > 0 {
		raw = structured
	}
	const q = `UPDATE recordings SET summary = $2, summary_json = $3, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, text, raw); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// SaveSync stores the per-destination sync outcomes.
func (r *Repository) SaveSync(ctx context.Context, id uuid.UUID, sheets, notion, archive models.Outcome) error {
	const q = `UPDATE recordings SET
		sheets_success = $2, sheets_error = $3, sheets_ref = $4,
		notion_success = $5, notion_error = $6, notion_page_id = $7,
		archive_success = $8, archive_error = $9, archive_key = $10,
		updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id,
		sheets.Success, sheets.Error, sheets.Ref,
		notion.Success, notion.Error, notion.Ref,
		archive.Success, archive.Error, archive.Ref)
	if err != nil {
		return fmt.Errorf("save sync outcomes: %w", err)
	}
	return nil
}

// FindNotesCandidates returns recordings of the tenant hosted by hostEmail (case-insensitive)
// that started within [from, to].
func (r *Repository) FindNotesCandidates(ctx context.Context, tenantID uuid.UUID, hostEmail string, from, to time.Time) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings
		WHERE tenant_id = $1 AND lower(host_email) = lower($2) AND start_time BETWEEN $3 AND $4
		ORDER BY start_time`
	rows, err := r.pool.Query(ctx, q, tenantID, hostEmail, from, to)
	if err != nil {
		return nil, fmt.Errorf("find notes candidates: %w", err)
	}
	return collect(rows)
}

// MergeNotes stores the meeting notes and action items delivered by the notes provider and returns
// the status the recording had when the notes landed. The update and a concurrent UpdateStatus
// serialize on the row, so the returned status is the one the notes were written under.
func (r *Repository) MergeNotes(ctx context.Context, id uuid.UUID, notes string, actionItems []string, receivedAt time.Time) (models.RecordingStatus, error) {
	if actionItems == nil {
		actionItems = []string{}
	}
	items, err := json.Marshal(actionItems)
	if err != nil {
		return "", err
	}
	const q = `UPDATE recordings SET notes = $2, action_items = $3, notes_received_at = $4, updated_at = NOW()
		WHERE id = $1 RETURNING status`
	var status models.RecordingStatus
	if err := r.pool.QueryRow(ctx, q, id, notes, items, receivedAt).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("merge notes: %w", err)
	}
	return status, nil
}
