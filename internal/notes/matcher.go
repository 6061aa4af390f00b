// Package notes attaches meeting notes from the notes provider to the recording they belong to.
package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/meeting-pipeline/internal/metrics"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

// DefaultTolerance is how far a recording's start may be from the notes' meeting time.
const DefaultTolerance = 30 * time.Minute

var (
	// ErrInvalidPayload is returned for payloads missing the fields needed to match.
	ErrInvalidPayload = errors.New("notes payload needs host_email and happened_at")
	// ErrNotWaiting is returned by a Resumer when the recording is no longer waiting for notes.
	ErrNotWaiting = errors.New("recording is not waiting for notes")
)

// Payload is the body posted by the notes provider.
type Payload struct {
	MeetingID   string    `json:"meeting_id"`
	HostEmail   string    `json:"host_email"`
	HappenedAt  time.Time `json:"happened_at"`
	Title       string    `json:"title"`
	Notes       string    `json:"notes"`
	ActionItems []string  `json:"action_items"`
}

// Store is the recording access the matcher needs.
type Store interface {
	FindNotesCandidates(ctx context.Context, tenantID uuid.UUID, hostEmail string, from, to time.Time) ([]models.Recording, error)
	// MergeNotes returns the status the recording had when the notes were written.
	MergeNotes(ctx context.Context, id uuid.UUID, notes string, actionItems []string, receivedAt time.Time) (models.RecordingStatus, error)
}

// Resumer finishes a recording that was waiting for notes. It returns ErrNotWaiting when the
// recording already left WAITING_NOTES.
type Resumer interface {
	ResumeAfterNotes(ctx context.Context, tenantID, recordingID uuid.UUID) error
}

// Result reports what a delivery matched.
type Result struct {
	Matched     bool
	RecordingID uuid.UUID
	Resumed     bool
}

// Matcher finds the recording for a notes delivery and merges it.
type Matcher struct {
	store     Store
	resumer   Resumer
	tolerance time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewMatcher creates a matcher. A non-positive tolerance uses DefaultTolerance.
func NewMatcher(store Store, resumer Resumer, tolerance time.Duration, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Matcher{store: store, resumer: resumer, tolerance: tolerance, logger: logger, now: time.Now}
}

// Handle matches p against the tenant's recordings hosted by the same email within the tolerance
// window and merges the notes into the closest one. A recording that was parked in WAITING_NOTES
// when the notes landed is then synced; a recording still in flight picks the notes up itself
// before it decides to wait. No match is not an error.
func (m *Matcher) Handle(ctx context.Context, tenantID uuid.UUID, p Payload) (*Result, error) {
	email := strings.TrimSpace(p.HostEmail)
	if email == "" || p.HappenedAt.IsZero() {
		return nil, ErrInvalidPayload
	}
	logger := m.logger.With(zap.String("tenant_id", tenantID.String()), zap.String("host_email", email),
		zap.Time("happened_at", p.HappenedAt))

	candidates, err := m.store.FindNotesCandidates(ctx, tenantID, email, p.HappenedAt.Add(-m.tolerance), p.HappenedAt.Add(m.tolerance))
	if err != nil {
		return nil, err
	}
	rec := Closest(candidates, p.HappenedAt, p.MeetingID)
	if rec == nil {
		logger.Info("notes matched no recording")
		metrics.Degraded.WithLabelValues(metrics.ReasonNotesNoMatch).Inc()
		return &Result{}, nil
	}

	status, err := m.store.MergeNotes(ctx, rec.ID, p.Notes, p.ActionItems, m.now().UTC())
	if err != nil {
		return nil, err
	}
	res := &Result{Matched: true, RecordingID: rec.ID}
	logger.Info("notes merged", zap.String("recording_id", rec.ID.String()), zap.String("status", string(status)),
		zap.Int("action_items", len(p.ActionItems)))

	if status != models.StatusWaitingNotes || m.resumer == nil {
		return res, nil
	}
	switch err := m.resumer.ResumeAfterNotes(ctx, tenantID, rec.ID); {
	case errors.Is(err, ErrNotWaiting):
		// The worker saw the notes after parking and synced the recording itself.
		logger.Info("recording already resumed", zap.String("recording_id", rec.ID.String()))
	case err != nil:
		return res, err
	default:
		res.Resumed = true
	}
	return res, nil
}

// Closest picks the candidate whose start is nearest to at. A candidate whose meeting number
// equals meetingID wins outright.
func Closest(candidates []models.Recording, at time.Time, meetingID string) *models.Recording {
	var best *models.Recording
	var bestDiff time.Duration
	for i := range candidates {
		c := &candidates[i]
		if meetingID != "" && c.MeetingNumber == meetingID {
			return c
		}
		diff := c.StartTime.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			best, bestDiff = c, diff
		}
	}
	return best
}
