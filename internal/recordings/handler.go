package recordings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/meeting-pipeline/internal/middleware"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/pkg/queue"
	"github.com/aura-webinar/meeting-pipeline/pkg/response"
	"github.com/aura-webinar/meeting-pipeline/pkg/storage"
)

// Store is the recording persistence used by the HTTP handlers.
type Store interface {
	Upsert(ctx context.Context, rec *models.Recording) (*models.Recording, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Recording, error)
	GetByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*models.Recording, error)
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]models.Recording, error)
}

// JobQueue is the queue access of the operator API.
type JobQueue interface {
	Enqueuer
	Counts(ctx context.Context, topic string) (queue.Counts, error)
}

// Presigner issues temporary download links for archived artifacts.
type Presigner interface {
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
}

// Handler serves the operator API. Every read is scoped to the tenant of the caller's token.
type Handler struct {
	store   Store
	queue   JobQueue
	archive Presigner
	logger  *zap.Logger
}

// NewHandler creates a recordings handler. archive may be nil when no bucket is configured.
func NewHandler(store Store, q JobQueue, archive Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, queue: q, archive: archive, logger: logger}
}

type reprocessRequest struct {
	Steps []string `json:"steps"`
}

// recordingFor loads the :id recording of the caller's tenant, writing the error response itself.
func (h *Handler) recordingFor(c *gin.Context) (*models.Recording, bool) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Unauthorized(c, "missing tenant")
		return nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "recording not found")
		return nil, false
	}
	rec, err := h.store.Get(c.Request.Context(), tenantID, id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "recording not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get recording", zap.String("recording_id", id.String()), zap.Error(err))
		response.Internal(c, "internal error")
		return nil, false
	}
	return rec, true
}

// Reprocess handles POST /api/recordings/:id/reprocess with an optional {"steps": [...]} body.
func (h *Handler) Reprocess(c *gin.Context) {
	rec, ok := h.recordingFor(c)
	if !ok {
		return
	}
	var body reprocessRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	steps, err := models.ParseStages(body.Steps)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	job := models.ReprocessJob(rec, steps)
	queued, err := h.queue.Enqueue(c.Request.Context(), queue.TopicRecordings, job.DedupeKey(), job)
	if errors.Is(err, queue.ErrAlreadyQueued) {
		response.Conflict(c, "already processing")
		return
	}
	if err != nil {
		h.logger.Error("enqueue reprocess", zap.String("recording_id", rec.ID.String()), zap.Error(err))
		response.Internal(c, "failed to queue recording")
		return
	}
	h.logger.Info("reprocess queued", zap.String("recording_id", rec.ID.String()), zap.String("job_id", queued.ID),
		zap.Any("steps", steps), zap.Any("operator", c.Value(middleware.ContextSubject)))
	response.Accepted(c, gin.H{"job_id": queued.ID, "recording_id": rec.ID, "steps": steps})
}

// QueueStatus handles GET /api/queue/status.
func (h *Handler) QueueStatus(c *gin.Context) {
	counts, err := h.queue.Counts(c.Request.Context(), queue.TopicRecordings)
	if err != nil {
		h.logger.Error("queue counts", zap.Error(err))
		response.ServiceUnavailable(c, "queue unavailable")
		return
	}
	response.OK(c, counts)
}

// List handles GET /api/recordings?status=&limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Unauthorized(c, "missing tenant")
		return
	}
	f := ListFilter{Status: models.RecordingStatus(c.Query("status"))}
	if f.Status != "" && !f.Status.Valid() {
		response.BadRequest(c, "invalid status")
		return
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if f.Offset < 0 {
		f.Offset = 0
	}
	list, err := h.store.List(c.Request.Context(), tenantID, f)
	if err != nil {
		h.logger.Error("list recordings", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	for i := range list {
		withoutTranscript(&list[i])
	}
	if list == nil {
		list = []models.Recording{}
	}
	response.OK(c, list)
}

// Get handles GET /api/recordings/:id. The transcript is served separately.
func (h *Handler) Get(c *gin.Context) {
	rec, ok := h.recordingFor(c)
	if !ok {
		return
	}
	withoutTranscript(rec)
	response.OK(c, rec)
}

// Transcript handles GET /api/recordings/:id/transcript.
func (h *Handler) Transcript(c *gin.Context) {
	rec, ok := h.recordingFor(c)
	if !ok {
		return
	}
	if !rec.HasTranscript() {
		response.NotFound(c, "transcript not available")
		return
	}
	segments := rec.TranscriptSegments
	if segments == nil {
		segments = []models.Segment{}
	}
	response.OK(c, gin.H{"recording_id": rec.ID, "text": *rec.Transcript, "segments": segments})
}

// Archive handles GET /api/recordings/:id/archive: short-lived links to the archived artifacts.
func (h *Handler) Archive(c *gin.Context) {
	if h.archive == nil {
		response.NotFound(c, "archive not configured")
		return
	}
	rec, ok := h.recordingFor(c)
	if !ok {
		return
	}
	if rec.Archive.Success == nil || !*rec.Archive.Success {
		response.NotFound(c, "recording not archived")
		return
	}
	links := gin.H{}
	for _, name := range []string{storage.ObjectTranscript, storage.ObjectSegments, storage.ObjectSummary} {
		url, err := h.archive.PresignedDownloadURL(c.Request.Context(), storage.ArchiveKey(rec.TenantID.String(), rec.ID.String(), name))
		if err != nil {
			h.logger.Error("presign archive object", zap.String("object", name), zap.Error(err))
			response.Internal(c, "failed to sign archive links")
			return
		}
		links[name] = url
	}
	response.OK(c, gin.H{"links": links, "expires_in": int(h.archive.PresignExpire().Seconds())})
}

func withoutTranscript(rec *models.Recording) {
	rec.Transcript = nil
	rec.TranscriptSegments = nil
}
