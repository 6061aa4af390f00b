package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/metrics"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/internal/tenants"
	"github.com/aura-webinar/meeting-pipeline/internal/zoom"
	"github.com/aura-webinar/meeting-pipeline/pkg/queue"
	"github.com/aura-webinar/meeting-pipeline/pkg/response"
	"github.com/aura-webinar/meeting-pipeline/pkg/signature"
)

// maxWebhookBody bounds the bytes read from a webhook request.
const maxWebhookBody = 1 << 20

// TenantLookup is the tenant access used by the webhooks.
type TenantLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetByZoomAccount(ctx context.Context, accountID string) (*models.Tenant, error)
	ClientURLs(ctx context.Context, tenantID uuid.UUID) ([]models.ClientURL, error)
}

// Enqueuer puts recording jobs on the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, topic, dedupeKey string, payload any) (*queue.Job, error)
}

// zoomEvent is the webhook envelope.
type zoomEvent struct {
	Event         string `json:"event"`
	DownloadToken string `json:"download_token"`
	Payload       struct {
		AccountID  string       `json:"account_id"`
		PlainToken string       `json:"plainToken"`
		Object     zoom.Meeting `json:"object"`
	} `json:"payload"`
}

// WebhookConfig holds the Zoom ingress settings.
type WebhookConfig struct {
	DefaultTenantID uuid.UUID
	ReplayWindow    time.Duration
	PreferredType   string
}

// WebhookHandler receives Zoom recording webhooks.
type WebhookHandler struct {
	tenants  TenantLookup
	store    Store
	queue    Enqueuer
	resolver *credentials.Resolver
	verifier signature.ZoomVerifier
	cfg      WebhookConfig
	logger   *zap.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(tenantLookup TenantLookup, store Store, q Enqueuer, resolver *credentials.Resolver, cfg WebhookConfig, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		tenants:  tenantLookup,
		store:    store,
		queue:    q,
		resolver: resolver,
		verifier: signature.ZoomVerifier{Window: cfg.ReplayWindow},
		cfg:      cfg,
		logger:   logger,
	}
}

// Zoom handles POST /webhook/zoom and /webhook/zoom/:tenantId.
func (h *WebhookHandler) Zoom(c *gin.Context) {
	ctx := c.Request.Context()
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "could not read body")
		return
	}
	var ev zoomEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		h.count("invalid")
		response.BadRequest(c, "invalid json")
		return
	}

	tenant, found, err := h.tenant(ctx, c.Param("tenantId"), ev.Payload.AccountID)
	if err != nil {
		h.logger.Error("resolve webhook tenant", zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	if !found {
		h.count("unknown_tenant")
		response.NotFound(c, "unknown tenant")
		return
	}
	creds := h.resolver.Resolve(tenant)

	if ev.Event == zoom.EventURLValidation {
		if creds.WebhookSecret == "" {
			response.ServiceUnavailable(c, "webhook secret not configured")
			return
		}
		h.count("url_validation")
		c.JSON(http.StatusOK, gin.H{
			"plainToken":     ev.Payload.PlainToken,
			"encryptedToken": signature.Sign(creds.WebhookSecret, []byte(ev.Payload.PlainToken)),
		})
		return
	}

	if err := h.verifier.Verify(creds.WebhookSecret, body, c.GetHeader("x-zm-signature"), c.GetHeader("x-zm-request-timestamp")); err != nil {
		h.count("unauthorized")
		h.logger.Warn("zoom webhook rejected", zap.String("event", ev.Event), zap.Error(err))
		response.Unauthorized(c, "invalid signature")
		return
	}

	if ev.Event != zoom.EventRecordingCompleted {
		h.count("ignored")
		h.logger.Info("zoom event ignored", zap.String("event", ev.Event))
		response.OK(c, gin.H{"status": "ignored"})
		return
	}
	if tenant == nil {
		h.count("unknown_tenant")
		h.logger.Warn("recording for unmapped account ignored", zap.String("account_id", ev.Payload.AccountID))
		response.OK(c, gin.H{"status": "ignored"})
		return
	}
	h.recordingCompleted(c, tenant, &ev)
}

// tenant resolves the path tenant, else the account owner, else the default tenant. found is
// false only for an unknown path tenant; a nil tenant with found means process defaults apply.
func (h *WebhookHandler) tenant(ctx context.Context, param, accountID string) (*models.Tenant, bool, error) {
	if param != "" {
		id, err := uuid.Parse(param)
		if err != nil {
			return nil, false, nil
		}
		t, err := h.tenants.GetByID(ctx, id)
		return t, t != nil, err
	}
	t, err := h.tenants.GetByZoomAccount(ctx, accountID)
	if err != nil || t != nil {
		return t, true, err
	}
	if h.cfg.DefaultTenantID != uuid.Nil {
		t, err = h.tenants.GetByID(ctx, h.cfg.DefaultTenantID)
	}
	return t, true, err
}

func (h *WebhookHandler) recordingCompleted(c *gin.Context, tenant *models.Tenant, ev *zoomEvent) {
	ctx := c.Request.Context()
	m := &ev.Payload.Object
	logger := h.logger.With(zap.String("tenant_id", tenant.ID.String()), zap.String("external_id", m.UUID))
	if m.UUID == "" {
		response.BadRequest(c, "missing meeting uuid")
		return
	}

	file := zoom.SelectVideoFile(m.RecordingFiles, h.cfg.PreferredType)
	if file == nil {
		h.count("no_video")
		metrics.Degraded.WithLabelValues(metrics.ReasonNoVideoFile).Inc()
		logger.Warn("recording has no mp4 file, skipping", zap.Int("files", len(m.RecordingFiles)))
		response.OK(c, gin.H{"status": "skipped"})
		return
	}

	existing, err := h.store.GetByExternalID(ctx, tenant.ID, m.UUID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Error("lookup recording", zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	if existing != nil && existing.Status != models.StatusPending && existing.Status != models.StatusFailed {
		h.count("duplicate")
		logger.Info("recording already processed or in progress", zap.String("status", string(existing.Status)))
		response.OK(c, gin.H{"status": "duplicate", "recording_id": existing.ID})
		return
	}

	job := h.jobFor(ctx, tenant, m, file, ev.DownloadToken)
	rec, err := h.store.Upsert(ctx, models.NewRecordingFromJob(job))
	if err != nil {
		logger.Error("upsert recording", zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	queued, err := h.queue.Enqueue(ctx, queue.TopicRecordings, job.DedupeKey(), job)
	if errors.Is(err, queue.ErrAlreadyQueued) {
		h.count("duplicate")
		logger.Info("recording already queued")
		response.OK(c, gin.H{"status": "duplicate", "recording_id": rec.ID})
		return
	}
	if err != nil {
		logger.Error("enqueue recording", zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	h.count("queued")
	logger.Info("recording queued", zap.String("recording_id", rec.ID.String()), zap.String("job_id", queued.ID))
	response.OK(c, gin.H{"status": "queued", "recording_id": rec.ID, "job_id": queued.ID})
}

func (h *WebhookHandler) jobFor(ctx context.Context, tenant *models.Tenant, m *zoom.Meeting, file *zoom.RecordingFile, downloadToken string) *models.ProcessingJob {
	job := &models.ProcessingJob{
		TenantID:      tenant.ID,
		ExternalID:    m.UUID,
		MeetingNumber: tenants.MeetingNumber(m.JoinURL),
		Title:         m.Topic,
		HostID:        m.HostID,
		HostEmail:     m.HostEmail,
		StartTime:     m.StartTime,
		SourceURL:     m.ShareURL,
		DownloadURL:   file.DownloadURL,
		DownloadToken: downloadToken,
	}
	if m.ID != 0 {
		job.MeetingNumber = strconv.FormatInt(m.ID, 10)
	}
	if job.SourceURL == "" {
		job.SourceURL = file.PlayURL
	}
	if job.StartTime.IsZero() {
		job.StartTime = time.Now().UTC()
	}
	if m.Duration > 0 {
		secs := m.Duration * 60
		job.DurationSeconds = &secs
	}
	clients, err := h.tenants.ClientURLs(ctx, tenant.ID)
	if err != nil {
		h.logger.Warn("load client urls, recording stays untagged", zap.Error(err))
	}
	job.ClientTag = tenants.MatchClient(m.JoinURL, clients)
	return job
}

func (h *WebhookHandler) count(result string) {
	metrics.WebhookEvents.WithLabelValues("zoom", result).Inc()
}
