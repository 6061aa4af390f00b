package recordings

import (
	"context"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/metrics"
	"github.com/aura-webinar/meeting-pipeline/internal/notes"
	"github.com/aura-webinar/meeting-pipeline/pkg/response"
	"github.com/aura-webinar/meeting-pipeline/pkg/signature"
)

// HeaderNotesSignature carries hex(HMAC-SHA256(notes secret, body)).
const HeaderNotesSignature = "X-Notes-Signature"

// NotesMatcher attaches a notes delivery to a recording.
type NotesMatcher interface {
	Handle(ctx context.Context, tenantID uuid.UUID, p notes.Payload) (*notes.Result, error)
}

// NotesWebhookHandler receives meeting notes from the notes provider.
type NotesWebhookHandler struct {
	tenants  TenantLookup
	resolver *credentials.Resolver
	matcher  NotesMatcher
	logger   *zap.Logger
}

// NewNotesWebhookHandler creates the notes webhook handler.
func NewNotesWebhookHandler(tenantLookup TenantLookup, resolver *credentials.Resolver, matcher NotesMatcher, logger *zap.Logger) *NotesWebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotesWebhookHandler{tenants: tenantLookup, resolver: resolver, matcher: matcher, logger: logger}
}

// Notes handles POST /webhook/notes/:tenantId. Unknown tenants get 404, bad signatures 401 and
// disabled tenants 403; every other delivery, including one that hits an internal error, is
// acknowledged with 200 so the provider does not retry it.
func (h *NotesWebhookHandler) Notes(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, err := uuid.Parse(c.Param("tenantId"))
	if err != nil {
		h.count("unknown_tenant")
		response.NotFound(c, "unknown tenant")
		return
	}
	tenant, err := h.tenants.GetByID(ctx, tenantID)
	if err != nil {
		h.count("error")
		h.logger.Error("load tenant", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		response.OK(c, gin.H{"matched": false})
		return
	}
	if tenant == nil {
		h.count("unknown_tenant")
		response.NotFound(c, "unknown tenant")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "could not read body")
		return
	}
	creds := h.resolver.Resolve(tenant)
	if err := signature.VerifyBody(creds.NotesSecret, body, c.GetHeader(HeaderNotesSignature)); err != nil {
		h.count("unauthorized")
		h.logger.Warn("notes webhook rejected", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		response.Unauthorized(c, "invalid signature")
		return
	}
	if !tenant.NotesEnabled {
		h.count("disabled")
		response.Forbidden(c, "notes integration disabled")
		return
	}

	var p notes.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		h.count("invalid")
		h.logger.Warn("notes payload not parseable", zap.Error(err))
		response.OK(c, gin.H{"matched": false})
		return
	}
	res, err := h.matcher.Handle(ctx, tenantID, p)
	if err != nil {
		h.count("error")
		h.logger.Error("notes handling failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
	if res == nil {
		response.OK(c, gin.H{"matched": false})
		return
	}
	h.count("accepted")
	out := gin.H{"matched": res.Matched, "resumed": res.Resumed}
	if res.Matched {
		out["recording_id"] = res.RecordingID
	}
	response.OK(c, out)
}

func (h *NotesWebhookHandler) count(result string) {
	metrics.WebhookEvents.WithLabelValues("notes", result).Inc()
}
