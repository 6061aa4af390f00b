package recordings

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/aura-webinar/meeting-pipeline/config"
	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/internal/notes"
	"github.com/aura-webinar/meeting-pipeline/pkg/signature"
)

type fakeMatcher struct {
	calls int
	res   *notes.Result
	err   error
}

func (f *fakeMatcher) Handle(context.Context, uuid.UUID, notes.Payload) (*notes.Result, error) {
	f.calls++
	return f.res, f.err
}

func newNotesRouter(tenant *models.Tenant, m NotesMatcher) *gin.Engine {
	tl := &fakeTenants{byID: map[uuid.UUID]*models.Tenant{tenant.ID: tenant}}
	h := NewNotesWebhookHandler(tl, credentials.NewResolver(config.DefaultsConfig{}, config.PipelineConfig{}), m, nil)
	r := gin.New()
	r.POST("/webhook/notes/:tenantId", h.Notes)
	return r
}

func postNotes(r http.Handler, tenantID string, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/notes/"+tenantID, bytes.NewReader(body))
	req.Header.Set(HeaderNotesSignature, sig)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNotesWebhookStatuses(t *testing.T) {
	body := []byte(`{"host_email":"host@example.com","happened_at":"2024-05-01T09:05:00Z","notes":"n","action_items":["a"]}`)
	enabled := &models.Tenant{ID: uuid.New(), NotesSecret: "ns", NotesEnabled: true}
	disabled := &models.Tenant{ID: uuid.New(), NotesSecret: "ns"}
	good := signature.Sign("ns", body)

	m := &fakeMatcher{res: &notes.Result{Matched: true, RecordingID: uuid.New()}}
	r := newNotesRouter(enabled, m)
	assert.Equal(t, http.StatusNotFound, postNotes(r, uuid.NewString(), body, good).Code)
	assert.Equal(t, http.StatusUnauthorized, postNotes(r, enabled.ID.String(), body, signature.Sign("wrong", body)).Code)
	assert.Equal(t, 0, m.calls)

	w := postNotes(r, enabled.ID.String(), body, good)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"matched":true`)
	assert.Equal(t, 1, m.calls)

	rd := newNotesRouter(disabled, &fakeMatcher{})
	assert.Equal(t, http.StatusForbidden, postNotes(rd, disabled.ID.String(), body, good).Code)
}

func TestNotesWebhookAcknowledgesInternalErrors(t *testing.T) {
	tenant := &models.Tenant{ID: uuid.New(), NotesSecret: "ns", NotesEnabled: true}
	body := []byte(`{"host_email":"host@example.com","happened_at":"2024-05-01T09:05:00Z"}`)
	resolver := credentials.NewResolver(config.DefaultsConfig{}, config.PipelineConfig{})

	tests := []struct {
		name    string
		tenants *fakeTenants
		matcher *fakeMatcher
		calls   int
	}{
		{
			name:    "matcher error",
			tenants: &fakeTenants{byID: map[uuid.UUID]*models.Tenant{tenant.ID: tenant}},
			matcher: &fakeMatcher{err: errors.New("db down")},
			calls:   1,
		},
		{
			name:    "tenant lookup error",
			tenants: &fakeTenants{err: errors.New("connection refused")},
			matcher: &fakeMatcher{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/webhook/notes/:tenantId", NewNotesWebhookHandler(tt.tenants, resolver, tt.matcher, nil).Notes)

			w := postNotes(r, tenant.ID.String(), body, signature.Sign("ns", body))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), `"matched":false`)
			assert.Equal(t, tt.calls, tt.matcher.calls)
		})
	}
}
