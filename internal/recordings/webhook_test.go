package recordings

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/meeting-pipeline/config"
	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/pkg/queue"
	"github.com/aura-webinar/meeting-pipeline/pkg/signature"
)

const zoomSecret = "zm-secret"

type webhookFixture struct {
	router *gin.Engine
	store  *memStore
	queue  *queue.Queue
	tenant *models.Tenant
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	tenant := &models.Tenant{ID: uuid.New(), Name: "Acme", ZoomAccountID: "acct-1", WebhookSecret: zoomSecret}
	tl := &fakeTenants{
		byID:    map[uuid.UUID]*models.Tenant{tenant.ID: tenant},
		clients: []models.ClientURL{{TenantID: tenant.ID, ClientName: "Globex", URL: "https://us02web.zoom.us/j/85746065432?pwd=x"}},
	}
	f := &webhookFixture{store: &memStore{}, queue: newTestQueue(t), tenant: tenant}
	resolver := credentials.NewResolver(config.DefaultsConfig{}, config.PipelineConfig{})
	h := NewWebhookHandler(tl, f.store, f.queue, resolver, WebhookConfig{
		ReplayWindow:  5 * time.Minute,
		PreferredType: "shared_screen_with_speaker_view",
	}, nil)
	r := gin.New()
	r.POST("/webhook/zoom", h.Zoom)
	r.POST("/webhook/zoom/:tenantId", h.Zoom)
	f.router = r
	return f
}

func recordingCompletedBody(files []map[string]any) []byte {
	b, _ := json.Marshal(map[string]any{
		"event":          "recording.completed",
		"download_token": "dl-token",
		"payload": map[string]any{
			"account_id": "acct-1",
			"object": map[string]any{
				"uuid":            "4444AAAiAAAAAiAiAiiAii==",
				"id":              85746065432,
				"host_email":      "host@example.com",
				"topic":           "Quarterly review",
				"start_time":      "2024-05-01T09:00:00Z",
				"duration":        45,
				"share_url":       "https://zoom.us/rec/share/abc",
				"join_url":        "https://us02web.zoom.us/j/85746065432",
				"recording_files": files,
			},
		},
	})
	return b
}

var mp4Files = []map[string]any{
	{"file_type": "M4A", "download_url": "https://zoom.test/audio"},
	{"file_type": "MP4", "recording_type": "active_speaker", "download_url": "https://zoom.test/speaker"},
	{"file_type": "MP4", "recording_type": "shared_screen_with_speaker_view", "download_url": "https://zoom.test/shared"},
}

func (f *webhookFixture) post(path string, body []byte, signed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signed {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("x-zm-request-timestamp", ts)
		req.Header.Set("x-zm-signature", signature.ZoomSignature(zoomSecret, ts, body))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestZoomURLValidation(t *testing.T) {
	f := newWebhookFixture(t)
	body := []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"qgg8vlvZRS6UYooatFL8Aw","account_id":"acct-1"}}`)

	w := f.post("/webhook/zoom", body, false)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "qgg8vlvZRS6UYooatFL8Aw", got["plainToken"])
	assert.Equal(t, signature.Sign(zoomSecret, []byte("qgg8vlvZRS6UYooatFL8Aw")), got["encryptedToken"])
}

func TestZoomInvalidSignatureCreatesNothing(t *testing.T) {
	f := newWebhookFixture(t)
	body := recordingCompletedBody(mp4Files)

	req := httptest.NewRequest(http.MethodPost, "/webhook/zoom", bytes.NewReader(body))
	req.Header.Set("x-zm-request-timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("x-zm-signature", "v0=deadbeef")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.store.rows)
	c, err := f.queue.Counts(context.Background(), queue.TopicRecordings)
	require.NoError(t, err)
	assert.Zero(t, c.Waiting)
}

func TestZoomRecordingCompletedQueuesJob(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.post("/webhook/zoom", recordingCompletedBody(mp4Files), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, f.store.rows, 1)
	rec := f.store.rows[0]
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Equal(t, f.tenant.ID, rec.TenantID)
	assert.Equal(t, "85746065432", rec.MeetingNumber)
	require.NotNil(t, rec.ClientTag)
	assert.Equal(t, "Globex", *rec.ClientTag)
	require.NotNil(t, rec.DurationSeconds)
	assert.Equal(t, 2700, *rec.DurationSeconds)

	job, err := f.queue.Dequeue(context.Background(), queue.TopicRecordings, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	var pj models.ProcessingJob
	require.NoError(t, json.Unmarshal(job.Payload, &pj))
	assert.Equal(t, "https://zoom.test/shared", pj.DownloadURL)
	assert.Equal(t, "dl-token", pj.DownloadToken)
}

func TestZoomDuplicateDeliveryIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	body := recordingCompletedBody(mp4Files)

	require.Equal(t, http.StatusOK, f.post("/webhook/zoom", body, true).Code)
	w := f.post("/webhook/zoom", body, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")
	assert.Len(t, f.store.rows, 1)

	c, err := f.queue.Counts(context.Background(), queue.TopicRecordings)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Waiting)
}

func TestZoomSkipsRecordingWithoutVideo(t *testing.T) {
	f := newWebhookFixture(t)
	w := f.post("/webhook/zoom", recordingCompletedBody([]map[string]any{{"file_type": "M4A", "download_url": "https://zoom.test/a"}}), true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "skipped")
	assert.Empty(t, f.store.rows)
}

func TestZoomTenantPath(t *testing.T) {
	f := newWebhookFixture(t)
	assert.Equal(t, http.StatusNotFound, f.post("/webhook/zoom/"+uuid.NewString(), recordingCompletedBody(mp4Files), true).Code)
	assert.Equal(t, http.StatusNotFound, f.post("/webhook/zoom/not-a-uuid", recordingCompletedBody(mp4Files), true).Code)
	assert.Equal(t, http.StatusOK, f.post("/webhook/zoom/"+f.tenant.ID.String(), recordingCompletedBody(mp4Files), true).Code)
}

func TestZoomOtherEventsIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	w := f.post("/webhook/zoom", []byte(`{"event":"meeting.started","payload":{"account_id":"acct-1"}}`), true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}
