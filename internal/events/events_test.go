package events

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

func newPubSub(t *testing.T) *RedisPubSub {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPubSub(client, nil)
}

func TestPublishSubscribe(t *testing.T) {
	ps := newPubSub(t)
	tenant := uuid.New()
	got := make(chan Event, 1)

	cancel, err := ps.Subscribe(tenant, func(ev Event) { got <- ev })
	require.NoError(t, err)
	defer cancel()

	rec := &models.Recording{ID: uuid.New(), TenantID: tenant, ExternalID: "abc==", Status: models.StatusTranscribing}
	require.NoError(t, ps.Publish(context.Background(), StatusChanged(rec, time.Now())))

	select {
	case ev := <-got:
		assert.Equal(t, rec.ID, ev.RecordingID)
		assert.Equal(t, models.StatusTranscribing, ev.Status)
		assert.Equal(t, TypeStatus, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestStatusChangedCarriesError(t *testing.T) {
	msg := "download: server returned status 404"
	ev := StatusChanged(&models.Recording{Status: models.StatusFailed, ErrorMessage: &msg}, time.Now())
	assert.Equal(t, msg, ev.Error)
}

func TestWebsocketReceivesTenantEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tenant := uuid.New()
	hub := NewHub(nil, nil)
	validate := func(token string) (uuid.UUID, error) {
		if token != "good" {
			return uuid.Nil, errors.New("bad token")
		}
		return tenant, nil
	}
	r := gin.New()
	r.GET("/events", ServeWs(hub, validate, nil))
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bad", nil)
	require.Error(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=good", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients(tenant) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(Event{Type: TypeStatus, TenantID: uuid.New(), Status: models.StatusSyncing})
	hub.Broadcast(Event{Type: TypeStatus, TenantID: tenant, Status: models.StatusCompleted})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.StatusCompleted, ev.Status, "other tenants' events are not delivered")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients(tenant) == 0 }, 2*time.Second, 10*time.Millisecond)
}
