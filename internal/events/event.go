// Package events carries recording status changes from the worker to operator websocket clients.
// The worker publishes to Redis; every server instance subscribes per tenant and fans out locally.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

// TypeStatus is the event type for a status transition.
const TypeStatus = "recording.status"

// Event is one status transition of a recording.
type Event struct {
	Type        string                 `json:"type"`
	TenantID    uuid.UUID              `json:"tenant_id"`
	RecordingID uuid.UUID              `json:"recording_id"`
	ExternalID  string                 `json:"external_id"`
	Title       string                 `json:"title,omitempty"`
	Status      models.RecordingStatus `json:"status"`
	Error       string                 `json:"error,omitempty"`
	At          time.Time              `json:"at"`
}

// StatusChanged builds the event for rec entering its current status.
func StatusChanged(rec *models.Recording, at time.Time) Event {
	ev := Event{
		Type:        TypeStatus,
		TenantID:    rec.TenantID,
		RecordingID: rec.ID,
		ExternalID:  rec.ExternalID,
		Title:       rec.Title,
		Status:      rec.Status,
		At:          at.UTC(),
	}
	if rec.ErrorMessage != nil {
		ev.Error = *rec.ErrorMessage
	}
	return ev
}
