package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage is one step of the processing pipeline.
type Stage string

const (
	StageDownload   Stage = "download"
	StageUpload     Stage = "upload"
	StageTranscribe Stage = "transcribe"
	StageSummarize  Stage = "summarize"
	StageSync       Stage = "sync"
)

// AllStages is the pipeline order.
var AllStages = []Stage{StageDownload, StageUpload, StageTranscribe, StageSummarize, StageSync}

// ParseStages validates a reprocess step list. Upload and transcribe need the media file,
// so they pull in download.
func ParseStages(raw []string) ([]Stage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	want := make(map[Stage]bool, len(raw))
	for _, s := range raw {
		st := Stage(s)
		switch st {
		case StageDownload, StageUpload, StageTranscribe, StageSummarize, StageSync:
			want[st] = true
		default:
			return nil, fmt.Errorf("unknown stage %q", s)
		}
	}
	if want[StageUpload] || want[StageTranscribe] {
		want[StageDownload] = true
	}
	out := make([]Stage, 0, len(want))
	for _, st := range AllStages {
		if want[st] {
			out = append(out, st)
		}
	}
	return out, nil
}

// ProcessingJob is the queue payload for one attempt at processing a recording.
type ProcessingJob struct {
	JobID           string    `json:"job_id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	ExternalID      string    `json:"external_id"`
	MeetingNumber   string    `json:"meeting_number,omitempty"`
	Title           string    `json:"title"`
	HostID          string    `json:"host_id,omitempty"`
	HostEmail       string    `json:"host_email,omitempty"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	StartTime       time.Time `json:"start_time"`
	SourceURL       string    `json:"source_url,omitempty"`
	DownloadURL     string    `json:"download_url,omitempty"`
	DownloadToken   string    `json:"download_token,omitempty"`
	ClientTag       *string   `json:"client_tag,omitempty"`
	Reprocess       bool      `json:"reprocess,omitempty"`
	Steps           []Stage   `json:"steps,omitempty"`
}

// Runs reports whether the job executes stage st. An empty step list runs everything.
func (j *ProcessingJob) Runs(st Stage) bool {
	if len(j.Steps) == 0 {
		return true
	}
	for _, s := range j.Steps {
		if s == st {
			return true
		}
	}
	return false
}

// DedupeKey identifies the recording across jobs, so only one job per recording is in flight.
func (j *ProcessingJob) DedupeKey() string {
	return j.TenantID.String() + ":" + j.ExternalID
}

// NewRecordingFromJob builds the PENDING record upserted before the first stage runs.
func NewRecordingFromJob(j *ProcessingJob) *Recording {
	return &Recording{
		TenantID:        j.TenantID,
		ExternalID:      j.ExternalID,
		MeetingNumber:   j.MeetingNumber,
		Title:           j.Title,
		HostID:          j.HostID,
		HostEmail:       j.HostEmail,
		StartTime:       j.StartTime,
		DurationSeconds: j.DurationSeconds,
		SourceURL:       j.SourceURL,
		ClientTag:       j.ClientTag,
		Status:          StatusPending,
	}
}

// ReprocessJob builds a job for an existing recording. The media URL is looked up again by the
// worker, since webhook download URLs expire.
func ReprocessJob(rec *Recording, steps []Stage) *ProcessingJob {
	return &ProcessingJob{
		TenantID:        rec.TenantID,
		ExternalID:      rec.ExternalID,
		MeetingNumber:   rec.MeetingNumber,
		Title:           rec.Title,
		HostID:          rec.HostID,
		HostEmail:       rec.HostEmail,
		DurationSeconds: rec.DurationSeconds,
		StartTime:       rec.StartTime,
		SourceURL:       rec.SourceURL,
		ClientTag:       rec.ClientTag,
		Reprocess:       true,
		Steps:           steps,
	}
}
