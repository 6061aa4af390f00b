package zoom

import (
	"strings"
	"time"
)

// Webhook event names.
const (
	EventURLValidation      = "endpoint.url_validation"
	EventRecordingCompleted = "recording.completed"
)

// RecordingFile is one file of a cloud recording.
type RecordingFile struct {
	ID             string `json:"id"`
	FileType       string `json:"file_type"`
	FileExtension  string `json:"file_extension"`
	FileSize       int64  `json:"file_size"`
	RecordingType  string `json:"recording_type"`
	DownloadURL    string `json:"download_url"`
	PlayURL        string `json:"play_url"`
	Status         string `json:"status"`
	RecordingStart string `json:"recording_start"`
}

// IsMP4 reports whether the file is an MP4 video.
func (f RecordingFile) IsMP4() bool {
	return strings.EqualFold(f.FileType, "MP4") || strings.EqualFold(f.FileExtension, "MP4")
}

// Meeting is the recording object delivered by webhooks and the recordings API.
type Meeting struct {
	UUID           string          `json:"uuid"`
	ID             int64           `json:"id"`
	AccountID      string          `json:"account_id"`
	HostID         string          `json:"host_id"`
	HostEmail      string          `json:"host_email"`
	Topic          string          `json:"topic"`
	StartTime      time.Time       `json:"start_time"`
	Duration       int             `json:"duration"` // minutes
	ShareURL       string          `json:"share_url"`
	JoinURL        string          `json:"join_url"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}

// SelectVideoFile picks the preferred MP4 (by recording type), else the first MP4.
// Returns nil when the recording has no MP4.
func SelectVideoFile(files []RecordingFile, preferredType string) *RecordingFile {
	var first *RecordingFile
	for i := range files {
		f := &files[i]
		if !f.IsMP4() || f.DownloadURL == "" {
			continue
		}
		if preferredType != "" && f.RecordingType == preferredType {
			return f
		}
		if first == nil {
			first = f
		}
	}
	return first
}
