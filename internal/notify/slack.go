// Package notify posts pipeline completion and failure notices to a Slack incoming webhook.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

// Slack posts to one incoming webhook. An empty URL disables it.
type Slack struct {
	webhookURL string
	logger     *zap.Logger
}

// NewSlack creates a notifier.
func NewSlack(webhookURL string, logger *zap.Logger) *Slack {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Slack{webhookURL: webhookURL, logger: logger}
}

// Enabled reports whether a webhook URL is configured.
func (s *Slack) Enabled() bool { return s.webhookURL != "" }

// Completed announces a finished recording with links to its artifacts.
func (s *Slack) Completed(ctx context.Context, rec *models.Recording) {
	fields := []slack.AttachmentField{
		{Title: "Start", Value: rec.StartTime.Format("2006-01-02 15:04"), Short: true},
	}
	if rec.ClientTag != nil {
		fields = append(fields, slack.AttachmentField{Title: "Client", Value: *rec.ClientTag, Short: true})
	}
	if rec.YouTubeURL != nil {
		fields = append(fields, slack.AttachmentField{Title: "Video", Value: *rec.YouTubeURL})
	}
	if failed := failedDestinations(rec); len(failed) > 0 {
		fields = append(fields, slack.AttachmentField{Title: "Sync failures", Value: strings.Join(failed, ", ")})
	}
	s.post(ctx, &slack.WebhookMessage{
		Text: fmt.Sprintf("Recording processed: %s", title(rec)),
		Attachments: []slack.Attachment{{
			Color:  "good",
			Fields: fields,
		}},
	})
}

// Failed announces a recording that failed its last attempt.
func (s *Slack) Failed(ctx context.Context, rec *models.Recording, cause error) {
	s.post(ctx, &slack.WebhookMessage{
		Text: fmt.Sprintf("Recording failed: %s", title(rec)),
		Attachments: []slack.Attachment{{
			Color: "danger",
			Fields: []slack.AttachmentField{
				{Title: "Recording", Value: rec.ID.String(), Short: true},
				{Title: "Attempts", Value: fmt.Sprint(rec.RetryCount + 1), Short: true},
				{Title: "Error", Value: models.TruncateError(cause.Error())},
			},
		}},
	})
}

func (s *Slack) post(ctx context.Context, msg *slack.WebhookMessage) {
	if !s.Enabled() {
		return
	}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		s.logger.Warn("slack notification failed", zap.Error(err))
	}
}

func title(rec *models.Recording) string {
	if rec.Title != "" {
		return rec.Title
	}
	return rec.ExternalID
}

func failedDestinations(rec *models.Recording) []string {
	var out []string
	for name, o := range map[string]models.Outcome{
		"youtube": rec.YouTube, "sheets": rec.Sheets, "notion": rec.Notion, "archive": rec.Archive,
	} {
		if o.Success != nil && !*o.Success {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
