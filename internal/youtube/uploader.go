// Package youtube uploads recordings to YouTube as unlisted videos.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/aura-webinar/meeting-pipeline/config"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/pkg/retry"
)

const (
	MaxTitle       = 100
	MaxDescription = 5000
	WatchURL       = "https://www.youtube.com/watch?v="
)

// ErrNotConfigured is returned when the OAuth client or the refresh token is missing.
var ErrNotConfigured = errors.New("youtube upload not configured")

// DefaultTags are attached to every uploaded recording.
var DefaultTags = []string{"Zoom", "meeting", "recording"}

// Metadata is the snippet of an uploaded video.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
}

// BuildMetadata derives the video title and description from a recording, within YouTube's limits.
func BuildMetadata(rec *models.Recording) Metadata {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = "Meeting " + rec.StartTime.Format("2006-01-02 15:04")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", title)
	if !rec.StartTime.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", rec.StartTime.Format("2006-01-02 15:04 MST"))
	}
	if rec.DurationSeconds != nil {
		fmt.Fprintf(&b, "Duration: %s\n", (time.Duration(*rec.DurationSeconds) * time.Second).String())
	}
	if rec.HostEmail != "" {
		fmt.Fprintf(&b, "Host: %s\n", rec.HostEmail)
	}
	if rec.ClientTag != nil {
		fmt.Fprintf(&b, "Client: %s\n", *rec.ClientTag)
	}
	if rec.SourceURL != "" {
		fmt.Fprintf(&b, "Source: %s\n", rec.SourceURL)
	}
	tags := append([]string{}, DefaultTags...)
	if rec.ClientTag != nil {
		tags = append(tags, *rec.ClientTag)
	}
	return Metadata{
		Title:       truncate(title, MaxTitle),
		Description: truncate(strings.TrimSpace(b.String()), MaxDescription),
		Tags:        tags,
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// Video is an uploaded video.
type Video struct {
	ID  string
	URL string
}

// Uploader uploads with a per-tenant refresh token against one OAuth client.
type Uploader struct {
	oauth    *oauth2.Config
	category string
	privacy  string
	timeout  time.Duration
	policy   retry.Policy
	logger   *zap.Logger
}

// NewUploader creates an uploader for the configured OAuth client.
func NewUploader(cfg config.GoogleConfig, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	u := &Uploader{
		category: cfg.YouTubeCategoryID,
		privacy:  cfg.YouTubePrivacy,
		timeout:  cfg.UploadTimeout,
		policy:   retry.Policy{Attempts: 2, InitialInterval: 5 * time.Second, MaxInterval: 30 * time.Second},
		logger:   logger,
	}
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		u.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{yt.YoutubeUploadScope},
		}
	}
	return u
}

// Configured reports whether an upload with refreshToken can be attempted.
func (u *Uploader) Configured(refreshToken string) bool {
	return u.oauth != nil && refreshToken != ""
}

func (u *Uploader) video(m Metadata) *yt.Video {
	category := u.category
	if category == "" {
		category = "22"
	}
	privacy := u.privacy
	if privacy == "" {
		privacy = "unlisted"
	}
	return &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       truncate(m.Title, MaxTitle),
			Description: truncate(m.Description, MaxDescription),
			Tags:        m.Tags,
			CategoryId:  category,
		},
		Status: &yt.VideoStatus{PrivacyStatus: privacy, SelfDeclaredMadeForKids: false},
	}
}

// Upload sends the file at path and returns the new video's id and watch URL.
func (u *Uploader) Upload(ctx context.Context, refreshToken, path string, m Metadata) (*Video, error) {
	if !u.Configured(refreshToken) {
		return nil, ErrNotConfigured
	}
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	client := u.oauth.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})
	svc, err := yt.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	var id string
	err = retry.Do(ctx, u.policy, func() error {
		f, err := os.Open(path)
		if err != nil {
			return retry.Permanent(err)
		}
		defer f.Close()
		resp, err := svc.Videos.Insert([]string{"snippet", "status"}, u.video(m)).
			Media(f, googleapi.ChunkSize(googleapi.DefaultUploadChunkSize)).
			Context(ctx).
			Do()
		if err != nil {
			return retry.Classify(err, statusOf(err))
		}
		id = resp.Id
		return nil
	}, func(err error, wait time.Duration) {
		u.logger.Warn("youtube upload failed, retrying", zap.Duration("backoff", wait), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("youtube upload: %w", err)
	}
	u.logger.Info("video uploaded", zap.String("video_id", id))
	return &Video{ID: id, URL: WatchURL + id}, nil
}

func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
