// Package app assembles the recording pipeline from configuration. Both binaries use it: the
// worker runs jobs through it and the server resumes recordings when meeting notes arrive.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-webinar/meeting-pipeline/config"
	"github.com/aura-webinar/meeting-pipeline/internal/audio"
	"github.com/aura-webinar/meeting-pipeline/internal/clients"
	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/destinations"
	"github.com/aura-webinar/meeting-pipeline/internal/events"
	"github.com/aura-webinar/meeting-pipeline/internal/notify"
	"github.com/aura-webinar/meeting-pipeline/internal/pipeline"
	"github.com/aura-webinar/meeting-pipeline/internal/recordings"
	"github.com/aura-webinar/meeting-pipeline/internal/summary"
	"github.com/aura-webinar/meeting-pipeline/internal/tenants"
	"github.com/aura-webinar/meeting-pipeline/internal/transcription"
	"github.com/aura-webinar/meeting-pipeline/internal/youtube"
	"github.com/aura-webinar/meeting-pipeline/internal/zoom"
	"github.com/aura-webinar/meeting-pipeline/pkg/ffmpeg"
	"github.com/aura-webinar/meeting-pipeline/pkg/storage"
)

// App holds the shared services built from one Config.
type App struct {
	Recordings  *recordings.Repository
	Tenants     *tenants.Repository
	Credentials *credentials.Resolver
	Events      *events.RedisPubSub
	Archive     *storage.S3 // nil when no archive bucket is configured
	FFmpeg      *ffmpeg.FFmpeg
	Pipeline    *pipeline.Pipeline
}

// New wires repositories, API clients and destinations into a pipeline.
// A failure to reach the archive bucket disables the archive destination rather than failing.
func New(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger *zap.Logger) *App {
	a := &App{
		Recordings:  recordings.NewRepository(pool),
		Tenants:     tenants.NewRepository(pool),
		Credentials: credentials.NewResolver(cfg.Defaults, cfg.Pipeline),
		Events:      events.NewRedisPubSub(rdb, logger),
		FFmpeg:      ffmpeg.New(cfg.Pipeline.FFmpegPath, cfg.Pipeline.FFprobePath, cfg.Pipeline.FFmpegTimeout),
	}

	if cfg.AWS.ArchiveBucket != "" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.ArchiveBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("archive disabled", zap.Error(err))
		} else {
			a.Archive = s3
		}
	}

	factory := clients.NewFactory(cfg.OpenAI, nil)

	// A nil *storage.S3 must not reach the interface.
	var objects destinations.ObjectStore
	if a.Archive != nil {
		objects = a.Archive
	}
	syncer := destinations.NewSyncer(logger, cfg.Pipeline.SyncTimeout,
		destinations.NewSheetsFromCredentialsFile(cfg.Google.SheetName, cfg.Google.CredentialsFile),
		destinations.NewNotion(factory, cfg.Notion.TranscriptExcerpt),
		destinations.NewArchive(objects),
	)

	chunker := audio.NewChunker(a.FFmpeg, cfg.Pipeline.SizeCeilingBytes, cfg.Pipeline.ChunkOverlap.Seconds(), logger)

	var notifier pipeline.Notifier
	if slack := notify.NewSlack(cfg.Slack.WebhookURL, logger); slack.Enabled() {
		notifier = slack
	}

	a.Pipeline = pipeline.New(pipeline.Deps{
		Store:       a.Recordings,
		Tenants:     a.Tenants,
		Credentials: a.Credentials,
		Media:       zoom.NewClient(cfg.Zoom, logger),
		Downloader:  zoom.NewDownloader(cfg.Pipeline.DownloadTimeout, cfg.Pipeline.MaxDownloadBytes, logger),
		Video:       youtube.NewUploader(cfg.Google, logger),
		Transcriber: transcription.NewService(chunker, "", logger),
		Summarizer:  summary.NewService(logger),
		Clients:     factory,
		Syncer:      syncer,
		Publisher:   a.Events,
		Notifier:    notifier,
	}, pipeline.Options{
		WorkDir:       cfg.Pipeline.WorkDir,
		PreferredType: cfg.Zoom.PreferredType,
	}, logger)
	return a
}
