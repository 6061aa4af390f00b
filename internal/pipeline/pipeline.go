// Package pipeline drives one recording through download, upload, transcription, summarization
// and sync, persisting every status change.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/destinations"
	"github.com/aura-webinar/meeting-pipeline/internal/events"
	"github.com/aura-webinar/meeting-pipeline/internal/metrics"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/internal/notes"
	"github.com/aura-webinar/meeting-pipeline/internal/summary"
	"github.com/aura-webinar/meeting-pipeline/internal/transcription"
	"github.com/aura-webinar/meeting-pipeline/internal/youtube"
	"github.com/aura-webinar/meeting-pipeline/internal/zoom"
)

var (
	// ErrTenantNotFound is returned when a job names a tenant that does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrNotWaiting is returned when notes arrive for a recording that is not waiting for them.
	ErrNotWaiting = notes.ErrNotWaiting
)

// Options tune the pipeline.
type Options struct {
	// WorkDir is the parent of the per-job temp directories; empty means os.TempDir().
	WorkDir string
	// PreferredType is the recording_type picked when choosing the video file.
	PreferredType string
}

// Pipeline processes recordings. It holds no per-job state and is safe to reuse.
type Pipeline struct {
	Deps
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a pipeline.
func New(deps Deps, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{Deps: deps, opts: opts, logger: logger, now: time.Now}
}

// run is the state of one job.
type run struct {
	p      *Pipeline
	job    *models.ProcessingJob
	tenant *models.Tenant
	creds  credentials.Credentials
	rec    *models.Recording
	logger *zap.Logger
}

// Process runs a job to completion, to WAITING_NOTES, or to FAILED, and returns the status the
// recording ended in. final marks the last queue attempt; only then is a failure announced.
// The per-job temp directory is removed on every path, and a panicking stage fails the recording
// like any other stage error.
func (p *Pipeline) Process(ctx context.Context, job *models.ProcessingJob, final bool) (status models.RecordingStatus, err error) {
	tenant, creds, err := p.tenant(ctx, job.TenantID)
	if err != nil {
		return "", err
	}
	rec, err := p.Store.Upsert(ctx, models.NewRecordingFromJob(job))
	if err != nil {
		return "", err
	}
	r := &run{
		p: p, job: job, tenant: tenant, creds: creds, rec: rec,
		logger: p.logger.With(zap.String("recording_id", rec.ID.String()), zap.String("external_id", rec.ExternalID)),
	}
	defer r.recoverStage(ctx, final, &status, &err)

	dir, err := os.MkdirTemp(p.opts.WorkDir, "job-*")
	if err != nil {
		return r.fail(ctx, fmt.Errorf("create work dir: %w", err), final)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("remove work dir failed", zap.String("dir", dir), zap.Error(err))
		}
	}()

	if err := r.stages(ctx, dir); err != nil {
		return r.fail(ctx, err, final)
	}
	return r.rec.Status, nil
}

// ResumeAfterNotes finishes a recording parked in WAITING_NOTES: sync, then COMPLETED. It returns
// ErrNotWaiting when the recording is not, or is no longer, waiting.
func (p *Pipeline) ResumeAfterNotes(ctx context.Context, tenantID, recordingID uuid.UUID) (err error) {
	tenant, creds, err := p.tenant(ctx, tenantID)
	if err != nil {
		return err
	}
	rec, err := p.Store.Get(ctx, tenantID, recordingID)
	if err != nil {
		return err
	}
	if rec.Status != models.StatusWaitingNotes {
		return fmt.Errorf("%w: %s", ErrNotWaiting, rec.Status)
	}
	r := &run{
		p: p, tenant: tenant, creds: creds, rec: rec,
		job:    &models.ProcessingJob{TenantID: tenantID, ExternalID: rec.ExternalID},
		logger: p.logger.With(zap.String("recording_id", rec.ID.String()), zap.String("external_id", rec.ExternalID)),
	}
	defer r.recoverStage(ctx, true, nil, &err)

	if err := r.sync(ctx); err != nil {
		if errors.Is(err, models.ErrStatusConflict) && r.rec.Status == models.StatusWaitingNotes {
			return fmt.Errorf("%w: %v", ErrNotWaiting, err)
		}
		_, err = r.fail(ctx, err, true)
		return err
	}
	return nil
}

// recoverStage turns a panic in a stage into a failed recording instead of leaving it in a
// non-terminal status. It must be deferred directly.
func (r *run) recoverStage(ctx context.Context, final bool, status *models.RecordingStatus, err *error) {
	v := recover()
	if v == nil {
		return
	}
	r.logger.Error("stage panicked", zap.Any("panic", v), zap.ByteString("stack", debug.Stack()))
	s, failErr := r.fail(ctx, fmt.Errorf("panic: %v", v), final)
	if status != nil {
		*status = s
	}
	*err = failErr
}

func (p *Pipeline) tenant(ctx context.Context, id uuid.UUID) (*models.Tenant, credentials.Credentials, error) {
	t, err := p.Tenants.GetByID(ctx, id)
	if err != nil {
		return nil, credentials.Credentials{}, err
	}
	if t == nil {
		return nil, credentials.Credentials{}, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	return t, p.Credentials.Resolve(t), nil
}

func (r *run) stages(ctx context.Context, dir string) error {
	if err := r.advance(ctx, models.StatusDownloading, ""); err != nil {
		return err
	}
	var media string
	if r.job.Runs(models.StageDownload) {
		var err error
		if media, err = r.download(ctx, dir); err != nil {
			return err
		}
	}

	if err := r.advance(ctx, models.StatusUploading, ""); err != nil {
		return err
	}
	if r.job.Runs(models.StageUpload) {
		if err := r.upload(ctx, media); err != nil {
			return err
		}
	}

	if err := r.advance(ctx, models.StatusTranscribing, ""); err != nil {
		return err
	}
	if r.job.Runs(models.StageTranscribe) {
		if err := r.transcribe(ctx, media); err != nil {
			return err
		}
	}

	if err := r.advance(ctx, models.StatusSummarizing, ""); err != nil {
		return err
	}
	if r.job.Runs(models.StageSummarize) {
		if err := r.summarize(ctx); err != nil {
			return err
		}
	}

	if r.tenant.NotesEnabled && r.tenant.WaitForNotes {
		return r.waitForNotes(ctx)
	}
	return r.sync(ctx)
}

// waitForNotes parks the recording in WAITING_NOTES unless the notes are already stored. Notes
// merged while the recording was in flight are only visible in the store, so it is read before
// parking and again after: the matcher resumes only recordings it saw parked.
func (r *run) waitForNotes(ctx context.Context) error {
	if err := r.refreshNotes(ctx); err != nil {
		return err
	}
	if r.rec.HasNotes() {
		return r.sync(ctx)
	}
	if err := r.advance(ctx, models.StatusWaitingNotes, ""); err != nil {
		return err
	}
	if err := r.refreshNotes(ctx); err != nil {
		return err
	}
	if !r.rec.HasNotes() {
		r.logger.Info("waiting for meeting notes before sync")
		return nil
	}
	err := r.sync(ctx)
	if errors.Is(err, models.ErrStatusConflict) && r.rec.Status == models.StatusWaitingNotes {
		// The notes delivery resumed the recording first.
		r.logger.Info("recording resumed by notes delivery")
		if cur, getErr := r.p.Store.Get(ctx, r.rec.TenantID, r.rec.ID); getErr == nil {
			r.rec.Status = cur.Status
		}
		return nil
	}
	return err
}

func (r *run) refreshNotes(ctx context.Context) error {
	cur, err := r.p.Store.Get(ctx, r.rec.TenantID, r.rec.ID)
	if err != nil {
		return fmt.Errorf("reload recording: %w", err)
	}
	r.rec.Notes, r.rec.ActionItems, r.rec.NotesReceivedAt = cur.Notes, cur.ActionItems, cur.NotesReceivedAt
	return nil
}

// advance is the only place a recording changes status.
func (r *run) advance(ctx context.Context, to models.RecordingStatus, errMsg string) error {
	from := r.rec.Status
	if err := models.ValidateTransition(from, to); err != nil {
		return err
	}
	if err := r.p.Store.UpdateStatus(ctx, r.rec.ID, from, to, errMsg); err != nil {
		return err
	}
	r.rec.Status = to
	switch to {
	case models.StatusDownloading:
		r.rec.ErrorMessage = nil
	case models.StatusFailed:
		msg := models.TruncateError(errMsg)
		r.rec.ErrorMessage = &msg
	}
	r.logger.Info("status changed", zap.String("from", string(from)), zap.String("to", string(to)))
	r.publish(ctx)
	return nil
}

func (r *run) publish(ctx context.Context) {
	if r.p.Publisher == nil {
		return
	}
	if err := r.p.Publisher.Publish(ctx, events.StatusChanged(r.rec, r.p.now())); err != nil {
		r.logger.Warn("publish status event failed", zap.Error(err))
	}
}

// fail moves the recording to FAILED and returns cause.
func (r *run) fail(ctx context.Context, cause error, final bool) (models.RecordingStatus, error) {
	r.logger.Error("recording processing failed", zap.String("status", string(r.rec.Status)), zap.Bool("final", final), zap.Error(cause))
	if r.rec.Status.Terminal() {
		return r.rec.Status, cause
	}
	// The job context may be the reason for the failure; the status write must still land.
	if err := r.advance(context.WithoutCancel(ctx), models.StatusFailed, cause.Error()); err != nil {
		r.logger.Error("mark recording failed", zap.Error(err))
	}
	if final && r.p.Notifier != nil {
		r.p.Notifier.Failed(context.WithoutCancel(ctx), r.rec, cause)
	}
	return r.rec.Status, cause
}

func observe(stage models.Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}

// download fetches the video into dir. It prefers a fresh URL from the API and falls back to the
// URL and token delivered with the webhook. No URL at all is a degraded input, not an error.
func (r *run) download(ctx context.Context, dir string) (string, error) {
	defer observe(models.StageDownload, time.Now())
	url, token := r.job.DownloadURL, r.job.DownloadToken
	if m := r.p.Media; m != nil && m.Configured() {
		if freshURL, freshToken, err := r.freshURL(ctx, m); err != nil {
			r.logger.Warn("fresh download url lookup failed, using webhook url", zap.Error(err))
			metrics.Degraded.WithLabelValues(metrics.ReasonStaleURL).Inc()
		} else if freshURL != "" {
			url, token = freshURL, freshToken
		}
	}
	if url == "" {
		r.logger.Warn("no media url, continuing without a video file")
		metrics.Degraded.WithLabelValues(metrics.ReasonNoMedia).Inc()
		return "", nil
	}
	path, n, err := r.p.Downloader.Download(ctx, url, token, dir)
	if err != nil {
		return "", fmt.Errorf("download recording: %w", err)
	}
	r.logger.Info("recording downloaded", zap.Int64("bytes", n))
	return path, nil
}

func (r *run) freshURL(ctx context.Context, m MediaSource) (string, string, error) {
	meeting, err := m.GetRecordingFiles(ctx, r.job.ExternalID)
	if err != nil {
		return "", "", err
	}
	f := zoom.SelectVideoFile(meeting.RecordingFiles, r.p.opts.PreferredType)
	if f == nil {
		return "", "", nil
	}
	token, err := m.Token(ctx)
	if err != nil {
		return "", "", err
	}
	return f.DownloadURL, token, nil
}

func (r *run) upload(ctx context.Context, media string) error {
	defer observe(models.StageUpload, time.Now())
	var (
		outcome models.Outcome
		watch   *string
	)
	switch {
	case r.p.Video == nil || !r.p.Video.Configured(r.creds.YouTubeRefreshToken):
		outcome = models.NotConfigured()
	case media == "":
		outcome = models.Failed(errors.New("no media file"))
	default:
		v, err := r.p.Video.Upload(ctx, r.creds.YouTubeRefreshToken, media, youtube.BuildMetadata(r.rec))
		if err != nil {
			r.logger.Warn("video upload failed", zap.Error(err))
			outcome = models.Failed(err)
		} else {
			outcome = models.Succeeded(v.ID)
			watch = &v.URL
		}
	}
	if err := r.p.Store.SaveUpload(ctx, r.rec.ID, outcome, watch); err != nil {
		return err
	}
	r.rec.YouTube = outcome
	r.rec.YouTubeID = outcome.Ref
	r.rec.YouTubeURL = watch
	return nil
}

func (r *run) transcribe(ctx context.Context, media string) error {
	defer observe(models.StageTranscribe, time.Now())
	var text *string
	var segments []models.Segment
	if media == "" {
		metrics.Degraded.WithLabelValues(metrics.ReasonNoTranscript).Inc()
	} else if res, err := r.runTranscription(ctx, media); err != nil {
		r.logger.Warn("transcription failed, continuing without transcript", zap.Error(err))
		metrics.Degraded.WithLabelValues(metrics.ReasonNoTranscript).Inc()
	} else if res.Text != "" {
		text, segments = &res.Text, res.Segments
		r.logger.Info("recording transcribed", zap.Int("chunks", res.Chunks), zap.Int("chars", len([]rune(res.Text))))
	}
	if err := r.p.Store.SaveTranscript(ctx, r.rec.ID, text, segments); err != nil {
		return err
	}
	r.rec.Transcript, r.rec.TranscriptSegments = text, segments
	return nil
}

func (r *run) runTranscription(ctx context.Context, media string) (*transcription.Result, error) {
	tr, err := r.p.Clients.Transcriber(r.creds.TranscriptionKey)
	if err != nil {
		return nil, err
	}
	return r.p.Transcriber.Transcribe(ctx, tr, media, r.creds.Language)
}

func (r *run) summarize(ctx context.Context) error {
	defer observe(models.StageSummarize, time.Now())
	var text *string
	var structured []byte
	if !r.rec.HasTranscript() {
		r.logger.Info("no transcript, skipping summary")
		metrics.Degraded.WithLabelValues(metrics.ReasonNoSummary).Inc()
	} else if res, err := r.runSummary(ctx); err != nil {
		r.logger.Warn("summarization failed, continuing without summary", zap.Error(err))
		metrics.Degraded.WithLabelValues(metrics.ReasonNoSummary).Inc()
	} else {
		text, structured = &res.Text, res.JSON
		r.logger.Info("recording summarized", zap.Int("parts", res.Parts))
	}
	if err := r.p.Store.SaveSummary(ctx, r.rec.ID, text, structured); err != nil {
		return err
	}
	r.rec.Summary, r.rec.SummaryJSON = text, structured
	return nil
}

func (r *run) runSummary(ctx context.Context) (*summary.Result, error) {
	c, err := r.p.Clients.Summarizer(r.creds.SummarizationKey)
	if err != nil {
		return nil, err
	}
	return r.p.Summarizer.Summarize(ctx, c, *r.rec.Transcript, summary.ParseStyle(r.creds.SummaryStyle), r.creds.Language)
}

// sync is the shared tail of a recording: SYNCING, destination writes, COMPLETED.
func (r *run) sync(ctx context.Context) error {
	if err := r.advance(ctx, models.StatusSyncing, ""); err != nil {
		return err
	}
	if r.job.Runs(models.StageSync) {
		start := time.Now()
		out := r.p.Syncer.Run(ctx, r.creds, r.rec)
		observe(models.StageSync, start)
		sheets, notion, archive := out.Get(destinations.NameSheets), out.Get(destinations.NameNotion), out.Get(destinations.NameArchive)
		if err := r.p.Store.SaveSync(ctx, r.rec.ID, sheets, notion, archive); err != nil {
			return err
		}
		r.rec.Sheets, r.rec.Notion, r.rec.Archive = sheets, notion, archive
	}
	if err := r.advance(ctx, models.StatusCompleted, ""); err != nil {
		return err
	}
	if r.p.Notifier != nil {
		r.p.Notifier.Completed(ctx, r.rec)
	}
	return nil
}
