// Package worker consumes recording jobs from the queue, one at a time.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/meeting-pipeline/internal/metrics"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/pkg/queue"
)

// idleBackoff is the pause after a queue error before polling again.
const idleBackoff = 2 * time.Second

// JobQueue is the consumer side of the queue.
type JobQueue interface {
	Recover(ctx context.Context, topic string) (int, error)
	Dequeue(ctx context.Context, topic string, wait time.Duration) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job) error
	Fail(ctx context.Context, job *queue.Job, cause error) (bool, error)
}

// Runner processes one recording job and reports the status it ended in.
type Runner interface {
	Process(ctx context.Context, job *models.ProcessingJob, final bool) (models.RecordingStatus, error)
}

// Processor runs recording jobs: dequeue, process, complete or fail (the queue schedules retries).
type Processor struct {
	queue  JobQueue
	runner Runner
	wait   time.Duration
	logger *zap.Logger
}

// NewProcessor creates a recording job processor. wait is the blocking dequeue timeout.
func NewProcessor(q JobQueue, runner Runner, wait time.Duration, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &Processor{queue: q, runner: runner, wait: wait, logger: logger}
}

// Run starts the worker loop and returns when ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	if n, err := p.queue.Recover(ctx, queue.TopicRecordings); err != nil {
		p.logger.Warn("recover active jobs failed", zap.Error(err))
	} else if n > 0 {
		p.logger.Info("requeued interrupted jobs", zap.Int("count", n))
	}
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("recording worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, queue.TopicRecordings, p.wait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, idleBackoff)
			continue
		}
		if job == nil {
			continue
		}
		p.Handle(ctx, job)
	}
}

// Handle processes one dequeued job and settles it with the queue.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) {
	logger := p.logger.With(zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))

	var payload models.ProcessingJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		logger.Error("invalid job payload, dropping", zap.Error(err))
		job.Attempt = queue.MaxAttempts
		p.fail(ctx, logger, job, fmt.Errorf("unmarshal payload: %w", err))
		return
	}
	payload.JobID = job.ID
	logger = logger.With(zap.String("external_id", payload.ExternalID), zap.String("tenant_id", payload.TenantID.String()))
	logger.Info("processing job")

	status, err := p.process(ctx, &payload, job.Attempt >= queue.MaxAttempts)
	if err != nil {
		p.fail(ctx, logger, job, err)
		return
	}
	if err := p.queue.Complete(ctx, job); err != nil {
		logger.Error("complete job failed", zap.Error(err))
	}
	result := "completed"
	if status == models.StatusWaitingNotes {
		result = "waiting"
	}
	metrics.JobsTotal.WithLabelValues(result).Inc()
	logger.Info("job done", zap.String("status", string(status)))
}

// process runs the job, turning a panic into an error so the queue still settles it.
func (p *Processor) process(ctx context.Context, job *models.ProcessingJob, final bool) (status models.RecordingStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.runner.Process(ctx, job, final)
}

func (p *Processor) fail(ctx context.Context, logger *zap.Logger, job *queue.Job, cause error) {
	// Settle the job even when shutdown cancelled ctx, so it is retried rather than lost.
	terminal, err := p.queue.Fail(context.WithoutCancel(ctx), job, cause)
	if err != nil {
		logger.Error("fail job failed", zap.Error(err))
	}
	result := "retry"
	if terminal {
		result = "failed"
	}
	metrics.JobsTotal.WithLabelValues(result).Inc()
	if errors.Is(cause, context.Canceled) {
		logger.Warn("job interrupted", zap.Error(cause))
		return
	}
	logger.Error("job failed", zap.Bool("terminal", terminal), zap.Error(cause))
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
