package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// TopicRecordings is the topic for recording processing jobs.
	TopicRecordings = "recordings"
	// MaxAttempts is the number of times a job runs before it is marked failed.
	MaxAttempts = 3
	// BaseBackoff is the delay before the second attempt; it doubles for each later attempt.
	BaseBackoff = 5 * time.Second
	// CompletedHistory and FailedHistory cap the retained job history per topic.
	CompletedHistory = 100
	FailedHistory    = 50
)

var (
	// ErrAlreadyQueued is returned when a job with the same dedupe key is waiting or active.
	ErrAlreadyQueued = errors.New("job already queued or active")
)

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	DedupeKey string          `json:"dedupe_key,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Counts is the queue status snapshot for one topic.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Queue is a Redis-backed FIFO per topic with delayed retries and bounded history.
//
// Keys per topic: waiting (list), delayed (zset scored by ready time), active (hash id -> job),
// completed / failed (capped lists), inflight (set of dedupe keys).
type Queue struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger, now: time.Now}
}

func key(topic, part string) string { return "queue:" + topic + ":" + part }

// Backoff returns the delay before attempt+1 after attempt failed: 5s, 10s, 20s...
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return BaseBackoff << (attempt - 1)
}

// Enqueue appends a job to the topic. A non-empty dedupeKey makes the call fail with
// ErrAlreadyQueued while another job with that key is waiting, delayed or active.
func (q *Queue) Enqueue(ctx context.Context, topic, dedupeKey string, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	now := q.now()
	job := &Job{
		ID:        uuid.New().String(),
		Topic:     topic,
		DedupeKey: dedupeKey,
		Payload:   body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if dedupeKey != "" {
		added, err := q.client.SAdd(ctx, key(topic, "inflight"), dedupeKey).Result()
		if err != nil {
			return nil, fmt.Errorf("sadd inflight: %w", err)
		}
		if added == 0 {
			return nil, ErrAlreadyQueued
		}
	}
	if err := q.client.RPush(ctx, key(topic, "waiting"), raw).Err(); err != nil {
		if dedupeKey != "" {
			q.client.SRem(ctx, key(topic, "inflight"), dedupeKey)
		}
		return nil, fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("topic", topic), zap.String("dedupe_key", dedupeKey))
	return job, nil
}

// InFlight reports whether a job with dedupeKey is waiting, delayed or active.
func (q *Queue) InFlight(ctx context.Context, topic, dedupeKey string) (bool, error) {
	return q.client.SIsMember(ctx, key(topic, "inflight"), dedupeKey).Result()
}

// promote moves delayed jobs whose ready time has passed to the waiting list.
func (q *Queue) promote(ctx context.Context, topic string) error {
	max := strconv.FormatInt(q.now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, key(topic, "delayed"), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return fmt.Errorf("zrangebyscore: %w", err)
	}
	for _, raw := range due {
		removed, err := q.client.ZRem(ctx, key(topic, "delayed"), raw).Result()
		if err != nil {
			return fmt.Errorf("zrem: %w", err)
		}
		if removed == 0 {
			continue // another consumer promoted it
		}
		if err := q.client.RPush(ctx, key(topic, "waiting"), raw).Err(); err != nil {
			return fmt.Errorf("rpush: %w", err)
		}
	}
	return nil
}

// Dequeue waits up to wait for a job and marks it active. Returns nil, nil on timeout.
func (q *Queue) Dequeue(ctx context.Context, topic string, wait time.Duration) (*Job, error) {
	if err := q.promote(ctx, topic); err != nil {
		return nil, err
	}
	result, err := q.client.BLPop(ctx, wait, key(topic, "waiting")).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	job.Attempt++
	job.UpdatedAt = q.now()
	raw, err := json.Marshal(&job)
	if err != nil {
		return nil, err
	}
	if err := q.client.HSet(ctx, key(topic, "active"), job.ID, raw).Err(); err != nil {
		return nil, fmt.Errorf("hset active: %w", err)
	}
	return &job, nil
}

// Complete records a successful job and releases its dedupe key.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	job.UpdatedAt = q.now()
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, key(job.Topic, "active"), job.ID)
		p.LPush(ctx, key(job.Topic, "completed"), raw)
		p.LTrim(ctx, key(job.Topic, "completed"), 0, CompletedHistory-1)
		if job.DedupeKey != "" {
			p.SRem(ctx, key(job.Topic, "inflight"), job.DedupeKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail schedules a retry with exponential backoff, or moves the job to the failed history once
// it has used MaxAttempts. Returns true when the failure is terminal.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) (bool, error) {
	job.UpdatedAt = q.now()
	if cause != nil {
		job.LastError = cause.Error()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	if job.Attempt >= MaxAttempts {
		_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HDel(ctx, key(job.Topic, "active"), job.ID)
			p.LPush(ctx, key(job.Topic, "failed"), raw)
			p.LTrim(ctx, key(job.Topic, "failed"), 0, FailedHistory-1)
			if job.DedupeKey != "" {
				p.SRem(ctx, key(job.Topic, "inflight"), job.DedupeKey)
			}
			return nil
		})
		if err != nil {
			return true, fmt.Errorf("fail job: %w", err)
		}
		q.logger.Warn("job failed permanently", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.String("error", job.LastError))
		return true, nil
	}
	delay := Backoff(job.Attempt)
	readyAt := job.UpdatedAt.Add(delay).UnixMilli()
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, key(job.Topic, "active"), job.ID)
		p.ZAdd(ctx, key(job.Topic, "delayed"), redis.Z{Score: float64(readyAt), Member: raw})
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("schedule retry: %w", err)
	}
	q.logger.Info("job retry scheduled", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Duration("backoff", delay))
	return false, nil
}

// Counts returns waiting (including delayed retries), active, completed and failed counts.
func (q *Queue) Counts(ctx context.Context, topic string) (Counts, error) {
	p := q.client.Pipeline()
	waiting := p.LLen(ctx, key(topic, "waiting"))
	delayed := p.ZCard(ctx, key(topic, "delayed"))
	active := p.HLen(ctx, key(topic, "active"))
	completed := p.LLen(ctx, key(topic, "completed"))
	failed := p.LLen(ctx, key(topic, "failed"))
	if _, err := p.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Counts{}, fmt.Errorf("queue counts: %w", err)
	}
	return Counts{
		Waiting:   waiting.Val() + delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// Recover moves jobs left active by a crashed consumer back to waiting. Call once at startup,
// before the consumer loop, since the queue runs a single consumer per topic.
func (q *Queue) Recover(ctx context.Context, topic string) (int, error) {
	stale, err := q.client.HGetAll(ctx, key(topic, "active")).Result()
	if err != nil {
		return 0, fmt.Errorf("hgetall active: %w", err)
	}
	n := 0
	for id, raw := range stale {
		// The interrupted run does not count as an attempt.
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err == nil && job.Attempt > 0 {
			job.Attempt--
			if b, err := json.Marshal(&job); err == nil {
				raw = string(b)
			}
		}
		if err := q.client.RPush(ctx, key(topic, "waiting"), raw).Err(); err != nil {
			return n, fmt.Errorf("rpush: %w", err)
		}
		q.client.HDel(ctx, key(topic, "active"), id)
		n++
	}
	if n > 0 {
		q.logger.Warn("requeued jobs left active", zap.String("topic", topic), zap.Int("count", n))
	}
	return n, nil
}
