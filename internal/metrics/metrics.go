// Package metrics holds the pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meeting_pipeline"

// Degraded-input reasons.
const (
	ReasonNoVideoFile   = "no_video_file"
	ReasonNoMedia       = "no_media"
	ReasonNoTranscript  = "no_transcript"
	ReasonNoSummary     = "no_summary"
	ReasonStaleURL      = "fresh_url_lookup_failed"
	ReasonNotesNoMatch  = "notes_no_match"
	ReasonOversizeChunk = "oversize_chunk"
)

var (
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Processed jobs by result (completed, retry, failed, waiting).",
		}, []string{"result"})

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 15),
		}, []string{"stage"})

	// Degraded counts inputs the pipeline skipped instead of failing on.
	Degraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_total",
			Help:      "Degraded-input conditions that were skipped rather than failed.",
		}, []string{"reason"})

	SyncOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_outcomes_total",
			Help:      "Destination write outcomes (success, failure, not_configured).",
		}, []string{"destination", "result"})

	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Inbound webhook deliveries by provider and result.",
		}, []string{"provider", "result"})
)

// Register tries to register or reregister the collectors to the default registry.
func Register() error {
	for _, m := range []prometheus.Collector{JobsTotal, StageDuration, Degraded, SyncOutcomes, WebhookEvents} {
		if err := register(m); err != nil {
			return err
		}
	}
	return nil
}

func register(m prometheus.Collector) error {
	err := prometheus.Register(m)
	if err != nil {
		prometheus.Unregister(m)
		err = prometheus.Register(m)
	}
	return err
}
