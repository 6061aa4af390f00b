// Package destinations writes finished recordings to downstream knowledge tools.
package destinations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/metrics"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/internal/summary"
)

// Destination names.
const (
	NameSheets  = "sheets"
	NameNotion  = "notion"
	NameArchive = "archive"
)

// Destination is one external system a recording is synced to.
type Destination interface {
	Name() string
	Configured(creds credentials.Credentials) bool
	// Write stores the recording and returns a reference to what was written (row range, page id, key).
	Write(ctx context.Context, creds credentials.Credentials, rec *models.Recording) (string, error)
}

// Outcomes maps destination name to its outcome.
type Outcomes map[string]models.Outcome

// Get returns the outcome for name; a destination that was not run counts as not configured.
func (o Outcomes) Get(name string) models.Outcome {
	if out, ok := o[name]; ok {
		return out
	}
	return models.NotConfigured()
}

// Syncer writes a recording to every destination in parallel.
type Syncer struct {
	destinations []Destination
	timeout      time.Duration
	logger       *zap.Logger
}

// NewSyncer creates a syncer. timeout bounds each destination write; 0 means no bound.
func NewSyncer(logger *zap.Logger, timeout time.Duration, dests ...Destination) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{destinations: dests, timeout: timeout, logger: logger}
}

// Run writes rec to all destinations. One destination failing, or panicking, never affects the
// others; each outcome is success, failure with its error, or not configured.
func (s *Syncer) Run(ctx context.Context, creds credentials.Credentials, rec *models.Recording) Outcomes {
	results := make([]models.Outcome, len(s.destinations))
	var g errgroup.Group
	for i, d := range s.destinations {
		i, d := i, d
		g.Go(func() error {
			results[i] = s.write(ctx, d, creds, rec)
			return nil
		})
	}
	_ = g.Wait()

	out := make(Outcomes, len(s.destinations))
	for i, d := range s.destinations {
		out[d.Name()] = results[i]
		metrics.SyncOutcomes.WithLabelValues(d.Name(), outcomeLabel(results[i])).Inc()
	}
	return out
}

func (s *Syncer) write(ctx context.Context, d Destination, creds credentials.Credentials, rec *models.Recording) (out models.Outcome) {
	if !d.Configured(creds) {
		return models.NotConfigured()
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("destination panicked", zap.String("destination", d.Name()), zap.Any("panic", r))
			out = models.Failed(fmt.Errorf("panic: %v", r))
		}
	}()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ref, err := d.Write(ctx, creds, rec)
	if err != nil {
		s.logger.Warn("destination write failed",
			zap.String("destination", d.Name()), zap.String("recording_id", rec.ID.String()), zap.Error(err))
		return models.Failed(err)
	}
	s.logger.Info("destination written",
		zap.String("destination", d.Name()), zap.String("recording_id", rec.ID.String()), zap.String("ref", ref))
	return models.Succeeded(ref)
}

func outcomeLabel(o models.Outcome) string {
	switch {
	case o.Success == nil:
		return "not_configured"
	case *o.Success:
		return "success"
	}
	return "failure"
}

// content is the recording text shared by the destinations.
type content struct {
	Summary     string
	Decisions   []string
	ActionItems []string
	Notes       string
}

func contentOf(rec *models.Recording) content {
	var c content
	if rec.Summary != nil {
		c.Summary = *rec.Summary
	}
	if len(rec.SummaryJSON) > 0 {
		var st summary.Structured
		if json.Unmarshal(rec.SummaryJSON, &st) == nil {
			c.Decisions = st.Decisions
			c.ActionItems = append(c.ActionItems, st.ActionItemLines()...)
		}
	}
	c.ActionItems = append(c.ActionItems, rec.ActionItems...)
	if rec.Notes != nil {
		c.Notes = *rec.Notes
	}
	return c
}
