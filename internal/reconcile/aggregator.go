package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/db"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/metrics"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/notify"
)

// Aggregator folds per-record outcomes into the run summary and watches
// for a stalled feed: if nothing has applied successfully for longer than
// the configured threshold, and we are inside the service window where
// traffic is expected, operators get one alert per cycle.
type Aggregator struct {
	runs     db.RunRepository
	audit    db.AuditRepository
	notifier notify.Notifier
	reg      *metrics.Registry
	cfg      config.SyncConfig
	now      func() time.Time
	log      zerolog.Logger
}

func NewAggregator(
	runs db.RunRepository,
	audit db.AuditRepository,
	notifier notify.Notifier,
	reg *metrics.Registry,
	cfg config.SyncConfig,
) *Aggregator {
	return &Aggregator{
		runs:     runs,
		audit:    audit,
		notifier: notifier,
		reg:      reg,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.For("aggregator"),
	}
}

// Finalize tallies the outcomes into the summary, stamps the finish time,
// persists the row and runs the staleness check. The summary write is the
// only step that can fail the call; the staleness check degrades to a log
// line.
func (a *Aggregator) Finalize(ctx context.Context, run *model.RunSummary, outcomes []model.RecordOutcome) error {
	for _, outcome := range outcomes {
		switch outcome {
		case model.RecordOutcomeEnrolled:
			run.Enrolled++
		case model.RecordOutcomeSuspended:
			run.Suspended++
		case model.RecordOutcomeErrored:
			run.Errored++
		case model.RecordOutcomeSkipped:
			run.Skipped++
		}
		a.reg.RecordsProcessed.WithLabelValues(string(outcome)).Inc()
	}
	run.FinishedAt = time.Now().UTC()

	if err := a.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("persist run summary: %w", err)
	}

	a.reg.RunsTotal.WithLabelValues(string(run.Trigger)).Inc()
	a.reg.RunDurationSec.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())

	a.log.Info().
		Str("run_id", run.ID).
		Str("trigger", string(run.Trigger)).
		Int("fetched", run.Fetched).
		Int("enrolled", run.Enrolled).
		Int("suspended", run.Suspended).
		Int("errored", run.Errored).
		Int("skipped", run.Skipped).
		Msg("Run summary recorded")

	if err := a.CheckStaleness(ctx); err != nil {
		a.log.Error().Err(err).Msg("Staleness check failed")
	}
	return nil
}

// CheckStaleness alerts when the most recent successful apply is older
// than the configured threshold. The check only alerts inside the service
// window: a quiet feed overnight or on a weekend is expected, not stalled.
func (a *Aggregator) CheckStaleness(ctx context.Context) error {
	last, err := a.audit.LastSuccessfulApply(ctx)
	if err != nil {
		return fmt.Errorf("last successful apply: %w", err)
	}
	if last.IsZero() {
		a.log.Debug().Msg("No successful applies on the ledger yet, skipping staleness check")
		return nil
	}

	now := a.now()
	age := now.Sub(last)
	a.reg.LastApplyAgeSec.Set(age.Seconds())

	threshold := time.Duration(a.cfg.StalenessAlertHours) * time.Hour
	if age < threshold {
		return nil
	}

	within, err := a.IsWithinServiceWindow(now)
	if err != nil {
		return err
	}
	if !within {
		a.log.Debug().Dur("age", age).Msg("Feed is stale but outside the service window, holding alert")
		return nil
	}

	a.log.Warn().Dur("age", age).Time("last_apply", last).Msg("Feed appears stalled")

	subject := "Enrolment feed appears stalled"
	body := fmt.Sprintf(
		"No enrolment or suspension has been applied since %s (%s ago).\n"+
			"The alert threshold is %d hours. Check the upstream feed and the worker logs.\n",
		last.Format(time.RFC1123), age.Round(time.Minute), a.cfg.StalenessAlertHours)
	if err := a.notifier.NotifyAdmins(ctx, subject, body); err != nil {
		return fmt.Errorf("staleness alert: %w", err)
	}
	return nil
}

// IsWithinServiceWindow reports whether at falls inside the configured
// business-hours window.
func (a *Aggregator) IsWithinServiceWindow(at time.Time) (bool, error) {
	return WithinServiceWindow(a.cfg.ServiceWindow, at)
}

// WithinServiceWindow reports whether at falls on a weekday between the
// window's start and end times in its timezone. The scheduled cycle and
// the staleness alert share this gate, so a quiet feed is only ever
// flagged at a time someone expected it to be busy.
func WithinServiceWindow(w config.WindowConfig, at time.Time) (bool, error) {
	location, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return false, fmt.Errorf("invalid timezone: %w", err)
	}

	local := at.In(location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false, nil
	}

	startTime, err := time.Parse("15:04", w.StartTime)
	if err != nil {
		return false, fmt.Errorf("invalid start time format: %w", err)
	}
	endTime, err := time.Parse("15:04", w.EndTime)
	if err != nil {
		return false, fmt.Errorf("invalid end time format: %w", err)
	}

	currentTime := local.Format("15:04")
	return currentTime >= startTime.Format("15:04") && currentTime <= endTime.Format("15:04"), nil
}
