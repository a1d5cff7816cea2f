package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/db"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/feed"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/metrics"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/notify"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// CycleLock serializes whole cycles across processes. Acquire returns
// false when another cycle holds the lock.
type CycleLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Service runs the reconciliation pipeline: fetch a window, classify and
// apply each record strictly in feed order, then finalize the summary.
// Records are processed one at a time so user creation and enrolment
// writes never race each other within a run; cross-run races are closed
// by the cycle lock plus the per-fingerprint claim.
type Service struct {
	feed       *feed.Client
	classifier *Classifier
	applier    *Applier
	aggregator *Aggregator
	ledger     *Ledger
	audit      db.AuditRepository
	notifier   notify.Notifier
	lock       CycleLock
	reg        *metrics.Registry
	log        zerolog.Logger
}

func NewService(
	feedClient *feed.Client,
	classifier *Classifier,
	applier *Applier,
	aggregator *Aggregator,
	ledger *Ledger,
	audit db.AuditRepository,
	notifier notify.Notifier,
	lock CycleLock,
	reg *metrics.Registry,
) *Service {
	return &Service{
		feed:       feedClient,
		classifier: classifier,
		applier:    applier,
		aggregator: aggregator,
		ledger:     ledger,
		audit:      audit,
		notifier:   notifier,
		lock:       lock,
		reg:        reg,
		log:        logger.For("reconcile"),
	}
}

// RunCycle performs one fetch-and-process pass. A cycle that cannot take
// the lock returns ErrRunLocked and does nothing. Upstream unavailability
// does not fail the cycle: it degrades to an empty batch and a summary
// with zero records.
func (s *Service) RunCycle(ctx context.Context, trigger model.RunTrigger) (*model.RunSummary, error) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		s.log.Warn().Str("trigger", string(trigger)).Msg("Another run holds the lock, skipping cycle")
		return nil, apperrors.ErrRunLocked
	}
	defer func() {
		if err := s.lock.Release(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("Failed to release run lock")
		}
	}()

	windowStart, windowEnd := s.feed.Window(time.Now())

	records, query, err := s.feed.Fetch(ctx, windowStart)
	if err != nil {
		s.reg.FeedFetchErrors.Inc()
		s.log.Error().Err(err).Msg("Feed fetch failed, proceeding with empty batch")
		records = nil
	}

	return s.ProcessBatch(ctx, records, batchParams{
		trigger:     trigger,
		channel:     model.ChannelFeed,
		query:       query,
		windowStart: windowStart,
		windowEnd:   windowEnd,
	})
}

type batchParams struct {
	trigger     model.RunTrigger
	channel     model.Channel
	query       string
	windowStart time.Time
	windowEnd   time.Time
}

// ProcessRoster runs an already-parsed batch, for roster uploads that
// bypass the feed.
func (s *Service) ProcessRoster(ctx context.Context, records []model.IntakeRecord, sourceRef string) (*model.RunSummary, error) {
	now := time.Now().UTC()
	return s.ProcessBatch(ctx, records, batchParams{
		trigger:     model.RunTriggerBulk,
		channel:     model.ChannelBulk,
		query:       sourceRef,
		windowStart: now,
		windowEnd:   now,
	})
}

func (s *Service) ProcessBatch(ctx context.Context, records []model.IntakeRecord, params batchParams) (*model.RunSummary, error) {
	run := &model.RunSummary{
		ID:          uuid.New().String(),
		Trigger:     params.trigger,
		WindowStart: params.windowStart,
		WindowEnd:   params.windowEnd,
		Query:       params.query,
		StartedAt:   time.Now().UTC(),
		Fetched:     len(records),
	}

	log := s.log.With().Str("run_id", run.ID).Str("trigger", string(params.trigger)).Logger()
	log.Info().Int("fetched", len(records)).Msg("Starting run")

	outcomes := make([]model.RecordOutcome, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("Run interrupted, finalizing partial batch")
			break
		}
		_, outcome := s.ProcessRecord(ctx, rec, params.channel, run.ID)
		outcomes = append(outcomes, outcome)
	}

	if err := s.aggregator.Finalize(ctx, run, outcomes); err != nil {
		return run, err
	}
	return run, nil
}

// ProcessRecord takes one record through classify-then-apply and returns
// the verdict plus the tally bucket. Nothing propagates past this
// boundary: a bad record is recorded and counted, never thrown.
func (s *Service) ProcessRecord(ctx context.Context, rec model.IntakeRecord, channel model.Channel, runID string) (model.Verdict, model.RecordOutcome) {
	log := s.log.With().
		Str("guid", rec.GUID).
		Str("course_id", rec.CourseID).
		Str("state", rec.CourseState).
		Logger()

	verdict, err := s.classifier.Classify(ctx, rec)
	if err != nil {
		log.Error().Err(err).Msg("Classification failed")
		s.recordBlocked(ctx, rec, model.Verdict{
			Reason:      fmt.Sprintf("classification failed: %v", err),
			Fingerprint: rec.Fingerprint(),
		}, runID)
		return verdict, model.RecordOutcomeErrored
	}

	switch verdict.Code {
	case model.VerdictIgnored:
		log.Debug().Str("reason", verdict.Reason).Msg("Record ignored")
		return verdict, model.RecordOutcomeSkipped

	case model.VerdictAlreadyProcessed, model.VerdictUnsupportedState, model.VerdictAlreadyInTargetState:
		s.recordSkipped(ctx, rec, verdict, runID)
		return verdict, model.RecordOutcomeSkipped

	case model.VerdictCourseNotFound, model.VerdictEmailMismatch:
		log.Warn().Str("reason", verdict.Reason).Msg("Record blocked, needs human action")
		s.recordBlocked(ctx, rec, verdict, runID)
		s.alertBlocked(ctx, rec, verdict)
		return verdict, model.RecordOutcomeErrored

	default:
		outcome, err := s.applier.Apply(ctx, rec, verdict, channel, runID)
		if err != nil && !errors.Is(err, apperrors.ErrFingerprintClaimed) {
			log.Error().Err(err).Msg("Apply failed")
		}
		return verdict, outcome
	}
}

// recordSkipped writes the traceability row for a no-op classification.
func (s *Service) recordSkipped(ctx context.Context, rec model.IntakeRecord, verdict model.Verdict, runID string) {
	entry := model.NewAuditEntry(rec, verdict.Fingerprint, runID)
	entry.Action = model.ActionSkipped
	entry.Outcome = model.OutcomeSuccess
	entry.Detail = verdict.Reason
	fillResolved(&entry, verdict)

	if err := s.ledger.Record(ctx, entry); err != nil {
		s.log.Error().Err(err).Msg("Failed to write skip row")
	}
}

func (s *Service) recordBlocked(ctx context.Context, rec model.IntakeRecord, verdict model.Verdict, runID string) {
	entry := model.NewAuditEntry(rec, verdict.Fingerprint, runID)
	entry.Action = model.ActionError
	entry.Outcome = model.OutcomeError
	entry.Detail = verdict.Reason
	fillResolved(&entry, verdict)

	if err := s.ledger.Record(ctx, entry); err != nil {
		s.log.Error().Err(err).Msg("Failed to write block row")
	}
}

func (s *Service) alertBlocked(ctx context.Context, rec model.IntakeRecord, verdict model.Verdict) {
	subject := fmt.Sprintf("Enrolment record needs attention: %s", rec.CourseShortName)
	body := fmt.Sprintf(
		"A feed record could not be processed and needs human action.\n\n"+
			"Reason: %s\n\nLearner: %s <%s>\nGUID: %s\nCourse: %s (%s)\nRequested state: %s\nPSA Learning System enrolment ID: %s\n",
		verdict.Reason, rec.FullName(), rec.Email, rec.GUID,
		rec.CourseShortName, rec.CourseID, rec.CourseState, rec.EnrolmentID)

	if err := s.notifier.NotifyAdmins(ctx, subject, body); err != nil {
		s.log.Error().Err(err).Msg("Failed to send block alert")
	}
}

func fillResolved(entry *model.AuditEntry, verdict model.Verdict) {
	if verdict.Course != nil {
		entry.CourseID = verdict.Course.ID
	}
	if verdict.Learner != nil {
		entry.LearnerID = verdict.Learner.ID
	}
}

// ReprocessEntry replays one ledger row through the normal pipeline on
// the manual channel. The classifier re-runs from scratch, so a record
// whose blocker has since been fixed applies, and one that has since
// been applied comes back AlreadyProcessed.
func (s *Service) ReprocessEntry(ctx context.Context, entryID int64) (*model.ReprocessResult, error) {
	entry, err := s.audit.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	rec := entry.Record()

	s.log.Info().Int64("entry_id", entryID).Str("fingerprint", entry.Fingerprint).Msg("Reprocessing ledger entry")

	verdict, outcome := s.ProcessRecord(ctx, rec, model.ChannelManual, "")

	return &model.ReprocessResult{
		EntryID:     entryID,
		Verdict:     verdict.Code,
		Reason:      verdict.Reason,
		Applied:     outcome == model.RecordOutcomeEnrolled || outcome == model.RecordOutcomeSuspended,
		Outcome:     outcome,
		Fingerprint: verdict.Fingerprint,
	}, nil
}
