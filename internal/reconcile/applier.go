package reconcile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/db"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/notify"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// Applier performs the side effect a can-apply verdict calls for and
// writes exactly one ledger row per attempt, success or failure. Before
// touching anything it claims the fingerprint; losing the claim means a
// concurrent run owns the record and this run walks away without a row.
// Claims persist after success and are released after failure so errors
// stay retryable.
type Applier struct {
	learners   db.LearnerRepository
	enrolments db.EnrolmentRepository
	ledger     *Ledger
	notifier   notify.Notifier
	log        zerolog.Logger
}

func NewApplier(
	learners db.LearnerRepository,
	enrolments db.EnrolmentRepository,
	ledger *Ledger,
	notifier notify.Notifier,
) *Applier {
	return &Applier{
		learners:   learners,
		enrolments: enrolments,
		ledger:     ledger,
		notifier:   notifier,
		log:        logger.For("applier"),
	}
}

// Apply executes one verdict. The returned outcome is the tally bucket
// the attempt landed in; err carries the failure when the outcome is
// errored. ErrFingerprintClaimed is returned as-is so callers can count
// the record skipped.
func (a *Applier) Apply(ctx context.Context, rec model.IntakeRecord, verdict model.Verdict, channel model.Channel, runID string) (model.RecordOutcome, error) {
	if !verdict.CanApply {
		return model.RecordOutcomeSkipped, fmt.Errorf("verdict %s cannot be applied", verdict.Code)
	}

	log := a.log.With().
		Str("guid", rec.GUID).
		Str("course_id", rec.CourseID).
		Str("state", string(verdict.State)).
		Str("fingerprint", verdict.Fingerprint).
		Logger()

	if err := a.ledger.Claim(ctx, verdict.Fingerprint); err != nil {
		if errors.Is(err, apperrors.ErrFingerprintClaimed) {
			log.Info().Msg("Fingerprint claimed by a concurrent run, skipping")
			return model.RecordOutcomeSkipped, err
		}
		return model.RecordOutcomeErrored, fmt.Errorf("claim fingerprint: %w", err)
	}

	entry := model.NewAuditEntry(rec, verdict.Fingerprint, runID)
	entry.CourseID = verdict.Course.ID
	entry.Action = model.ApplyAction(channel, verdict.State)

	learner := verdict.Learner
	created := false
	var applyErr error

	if learner == nil {
		learner, applyErr = a.createLearner(ctx, rec)
		created = applyErr == nil
	}

	if applyErr == nil {
		entry.LearnerID = learner.ID
		switch verdict.State {
		case model.CourseStateSuspend:
			applyErr = a.suspend(ctx, log, learner, verdict.Course, &entry)
		default:
			applyErr = a.enrol(ctx, log, learner, verdict.Course)
		}
	}

	if applyErr != nil {
		a.ledger.Release(ctx, verdict.Fingerprint)
		entry.Outcome = model.OutcomeError
		entry.Detail = applyErr.Error()
		if err := a.ledger.Record(ctx, entry); err != nil {
			log.Error().Err(err).Msg("Failed to write ledger row for failed apply")
		}
		a.alertApplyFailure(ctx, rec, verdict, applyErr)
		log.Error().Err(applyErr).Msg("Apply failed")
		return model.RecordOutcomeErrored, applyErr
	}

	entry.Outcome = model.OutcomeSuccess
	if err := a.ledger.Record(ctx, entry); err != nil {
		log.Error().Err(err).Msg("Failed to write ledger row for successful apply")
		return model.RecordOutcomeErrored, err
	}

	if verdict.State == model.CourseStateEnrol {
		// Welcome mail is fire-and-forget; the enrolment stands either way.
		if err := a.notifier.SendWelcome(ctx, learner, verdict.Course); err != nil {
			log.Warn().Err(err).Msg("Welcome notification failed")
		}
	}

	log.Info().
		Bool("learner_created", created).
		Str("action", string(entry.Action)).
		Msg("Apply succeeded")

	if verdict.State == model.CourseStateSuspend {
		return model.RecordOutcomeSuspended, nil
	}
	return model.RecordOutcomeEnrolled, nil
}

// createLearner provisions the local account for a first-time GUID.
// Authentication happens upstream at the identity provider, so the local
// password is random and never used.
func (a *Applier) createLearner(ctx context.Context, rec model.IntakeRecord) (*model.Learner, error) {
	guid := strings.TrimSpace(rec.GUID)
	email := strings.TrimSpace(rec.Email)
	if guid == "" {
		return nil, fmt.Errorf("cannot create account: record has no GUID")
	}
	if email == "" {
		return nil, fmt.Errorf("cannot create account: record has no email")
	}

	existing, err := a.learners.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("email lookup: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf(
			"%w: %s belongs to another profile (GUID %s); likely an identity change",
			apperrors.ErrDuplicateEmail, email, existing.GUID)
	}

	learner := &model.Learner{
		GUID:         guid,
		Username:     strings.ToLower(email),
		Email:        email,
		FirstName:    rec.FirstName,
		LastName:     rec.LastName,
		Confirmed:    true,
		PasswordHash: randomPassword(),
	}

	if err := a.learners.Create(ctx, learner); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateEmail) {
			return nil, fmt.Errorf(
				"%w: %s belongs to another profile; likely an identity change",
				apperrors.ErrDuplicateEmail, email)
		}
		return nil, fmt.Errorf("create learner: %w", err)
	}

	a.log.Info().Str("guid", guid).Str("email", email).Msg("Created learner account")
	return learner, nil
}

func (a *Applier) enrol(ctx context.Context, log zerolog.Logger, learner *model.Learner, course *model.Course) error {
	if err := a.enrolments.Enrol(ctx, learner.ID, course.ID); err != nil {
		return fmt.Errorf("enrol: %w", err)
	}
	return nil
}

// suspend flips an active enrolment to suspended. Nothing to suspend is a
// soft no-op, not a failure: the classifier should have filtered it, but
// state can move between classification and apply.
func (a *Applier) suspend(ctx context.Context, log zerolog.Logger, learner *model.Learner, course *model.Course, entry *model.AuditEntry) error {
	err := a.enrolments.Suspend(ctx, learner.ID, course.ID)
	if errors.Is(err, apperrors.ErrNoActiveEnrolment) {
		log.Warn().Msg("No active enrolment to suspend, recording as no-op")
		entry.Detail = "no active enrolment to suspend"
		return nil
	}
	if err != nil {
		return fmt.Errorf("suspend: %w", err)
	}
	return nil
}

func (a *Applier) alertApplyFailure(ctx context.Context, rec model.IntakeRecord, verdict model.Verdict, applyErr error) {
	subject := fmt.Sprintf("Enrolment sync failure: %s", rec.CourseShortName)
	if errors.Is(applyErr, apperrors.ErrDuplicateEmail) {
		subject = fmt.Sprintf("Enrolment sync: email conflict for %s", rec.Email)
	}
	body := fmt.Sprintf(
		"A feed record could not be applied.\n\n"+
			"Learner: %s <%s>\nGUID: %s\nCourse: %s (%s)\nRequested state: %s\nError: %v\n\n"+
			"The record stays retryable and will be picked up again on redelivery,\n"+
			"or it can be reprocessed from the audit screen.\n",
		rec.FullName(), rec.Email, rec.GUID,
		rec.CourseShortName, rec.CourseID, verdict.State, applyErr)

	if err := a.notifier.NotifyAdmins(ctx, subject, body); err != nil {
		a.log.Error().Err(err).Msg("Failed to send apply-failure alert")
	}
}

func randomPassword() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
