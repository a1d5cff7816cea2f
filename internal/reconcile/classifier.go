package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/db"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
)

// Classifier decides what to do with one intake record given the current
// local state. It reads but never writes; every mutation belongs to the
// applier. The decision order is policy, not convenience: dedup runs
// before anything that costs a lookup, and the email integrity check runs
// last so it only fires for records that would otherwise apply.
type Classifier struct {
	audit      db.AuditRepository
	courses    db.CourseRepository
	learners   db.LearnerRepository
	enrolments db.EnrolmentRepository
	ignore     map[string]struct{}
	log        zerolog.Logger
}

func NewClassifier(
	audit db.AuditRepository,
	courses db.CourseRepository,
	learners db.LearnerRepository,
	enrolments db.EnrolmentRepository,
	ignoreList []string,
) *Classifier {
	ignore := make(map[string]struct{}, len(ignoreList))
	for _, id := range ignoreList {
		id = strings.TrimSpace(id)
		if id != "" {
			ignore[id] = struct{}{}
		}
	}
	return &Classifier{
		audit:      audit,
		courses:    courses,
		learners:   learners,
		enrolments: enrolments,
		ignore:     ignore,
		log:        logger.For("classifier"),
	}
}

// Classify produces exactly one verdict per record. An error means a
// lookup failed, not that the record was judged; the caller records those
// as errored attempts.
func (c *Classifier) Classify(ctx context.Context, rec model.IntakeRecord) (model.Verdict, error) {
	// Ignore-listed courses are dropped before fingerprint work and leave
	// no ledger row.
	if _, ignored := c.ignore[strings.TrimSpace(rec.CourseID)]; ignored {
		return model.Verdict{
			Code:   model.VerdictIgnored,
			Reason: fmt.Sprintf("course %s is on the ignore list", rec.CourseID),
		}, nil
	}

	fingerprint := rec.Fingerprint()

	processed, err := c.audit.HasSuccessfulApply(ctx, fingerprint)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("dedup check: %w", err)
	}
	if processed {
		return model.Verdict{
			Code:        model.VerdictAlreadyProcessed,
			Reason:      "a successful action for this record is already on the ledger",
			Fingerprint: fingerprint,
		}, nil
	}

	state, ok := model.ParseCourseState(rec.CourseState)
	if !ok {
		return model.Verdict{
			Code:        model.VerdictUnsupportedState,
			Reason:      fmt.Sprintf("unknown course state %q", rec.CourseState),
			Fingerprint: fingerprint,
		}, nil
	}

	course, err := c.courses.FindByELMID(ctx, rec.CourseID)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("course lookup: %w", err)
	}
	if course == nil {
		return model.Verdict{
			Code:        model.VerdictCourseNotFound,
			Reason:      fmt.Sprintf("no local course matches ELM course %s (%s)", rec.CourseID, rec.CourseShortName),
			Fingerprint: fingerprint,
			State:       state,
		}, nil
	}

	learner, err := c.learners.FindByGUID(ctx, rec.GUID)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("learner lookup: %w", err)
	}

	// Target-state check comes before the missing-learner check: a suspend
	// for a learner we have never seen has nothing to suspend and must not
	// create an account as a side effect.
	enrolled := false
	if learner != nil {
		enrolled, err = c.enrolments.ActiveExists(ctx, learner.ID, course.ID)
		if err != nil {
			return model.Verdict{}, fmt.Errorf("enrolment lookup: %w", err)
		}
	}

	base := model.Verdict{
		Fingerprint: fingerprint,
		State:       state,
		Course:      course,
		Learner:     learner,
	}

	switch state {
	case model.CourseStateEnrol:
		if enrolled {
			base.Code = model.VerdictAlreadyInTargetState
			base.Reason = "learner is already actively enrolled in this course"
			return base, nil
		}
	case model.CourseStateSuspend:
		if !enrolled {
			base.Code = model.VerdictAlreadyInTargetState
			base.Reason = "no active enrolment to suspend"
			return base, nil
		}
	}

	if learner == nil {
		base.Code = model.VerdictUserWillBeCreated
		base.Reason = "no account matches this GUID; one will be created"
		base.CanApply = true
		return base, nil
	}

	if !strings.EqualFold(strings.TrimSpace(learner.Email), strings.TrimSpace(rec.Email)) {
		base.Code = model.VerdictEmailMismatch
		base.Reason = fmt.Sprintf(
			"email on file (%s) does not match feed email (%s); requires manual review",
			learner.Email, rec.Email)
		return base, nil
	}

	base.Code = model.VerdictReadyToApply
	base.Reason = fmt.Sprintf("ready to %s", strings.ToLower(string(state)))
	base.CanApply = true
	return base, nil
}
