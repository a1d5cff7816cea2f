package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

type applierFixture struct {
	audit      *fakeAudit
	learners   *fakeLearners
	enrolments *fakeEnrolments
	notifier   *fakeNotifier
}

func newApplierFixture() applierFixture {
	return applierFixture{
		audit:      newFakeAudit(),
		learners:   newFakeLearners(testLearner()),
		enrolments: newFakeEnrolments(),
		notifier:   &fakeNotifier{},
	}
}

func (fx applierFixture) build() *Applier {
	ledger := NewLedger(fx.audit, nil)
	return NewApplier(fx.learners, fx.enrolments, ledger, fx.notifier)
}

func enrolVerdict(rec model.IntakeRecord) model.Verdict {
	return model.Verdict{
		Code:        model.VerdictReadyToApply,
		CanApply:    true,
		Fingerprint: rec.Fingerprint(),
		State:       model.CourseStateEnrol,
		Course:      testCourse(),
		Learner:     testLearner(),
	}
}

func TestApplyEnrol(t *testing.T) {
	fx := newApplierFixture()
	rec := feedRecord()

	outcome, err := fx.build().Apply(context.Background(), rec, enrolVerdict(rec), model.ChannelFeed, "run-1")
	require.NoError(t, err)

	assert.Equal(t, model.RecordOutcomeEnrolled, outcome)
	assert.Equal(t, 1, fx.enrolments.enrolCalls)
	assert.Equal(t, 1, fx.notifier.welcomes)

	entry := fx.audit.lastEntry()
	assert.Equal(t, model.ActionEnrol, entry.Action)
	assert.Equal(t, model.OutcomeSuccess, entry.Outcome)
	assert.Equal(t, "run-1", entry.RunID)
	assert.Equal(t, testCourse().ID, entry.CourseID)
	assert.Equal(t, testLearner().ID, entry.LearnerID)

	assert.True(t, fx.audit.claims[rec.Fingerprint()], "claim persists after success")
}

func TestApplyCreatesLearner(t *testing.T) {
	fx := newApplierFixture()
	rec := feedRecord()
	rec.GUID = "0000000000000000000000000000BEEF"
	rec.Email = "New.Person@gov.bc.ca"
	rec.FirstName = "New"
	rec.LastName = "Person"

	verdict := enrolVerdict(rec)
	verdict.Code = model.VerdictUserWillBeCreated
	verdict.Learner = nil

	outcome, err := fx.build().Apply(context.Background(), rec, verdict, model.ChannelFeed, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RecordOutcomeEnrolled, outcome)

	require.Len(t, fx.learners.created, 1)
	created := fx.learners.created[0]
	assert.Equal(t, rec.GUID, created.GUID)
	assert.Equal(t, "new.person@gov.bc.ca", created.Username, "username is the lowercased email")
	assert.Equal(t, "New.Person@gov.bc.ca", created.Email)
	assert.True(t, created.Confirmed)
	assert.NotEmpty(t, created.PasswordHash)

	entry := fx.audit.lastEntry()
	assert.Equal(t, created.ID, entry.LearnerID, "ledger row carries the new account's ID")
	assert.Equal(t, 1, fx.notifier.welcomes)
}

func TestApplyDuplicateEmailBlocks(t *testing.T) {
	fx := newApplierFixture()
	rec := feedRecord()
	rec.GUID = "0000000000000000000000000000BEEF" // different person, same email
	verdict := enrolVerdict(rec)
	verdict.Code = model.VerdictUserWillBeCreated
	verdict.Learner = nil

	outcome, err := fx.build().Apply(context.Background(), rec, verdict, model.ChannelFeed, "run-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
	assert.Equal(t, model.RecordOutcomeErrored, outcome)
	assert.Zero(t, fx.enrolments.enrolCalls)

	entry := fx.audit.lastEntry()
	assert.Equal(t, model.OutcomeError, entry.Outcome)
	assert.Contains(t, entry.Detail, "another profile")

	assert.False(t, fx.audit.claims[rec.Fingerprint()], "claim released so the record stays retryable")
	require.Len(t, fx.notifier.alerts, 1)
	assert.Contains(t, fx.notifier.alerts[0], "email conflict")
}

func TestApplySuspend(t *testing.T) {
	fx := newApplierFixture()
	fx.enrolments.setActive(testLearner().ID, testCourse().ID)
	rec := feedRecord()
	rec.CourseState = "Suspend"

	verdict := enrolVerdict(rec)
	verdict.State = model.CourseStateSuspend

	outcome, err := fx.build().Apply(context.Background(), rec, verdict, model.ChannelFeed, "run-1")
	require.NoError(t, err)

	assert.Equal(t, model.RecordOutcomeSuspended, outcome)
	assert.Equal(t, 1, fx.enrolments.suspendCalls)
	assert.Zero(t, fx.notifier.welcomes, "suspends do not send welcome mail")

	entry := fx.audit.lastEntry()
	assert.Equal(t, model.ActionSuspend, entry.Action)
	assert.Equal(t, model.OutcomeSuccess, entry.Outcome)
}

func TestApplySuspendGoneBetweenClassifyAndApply(t *testing.T) {
	fx := newApplierFixture()
	// No active enrolment: state moved after classification.
	rec := feedRecord()
	rec.CourseState = "Suspend"
	verdict := enrolVerdict(rec)
	verdict.State = model.CourseStateSuspend

	outcome, err := fx.build().Apply(context.Background(), rec, verdict, model.ChannelFeed, "run-1")
	require.NoError(t, err)

	assert.Equal(t, model.RecordOutcomeSuspended, outcome)
	entry := fx.audit.lastEntry()
	assert.Equal(t, model.OutcomeSuccess, entry.Outcome, "nothing to suspend is a soft no-op, not a failure")
	assert.Contains(t, entry.Detail, "no active enrolment")
}

func TestApplyClaimLost(t *testing.T) {
	fx := newApplierFixture()
	rec := feedRecord()
	require.NoError(t, fx.audit.ClaimFingerprint(context.Background(), rec.Fingerprint()))

	outcome, err := fx.build().Apply(context.Background(), rec, enrolVerdict(rec), model.ChannelFeed, "run-1")

	assert.ErrorIs(t, err, apperrors.ErrFingerprintClaimed)
	assert.Equal(t, model.RecordOutcomeSkipped, outcome)
	assert.Zero(t, fx.audit.rowCount(), "losing the claim leaves no ledger row")
	assert.Zero(t, fx.enrolments.enrolCalls)
}

func TestApplyEnrolFailureReleasesClaim(t *testing.T) {
	fx := newApplierFixture()
	fx.enrolments.enrolErr = errors.New("deadlock found when trying to get lock")
	rec := feedRecord()

	outcome, err := fx.build().Apply(context.Background(), rec, enrolVerdict(rec), model.ChannelFeed, "run-1")

	require.Error(t, err)
	assert.Equal(t, model.RecordOutcomeErrored, outcome)

	entry := fx.audit.lastEntry()
	assert.Equal(t, model.ActionEnrol, entry.Action)
	assert.Equal(t, model.OutcomeError, entry.Outcome)
	assert.Contains(t, entry.Detail, "deadlock")

	assert.False(t, fx.audit.claims[rec.Fingerprint()], "failed applies must release the claim")
	assert.Len(t, fx.notifier.alerts, 1)
}

func TestApplyWelcomeFailureDoesNotFailApply(t *testing.T) {
	fx := newApplierFixture()
	fx.notifier.welcomeErr = errors.New("smtp unreachable")
	rec := feedRecord()

	outcome, err := fx.build().Apply(context.Background(), rec, enrolVerdict(rec), model.ChannelFeed, "run-1")

	require.NoError(t, err, "the enrolment stands even when welcome mail fails")
	assert.Equal(t, model.RecordOutcomeEnrolled, outcome)
	assert.Equal(t, model.OutcomeSuccess, fx.audit.lastEntry().Outcome)
}

func TestApplyManualChannelAction(t *testing.T) {
	fx := newApplierFixture()
	rec := feedRecord()

	_, err := fx.build().Apply(context.Background(), rec, enrolVerdict(rec), model.ChannelManual, "")
	require.NoError(t, err)

	assert.Equal(t, model.ActionManualEnrol, fx.audit.lastEntry().Action)
}

func TestApplyBulkChannelAction(t *testing.T) {
	fx := newApplierFixture()
	fx.enrolments.setActive(testLearner().ID, testCourse().ID)
	rec := feedRecord()
	rec.CourseState = "Suspend"
	verdict := enrolVerdict(rec)
	verdict.State = model.CourseStateSuspend

	_, err := fx.build().Apply(context.Background(), rec, verdict, model.ChannelBulk, "run-b")
	require.NoError(t, err)

	assert.Equal(t, model.ActionBulkSuspend, fx.audit.lastEntry().Action)
}

func TestApplyRejectsNonApplicableVerdict(t *testing.T) {
	fx := newApplierFixture()
	rec := feedRecord()
	verdict := enrolVerdict(rec)
	verdict.Code = model.VerdictEmailMismatch
	verdict.CanApply = false

	outcome, err := fx.build().Apply(context.Background(), rec, verdict, model.ChannelFeed, "run-1")

	require.Error(t, err)
	assert.Equal(t, model.RecordOutcomeSkipped, outcome)
	assert.Zero(t, fx.audit.rowCount())
	assert.Empty(t, fx.audit.claims)
}

func TestApplySuccessRowWriteFailure(t *testing.T) {
	fx := newApplierFixture()
	fx.audit.insertErr = errors.New("disk full")
	rec := feedRecord()

	outcome, err := fx.build().Apply(context.Background(), rec, enrolVerdict(rec), model.ChannelFeed, "run-1")

	require.Error(t, err)
	assert.Equal(t, model.RecordOutcomeErrored, outcome)
	// The enrolment happened, so the claim stays: redelivery must not
	// double-apply even though the row is missing.
	assert.True(t, fx.audit.claims[rec.Fingerprint()])
}
