package model

// VerdictCode is the classifier's categorical decision about one record.
type VerdictCode string

const (
	// VerdictIgnored: course is on the configured ignore list. Decided
	// before any fingerprint work; produces no ledger row.
	VerdictIgnored VerdictCode = "ignored"
	// VerdictAlreadyProcessed: a successful apply already exists for this
	// fingerprint.
	VerdictAlreadyProcessed VerdictCode = "already_processed"
	// VerdictUnsupportedState: course_state outside {Enrol, Suspend};
	// audited for traceability, never acted on.
	VerdictUnsupportedState VerdictCode = "unsupported_state"
	// VerdictCourseNotFound: no local course matches the ELM course ID.
	VerdictCourseNotFound VerdictCode = "course_not_found"
	// VerdictAlreadyInTargetState: enrol for an already-active learner, or
	// suspend where no active enrolment exists.
	VerdictAlreadyInTargetState VerdictCode = "already_in_target_state"
	// VerdictUserWillBeCreated: no learner matches the GUID; the applier
	// creates one.
	VerdictUserWillBeCreated VerdictCode = "user_will_be_created"
	// VerdictEmailMismatch: the GUID resolves to a learner whose stored
	// email differs from the record's. Hard stop for human review.
	VerdictEmailMismatch VerdictCode = "email_mismatch"
	// VerdictReadyToApply: all checks passed.
	VerdictReadyToApply VerdictCode = "ready_to_apply"
)

// Verdict is the classifier's sole output and the applier's sole input
// besides the record itself. In-memory only; the reason string is surfaced
// verbatim to operators. The resolved course/learner ride along so the
// applier does not repeat lookups the classifier already made.
type Verdict struct {
	Code        VerdictCode
	Reason      string
	CanApply    bool
	Fingerprint string
	State       CourseState
	Course      *Course
	Learner     *Learner
}
