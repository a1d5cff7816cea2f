package model

import "time"

// Action records what the engine did (or declined to do) with a record.
// The manual and bulk variants distinguish operator-driven processing from
// the scheduled feed cycle in the ledger.
type Action string

const (
	ActionEnrol         Action = "enrol"
	ActionSuspend       Action = "suspend"
	ActionManualEnrol   Action = "manual enrol"
	ActionManualSuspend Action = "manual suspend"
	ActionBulkEnrol     Action = "bulk enrol"
	ActionBulkSuspend   Action = "bulk suspend"
	ActionComplete      Action = "complete"
	ActionError         Action = "error"
	ActionSkipped       Action = "skipped"
)

// IsApply reports whether the action mutates enrolment state. Only these
// actions participate in fingerprint deduplication and the staleness check;
// complete, error and skipped rows never block reprocessing.
func (a Action) IsApply() bool {
	switch a {
	case ActionEnrol, ActionSuspend,
		ActionManualEnrol, ActionManualSuspend,
		ActionBulkEnrol, ActionBulkSuspend:
		return true
	}
	return false
}

// Channel identifies how a record reached the engine.
type Channel string

const (
	ChannelFeed   Channel = "feed"
	ChannelManual Channel = "manual"
	ChannelBulk   Channel = "bulk"
)

// ApplyAction maps a processing channel and course state to the ledger
// action for a successful apply.
func ApplyAction(ch Channel, state CourseState) Action {
	switch ch {
	case ChannelManual:
		if state == CourseStateSuspend {
			return ActionManualSuspend
		}
		return ActionManualEnrol
	case ChannelBulk:
		if state == CourseStateSuspend {
			return ActionBulkSuspend
		}
		return ActionBulkEnrol
	default:
		if state == CourseStateSuspend {
			return ActionSuspend
		}
		return ActionEnrol
	}
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// AuditEntry is one row of the append-only processing ledger: exactly one
// per record-processing attempt, success or failure, never updated or
// deleted. Local IDs are zero when the record never resolved to a local
// course or learner.
type AuditEntry struct {
	ID              int64     `json:"id" db:"id"`
	RunID           string    `json:"run_id,omitempty" db:"run_id"`
	Fingerprint     string    `json:"fingerprint" db:"fingerprint"`
	CourseID        int64     `json:"course_id" db:"course_id"`
	LearnerID       int64     `json:"learner_id" db:"learner_id"`
	ELMCourseID     string    `json:"elm_course_id" db:"elm_course_id"`
	ELMEnrolmentID  string    `json:"elm_enrolment_id" db:"elm_enrolment_id"`
	CourseShortName string    `json:"course_shortname" db:"course_shortname"`
	FirstName       string    `json:"first_name" db:"first_name"`
	LastName        string    `json:"last_name" db:"last_name"`
	Email           string    `json:"email" db:"email"`
	GUID            string    `json:"guid" db:"guid"`
	ELMLearnerID    string    `json:"elm_learner_id" db:"elm_learner_id"`
	CourseState     string    `json:"course_state" db:"course_state"`
	ELMDateCreated  string    `json:"elm_date_created" db:"elm_date_created"`
	Action          Action    `json:"action" db:"action"`
	Outcome         Outcome   `json:"outcome" db:"outcome"`
	Detail          string    `json:"detail,omitempty" db:"detail"`
	ProcessedAt     time.Time `json:"processed_at" db:"processed_at"`
}

// NewAuditEntry pre-fills the echo fields from the record; callers set
// the action, outcome, detail and resolved IDs. The echo carries every
// field the fingerprint covers, so any row can be replayed through the
// pipeline later.
func NewAuditEntry(rec IntakeRecord, fingerprint, runID string) AuditEntry {
	return AuditEntry{
		RunID:           runID,
		Fingerprint:     fingerprint,
		ELMCourseID:     rec.CourseID,
		ELMEnrolmentID:  rec.EnrolmentID,
		CourseShortName: rec.CourseShortName,
		FirstName:       rec.FirstName,
		LastName:        rec.LastName,
		Email:           rec.Email,
		GUID:            rec.GUID,
		ELMLearnerID:    rec.LearnerID,
		CourseState:     rec.CourseState,
		ELMDateCreated:  rec.DateCreated,
		ProcessedAt:     time.Now().UTC(),
	}
}

// Record reconstructs the intake record a ledger row was built from.
func (e AuditEntry) Record() IntakeRecord {
	return IntakeRecord{
		EnrolmentID:     e.ELMEnrolmentID,
		CourseID:        e.ELMCourseID,
		CourseShortName: e.CourseShortName,
		CourseState:     e.CourseState,
		FirstName:       e.FirstName,
		LastName:        e.LastName,
		Email:           e.Email,
		GUID:            e.GUID,
		LearnerID:       e.ELMLearnerID,
		DateCreated:     e.ELMDateCreated,
	}
}
