package model

import "time"

// RunRequest asks the reconcile worker for an out-of-schedule cycle.
type RunRequest struct {
	RequestedBy string    `json:"requested_by"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// BulkJob points the ingestion worker at an uploaded roster.
type BulkJob struct {
	UploadID   string `json:"upload_id"`
	S3Key      string `json:"s3_key"`
	UploadedBy string `json:"uploaded_by"`
}

// CompletionEvent is the course-completed notification the LMS posts to the
// webhook. CompletionDate is the LMS-side timestamp string; empty means
// "now".
type CompletionEvent struct {
	GUID           string `json:"guid"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ELMCourseID    string `json:"course_id"`
	ELMEnrolmentID string `json:"enrolment_id"`
	CompletionDate string `json:"completion_date,omitempty"`
}

type CompletionJob struct {
	Event      CompletionEvent `json:"event"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ReprocessResult is what the manual-reprocess endpoint returns: the
// classifier's verdict and reason verbatim, plus what the applier did.
type ReprocessResult struct {
	EntryID     int64         `json:"entry_id"`
	Verdict     VerdictCode   `json:"verdict"`
	Reason      string        `json:"reason"`
	Applied     bool          `json:"applied"`
	Outcome     RecordOutcome `json:"outcome"`
	Fingerprint string        `json:"fingerprint,omitempty"`
}

// RecordOutcome is the per-record tally bucket a processing attempt lands
// in; the aggregator folds these into the run summary counts.
type RecordOutcome string

const (
	RecordOutcomeEnrolled  RecordOutcome = "enrolled"
	RecordOutcomeSuspended RecordOutcome = "suspended"
	RecordOutcomeErrored   RecordOutcome = "errored"
	RecordOutcomeSkipped   RecordOutcome = "skipped"
)
