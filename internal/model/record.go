package model

import "strings"

// CourseState is the enrolment-change tag carried on a feed record.
type CourseState string

const (
	CourseStateEnrol   CourseState = "Enrol"
	CourseStateSuspend CourseState = "Suspend"
)

// ParseCourseState normalizes a raw feed tag. ok is false for anything
// outside the known set; such records are audited but never acted on.
func ParseCourseState(raw string) (CourseState, bool) {
	switch {
	case strings.EqualFold(strings.TrimSpace(raw), string(CourseStateEnrol)):
		return CourseStateEnrol, true
	case strings.EqualFold(strings.TrimSpace(raw), string(CourseStateSuspend)):
		return CourseStateSuspend, true
	}
	return "", false
}

// IntakeRecord is one enrolment-change record as delivered by the ELM feed.
// EnrolmentID is source-provided and not unique across redeliveries, which
// is why it never participates in the dedup fingerprint.
type IntakeRecord struct {
	EnrolmentID     string `json:"enrolment_id"`
	CourseID        string `json:"course_id"`
	CourseShortName string `json:"course_shortname"`
	CourseState     string `json:"course_state"`
	CourseStateDate string `json:"course_state_date"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	GUID            string `json:"guid"`
	LearnerID       string `json:"learner_id"`
	DateCreated     string `json:"date_created"`
}

func (r IntakeRecord) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}
