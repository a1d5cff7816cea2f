package model

import "time"

// Learner is the local user row the bridge reconciles against. GUID is the
// stable matching key; accounts authenticate through the external identity
// provider, so the local password is a throwaway.
type Learner struct {
	ID           int64     `json:"id" db:"id"`
	GUID         string    `json:"guid" db:"guid"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Confirmed    bool      `json:"confirmed" db:"confirmed"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Course is a local course row, matched by the ELM-side course identifier.
type Course struct {
	ID          int64  `json:"id" db:"id"`
	ELMCourseID string `json:"elm_course_id" db:"elm_course_id"`
	ShortName   string `json:"shortname" db:"shortname"`
	FullName    string `json:"fullname" db:"fullname"`
	Visible     bool   `json:"visible" db:"visible"`
}

type EnrolmentStatus string

const (
	EnrolmentActive    EnrolmentStatus = "active"
	EnrolmentSuspended EnrolmentStatus = "suspended"
)

// EnrolMethodManual is the enrolment channel the bridge writes through.
const EnrolMethodManual = "manual"

type Enrolment struct {
	ID           int64           `json:"id" db:"id"`
	LearnerID    int64           `json:"learner_id" db:"learner_id"`
	CourseID     int64           `json:"course_id" db:"course_id"`
	Status       EnrolmentStatus `json:"status" db:"status"`
	Method       string          `json:"method" db:"method"`
	TimeCreated  time.Time       `json:"time_created" db:"time_created"`
	TimeModified time.Time       `json:"time_modified" db:"time_modified"`
}
