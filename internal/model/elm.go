package model

// FeedEnvelope is the OData-style wrapper the ELM data gateway returns:
// a flat `value` array of records.
type FeedEnvelope struct {
	Value []IntakeRecord `json:"value"`
}

// CompletionPayload is the record pushed back to ELM when a learner
// completes a course. Status is always CompletionStatusTag.
type CompletionPayload struct {
	CompletionDate string `json:"completion_date"`
	EnrolmentID    string `json:"enrolment_id"`
	CourseID       string `json:"course_id"`
	GUID           string `json:"guid"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Status         string `json:"status"`
}

const CompletionStatusTag = "Completed"

// CompletionResponse is the acknowledgement body from the completion
// endpoint. Fields are optional; a 2xx with an empty body still counts as
// accepted.
type CompletionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
