package bulk

import (
	"context"
	"regexp"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// Validator rejects a roster before any row is processed. A file that
// fails here produces zero ledger rows; per-row problems after this point
// are the classifier's business.
type Validator struct {
	guidRegex   *regexp.Regexp
	emailRegex  *regexp.Regexp
	courseRegex *regexp.Regexp
}

func NewValidator() *Validator {
	return &Validator{
		guidRegex:   regexp.MustCompile(`^[A-Za-z0-9-]{8,64}$`),
		emailRegex:  regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
		courseRegex: regexp.MustCompile(`^[0-9]{1,12}$`),
	}
}

func (v *Validator) Validate(ctx context.Context, records []model.IntakeRecord) error {
	if len(records) == 0 {
		return apperrors.ErrSchemaValidation
	}

	for _, record := range records {
		if err := v.validateRecord(record); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validateRecord(record model.IntakeRecord) error {
	if !v.guidRegex.MatchString(record.GUID) {
		return apperrors.ValidationError{
			Field:   "guid",
			Value:   record.GUID,
			Message: "must be 8-64 alphanumeric characters",
		}
	}

	if !v.emailRegex.MatchString(record.Email) {
		return apperrors.ValidationError{
			Field:   "email",
			Value:   record.Email,
			Message: "must be a valid email address",
		}
	}

	if !v.courseRegex.MatchString(record.CourseID) {
		return apperrors.ValidationError{
			Field:   "course_id",
			Value:   record.CourseID,
			Message: "must be a numeric ELM course identifier",
		}
	}

	if _, ok := model.ParseCourseState(record.CourseState); !ok {
		return apperrors.ValidationError{
			Field:   "course_state",
			Value:   record.CourseState,
			Message: "must be Enrol or Suspend",
		}
	}

	if len(record.FirstName) == 0 || len(record.FirstName) > 100 {
		return apperrors.ValidationError{
			Field:   "first_name",
			Value:   record.FirstName,
			Message: "first name cannot be empty",
		}
	}

	if len(record.LastName) == 0 || len(record.LastName) > 100 {
		return apperrors.ValidationError{
			Field:   "last_name",
			Value:   record.LastName,
			Message: "last name cannot be empty",
		}
	}

	return nil
}
