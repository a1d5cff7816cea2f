package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/db"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/notify"
)

const completionDateLayout = "2006-01-02"

// Service turns queued completion events into pushes against the
// learning-record system, with one ledger row per attempt.
type Service struct {
	client   *Client
	learners db.LearnerRepository
	courses  db.CourseRepository
	audit    db.AuditRepository
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewService(client *Client, learners db.LearnerRepository, courses db.CourseRepository, audit db.AuditRepository, notifier notify.Notifier) *Service {
	return &Service{
		client:   client,
		learners: learners,
		courses:  courses,
		audit:    audit,
		notifier: notifier,
		log:      logger.For("completion"),
	}
}

// ProcessJob pushes one completion upstream. The returned error keeps its
// retryable classification so the queue consumer can decide between
// requeue and dead-letter; either way the attempt is already on the
// ledger.
func (s *Service) ProcessJob(ctx context.Context, job model.CompletionJob) error {
	event := job.Event
	log := s.log.With().
		Str("guid", event.GUID).
		Str("course_id", event.ELMCourseID).
		Str("enrolment_id", event.ELMEnrolmentID).
		Logger()

	log.Info().Msg("Processing completion")

	entry := s.newEntry(ctx, event)

	completionDate := event.CompletionDate
	if completionDate == "" {
		completionDate = time.Now().UTC().Format(completionDateLayout)
	}

	payload := model.CompletionPayload{
		CompletionDate: completionDate,
		EnrolmentID:    event.ELMEnrolmentID,
		CourseID:       event.ELMCourseID,
		GUID:           event.GUID,
		Email:          event.Email,
		FirstName:      event.FirstName,
		LastName:       event.LastName,
		Status:         model.CompletionStatusTag,
	}

	pushErr := s.client.Push(ctx, payload)
	if pushErr != nil {
		entry.Outcome = model.OutcomeError
		entry.Detail = pushErr.Error()
		log.Error().Err(pushErr).Msg("Completion push failed")
	} else {
		entry.Outcome = model.OutcomeSuccess
		log.Info().Msg("Completion pushed")
	}

	if err := s.audit.Insert(ctx, &entry); err != nil {
		log.Error().Err(err).Msg("Failed to write completion audit entry")
	}

	if pushErr != nil {
		s.alertFailure(ctx, event, pushErr)
	}
	return pushErr
}

// newEntry resolves what local identities it can; a completion for a
// learner or course we no longer track is still pushed and still audited,
// just with zero local IDs.
func (s *Service) newEntry(ctx context.Context, event model.CompletionEvent) model.AuditEntry {
	entry := model.AuditEntry{
		ELMCourseID:    event.ELMCourseID,
		ELMEnrolmentID: event.ELMEnrolmentID,
		FirstName:      event.FirstName,
		LastName:       event.LastName,
		Email:          event.Email,
		GUID:           event.GUID,
		Action:         model.ActionComplete,
		ProcessedAt:    time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if learner, err := s.learners.FindByGUID(ctx, event.GUID); err == nil && learner != nil {
		entry.LearnerID = learner.ID
	}
	if course, err := s.courses.FindByELMID(ctx, event.ELMCourseID); err == nil && course != nil {
		entry.CourseID = course.ID
		entry.CourseShortName = course.ShortName
	}
	return entry
}

func (s *Service) alertFailure(ctx context.Context, event model.CompletionEvent, pushErr error) {
	subject := "Course completion push failed"
	body := fmt.Sprintf(
		"A course completion could not be delivered to ELM.\n\n"+
			"Learner: %s %s <%s>\nGUID: %s\nCourse: %s\nEnrolment: %s\nError: %v\n",
		event.FirstName, event.LastName, event.Email,
		event.GUID, event.ELMCourseID, event.ELMEnrolmentID, pushErr)

	if err := s.notifier.NotifyAdmins(ctx, subject, body); err != nil {
		s.log.Error().Err(err).Msg("Failed to send completion failure alert")
	}
}
