package db

import (
	"context"
	"database/sql"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// EnrolmentRepository is the enrolment capability: check, enrol at active
// status through the manual channel, and suspend.
type EnrolmentRepository interface {
	ActiveExists(ctx context.Context, learnerID, courseID int64) (bool, error)
	Enrol(ctx context.Context, learnerID, courseID int64) error
	Suspend(ctx context.Context, learnerID, courseID int64) error
}

type enrolmentRepository struct {
	db *sql.DB
}

func NewEnrolmentRepository(db *sql.DB) EnrolmentRepository {
	return &enrolmentRepository{db: db}
}

func (r *enrolmentRepository) ActiveExists(ctx context.Context, learnerID, courseID int64) (bool, error) {
	query := `SELECT EXISTS(
		SELECT 1 FROM enrolments
		WHERE learner_id = ? AND course_id = ? AND status = ?
	)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, learnerID, courseID, model.EnrolmentActive).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Enrol activates the learner in the course, reviving a suspended row if
// one exists. The (learner_id, course_id, method) unique key makes this
// safe to repeat.
func (r *enrolmentRepository) Enrol(ctx context.Context, learnerID, courseID int64) error {
	query := `INSERT INTO enrolments (learner_id, course_id, status, method, time_created, time_modified)
			  VALUES (?, ?, ?, ?, NOW(), NOW())
			  ON DUPLICATE KEY UPDATE status = VALUES(status), time_modified = NOW()`

	_, err := r.db.ExecContext(ctx, query, learnerID, courseID, model.EnrolmentActive, model.EnrolMethodManual)
	return err
}

// Suspend flips an active enrolment to suspended. ErrNoActiveEnrolment when
// there is nothing to flip; callers treat that as a soft no-op.
func (r *enrolmentRepository) Suspend(ctx context.Context, learnerID, courseID int64) error {
	query := `UPDATE enrolments SET status = ?, time_modified = NOW()
			  WHERE learner_id = ? AND course_id = ? AND status = ?`

	res, err := r.db.ExecContext(ctx, query, model.EnrolmentSuspended, learnerID, courseID, model.EnrolmentActive)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.ErrNoActiveEnrolment
	}
	return nil
}
