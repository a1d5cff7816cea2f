package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// applyActions is the SQL fragment matching ledger rows that mutated
// enrolment state. Only these participate in dedup and staleness.
var applyActions = []model.Action{
	model.ActionEnrol, model.ActionSuspend,
	model.ActionManualEnrol, model.ActionManualSuspend,
	model.ActionBulkEnrol, model.ActionBulkSuspend,
}

// AuditQuery filters ledger searches; zero-value fields are ignored.
type AuditQuery struct {
	Email       string
	GUID        string
	Fingerprint string
	Limit       int
}

// AuditRepository owns the append-only processing ledger and the
// fingerprint claim table that serializes concurrent applies.
type AuditRepository interface {
	Insert(ctx context.Context, entry *model.AuditEntry) error
	HasSuccessfulApply(ctx context.Context, fingerprint string) (bool, error)
	LastSuccessfulApply(ctx context.Context) (time.Time, error)
	FindByID(ctx context.Context, id int64) (*model.AuditEntry, error)
	Search(ctx context.Context, q AuditQuery) ([]model.AuditEntry, error)
	ClaimFingerprint(ctx context.Context, fingerprint string) error
	ReleaseFingerprint(ctx context.Context, fingerprint string) error
}

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

const auditColumns = `id, run_id, fingerprint, course_id, learner_id, elm_course_id, elm_enrolment_id,
	course_shortname, first_name, last_name, email, guid, elm_learner_id,
	course_state, elm_date_created, action, outcome, detail, processed_at`

func (r *auditRepository) Insert(ctx context.Context, entry *model.AuditEntry) error {
	query := `INSERT INTO enrolment_audit
		(run_id, fingerprint, course_id, learner_id, elm_course_id, elm_enrolment_id,
		 course_shortname, first_name, last_name, email, guid, elm_learner_id,
		 course_state, elm_date_created, action, outcome, detail, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		entry.RunID, entry.Fingerprint, entry.CourseID, entry.LearnerID,
		entry.ELMCourseID, entry.ELMEnrolmentID, entry.CourseShortName,
		entry.FirstName, entry.LastName, entry.Email, entry.GUID, entry.ELMLearnerID,
		entry.CourseState, entry.ELMDateCreated, entry.Action, entry.Outcome, entry.Detail, entry.ProcessedAt,
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

func applyActionPlaceholders() (string, []interface{}) {
	marks := make([]string, len(applyActions))
	args := make([]interface{}, len(applyActions))
	for i, a := range applyActions {
		marks[i] = "?"
		args[i] = a
	}
	return strings.Join(marks, ", "), args
}

// HasSuccessfulApply reports whether an enrol/suspend-family row with a
// success outcome exists for the fingerprint. Error rows and skip rows do
// not count: failed attempts must stay retryable.
func (r *auditRepository) HasSuccessfulApply(ctx context.Context, fingerprint string) (bool, error) {
	marks, actionArgs := applyActionPlaceholders()
	query := `SELECT EXISTS(
		SELECT 1 FROM enrolment_audit
		WHERE fingerprint = ? AND outcome = ? AND action IN (` + marks + `)
	)`

	args := append([]interface{}{fingerprint, model.OutcomeSuccess}, actionArgs...)

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// LastSuccessfulApply returns the processing time of the most recent
// successful enrol/suspend across all history, or the zero time when the
// ledger holds none.
func (r *auditRepository) LastSuccessfulApply(ctx context.Context) (time.Time, error) {
	marks, actionArgs := applyActionPlaceholders()
	query := `SELECT MAX(processed_at) FROM enrolment_audit
		WHERE outcome = ? AND action IN (` + marks + `)`

	args := append([]interface{}{model.OutcomeSuccess}, actionArgs...)

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&last); err != nil {
		return time.Time{}, err
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func (r *auditRepository) FindByID(ctx context.Context, id int64) (*model.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM enrolment_audit WHERE id = ?`

	var e model.AuditEntry
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.RunID, &e.Fingerprint, &e.CourseID, &e.LearnerID,
		&e.ELMCourseID, &e.ELMEnrolmentID, &e.CourseShortName,
		&e.FirstName, &e.LastName, &e.Email, &e.GUID, &e.ELMLearnerID,
		&e.CourseState, &e.ELMDateCreated, &e.Action, &e.Outcome, &e.Detail, &e.ProcessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *auditRepository) Search(ctx context.Context, q AuditQuery) ([]model.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM enrolment_audit WHERE 1=1`
	var args []interface{}

	if q.Email != "" {
		query += ` AND LOWER(email) = LOWER(?)`
		args = append(args, q.Email)
	}
	if q.GUID != "" {
		query += ` AND guid = ?`
		args = append(args, q.GUID)
	}
	if q.Fingerprint != "" {
		query += ` AND fingerprint = ?`
		args = append(args, q.Fingerprint)
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` ORDER BY processed_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		err := rows.Scan(
			&e.ID, &e.RunID, &e.Fingerprint, &e.CourseID, &e.LearnerID,
			&e.ELMCourseID, &e.ELMEnrolmentID, &e.CourseShortName,
			&e.FirstName, &e.LastName, &e.Email, &e.GUID, &e.ELMLearnerID,
			&e.CourseState, &e.ELMDateCreated, &e.Action, &e.Outcome, &e.Detail, &e.ProcessedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClaimFingerprint inserts into the claim table, whose primary key is the
// fingerprint itself. A duplicate-key failure means another run already
// claimed it; callers skip the record instead of double-applying. Claims
// are kept after success and released after failure so errors stay
// retryable.
func (r *auditRepository) ClaimFingerprint(ctx context.Context, fingerprint string) error {
	query := `INSERT INTO fingerprint_claims (fingerprint, claimed_at) VALUES (?, NOW())`

	_, err := r.db.ExecContext(ctx, query, fingerprint)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return apperrors.ErrFingerprintClaimed
		}
		return err
	}
	return nil
}

func (r *auditRepository) ReleaseFingerprint(ctx context.Context, fingerprint string) error {
	query := `DELETE FROM fingerprint_claims WHERE fingerprint = ?`
	_, err := r.db.ExecContext(ctx, query, fingerprint)
	return err
}
