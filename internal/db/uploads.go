package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// UploadRepository tracks bulk roster files from receipt through processing.
type UploadRepository interface {
	Create(ctx context.Context, upload *model.BulkUpload) error
	MarkProcessed(ctx context.Context, id, runID string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
	FindByID(ctx context.Context, id string) (*model.BulkUpload, error)
}

type uploadRepository struct {
	db *sql.DB
}

func NewUploadRepository(db *sql.DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) Create(ctx context.Context, upload *model.BulkUpload) error {
	query := `INSERT INTO bulk_uploads
		(id, s3_key, filename, uploaded_by, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		upload.ID, upload.S3Key, upload.Filename, upload.UploadedBy,
		upload.Status, upload.CreatedAt, upload.UpdatedAt,
	)
	return err
}

func (r *uploadRepository) MarkProcessed(ctx context.Context, id, runID string) error {
	query := `UPDATE bulk_uploads SET status = ?, run_id = ?, updated_at = NOW() WHERE id = ?`
	return r.update(ctx, query, model.UploadStatusProcessed, runID, id)
}

func (r *uploadRepository) MarkFailed(ctx context.Context, id, errorMessage string) error {
	query := `UPDATE bulk_uploads SET status = ?, error_message = ?, updated_at = NOW() WHERE id = ?`
	return r.update(ctx, query, model.UploadStatusFailed, errorMessage, id)
}

func (r *uploadRepository) update(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.ErrUploadNotFound
	}
	return nil
}

func (r *uploadRepository) FindByID(ctx context.Context, id string) (*model.BulkUpload, error) {
	query := `SELECT id, s3_key, filename, uploaded_by, status, error_message, run_id, created_at, updated_at
		FROM bulk_uploads WHERE id = ?`

	var u model.BulkUpload
	var errorMessage, runID sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.S3Key, &u.Filename, &u.UploadedBy, &u.Status,
		&errorMessage, &runID, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}

	if errorMessage.Valid {
		u.ErrorMessage = &errorMessage.String
	}
	if runID.Valid {
		u.RunID = &runID.String
	}
	return &u, nil
}
