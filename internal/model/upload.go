package model

import "time"

type UploadStatus string

const (
	UploadStatusUploaded  UploadStatus = "UPLOADED"
	UploadStatusProcessed UploadStatus = "PROCESSED"
	UploadStatusFailed    UploadStatus = "FAILED"
)

// BulkUpload tracks one uploaded roster spreadsheet from receipt through
// processing. Per-row outcomes land in the audit ledger; RunID links to the
// summary written when the roster was processed.
type BulkUpload struct {
	ID           string       `json:"id" db:"id"`
	S3Key        string       `json:"s3_key" db:"s3_key"`
	Filename     string       `json:"filename" db:"filename"`
	UploadedBy   string       `json:"uploaded_by" db:"uploaded_by"`
	Status       UploadStatus `json:"status" db:"status"`
	ErrorMessage *string      `json:"error_message,omitempty" db:"error_message"`
	RunID        *string      `json:"run_id,omitempty" db:"run_id"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}
