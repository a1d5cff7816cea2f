package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/db"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

const (
	maxRosterBytes    = 20 << 20
	rosterContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Enqueuer is the slice of the queue producer the API needs. Everything
// the API accepts is handed to a worker; nothing long-running happens on
// a request goroutine except manual reprocessing.
type Enqueuer interface {
	EnqueueRunRequest(ctx context.Context, req model.RunRequest) error
	EnqueueBulkJob(ctx context.Context, job model.BulkJob) error
	EnqueueCompletion(ctx context.Context, job model.CompletionJob) error
}

// Reprocessor replays one ledger entry through the reconciliation
// pipeline on the manual channel.
type Reprocessor interface {
	ReprocessEntry(ctx context.Context, entryID int64) (*model.ReprocessResult, error)
}

// RosterStore parks uploaded roster files where the ingestion worker can
// fetch them.
type RosterStore interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	RosterKey(uploadID, filename string) string
}

type Handler struct {
	runs     db.RunRepository
	audit    db.AuditRepository
	uploads  db.UploadRepository
	producer Enqueuer
	engine   Reprocessor
	store    RosterStore
	cfg      *config.Config
	log      zerolog.Logger
}

func NewHandler(
	runs db.RunRepository,
	audit db.AuditRepository,
	uploads db.UploadRepository,
	producer Enqueuer,
	engine Reprocessor,
	store RosterStore,
	cfg *config.Config,
) *Handler {
	return &Handler{
		runs:     runs,
		audit:    audit,
		uploads:  uploads,
		producer: producer,
		engine:   engine,
		store:    store,
		cfg:      cfg,
		log:      logger.For("api"),
	}
}

// TriggerRun queues an out-of-schedule reconciliation cycle. The cycle is
// executed by the reconcile worker, never inline, so manual and scheduled
// runs share the same lock and the same code path.
func (h *Handler) TriggerRun(c *gin.Context) {
	var req struct {
		RequestedBy string `json:"requested_by" binding:"required"`
		Reason      string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requested_by is required"})
		return
	}

	request := model.RunRequest{
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
		RequestedAt: time.Now().UTC(),
	}

	if err := h.producer.EnqueueRunRequest(c.Request.Context(), request); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue run request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue run request"})
		return
	}

	h.log.Info().
		Str("requested_by", req.RequestedBy).
		Str("reason", req.Reason).
		Msg("Manual run queued")

	c.JSON(http.StatusAccepted, gin.H{"message": "Run queued"})
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.runs.FindByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, apperrors.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", c.Param("id")).Msg("Failed to get run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// SearchAudit looks up ledger entries by learner email, GUID or
// fingerprint, most recent first. With no filters it returns the most
// recent entries, which is what the support screen shows by default.
func (h *Handler) SearchAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	query := db.AuditQuery{
		Email:       c.Query("email"),
		GUID:        c.Query("guid"),
		Fingerprint: c.Query("fingerprint"),
		Limit:       limit,
	}

	entries, err := h.audit.Search(c.Request.Context(), query)
	if err != nil {
		h.log.Error().Err(err).Msg("Ledger search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// ReprocessAuditEntry replays one ledger row. The response carries the
// classifier's verdict and reason verbatim; a blocked record comes back
// 200 with applied=false, because the reprocess operation itself worked.
func (h *Handler) ReprocessAuditEntry(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry ID"})
		return
	}

	result, err := h.engine.ReprocessEntry(c.Request.Context(), id)
	if errors.Is(err, apperrors.ErrEntryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audit entry not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("entry_id", id).Msg("Reprocess failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.log.Info().
		Int64("entry_id", id).
		Str("verdict", string(result.Verdict)).
		Bool("applied", result.Applied).
		Msg("Ledger entry reprocessed")

	c.JSON(http.StatusOK, result)
}

// UploadRoster accepts a spreadsheet roster, parks it in object storage
// and queues it for the ingestion worker. The upload row is created
// first so a storage or queue failure leaves a FAILED row behind rather
// than a silent disappearance.
func (h *Handler) UploadRoster(c *gin.Context) {
	uploadedBy := c.PostForm("uploaded_by")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only .xlsx rosters are accepted"})
		return
	}
	if header.Size > maxRosterBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Roster file too large"})
		return
	}

	now := time.Now().UTC()
	upload := &model.BulkUpload{
		ID:         uuid.New().String(),
		Filename:   header.Filename,
		UploadedBy: uploadedBy,
		Status:     model.UploadStatusUploaded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	upload.S3Key = h.store.RosterKey(upload.ID, header.Filename)

	ctx := c.Request.Context()

	if err := h.uploads.Create(ctx, upload); err != nil {
		h.log.Error().Err(err).Msg("Failed to create upload row")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := h.store.Upload(ctx, upload.S3Key, file, rosterContentType); err != nil {
		h.log.Error().Err(err).Str("upload_id", upload.ID).Msg("Failed to store roster file")
		h.markUploadFailed(ctx, upload.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store roster file"})
		return
	}

	job := model.BulkJob{
		UploadID:   upload.ID,
		S3Key:      upload.S3Key,
		UploadedBy: uploadedBy,
	}
	if err := h.producer.EnqueueBulkJob(ctx, job); err != nil {
		h.log.Error().Err(err).Str("upload_id", upload.ID).Msg("Failed to enqueue bulk job")
		h.markUploadFailed(ctx, upload.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue roster"})
		return
	}

	h.log.Info().
		Str("upload_id", upload.ID).
		Str("filename", header.Filename).
		Str("uploaded_by", uploadedBy).
		Msg("Roster upload queued")

	c.JSON(http.StatusAccepted, gin.H{"upload_id": upload.ID, "status": upload.Status})
}

func (h *Handler) markUploadFailed(ctx context.Context, uploadID string, cause error) {
	if err := h.uploads.MarkFailed(ctx, uploadID, cause.Error()); err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to mark upload failed")
	}
}

func (h *Handler) GetUpload(c *gin.Context) {
	upload, err := h.uploads.FindByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, apperrors.ErrUploadNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("upload_id", c.Param("id")).Msg("Failed to get upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, upload)
}

// CompletionWebhook receives course-completed events from the learning
// platform and queues the outbound push. Acceptance here only means the
// event is queued; delivery outcomes land on the audit ledger.
func (h *Handler) CompletionWebhook(c *gin.Context) {
	var event model.CompletionEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if event.GUID == "" || event.ELMCourseID == "" || event.ELMEnrolmentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guid, course_id and enrolment_id are required"})
		return
	}

	job := model.CompletionJob{
		Event:      event,
		ReceivedAt: time.Now().UTC(),
	}

	if err := h.producer.EnqueueCompletion(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue completion")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue completion"})
		return
	}

	h.log.Info().
		Str("guid", event.GUID).
		Str("course_id", event.ELMCourseID).
		Msg("Completion queued")

	c.JSON(http.StatusAccepted, gin.H{"message": "Completion queued"})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}
