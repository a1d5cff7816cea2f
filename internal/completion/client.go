package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// Client pushes course-completion records to the learning-record system.
// Same static-token scheme as the feed; no token refresh, no automatic
// retry. A failed push is recorded and retried via the dead-letter queue
// or manual reprocessing, never inline.
type Client struct {
	cfg        config.CompletionConfig
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg config.CompletionConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: logger.For("completion"),
	}
}

func (c *Client) Push(ctx context.Context, payload model.CompletionPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal completion: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.cfg.TokenHeader, c.cfg.Token)

	c.log.Debug().
		Str("enrolment_id", payload.EnrolmentID).
		Str("course_id", payload.CourseID).
		Msg("Pushing completion")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewRetryableError(err, "completion push failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var ack model.CompletionResponse
		if err := json.NewDecoder(resp.Body).Decode(&ack); err == nil && ack.Message != "" {
			c.log.Debug().Str("message", ack.Message).Msg("Completion acknowledged")
		}
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		// Token misconfiguration, retrying will not help
		return fmt.Errorf("completion endpoint rejected token: HTTP %d", resp.StatusCode)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		// Payload rejected, needs human attention
		return fmt.Errorf("completion rejected: HTTP %d", resp.StatusCode)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return apperrors.NewRetryableError(
			fmt.Errorf("HTTP %d", resp.StatusCode), "completion endpoint unavailable")
	default:
		return apperrors.NewRetryableError(
			fmt.Errorf("HTTP %d", resp.StatusCode), "completion endpoint error")
	}
}
