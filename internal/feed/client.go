package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// feedTimeLayout is the datetime literal format the upstream OData-style
// endpoint accepts in $filter expressions.
const feedTimeLayout = "2006-01-02 15:04:05"

// Client pulls time-windowed enrolment batches from the learning-record
// feed. Authentication is a static token header; there is no token
// refresh flow on this endpoint.
type Client struct {
	cfg        config.FeedConfig
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg config.FeedConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: logger.For("feed"),
	}
}

// Window returns the fetch window ending at now: the lower bound reaches
// back the configured number of minutes so consecutive cycles overlap and
// a record missed at a window edge is picked up on the next pass.
func (c *Client) Window(now time.Time) (time.Time, time.Time) {
	end := now.UTC()
	start := end.Add(-time.Duration(c.cfg.WindowMinutes) * time.Minute)
	return start, end
}

// BuildQuery renders the filter for one fetch window: records created
// after the lower bound, active users only, ordered by course-state date
// then creation time so applies happen in event order.
func (c *Client) BuildQuery(windowStart time.Time) string {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("DateCreated gt '%s' and UserState eq 'Active'",
		windowStart.UTC().Format(feedTimeLayout)))
	params.Set("$orderby", "CourseStateDate asc,DateCreated asc")
	return params.Encode()
}

// Fetch retrieves one window's worth of records. It returns the query
// string alongside the batch so the run summary can record exactly what
// was asked of the upstream system, including on failure.
func (c *Client) Fetch(ctx context.Context, windowStart time.Time) ([]model.IntakeRecord, string, error) {
	query := c.BuildQuery(windowStart)
	requestURL := c.cfg.URL + "?" + query

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, query, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.cfg.TokenHeader, c.cfg.Token)

	c.log.Debug().Str("query", query).Msg("Fetching enrolment feed")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, query, fmt.Errorf("%w: %v", apperrors.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, query, fmt.Errorf("%w: status %d: %s",
			apperrors.ErrFeedUnavailable, resp.StatusCode, string(body))
	}

	var envelope model.FeedEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, query, fmt.Errorf("%w: decode: %v", apperrors.ErrFeedUnavailable, err)
	}

	c.log.Debug().Int("count", len(envelope.Value)).Msg("Received enrolment records")
	return envelope.Value, query, nil
}
