package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

func testFeedConfig(serverURL string) config.FeedConfig {
	return config.FeedConfig{
		URL:           serverURL,
		Token:         "secret-token",
		TokenHeader:   "x-cdata-authtoken",
		WindowMinutes: 70,
		Timeout:       5 * time.Second,
	}
}

func TestWindowOverlap(t *testing.T) {
	c := NewClient(testFeedConfig("http://example.invalid"))
	now := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

	start, end := c.Window(now)

	assert.Equal(t, now, end)
	assert.Equal(t, now.Add(-70*time.Minute), start)
}

func TestBuildQuery(t *testing.T) {
	c := NewClient(testFeedConfig("http://example.invalid"))
	windowStart := time.Date(2024, 3, 6, 8, 50, 0, 0, time.UTC)

	query := c.BuildQuery(windowStart)

	values, err := url.ParseQuery(query)
	require.NoError(t, err)
	assert.Equal(t, "DateCreated gt '2024-03-06 08:50:00' and UserState eq 'Active'", values.Get("$filter"))
	assert.Equal(t, "CourseStateDate asc,DateCreated asc", values.Get("$orderby"))
}

func TestFetch(t *testing.T) {
	want := []model.IntakeRecord{
		{EnrolmentID: "ENR-1", CourseID: "2240", CourseState: "Enrol", GUID: "AAA", Email: "a@gov.bc.ca"},
		{EnrolmentID: "ENR-2", CourseID: "2241", CourseState: "Suspend", GUID: "BBB", Email: "b@gov.bc.ca"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-token", r.Header.Get("x-cdata-authtoken"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_ = json.NewEncoder(w).Encode(model.FeedEnvelope{Value: want})
	}))
	defer srv.Close()

	c := NewClient(testFeedConfig(srv.URL))
	records, query, err := c.Fetch(context.Background(), time.Now().Add(-time.Hour))

	require.NoError(t, err)
	assert.Equal(t, want, records)
	assert.NotEmpty(t, query)
}

func TestFetchEmptyWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(model.FeedEnvelope{})
	}))
	defer srv.Close()

	c := NewClient(testFeedConfig(srv.URL))
	records, _, err := c.Fetch(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testFeedConfig(srv.URL))
	records, query, err := c.Fetch(context.Background(), time.Now())

	assert.ErrorIs(t, err, apperrors.ErrFeedUnavailable)
	assert.Nil(t, records)
	assert.NotEmpty(t, query, "the query comes back even on failure so the run can record it")
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := NewClient(testFeedConfig(srv.URL))
	_, _, err := c.Fetch(context.Background(), time.Now())

	assert.ErrorIs(t, err, apperrors.ErrFeedUnavailable)
}

func TestFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer srv.Close()

	c := NewClient(testFeedConfig(srv.URL))
	_, _, err := c.Fetch(context.Background(), time.Now())

	assert.ErrorIs(t, err, apperrors.ErrFeedUnavailable)
}
