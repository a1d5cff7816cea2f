package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/metrics"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
)

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Interval:            time.Hour,
		StalenessAlertHours: 24,
		ServiceWindow: config.WindowConfig{
			StartTime: "08:00",
			EndTime:   "17:00",
			Timezone:  "America/Vancouver",
		},
	}
}

// businessHours is a Wednesday 10:00 in America/Vancouver (PST, UTC-8).
var businessHours = time.Date(2024, 3, 6, 18, 0, 0, 0, time.UTC)

type aggregatorFixture struct {
	runs     *fakeRuns
	audit    *fakeAudit
	notifier *fakeNotifier
	agg      *Aggregator
}

func newAggregatorFixture(at time.Time) aggregatorFixture {
	fx := aggregatorFixture{
		runs:     &fakeRuns{},
		audit:    newFakeAudit(),
		notifier: &fakeNotifier{},
	}
	fx.agg = NewAggregator(fx.runs, fx.audit, fx.notifier, metrics.NewRegistry(), testSyncConfig())
	fx.agg.now = func() time.Time { return at }
	return fx
}

func TestFinalizeTallies(t *testing.T) {
	fx := newAggregatorFixture(businessHours)
	run := &model.RunSummary{
		ID:        "run-1",
		Trigger:   model.RunTriggerScheduled,
		StartedAt: time.Now().UTC(),
		Fetched:   6,
	}
	outcomes := []model.RecordOutcome{
		model.RecordOutcomeEnrolled,
		model.RecordOutcomeEnrolled,
		model.RecordOutcomeSuspended,
		model.RecordOutcomeErrored,
		model.RecordOutcomeSkipped,
		model.RecordOutcomeSkipped,
	}

	err := fx.agg.Finalize(context.Background(), run, outcomes)
	require.NoError(t, err)

	assert.Equal(t, 2, run.Enrolled)
	assert.Equal(t, 1, run.Suspended)
	assert.Equal(t, 1, run.Errored)
	assert.Equal(t, 2, run.Skipped)
	assert.False(t, run.FinishedAt.IsZero())

	require.Len(t, fx.runs.created, 1)
	assert.Equal(t, "run-1", fx.runs.created[0].ID)
}

func TestFinalizeEmptyBatch(t *testing.T) {
	fx := newAggregatorFixture(businessHours)
	run := &model.RunSummary{ID: "run-empty", Trigger: model.RunTriggerScheduled, StartedAt: time.Now().UTC()}

	err := fx.agg.Finalize(context.Background(), run, nil)
	require.NoError(t, err)

	assert.Zero(t, run.Enrolled+run.Suspended+run.Errored+run.Skipped)
	assert.Len(t, fx.runs.created, 1, "empty cycles still leave a summary row")
}

func TestStalenessAlertsInsideServiceWindow(t *testing.T) {
	fx := newAggregatorFixture(businessHours)
	fx.audit.lastApply = businessHours.Add(-48 * time.Hour)

	err := fx.agg.CheckStaleness(context.Background())
	require.NoError(t, err)

	require.Len(t, fx.notifier.alerts, 1)
	assert.Contains(t, fx.notifier.alerts[0], "stalled")
}

func TestStalenessHeldOutsideServiceWindow(t *testing.T) {
	// Saturday 10:00 local: the feed being quiet is expected, not stalled.
	saturday := time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)
	fx := newAggregatorFixture(saturday)
	fx.audit.lastApply = saturday.Add(-72 * time.Hour)

	err := fx.agg.CheckStaleness(context.Background())
	require.NoError(t, err)

	assert.Empty(t, fx.notifier.alerts)
}

func TestStalenessFreshApply(t *testing.T) {
	fx := newAggregatorFixture(businessHours)
	fx.audit.lastApply = businessHours.Add(-2 * time.Hour)

	err := fx.agg.CheckStaleness(context.Background())
	require.NoError(t, err)

	assert.Empty(t, fx.notifier.alerts)
}

func TestStalenessEmptyLedger(t *testing.T) {
	fx := newAggregatorFixture(businessHours)

	err := fx.agg.CheckStaleness(context.Background())
	require.NoError(t, err)

	assert.Empty(t, fx.notifier.alerts, "a ledger with no applies yet never alerts")
}

func TestWithinServiceWindow(t *testing.T) {
	window := testSyncConfig().ServiceWindow

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"weekday mid-morning", time.Date(2024, 3, 6, 18, 0, 0, 0, time.UTC), true},   // Wed 10:00 PST
		{"weekday at open", time.Date(2024, 3, 6, 16, 0, 0, 0, time.UTC), true},       // Wed 08:00 PST
		{"weekday at close", time.Date(2024, 3, 7, 1, 0, 0, 0, time.UTC), true},       // Wed 17:00 PST
		{"weekday before open", time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC), false}, // Wed 06:30 PST
		{"weekday after close", time.Date(2024, 3, 7, 3, 0, 0, 0, time.UTC), false},   // Wed 19:00 PST
		{"saturday", time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := WithinServiceWindow(window, tc.at)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWithinServiceWindowBadTimezone(t *testing.T) {
	window := config.WindowConfig{StartTime: "08:00", EndTime: "17:00", Timezone: "Mars/Olympus"}

	_, err := WithinServiceWindow(window, businessHours)
	require.Error(t, err)
}
