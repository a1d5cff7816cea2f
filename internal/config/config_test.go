package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
app:
  name: psaelmsync
  env: test
database:
  host: localhost
  port: 3306
  user: moodle
  password: secret
  name: moodle
  charset: utf8mb4
  parse_time: true
  loc: UTC
elm:
  feed:
    url: https://elm.example.gov.bc.ca/feed
    token: feed-token
  completion:
    url: https://elm.example.gov.bc.ca/completions
    token: push-token
`

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadAppliesDefaults(t *testing.T) {
	writeConfig(t, minimalYAML)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "psaelmsync", cfg.App.Name)
	assert.Equal(t, "x-cdata-authtoken", cfg.ELM.Feed.TokenHeader)
	assert.Equal(t, "x-cdata-authtoken", cfg.ELM.Completion.TokenHeader)
	assert.Equal(t, 70, cfg.ELM.Feed.WindowMinutes)
	assert.Equal(t, 30*time.Second, cfg.ELM.Feed.Timeout)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.Equal(t, 24, cfg.Sync.StalenessAlertHours)
	assert.Equal(t, "08:00", cfg.Sync.ServiceWindow.StartTime)
	assert.Equal(t, "17:00", cfg.Sync.ServiceWindow.EndTime)
	assert.Equal(t, "America/Vancouver", cfg.Sync.ServiceWindow.Timezone)
	assert.Equal(t, "psaelmsync:runs", cfg.Redis.RunRequestQueue)
	assert.Equal(t, "psaelmsync:bulk", cfg.Redis.BulkQueue)
	assert.Equal(t, "psaelmsync:completions", cfg.Redis.CompletionQueue)
	assert.Equal(t, ":dlq", cfg.Redis.DLQSuffix)
	assert.Equal(t, "psaelmsync:runlock", cfg.Redis.RunLockKey)
	assert.Equal(t, 15*time.Minute, cfg.Redis.RunLockTTL)
	assert.Equal(t, 1, cfg.Workers.Ingestion.Count)
	assert.Equal(t, 1, cfg.Workers.Completion.Count)
	assert.Equal(t, ":9100", cfg.Workers.MetricsAddr)
}

func TestLoadExplicitValuesWin(t *testing.T) {
	writeConfig(t, minimalYAML+`
sync:
  interval: 30m
  staleness_alert_hours: 6
  course_ignore_list:
    - "9001"
    - "9002"
  service_window:
    start_time: "07:30"
    end_time: "18:00"
    timezone: America/Edmonton
workers:
  ingestion:
    count: 4
  metrics_addr: ":9200"
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 6, cfg.Sync.StalenessAlertHours)
	assert.Equal(t, []string{"9001", "9002"}, cfg.Sync.CourseIgnoreList)
	assert.Equal(t, "07:30", cfg.Sync.ServiceWindow.StartTime)
	assert.Equal(t, "America/Edmonton", cfg.Sync.ServiceWindow.Timezone)
	assert.Equal(t, 4, cfg.Workers.Ingestion.Count)
	assert.Equal(t, ":9200", cfg.Workers.MetricsAddr)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoadMalformedYAML(t *testing.T) {
	writeConfig(t, "app: [unclosed")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing feed url",
			mutate:  func(c *Config) { c.ELM.Feed.URL = "" },
			wantErr: "elm.feed.url",
		},
		{
			name:    "missing completion url",
			mutate:  func(c *Config) { c.ELM.Completion.URL = "" },
			wantErr: "elm.completion.url",
		},
		{
			name:    "missing database",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "database.host",
		},
		{
			name:    "bad window start",
			mutate:  func(c *Config) { c.Sync.ServiceWindow.StartTime = "8am" },
			wantErr: "start_time",
		},
		{
			name:    "bad window end",
			mutate:  func(c *Config) { c.Sync.ServiceWindow.EndTime = "25:00" },
			wantErr: "end_time",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Sync.ServiceWindow.Timezone = "Mars/Olympus" },
			wantErr: "timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, minimalYAML)
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	writeConfig(t, minimalYAML)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t,
		"moodle:secret@tcp(localhost:3306)/moodle?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.DatabaseDSN())
}

func TestRedisAddr(t *testing.T) {
	writeConfig(t, minimalYAML+`
redis:
  host: cache.internal
  port: 6380
`)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
}
