package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	ELM      ELMConfig      `yaml:"elm"`
	Sync     SyncConfig     `yaml:"sync"`
	Notify   NotifyConfig   `yaml:"notify"`
	Stream   StreamConfig   `yaml:"stream"`
	Workers  WorkersConfig  `yaml:"workers"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	PoolSize        int           `yaml:"pool_size"`
	RunRequestQueue string        `yaml:"run_request_queue"`
	BulkQueue       string        `yaml:"bulk_queue"`
	CompletionQueue string        `yaml:"completion_queue"`
	DLQSuffix       string        `yaml:"dlq_suffix"`
	RunLockKey      string        `yaml:"run_lock_key"`
	RunLockTTL      time.Duration `yaml:"run_lock_ttl"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ELMConfig covers both directions of traffic with the learning-record
// system: the enrolment feed we pull from and the completion endpoint we
// push to. Both authenticate with a static token header.
type ELMConfig struct {
	Feed       FeedConfig       `yaml:"feed"`
	Completion CompletionConfig `yaml:"completion"`
}

type FeedConfig struct {
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	TokenHeader   string        `yaml:"token_header"`
	WindowMinutes int           `yaml:"window_minutes"`
	Timeout       time.Duration `yaml:"timeout"`
}

type CompletionConfig struct {
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	TokenHeader string        `yaml:"token_header"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SyncConfig drives the reconciliation cycle itself: how often it runs,
// which courses are ignored outright, and when a quiet feed becomes an
// alert rather than an expected lull.
type SyncConfig struct {
	Interval            time.Duration `yaml:"interval"`
	RunOnStart          bool          `yaml:"run_on_start"`
	CourseIgnoreList    []string      `yaml:"course_ignore_list"`
	StalenessAlertHours int           `yaml:"staleness_alert_hours"`
	ServiceWindow       WindowConfig  `yaml:"service_window"`
}

// WindowConfig is a weekday business-hours window, e.g. 08:00-17:00
// America/Vancouver. Times use the "15:04" layout.
type WindowConfig struct {
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
	Timezone  string `yaml:"timezone"`
}

type NotifyConfig struct {
	SMTP         SMTPConfig `yaml:"smtp"`
	AdminEmails  []string   `yaml:"admin_emails"`
	FromAddress  string     `yaml:"from_address"`
	SendWelcome  bool       `yaml:"send_welcome"`
	SiteShortURL string     `yaml:"site_short_url"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// StreamConfig controls the optional audit-ledger tap. File and Kafka sinks
// can be enabled independently; with neither enabled no tap is constructed.
type StreamConfig struct {
	FileDir      string `yaml:"file_dir"`
	FileName     string `yaml:"file_name"`
	KafkaBrokers string `yaml:"kafka_brokers"`
	KafkaTopic   string `yaml:"kafka_topic"`
}

type WorkersConfig struct {
	Ingestion   IngestionWorkerConfig  `yaml:"ingestion"`
	Completion  CompletionWorkerConfig `yaml:"completion"`
	MetricsAddr string                 `yaml:"metrics_addr"`
}

type IngestionWorkerConfig struct {
	Count int `yaml:"count"`
}

type CompletionWorkerConfig struct {
	Count int `yaml:"count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.ELM.Feed.TokenHeader == "" {
		c.ELM.Feed.TokenHeader = "x-cdata-authtoken"
	}
	if c.ELM.Completion.TokenHeader == "" {
		c.ELM.Completion.TokenHeader = "x-cdata-authtoken"
	}
	if c.ELM.Feed.WindowMinutes <= 0 {
		c.ELM.Feed.WindowMinutes = 70
	}
	if c.ELM.Feed.Timeout <= 0 {
		c.ELM.Feed.Timeout = 30 * time.Second
	}
	if c.ELM.Completion.Timeout <= 0 {
		c.ELM.Completion.Timeout = 30 * time.Second
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = time.Hour
	}
	if c.Sync.StalenessAlertHours <= 0 {
		c.Sync.StalenessAlertHours = 24
	}
	if c.Sync.ServiceWindow.StartTime == "" {
		c.Sync.ServiceWindow.StartTime = "08:00"
	}
	if c.Sync.ServiceWindow.EndTime == "" {
		c.Sync.ServiceWindow.EndTime = "17:00"
	}
	if c.Sync.ServiceWindow.Timezone == "" {
		c.Sync.ServiceWindow.Timezone = "America/Vancouver"
	}
	if c.Redis.RunRequestQueue == "" {
		c.Redis.RunRequestQueue = "psaelmsync:runs"
	}
	if c.Redis.BulkQueue == "" {
		c.Redis.BulkQueue = "psaelmsync:bulk"
	}
	if c.Redis.CompletionQueue == "" {
		c.Redis.CompletionQueue = "psaelmsync:completions"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Redis.RunLockKey == "" {
		c.Redis.RunLockKey = "psaelmsync:runlock"
	}
	if c.Redis.RunLockTTL <= 0 {
		c.Redis.RunLockTTL = 15 * time.Minute
	}
	if c.Workers.Ingestion.Count <= 0 {
		c.Workers.Ingestion.Count = 1
	}
	if c.Workers.Completion.Count <= 0 {
		c.Workers.Completion.Count = 1
	}
	if c.Workers.MetricsAddr == "" {
		c.Workers.MetricsAddr = ":9100"
	}
}

// Validate rejects configurations that would only fail later at runtime.
func (c *Config) Validate() error {
	if c.ELM.Feed.URL == "" {
		return fmt.Errorf("elm.feed.url is required")
	}
	if c.ELM.Completion.URL == "" {
		return fmt.Errorf("elm.completion.url is required")
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		return fmt.Errorf("database.host and database.name are required")
	}
	if _, err := time.Parse("15:04", c.Sync.ServiceWindow.StartTime); err != nil {
		return fmt.Errorf("sync.service_window.start_time: %w", err)
	}
	if _, err := time.Parse("15:04", c.Sync.ServiceWindow.EndTime); err != nil {
		return fmt.Errorf("sync.service_window.end_time: %w", err)
	}
	if _, err := time.LoadLocation(c.Sync.ServiceWindow.Timezone); err != nil {
		return fmt.Errorf("sync.service_window.timezone: %w", err)
	}
	return nil
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
