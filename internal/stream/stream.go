package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
)

// Writer taps the audit ledger for downstream consumers (reporting
// warehouse, dashboards). The database row is the source of truth; a tap
// failure must never fail the processing attempt it mirrors.
type Writer interface {
	Append(entry model.AuditEntry) error
}

// MultiWriter fans out writes to multiple underlying writers.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

func (m *MultiWriter) Append(entry model.AuditEntry) error {
	for _, w := range m.writers {
		if err := w.Append(entry); err != nil {
			return err
		}
	}
	return nil
}

type FileWriter struct {
	path string
}

func NewFileWriter(dir string, filename string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FileWriter{path: filepath.Join(dir, filename)}, nil
}

func (w *FileWriter) Append(entry model.AuditEntry) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	if err := enc.Encode(&entry); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// KafkaWriter publishes ledger entries to a Kafka topic, keyed by
// fingerprint so one record's attempts land in one partition in order.
type KafkaWriter struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter creates a Kafka writer.
// bootstrap can be a comma-separated list of host:port.
func NewKafkaWriter(bootstrap string, topic string) *KafkaWriter {
	addrs := strings.Split(bootstrap, ",")
	var brokers []string
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a != "" {
			brokers = append(brokers, a)
		}
	}
	return &KafkaWriter{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

func (k *KafkaWriter) Append(entry model.AuditEntry) error {
	b, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	key := entry.Fingerprint
	if key == "" {
		key = entry.GUID
	}
	return k.writer.WriteMessages(
		context.Background(),
		kafka.Message{Key: []byte(key), Value: b},
	)
}

// NewKafkaWriterWith is only for tests to inject a fake writer.
func NewKafkaWriterWith(w kafkaMessageWriter) *KafkaWriter {
	return &KafkaWriter{writer: w}
}

// FromConfig builds the configured tap, or nil when no sink is enabled.
func FromConfig(cfg config.StreamConfig) (Writer, error) {
	var writers []Writer

	if cfg.FileDir != "" {
		name := cfg.FileName
		if name == "" {
			name = "audit.jsonl"
		}
		fw, err := NewFileWriter(cfg.FileDir, name)
		if err != nil {
			return nil, err
		}
		writers = append(writers, fw)
	}
	if cfg.KafkaBrokers != "" && cfg.KafkaTopic != "" {
		writers = append(writers, NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
	}

	switch len(writers) {
	case 0:
		return nil, nil
	case 1:
		return writers[0], nil
	default:
		return NewMultiWriter(writers...), nil
	}
}
