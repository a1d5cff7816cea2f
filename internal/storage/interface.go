package storage

import (
	"context"
	"io"
)

// Storage holds uploaded roster files between receipt at the API and
// processing by the ingestion worker.
type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
