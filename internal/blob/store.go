// Package blob provides the artifact store abstraction: a flat key/value
// space of durable byte blobs (page images, document text, rendered output).
// Implementations do no retry or backoff; callers decide.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no blob exists under the key.
var ErrNotFound = errors.New("blob not found")

// Store is the artifact store contract consumed by the pipeline.
type Store interface {
	// Put stores data under key, overwriting any existing blob.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// DeleteMany removes the given keys best-effort. Missing keys are not
	// errors; the returned error aggregates any real deletion failures.
	DeleteMany(ctx context.Context, keys []string) error
}
