// Package store defines the remote artifact store contract.
//
// The remote store is the durable, versioned source of truth for packaged
// model artifacts. The serving path only ever reads from it (on full cache
// misses); publishing writes to it and never overwrites an existing
// identity.
package store

import (
	"context"

	"github.com/modelcached/modelcached/pkg/model"
)

// ArtifactInfo describes a stored artifact without its bytes.
type ArtifactInfo struct {
	ID       model.ID
	Size     int64
	Checksum model.Checksum
}

// Store is the remote artifact store consumed by the serving cache.
//
// Implementations must be safe for concurrent use. Errors are mapped to the
// model error taxonomy: a missing identity is model.ErrModelNotFound,
// network/timeout failures are model.ErrTransientStore (after the
// implementation's own bounded retries), and publishing over an existing
// identity is model.ErrIdentityExists.
type Store interface {
	// Get returns the artifact bytes and their expected checksum.
	// Used by the serving path on full cache misses only.
	Get(ctx context.Context, id model.ID) ([]byte, model.Checksum, error)

	// Put publishes a new artifact. It must fail with
	// model.ErrIdentityExists if the identity is already published:
	// artifacts are immutable and new versions use new identities.
	Put(ctx context.Context, id model.ID, data []byte) error

	// Head returns artifact metadata without fetching the bytes.
	Head(ctx context.Context, id model.ID) (ArtifactInfo, error)

	// List returns the identities of all published artifacts.
	List(ctx context.Context) ([]ArtifactInfo, error)

	// Close releases any resources held by the store client.
	Close() error
}

// Metrics is an optional hook for observing store operations.
// A nil Metrics disables collection.
type Metrics interface {
	// ObserveOperation records one store operation with its duration and
	// outcome. op is "Get", "Put", "Head", or "List".
	ObserveOperation(op string, durationMs float64, err error)

	// ObserveBytes records payload sizes for Get/Put operations.
	ObserveBytes(op string, bytes int)
}
