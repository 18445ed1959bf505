// Package runtime defines the executable model abstraction.
//
// A Loader turns a staged artifact archive into a live Model. The serving
// layers above (pool, dispatcher) only ever see these two interfaces, so
// runtimes can range from the in-process stub used in tests to a real
// inference backend.
package runtime

import (
	"context"

	"github.com/modelcached/modelcached/pkg/model"
)

// Loader instantiates executable models from staged artifact archives.
type Loader interface {
	// Load unpacks and validates the artifact archive at path and returns
	// an executable model. The returned model owns any resources it
	// allocates (unpack directory, process, device memory) and releases
	// them on Close.
	Load(ctx context.Context, id model.ID, path string) (Model, error)
}

// Model is a loaded, executable model.
type Model interface {
	// Execute runs one inference over payload and returns the output bytes.
	Execute(ctx context.Context, contentType string, payload []byte) ([]byte, error)

	// SizeBytes returns the model's resident memory footprint. The pool
	// charges this amount against its memory budget.
	SizeBytes() uint64

	// Close releases the model's resources. Called exactly once, after the
	// last in-flight execution has finished.
	Close() error
}
