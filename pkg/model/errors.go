package model

import (
	"errors"
	"fmt"
	"time"
)

// Standard serving errors. The dispatcher and API handlers check for these
// sentinels and map them to response codes.
var (
	// ErrModelNotFound indicates the identity is absent from the remote
	// artifact store. Not retried - surfaced immediately.
	//
	// HTTP: 404 Not Found
	ErrModelNotFound = errors.New("model not found")

	// ErrTransientStore indicates a network or timeout failure talking to
	// the remote store. Retried with bounded backoff, then surfaced.
	//
	// HTTP: 503 Service Unavailable
	ErrTransientStore = errors.New("transient store error")

	// ErrModelTooLarge indicates a single artifact's footprint exceeds the
	// memory budget. Fatal for that identity - never retried, and no
	// eviction is performed on its behalf.
	//
	// HTTP: 507 Insufficient Storage
	ErrModelTooLarge = errors.New("model too large for memory budget")

	// ErrCorruptArtifact indicates a checksum or size mismatch after fetch.
	// The partial state is discarded; retried once, then surfaced.
	//
	// HTTP: 502 Bad Gateway
	ErrCorruptArtifact = errors.New("corrupt artifact")

	// ErrOverloaded indicates a capacity shortfall: not enough evictable or
	// reclaimable space to admit the request under concurrent pressure.
	// Request-scoped, not fatal to the instance.
	//
	// HTTP: 429 Too Many Requests
	ErrOverloaded = errors.New("serving instance overloaded")

	// ErrInvalidIdentity indicates a malformed artifact identity.
	//
	// HTTP: 400 Bad Request
	ErrInvalidIdentity = errors.New("invalid model identity")

	// ErrInvalidPackage indicates the artifact archive does not match the
	// required package layout (code/ entry point plus model/ data subtree).
	//
	// HTTP: 422 Unprocessable Entity
	ErrInvalidPackage = errors.New("invalid model package")

	// ErrIdentityExists indicates a publish attempted to overwrite an
	// existing identity. New versions must use new identities.
	//
	// HTTP: 409 Conflict
	ErrIdentityExists = errors.New("model identity already published")

	// ErrClosed indicates the pool, cache, or store has been shut down.
	ErrClosed = errors.New("serving component closed")
)

// ServeError wraps a sentinel error with structured request context.
//
// It keeps errors.Is() working against the underlying sentinel:
//
//	err := NewServeError("fetch", "summarizer", "bert-v3.tar.gz", "s3", ErrTransientStore)
//	errors.Is(err, ErrTransientStore) // true
type ServeError struct {
	// Op is the failing operation: "invoke", "fetch", "load", "admit",
	// "reclaim", or "publish".
	Op string

	// Endpoint is the logical endpoint handling the request, if any.
	Endpoint string

	// Model is the artifact identity involved.
	Model ID

	// Backend identifies the store backend: "s3" or "memory".
	Backend string

	// Retries is the number of retry attempts made before the final failure.
	Retries int

	// Duration is how long the operation ran before failing.
	Duration time.Duration

	// Err is the wrapped sentinel.
	Err error
}

// Error returns a human-readable description including operation and context.
func (e *ServeError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("serve %s: %s (endpoint=%s, model=%s)", e.Op, e.Err, e.Endpoint, e.Model)
	}
	return fmt.Sprintf("serve %s: %s (model=%s)", e.Op, e.Err, e.Model)
}

// Unwrap returns the underlying sentinel, enabling errors.Is and errors.As.
func (e *ServeError) Unwrap() error {
	return e.Err
}

// NewServeError creates a ServeError wrapping the given sentinel. Optional
// fields (Retries, Duration, Backend) can be set on the returned pointer.
func NewServeError(op, endpoint string, id ID, err error) *ServeError {
	return &ServeError{Op: op, Endpoint: endpoint, Model: id, Err: err}
}
