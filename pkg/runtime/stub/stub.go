// Package stub provides a deterministic in-process model runtime for tests
// and local development.
//
// The stub unpacks the artifact archive, charges the unpacked size as its
// memory footprint, and echoes request payloads back. It has no external
// dependencies, which makes it the default runtime for `modelcached start`
// without a real inference backend configured.
package stub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/runtime"
)

// Loader unpacks artifact archives into a working directory and returns
// echo models.
type Loader struct {
	// WorkDir is where packages are unpacked. Defaults to the system temp
	// directory.
	WorkDir string
}

// Load unpacks the archive at path, validates the package layout, and
// returns an executable echo model whose footprint is the unpacked size.
func (l *Loader) Load(ctx context.Context, id model.ID, path string) (runtime.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	workDir := l.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	dir, err := os.MkdirTemp(workDir, "model-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create unpack directory: %w", err)
	}

	if err := model.UnpackPackage(f, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(model.EntryPoint))); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: missing entry point %s", model.ErrInvalidPackage, model.EntryPoint)
	}

	size, err := dirSize(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to measure unpacked package: %w", err)
	}

	logger.Debug("stub runtime loaded model", "model", id, "dir", dir, "bytes", size)

	return &Model{id: id, dir: dir, size: size}, nil
}

// Model is a loaded stub model. Execute echoes the payload.
type Model struct {
	id   model.ID
	dir  string
	size uint64

	mu     sync.Mutex
	closed bool
}

// Execute returns the payload unchanged. Deterministic on purpose so tests
// can assert exact bytes end to end.
func (m *Model) Execute(ctx context.Context, contentType string, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, model.ErrClosed
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// SizeBytes returns the unpacked package size.
func (m *Model) SizeBytes() uint64 {
	return m.size
}

// Close removes the unpack directory.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return os.RemoveAll(m.dir)
}

// Closed reports whether Close has run.
func (m *Model) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func dirSize(dir string) (uint64, error) {
	var total uint64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += uint64(info.Size())
		}
		return nil
	})
	return total, err
}

// Ensure Loader implements runtime.Loader.
var _ runtime.Loader = (*Loader)(nil)
