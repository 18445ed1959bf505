// Package memory provides an in-memory artifact store for tests and local
// development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/store"
)

type entry struct {
	data []byte
	sum  model.Checksum
}

// Store is an in-memory implementation of store.Store.
//
// Test hooks:
//   - GetErr, if set, is returned by every Get until cleared.
//   - GetErrOnce, if set, fails exactly one Get and then clears itself,
//     which is how transient-error retry paths are exercised.
//   - Corrupt, if set, makes Get return bytes that do not match the
//     published checksum.
//   - Fetches counts Get calls per identity, for coalescing assertions.
type Store struct {
	mu      sync.Mutex
	objects map[model.ID]entry
	closed  bool

	GetErr     error
	GetErrOnce error
	Corrupt    bool
	GetDelay   time.Duration
	Fetches    map[model.ID]int
}

// New creates an empty in-memory artifact store.
func New() *Store {
	return &Store{
		objects: make(map[model.ID]entry),
		Fetches: make(map[model.ID]int),
	}
}

// Get returns the artifact bytes and checksum, honoring the failure hooks.
func (s *Store) Get(ctx context.Context, id model.ID) ([]byte, model.Checksum, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	delay := s.GetDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, "", model.ErrClosed
	}

	s.Fetches[id]++

	if s.GetErrOnce != nil {
		err := s.GetErrOnce
		s.GetErrOnce = nil
		return nil, "", err
	}
	if s.GetErr != nil {
		return nil, "", s.GetErr
	}

	e, ok := s.objects[id]
	if !ok {
		return nil, "", model.ErrModelNotFound
	}

	data := make([]byte, len(e.data))
	copy(data, e.data)

	if s.Corrupt && len(data) > 0 {
		data[0] ^= 0xff
	}

	return data, e.sum, nil
}

// Put publishes an artifact, refusing to overwrite an existing identity.
func (s *Store) Put(ctx context.Context, id model.ID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.ErrClosed
	}
	if _, ok := s.objects[id]; ok {
		return model.ErrIdentityExists
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[id] = entry{data: stored, sum: model.ComputeChecksum(stored)}

	return nil
}

// Head returns artifact metadata.
func (s *Store) Head(ctx context.Context, id model.ID) (store.ArtifactInfo, error) {
	if err := ctx.Err(); err != nil {
		return store.ArtifactInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ArtifactInfo{}, model.ErrClosed
	}

	e, ok := s.objects[id]
	if !ok {
		return store.ArtifactInfo{}, model.ErrModelNotFound
	}

	return store.ArtifactInfo{ID: id, Size: int64(len(e.data)), Checksum: e.sum}, nil
}

// List returns all artifacts sorted by identity.
func (s *Store) List(ctx context.Context) ([]store.ArtifactInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, model.ErrClosed
	}

	infos := make([]store.ArtifactInfo, 0, len(s.objects))
	for id, e := range s.objects {
		infos = append(infos, store.ArtifactInfo{ID: id, Size: int64(len(e.data)), Checksum: e.sum})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return infos, nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FetchCount returns how many Get calls were made for an identity.
func (s *Store) FetchCount(id model.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Fetches[id]
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)
