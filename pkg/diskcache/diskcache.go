// Package diskcache implements the local disk tier of the serving cache.
//
// The disk cache stages artifact archives downloaded from the remote store
// so that models evicted from memory can be reloaded without another network
// fetch. It enforces a byte budget with LRU reclamation, never reclaims an
// entry that is pinned by a resident in-memory model, and coalesces
// concurrent fetches of the same missing identity into a single download.
package diskcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/store"
)

// partialSuffix marks in-progress downloads. Entries are written to a
// partial file first and renamed into place only after verification, so a
// crash or failed checksum never leaves a registered corrupt entry.
const partialSuffix = ".partial"

// Metrics is an optional hook for observing disk cache behavior.
type Metrics interface {
	// ObserveFetch records one remote fetch with duration and outcome.
	ObserveFetch(durationMs float64, bytes int, err error)

	// SetUsage reports current occupancy after a mutation.
	SetUsage(bytes uint64, entries int)

	// IncReclaimed counts bytes freed by reclamation.
	IncReclaimed(bytes uint64)
}

// Entry describes a cached artifact on disk.
type Entry struct {
	ID       model.ID
	Path     string
	Size     uint64
	Checksum model.Checksum
}

// Config holds disk cache configuration.
type Config struct {
	// Dir is the cache directory. Created if missing.
	Dir string

	// Budget is the maximum aggregate size of cached artifacts in bytes.
	// 0 means unlimited.
	Budget uint64

	// Remote is the artifact store fetched from on misses.
	Remote store.Store

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

type entryState struct {
	size       uint64
	checksum   model.Checksum
	lastAccess time.Time
	pins       int
}

// Cache is the local disk tier. Safe for concurrent use.
type Cache struct {
	dir     string
	budget  uint64
	remote  store.Store
	metrics Metrics

	mu      sync.Mutex
	entries map[model.ID]*entryState
	total   uint64
	closed  bool

	fetches singleflight.Group
}

// New creates a disk cache rooted at cfg.Dir.
func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if cfg.Remote == nil {
		return nil, errors.New("remote store is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Cache{
		dir:     cfg.Dir,
		budget:  cfg.Budget,
		remote:  cfg.Remote,
		metrics: cfg.Metrics,
		entries: make(map[model.ID]*entryState),
	}, nil
}

// entryPath returns the on-disk path for an identity.
func (c *Cache) entryPath(id model.ID) string {
	return filepath.Join(c.dir, filepath.FromSlash(string(id)))
}

// Get returns the entry for id if present, updating its recency.
func (c *Cache) Get(id model.ID) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	st.lastAccess = time.Now()

	return Entry{ID: id, Path: c.entryPath(id), Size: st.size, Checksum: st.checksum}, true
}

// GetPinned returns the entry for id with a reclamation pin already taken,
// making the lookup and the pin atomic with respect to concurrent reclaims.
// Callers must Unpin when the entry stops backing a resident model. Returns
// false if the entry does not exist.
func (c *Cache) GetPinned(id model.ID) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	st.lastAccess = time.Now()
	st.pins++

	return Entry{ID: id, Path: c.entryPath(id), Size: st.size, Checksum: st.checksum}, true
}

// FetchOrGet returns the disk entry for id, fetching it from the remote
// store on a miss.
//
// Concurrent callers for the same missing identity share one download: the
// first caller fetches and the rest wait on that fetch. A waiting caller's
// context cancellation abandons only its own wait - the shared fetch keeps
// running for the remaining waiters.
func (c *Cache) FetchOrGet(ctx context.Context, id model.ID) (Entry, error) {
	if entry, ok := c.Get(id); ok {
		return entry, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Entry{}, model.ErrClosed
	}
	c.mu.Unlock()

	// The fetch runs on a context detached from the caller so one waiter's
	// cancellation cannot abort the download for everyone else.
	fetchCtx := context.WithoutCancel(ctx)

	ch := c.fetches.DoChan(string(id), func() (interface{}, error) {
		return c.fetch(fetchCtx, id)
	})

	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	}
}

// fetch downloads, verifies, and registers one artifact. Runs at most once
// per identity at a time (guarded by the singleflight group).
func (c *Cache) fetch(ctx context.Context, id model.ID) (Entry, error) {
	// Another request may have completed the fetch between our miss and the
	// singleflight admission.
	if entry, ok := c.Get(id); ok {
		return entry, nil
	}

	start := time.Now()

	// A corrupt download is retried once: the bytes may have been damaged
	// in transit rather than in the store.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		data, sum, err := c.remote.Get(ctx, id)
		if err != nil {
			c.observeFetch(start, 0, err)
			return Entry{}, err
		}

		if err := sum.Verify(data); err != nil {
			logger.Warn("discarding corrupt artifact download",
				"model", id, "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		entry, err := c.register(id, data, sum)
		c.observeFetch(start, len(data), err)
		return entry, err
	}

	c.observeFetch(start, 0, lastErr)
	return Entry{}, lastErr
}

func (c *Cache) observeFetch(start time.Time, bytes int, err error) {
	if c.metrics != nil {
		c.metrics.ObserveFetch(float64(time.Since(start).Milliseconds()), bytes, err)
	}
}

// register writes the artifact atomically, reclaims space, and records the
// entry. The budget invariant holds before the entry becomes visible.
//
// The staging write runs outside the lock: a multi-gigabyte artifact must
// not stall concurrent Get and Pin traffic. Only the reclaim, rename, and
// bookkeeping hold c.mu. At most one register per identity runs at a time,
// guarded by the fetch singleflight, so the partial path is not contended.
func (c *Cache) register(id model.ID, data []byte, sum model.Checksum) (Entry, error) {
	size := uint64(len(data))
	path := c.entryPath(id)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Entry{}, err
	}

	tmp := path + partialSuffix
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		_ = os.Remove(tmp)
		return Entry{}, fmt.Errorf("failed to stage artifact: %w", err)
	}

	// Verify the staged copy before registration; a short write here means
	// the disk is lying to us and the partial must not become an entry.
	if info, err := os.Stat(tmp); err != nil || uint64(info.Size()) != size {
		_ = os.Remove(tmp)
		return Entry{}, fmt.Errorf("%w: staged artifact size mismatch", model.ErrCorruptArtifact)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = os.Remove(tmp)
		return Entry{}, model.ErrClosed
	}

	if err := c.reclaimLocked(size); err != nil {
		_ = os.Remove(tmp)
		return Entry{}, err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Entry{}, fmt.Errorf("failed to commit artifact: %w", err)
	}

	c.entries[id] = &entryState{size: size, checksum: sum, lastAccess: time.Now()}
	c.total += size
	c.reportUsageLocked()

	logger.Debug("artifact staged to disk", "model", id, "bytes", size)

	return Entry{ID: id, Path: path, Size: size, Checksum: sum}, nil
}

// reclaimLocked frees space for an incoming entry of the given size by
// removing least-recently-used unpinned entries. Pinned entries back a
// resident in-memory model and are never touched. Caller must hold c.mu.
func (c *Cache) reclaimLocked(needed uint64) error {
	if c.budget == 0 {
		return nil
	}
	if needed > c.budget {
		return fmt.Errorf("%w: artifact of %d bytes exceeds disk budget %d",
			model.ErrOverloaded, needed, c.budget)
	}
	if c.total+needed <= c.budget {
		return nil
	}

	type candidate struct {
		id         model.ID
		size       uint64
		lastAccess time.Time
	}

	candidates := make([]candidate, 0, len(c.entries))
	for id, st := range c.entries {
		if st.pins > 0 {
			continue
		}
		candidates = append(candidates, candidate{id, st.size, st.lastAccess})
	}

	// Oldest first; identity order breaks ties for determinism.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].lastAccess.Equal(candidates[j].lastAccess) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})

	for _, cand := range candidates {
		if c.total+needed <= c.budget {
			break
		}
		c.removeLocked(cand.id)
		if c.metrics != nil {
			c.metrics.IncReclaimed(cand.size)
		}
		logger.Debug("reclaimed disk entry", "model", cand.id, "bytes", cand.size)
	}

	if c.total+needed > c.budget {
		return fmt.Errorf("%w: need %d bytes but only pinned entries remain (%d bytes occupied)",
			model.ErrOverloaded, needed, c.total)
	}
	return nil
}

// removeLocked deletes an entry and its file. Caller must hold c.mu.
func (c *Cache) removeLocked(id model.ID) {
	st, ok := c.entries[id]
	if !ok {
		return
	}
	delete(c.entries, id)
	c.total -= st.size
	_ = os.Remove(c.entryPath(id))
	c.reportUsageLocked()
}

func (c *Cache) reportUsageLocked() {
	if c.metrics != nil {
		c.metrics.SetUsage(c.total, len(c.entries))
	}
}

// Pin marks an entry as backing a resident in-memory model, protecting it
// from reclamation. Returns false if the entry does not exist.
func (c *Cache) Pin(id model.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.entries[id]
	if !ok {
		return false
	}
	st.pins++
	return true
}

// Unpin releases a pin. Unpinning below zero is a programming error and is
// clamped with a warning rather than corrupting reclamation decisions.
func (c *Cache) Unpin(id model.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.entries[id]
	if !ok {
		return
	}
	st.pins--
	if st.pins < 0 {
		logger.Warn("disk entry unpinned below zero", "model", id)
		st.pins = 0
	}
}

// Invalidate removes an entry regardless of recency. Pinned entries are
// refused: the caller must evict the resident model first.
func (c *Cache) Invalidate(id model.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.entries[id]
	if !ok {
		return nil
	}
	if st.pins > 0 {
		return fmt.Errorf("cannot invalidate %q: entry is pinned by a resident model", id)
	}

	c.removeLocked(id)
	return nil
}

// Contains reports whether id has a registered disk entry, without updating
// recency.
func (c *Cache) Contains(id model.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// Len returns the number of registered entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TotalSize returns the aggregate size of registered entries in bytes.
func (c *Cache) TotalSize() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Purge removes every entry and its backing file. Used when the owning
// endpoint is deleted.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.entries {
		c.removeLocked(id)
	}
}

// Close purges the cache and rejects further use.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	for id := range c.entries {
		c.removeLocked(id)
	}
	return nil
}
