// Package pool implements the bounded in-memory pool of loaded model
// runtimes.
//
// The pool charges each resident model's footprint against a byte budget and
// evicts least-recently-used residents to make room for new loads. Handles
// returned to callers are refcounted: evicting a model removes it from the
// pool's accounting immediately, but its runtime is only closed once the
// last in-flight execution releases its handle. While a model is resident
// its disk entry stays pinned, so an evicted model can be reloaded from disk
// without another remote fetch.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/pkg/diskcache"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/runtime"
)

// Metrics is an optional hook for observing pool behavior.
type Metrics interface {
	// ObserveLoad records one runtime load with duration and outcome.
	ObserveLoad(durationMs float64, err error)

	// SetUsage reports current occupancy after a mutation.
	SetUsage(bytes uint64, resident int)

	// IncEvicted counts evictions.
	IncEvicted()
}

// Config holds pool configuration.
type Config struct {
	// Budget is the aggregate footprint limit in bytes. 0 means unlimited.
	Budget uint64

	// Loader instantiates runtimes from staged artifacts.
	Loader runtime.Loader

	// Disk is the disk cache backing resident models. Entries are pinned
	// while their model is resident. Optional.
	Disk *diskcache.Cache

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

type resident struct {
	model      runtime.Model
	size       uint64
	lastAccess time.Time
	refs       int
	evicted    bool
}

// Pool is the bounded memory pool. Safe for concurrent use.
//
// All pool mutation is linearizable under one mutex: a request arriving
// while an eviction is in progress either sees the old resident model or
// takes the miss path, never a half-evicted state.
type Pool struct {
	budget  uint64
	loader  runtime.Loader
	disk    *diskcache.Cache
	metrics Metrics

	mu        sync.Mutex
	residents map[model.ID]*resident
	total     uint64
	closed    bool

	loads singleflight.Group

	now func() time.Time
}

// New creates a memory pool.
func New(cfg Config) (*Pool, error) {
	if cfg.Loader == nil {
		return nil, errors.New("runtime loader is required")
	}

	return &Pool{
		budget:    cfg.Budget,
		loader:    cfg.Loader,
		disk:      cfg.Disk,
		metrics:   cfg.Metrics,
		residents: make(map[model.ID]*resident),
		now:       time.Now,
	}, nil
}

// Handle is a refcounted reference to a resident model. Callers must call
// Release after their execution finishes; releasing the last handle of an
// evicted model closes its runtime.
type Handle struct {
	id   model.ID
	res  *resident
	pool *Pool
	once sync.Once
}

// ID returns the model identity this handle refers to.
func (h *Handle) ID() model.ID { return h.id }

// Model returns the executable model.
func (h *Handle) Model() runtime.Model { return h.res.model }

// SizeBytes returns the model's charged footprint.
func (h *Handle) SizeBytes() uint64 { return h.res.size }

// Release drops the reference. Idempotent.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.pool.mu.Lock()
		h.res.refs--
		closeNow := h.res.evicted && h.res.refs == 0
		h.pool.mu.Unlock()

		if closeNow {
			closeModel(h.id, h.res.model)
		}
	})
}

// Get returns a handle for id if it is resident, updating recency. Never
// blocks on a load or fetch.
func (p *Pool) Get(id model.ID) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, ok := p.residents[id]
	if !ok {
		return nil, false
	}
	res.lastAccess = p.now()
	res.refs++

	return &Handle{id: id, res: res, pool: p}, true
}

// Admit returns a handle for id, loading the model from its disk entry on a
// miss. Concurrent admits for the same identity share one load. A waiting
// caller's context cancellation abandons only its own wait.
//
// A footprint larger than the whole budget is ErrModelTooLarge and performs
// no eviction; a load that cannot fit after evicting everything evictable is
// ErrOverloaded.
func (p *Pool) Admit(ctx context.Context, id model.ID, entry diskcache.Entry) (*Handle, error) {
	for {
		if h, ok := p.Get(id); ok {
			return h, nil
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, model.ErrClosed
		}
		p.mu.Unlock()

		loadCtx := context.WithoutCancel(ctx)

		ch := p.loads.DoChan(string(id), func() (interface{}, error) {
			return nil, p.load(loadCtx, id, entry)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		}

		// The shared load registered the model, but it may already have been
		// evicted by a concurrent admit. Loop and take the miss path again.
		if h, ok := p.Get(id); ok {
			return h, nil
		}
	}
}

// load runs the shared per-identity load: pin the disk entry, instantiate
// the runtime from it, and register it under the budget.
func (p *Pool) load(ctx context.Context, id model.ID, entry diskcache.Entry) error {
	p.mu.Lock()
	_, already := p.residents[id]
	p.mu.Unlock()
	if already {
		return nil
	}

	// The pin must be held before the load starts: an unpinned entry can be
	// reclaimed by a concurrent fetch, and a model registered after that
	// would be resident with no disk copy behind it. The entry handed in may
	// already be gone by the time this load runs; restage it in that case.
	if p.disk != nil {
		var pinned bool
		for attempt := 0; ; attempt++ {
			if entry, pinned = p.disk.GetPinned(id); pinned {
				break
			}
			if attempt == 1 {
				return fmt.Errorf("%w: disk entry for %q reclaimed before the load could pin it",
					model.ErrOverloaded, id)
			}
			if _, err := p.disk.FetchOrGet(ctx, id); err != nil {
				return err
			}
		}
	}

	start := time.Now()
	m, err := p.loader.Load(ctx, id, entry.Path)
	p.observeLoad(start, err)
	if err != nil {
		p.unpin(id)
		return err
	}

	admitted, err := p.register(id, m)
	if err != nil || !admitted {
		_ = m.Close()
		p.unpin(id)
	}
	return err
}

func (p *Pool) unpin(id model.ID) {
	if p.disk != nil {
		p.disk.Unpin(id)
	}
}

// register charges the model against the budget, evicting as needed, and
// makes it resident. The disk pin taken by load transfers to the resident
// and is released by evictLocked. Returns admitted=false (no error) when a
// concurrent load won the race; the caller discards its duplicate runtime
// and its pin.
func (p *Pool) register(id model.ID, m runtime.Model) (bool, error) {
	size := m.SizeBytes()

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return false, model.ErrClosed
	}
	if _, ok := p.residents[id]; ok {
		p.mu.Unlock()
		return false, nil
	}

	if p.budget > 0 && size > p.budget {
		p.mu.Unlock()
		return false, fmt.Errorf("%w: model %q footprint of %d bytes exceeds memory budget %d",
			model.ErrModelTooLarge, id, size, p.budget)
	}

	closers, err := p.evictForLocked(size)
	if err != nil {
		p.mu.Unlock()
		closeModels(closers)
		return false, err
	}

	p.residents[id] = &resident{model: m, size: size, lastAccess: p.now()}
	p.total += size
	p.reportUsageLocked()

	p.mu.Unlock()
	closeModels(closers)

	logger.Debug("model admitted to pool", "model", id, "bytes", size)

	return true, nil
}

type closer struct {
	id    model.ID
	model runtime.Model
}

// evictForLocked frees budget for an incoming footprint by evicting
// least-recently-used residents, identity order breaking ties. Returns the
// runtimes that must be closed once the lock is dropped. Caller must hold
// p.mu.
func (p *Pool) evictForLocked(needed uint64) ([]closer, error) {
	if p.budget == 0 || p.total+needed <= p.budget {
		return nil, nil
	}

	type candidate struct {
		id         model.ID
		lastAccess time.Time
	}

	candidates := make([]candidate, 0, len(p.residents))
	for id, res := range p.residents {
		candidates = append(candidates, candidate{id, res.lastAccess})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].lastAccess.Equal(candidates[j].lastAccess) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})

	var closers []closer
	for _, cand := range candidates {
		if p.total+needed <= p.budget {
			break
		}
		if c := p.evictLocked(cand.id); c != nil {
			closers = append(closers, closer{cand.id, c})
		}
	}

	if p.total+needed > p.budget {
		return closers, fmt.Errorf("%w: cannot free %d bytes of pool budget %d",
			model.ErrOverloaded, needed, p.budget)
	}
	return closers, nil
}

// evictLocked removes a resident from the pool's accounting and unpins its
// disk entry. Returns the runtime to close, or nil when in-flight executions
// still hold references (the last Release closes it). Caller must hold p.mu.
func (p *Pool) evictLocked(id model.ID) runtime.Model {
	res, ok := p.residents[id]
	if !ok {
		return nil
	}

	delete(p.residents, id)
	res.evicted = true
	p.total -= res.size

	if p.disk != nil {
		p.disk.Unpin(id)
	}
	if p.metrics != nil {
		p.metrics.IncEvicted()
	}
	p.reportUsageLocked()

	logger.Debug("model evicted from pool", "model", id, "bytes", res.size, "in_flight", res.refs)

	if res.refs > 0 {
		return nil
	}
	return res.model
}

// Evict removes id from the pool regardless of recency. Returns false if id
// is not resident.
func (p *Pool) Evict(id model.ID) bool {
	p.mu.Lock()
	if _, ok := p.residents[id]; !ok {
		p.mu.Unlock()
		return false
	}
	m := p.evictLocked(id)
	p.mu.Unlock()

	if m != nil {
		closeModel(id, m)
	}
	return true
}

// Contains reports whether id is resident, without updating recency.
func (p *Pool) Contains(id model.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.residents[id]
	return ok
}

// Len returns the number of resident models.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.residents)
}

// TotalSize returns the aggregate charged footprint in bytes.
func (p *Pool) TotalSize() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Close evicts every resident and rejects further use.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	var closers []closer
	for id := range p.residents {
		if m := p.evictLocked(id); m != nil {
			closers = append(closers, closer{id, m})
		}
	}
	p.mu.Unlock()

	closeModels(closers)
	return nil
}

func (p *Pool) observeLoad(start time.Time, err error) {
	if p.metrics != nil {
		p.metrics.ObserveLoad(float64(time.Since(start).Milliseconds()), err)
	}
}

func (p *Pool) reportUsageLocked() {
	if p.metrics != nil {
		p.metrics.SetUsage(p.total, len(p.residents))
	}
}

func closeModel(id model.ID, m runtime.Model) {
	if err := m.Close(); err != nil {
		logger.Warn("failed to close model runtime", "model", id, "error", err)
	}
}

func closeModels(closers []closer) {
	for _, c := range closers {
		closeModel(c.id, c.model)
	}
}
