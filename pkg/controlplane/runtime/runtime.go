// Package runtime manages the live serving state of the control plane.
//
// Each persisted endpoint is realized as an Instance: its own disk cache,
// memory pool, and dispatcher, sized by the endpoint's budgets. The manager
// keeps instances in sync with the persisted configuration: creating an
// endpoint starts an instance, re-pointing a model name to a new artifact
// invalidates the replaced identity's cached state, and deleting an
// endpoint releases its pool and cache.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/pkg/controlplane/models"
	cpstore "github.com/modelcached/modelcached/pkg/controlplane/store"
	"github.com/modelcached/modelcached/pkg/diskcache"
	"github.com/modelcached/modelcached/pkg/dispatcher"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/pool"
	mrt "github.com/modelcached/modelcached/pkg/runtime"
	"github.com/modelcached/modelcached/pkg/store"
)

// Config holds manager configuration.
type Config struct {
	// Store is the control plane persistence layer.
	Store cpstore.Store

	// Remote is the artifact store endpoints fetch from.
	Remote store.Store

	// Loader instantiates model runtimes.
	Loader mrt.Loader

	// DataDir is the root directory for per-endpoint disk caches.
	DataDir string

	// Optional metrics collectors, shared across instances.
	PoolMetrics       pool.Metrics
	DiskMetrics       diskcache.Metrics
	DispatcherMetrics dispatcher.Metrics
}

// target is one resolved model mapping.
type target struct {
	artifact    model.ID
	contentType string
}

// Instance is the live serving state of one endpoint.
type Instance struct {
	endpoint *models.Endpoint
	disk     *diskcache.Cache
	pool     *pool.Pool
	disp     *dispatcher.Dispatcher

	mu      sync.RWMutex
	targets map[string]target
}

// Stats summarizes an instance's cache occupancy.
type Stats struct {
	Endpoint      string `json:"endpoint"`
	PoolResident  int    `json:"pool_resident"`
	PoolBytes     uint64 `json:"pool_bytes"`
	MemoryBudget  uint64 `json:"memory_budget"`
	DiskEntries   int    `json:"disk_entries"`
	DiskBytes     uint64 `json:"disk_bytes"`
	DiskBudget    uint64 `json:"disk_budget"`
	ModelMappings int    `json:"model_mappings"`
}

// Manager owns the live instances. Safe for concurrent use.
type Manager struct {
	cfg Config

	mu        sync.RWMutex
	instances map[string]*Instance
	closed    bool
}

// NewManager creates an instance manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("control plane store is required")
	}
	if cfg.Remote == nil {
		return nil, errors.New("remote artifact store is required")
	}
	if cfg.Loader == nil {
		return nil, errors.New("runtime loader is required")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}

	return &Manager{
		cfg:       cfg,
		instances: make(map[string]*Instance),
	}, nil
}

// Start realizes all persisted endpoints as live instances.
func (m *Manager) Start(ctx context.Context) error {
	eps, err := m.cfg.Store.ListEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to list endpoints: %w", err)
	}

	for _, ep := range eps {
		if err := m.startInstance(ep); err != nil {
			return fmt.Errorf("failed to start endpoint %q: %w", ep.Name, err)
		}
	}

	logger.Info("instance manager started", "endpoints", len(eps))
	return nil
}

// startInstance builds the disk cache, pool, and dispatcher for an endpoint
// and registers the instance.
func (m *Manager) startInstance(ep *models.Endpoint) error {
	disk, err := diskcache.New(diskcache.Config{
		Dir:     filepath.Join(m.cfg.DataDir, "endpoints", ep.ID),
		Budget:  ep.DiskBudget,
		Remote:  m.cfg.Remote,
		Metrics: m.cfg.DiskMetrics,
	})
	if err != nil {
		return err
	}

	p, err := pool.New(pool.Config{
		Budget:  ep.MemoryBudget,
		Loader:  m.cfg.Loader,
		Disk:    disk,
		Metrics: m.cfg.PoolMetrics,
	})
	if err != nil {
		_ = disk.Close()
		return err
	}

	disp, err := dispatcher.New(dispatcher.Config{
		Endpoint: ep.Name,
		Pool:     p,
		Disk:     disk,
		Metrics:  m.cfg.DispatcherMetrics,
	})
	if err != nil {
		_ = p.Close()
		_ = disk.Close()
		return err
	}

	inst := &Instance{
		endpoint: ep,
		disk:     disk,
		pool:     p,
		disp:     disp,
		targets:  targetsOf(ep),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = p.Close()
		_ = disk.Close()
		return model.ErrClosed
	}
	m.instances[ep.Name] = inst

	logger.Info("endpoint instance started",
		"endpoint", ep.Name,
		"memory_budget", ep.MemoryBudget,
		"disk_budget", ep.DiskBudget,
		"models", len(ep.Models))
	return nil
}

func targetsOf(ep *models.Endpoint) map[string]target {
	targets := make(map[string]target, len(ep.Models))
	for _, em := range ep.Models {
		targets[em.Name] = target{
			artifact:    model.ID(em.ArtifactID),
			contentType: em.ContentType,
		}
	}
	return targets
}

// CreateEndpoint persists a new endpoint and starts serving it.
func (m *Manager) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	if _, err := m.cfg.Store.CreateEndpoint(ctx, ep); err != nil {
		return err
	}
	return m.startInstance(ep)
}

// UpdateEndpoint persists new budgets and model mappings. Artifact
// identities that were replaced or removed are evicted from the pool and
// invalidated on disk, so the next request for their name serves the new
// version.
//
// Budget changes apply to new instances; a live instance keeps the budgets
// it was started with until restart.
func (m *Manager) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	current, err := m.cfg.Store.GetEndpoint(ctx, ep.Name)
	if err != nil {
		return err
	}
	ep.ID = current.ID

	if err := m.cfg.Store.UpdateEndpoint(ctx, ep); err != nil {
		return err
	}

	m.mu.RLock()
	inst, ok := m.instances[ep.Name]
	m.mu.RUnlock()
	if !ok {
		return m.startInstance(ep)
	}

	newTargets := targetsOf(ep)

	// Identities no longer referenced by any mapping lose their cached state.
	stale := make([]model.ID, 0)
	for name, old := range inst.targetsSnapshot() {
		repl, kept := newTargets[name]
		if !kept || repl.artifact != old.artifact {
			stale = append(stale, old.artifact)
		}
	}

	inst.setTargets(newTargets)

	for _, id := range stale {
		inst.pool.Evict(id)
		if err := inst.disk.Invalidate(id); err != nil {
			logger.Warn("failed to invalidate replaced artifact",
				"endpoint", ep.Name, "model", id, "error", err)
		}
		logger.Info("replaced artifact invalidated", "endpoint", ep.Name, "model", id)
	}

	inst.mu.Lock()
	inst.endpoint = ep
	inst.mu.Unlock()

	return nil
}

// DeleteEndpoint removes the endpoint's persisted configuration and
// releases its live instance: the pool closes every resident runtime and
// the disk cache is purged.
func (m *Manager) DeleteEndpoint(ctx context.Context, name string) error {
	if err := m.cfg.Store.DeleteEndpoint(ctx, name); err != nil {
		return err
	}

	m.mu.Lock()
	inst, ok := m.instances[name]
	delete(m.instances, name)
	m.mu.Unlock()

	if ok {
		inst.release()
		logger.Info("endpoint instance released", "endpoint", name)
	}
	return nil
}

// Invoke routes one invocation to the named endpoint's dispatcher.
//
// The target is resolved through the endpoint's model mappings; an unmapped
// target is treated as a raw artifact identity, which keeps single-model
// endpoints usable without mappings.
func (m *Manager) Invoke(ctx context.Context, endpoint, requestID, targetName, contentType string, payload []byte) ([]byte, error) {
	m.mu.RLock()
	inst, ok := m.instances[endpoint]
	m.mu.RUnlock()
	if !ok {
		return nil, models.ErrEndpointNotFound
	}

	id, ct := inst.resolveTarget(targetName, contentType)
	return inst.disp.Handle(ctx, requestID, id, ct, payload)
}

// GetStats returns cache occupancy for one endpoint.
func (m *Manager) GetStats(endpoint string) (Stats, error) {
	m.mu.RLock()
	inst, ok := m.instances[endpoint]
	m.mu.RUnlock()
	if !ok {
		return Stats{}, models.ErrEndpointNotFound
	}
	return inst.stats(), nil
}

// ListStats returns cache occupancy for every live endpoint.
func (m *Manager) ListStats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]Stats, 0, len(m.instances))
	for _, inst := range m.instances {
		stats = append(stats, inst.stats())
	}
	return stats
}

// Close releases every instance.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	instances := m.instances
	m.instances = make(map[string]*Instance)
	m.mu.Unlock()

	for name, inst := range instances {
		inst.release()
		logger.Debug("endpoint instance released", "endpoint", name)
	}
	return nil
}

func (i *Instance) resolveTarget(name, contentType string) (model.ID, string) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if t, ok := i.targets[name]; ok {
		if contentType == "" {
			contentType = t.contentType
		}
		return t.artifact, contentType
	}
	return model.ID(name), contentType
}

func (i *Instance) targetsSnapshot() map[string]target {
	i.mu.RLock()
	defer i.mu.RUnlock()

	snap := make(map[string]target, len(i.targets))
	for k, v := range i.targets {
		snap[k] = v
	}
	return snap
}

func (i *Instance) setTargets(targets map[string]target) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.targets = targets
}

func (i *Instance) stats() Stats {
	i.mu.RLock()
	ep := i.endpoint
	mappings := len(i.targets)
	i.mu.RUnlock()

	return Stats{
		Endpoint:      ep.Name,
		PoolResident:  i.pool.Len(),
		PoolBytes:     i.pool.TotalSize(),
		MemoryBudget:  ep.MemoryBudget,
		DiskEntries:   i.disk.Len(),
		DiskBytes:     i.disk.TotalSize(),
		DiskBudget:    ep.DiskBudget,
		ModelMappings: mappings,
	}
}

func (i *Instance) release() {
	if err := i.pool.Close(); err != nil {
		logger.Warn("failed to close pool", "endpoint", i.endpoint.Name, "error", err)
	}
	if err := i.disk.Close(); err != nil {
		logger.Warn("failed to close disk cache", "endpoint", i.endpoint.Name, "error", err)
	}
}
