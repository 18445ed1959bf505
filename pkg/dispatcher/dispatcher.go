// Package dispatcher routes invocation requests to loaded models.
//
// A request names a target model identity. The dispatcher resolves it
// through the cache tiers in order: resident in the memory pool, staged on
// local disk, or fetched from the remote store. Every miss tier implies the
// tiers above it, so a full miss walks remote fetch, disk staging, runtime
// load, and execution in one request.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/internal/telemetry"
	"github.com/modelcached/modelcached/pkg/diskcache"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/pool"
)

// Serving tiers, in resolution order.
const (
	TierPool   = "pool"
	TierDisk   = "disk"
	TierRemote = "remote"
)

// Metrics is an optional hook for observing request handling.
type Metrics interface {
	// ObserveRequest records one handled request: which tier served it, how
	// long it took end to end, and payload sizes.
	ObserveRequest(tier string, durationMs float64, bytesIn, bytesOut int, err error)
}

// Config holds dispatcher configuration.
type Config struct {
	// Endpoint is the owning endpoint's name, used in logs and spans.
	Endpoint string

	// Pool is the memory pool of loaded models.
	Pool *pool.Pool

	// Disk is the local disk cache backing the pool.
	Disk *diskcache.Cache

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

// Dispatcher resolves target models through the cache tiers and executes
// requests against them. Safe for concurrent use.
type Dispatcher struct {
	endpoint string
	pool     *pool.Pool
	disk     *diskcache.Cache
	metrics  Metrics
}

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Pool == nil {
		return nil, errors.New("memory pool is required")
	}
	if cfg.Disk == nil {
		return nil, errors.New("disk cache is required")
	}

	return &Dispatcher{
		endpoint: cfg.Endpoint,
		pool:     cfg.Pool,
		disk:     cfg.Disk,
		metrics:  cfg.Metrics,
	}, nil
}

// Handle executes one invocation against the target model, resolving it
// through pool, disk, and remote store as needed.
//
// Errors are request-scoped: an unknown identity, an oversized model, or a
// transient store failure fails this request without disturbing other
// identities' cached state.
func (d *Dispatcher) Handle(ctx context.Context, requestID string, target model.ID, contentType string, payload []byte) (out []byte, err error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	start := time.Now()
	tier := TierPool

	ctx, span := telemetry.StartSpan(ctx, "dispatcher.Handle",
		attribute.String(telemetry.AttrRequestID, requestID),
		attribute.String(telemetry.AttrEndpoint, d.endpoint),
		attribute.String(telemetry.AttrModel, string(target)),
		attribute.Int(telemetry.AttrBytesIn, len(payload)),
	)
	defer func() {
		span.SetAttributes(
			attribute.String(telemetry.AttrTier, tier),
			attribute.Int(telemetry.AttrBytesOut, len(out)),
		)
		telemetry.EndSpan(span, err)

		if d.metrics != nil {
			d.metrics.ObserveRequest(tier, float64(time.Since(start).Milliseconds()), len(payload), len(out), err)
		}
		if err != nil {
			logger.Warn("invocation failed",
				"request_id", requestID, "endpoint", d.endpoint,
				"model", target, "tier", tier, "error", err)
		} else {
			logger.Debug("invocation served",
				"request_id", requestID, "endpoint", d.endpoint,
				"model", target, "tier", tier,
				"duration_ms", time.Since(start).Milliseconds())
		}
	}()

	if err = target.Validate(); err != nil {
		return nil, model.NewServeError("invoke", d.endpoint, target, err)
	}

	handle, resolvedTier, err := d.resolve(ctx, target)
	if err != nil {
		tier = resolvedTier
		return nil, model.NewServeError("invoke", d.endpoint, target, err)
	}
	tier = resolvedTier
	defer handle.Release()

	out, err = handle.Model().Execute(ctx, contentType, payload)
	if err != nil {
		return nil, model.NewServeError("execute", d.endpoint, target, err)
	}
	return out, nil
}

// resolve returns a handle for target, walking the tiers. The returned tier
// names the deepest tier the request had to reach.
func (d *Dispatcher) resolve(ctx context.Context, target model.ID) (*pool.Handle, string, error) {
	if handle, ok := d.pool.Get(target); ok {
		return handle, TierPool, nil
	}

	tier := TierDisk
	entry, ok := d.disk.Get(target)
	if !ok {
		tier = TierRemote
		var err error
		entry, err = d.disk.FetchOrGet(ctx, target)
		if err != nil {
			return nil, tier, err
		}
	}

	handle, err := d.pool.Admit(ctx, target, entry)
	if err != nil {
		return nil, tier, err
	}
	return handle, tier, nil
}
