package dispatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcached/modelcached/pkg/diskcache"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/pool"
	"github.com/modelcached/modelcached/pkg/runtime/stub"
	"github.com/modelcached/modelcached/pkg/store/memory"
)

// publishPackage builds a valid artifact archive with a weights file of the
// given size and publishes it to the remote store. The stub runtime's
// footprint is the unpacked size, so weightsSize controls pool pressure.
func publishPackage(t *testing.T, remote *memory.Store, id model.ID, weightsSize int) {
	t.Helper()

	src := t.TempDir()
	for _, dir := range []string{"code", "model"} {
		if err := os.MkdirAll(filepath.Join(src, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(src, "code", "inference.py"), []byte("def predict(x): return x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "model", "weights.bin"), make([]byte, weightsSize), 0644); err != nil {
		t.Fatal(err)
	}

	data, err := model.BuildPackage(src)
	if err != nil {
		t.Fatalf("BuildPackage failed: %v", err)
	}
	if err := remote.Put(context.Background(), id, data); err != nil {
		t.Fatalf("publish %s failed: %v", id, err)
	}
}

type fixture struct {
	remote *memory.Store
	disk   *diskcache.Cache
	pool   *pool.Pool
	disp   *Dispatcher
}

func newFixture(t *testing.T, poolBudget uint64) *fixture {
	t.Helper()

	remote := memory.New()

	disk, err := diskcache.New(diskcache.Config{Dir: t.TempDir(), Remote: remote})
	if err != nil {
		t.Fatalf("diskcache.New failed: %v", err)
	}
	t.Cleanup(func() { _ = disk.Close() })

	p, err := pool.New(pool.Config{
		Budget: poolBudget,
		Loader: &stub.Loader{WorkDir: t.TempDir()},
		Disk:   disk,
	})
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	d, err := New(Config{Endpoint: "test-endpoint", Pool: p, Disk: disk})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return &fixture{remote: remote, disk: disk, pool: p, disp: d}
}

func TestHandle_FullMissThenPoolHit(t *testing.T) {
	f := newFixture(t, 0)
	publishPackage(t, f.remote, "a.tar.gz", 100)

	ctx := context.Background()
	payload := []byte(`{"input": [1, 2, 3]}`)

	out, err := f.disp.Handle(ctx, "req-1", "a.tar.gz", "application/json", payload)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if string(out) != string(payload) {
		t.Errorf("Handle returned %q, want echoed payload", out)
	}
	if !f.pool.Contains("a.tar.gz") || !f.disk.Contains("a.tar.gz") {
		t.Error("model not resident in pool and disk after a full miss")
	}

	// Second invocation hits the pool; the remote store is not consulted.
	if _, err := f.disp.Handle(ctx, "req-2", "a.tar.gz", "application/json", payload); err != nil {
		t.Fatalf("Handle (hit) failed: %v", err)
	}
	if n := f.remote.FetchCount("a.tar.gz"); n != 1 {
		t.Errorf("remote fetches = %d, want 1", n)
	}
}

func TestHandle_UnknownModelLeavesCachesUnchanged(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.disp.Handle(context.Background(), "req-1", "missing.tar.gz", "application/json", nil)
	if !errors.Is(err, model.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if f.pool.Len() != 0 || f.disk.Len() != 0 {
		t.Error("failed invocation changed cached state")
	}
}

func TestHandle_InvalidIdentity(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.disp.Handle(context.Background(), "req-1", "../escape.tar.gz", "application/json", nil)
	if !errors.Is(err, model.ErrInvalidIdentity) {
		t.Errorf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestHandle_EvictedModelReloadsFromDisk(t *testing.T) {
	// Budget fits one unpacked model (~1KB weights + entry point) at a time.
	f := newFixture(t, 1500)
	publishPackage(t, f.remote, "a.tar.gz", 1000)
	publishPackage(t, f.remote, "b.tar.gz", 1000)

	ctx := context.Background()

	if _, err := f.disp.Handle(ctx, "req-1", "a.tar.gz", "application/json", []byte("x")); err != nil {
		t.Fatalf("Handle(a) failed: %v", err)
	}
	if _, err := f.disp.Handle(ctx, "req-2", "b.tar.gz", "application/json", []byte("x")); err != nil {
		t.Fatalf("Handle(b) failed: %v", err)
	}
	if f.pool.Contains("a.tar.gz") {
		t.Fatal("expected a.tar.gz evicted from the pool")
	}

	// Re-requesting a is a disk hit: loaded again, but never re-fetched.
	if _, err := f.disp.Handle(ctx, "req-3", "a.tar.gz", "application/json", []byte("x")); err != nil {
		t.Fatalf("Handle(a) after eviction failed: %v", err)
	}
	if n := f.remote.FetchCount("a.tar.gz"); n != 1 {
		t.Errorf("remote fetches for a.tar.gz = %d, want 1", n)
	}
}

func TestHandle_ModelTooLargeRetainsDiskEntry(t *testing.T) {
	f := newFixture(t, 500)
	publishPackage(t, f.remote, "small.tar.gz", 100)
	publishPackage(t, f.remote, "huge.tar.gz", 5000)

	ctx := context.Background()

	if _, err := f.disp.Handle(ctx, "req-1", "small.tar.gz", "application/json", []byte("x")); err != nil {
		t.Fatalf("Handle(small) failed: %v", err)
	}

	_, err := f.disp.Handle(ctx, "req-2", "huge.tar.gz", "application/json", []byte("x"))
	if !errors.Is(err, model.ErrModelTooLarge) {
		t.Fatalf("expected ErrModelTooLarge, got %v", err)
	}

	// The pool is untouched and the staged artifact is kept for a future
	// instance with a bigger budget.
	if !f.pool.Contains("small.tar.gz") || f.pool.Len() != 1 {
		t.Error("oversized invocation changed pool state")
	}
	if !f.disk.Contains("huge.tar.gz") {
		t.Error("oversized model's disk entry was discarded")
	}
}

func TestHandle_TransientFetchIsRequestScoped(t *testing.T) {
	f := newFixture(t, 0)
	publishPackage(t, f.remote, "a.tar.gz", 100)
	f.remote.GetErrOnce = model.ErrTransientStore

	ctx := context.Background()

	_, err := f.disp.Handle(ctx, "req-1", "a.tar.gz", "application/json", []byte("x"))
	if !errors.Is(err, model.ErrTransientStore) {
		t.Fatalf("expected ErrTransientStore, got %v", err)
	}

	// The failure is scoped to that request: the next one succeeds.
	if _, err := f.disp.Handle(ctx, "req-2", "a.tar.gz", "application/json", []byte("x")); err != nil {
		t.Fatalf("Handle after transient failure failed: %v", err)
	}
}
