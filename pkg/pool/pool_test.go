package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/modelcached/modelcached/pkg/diskcache"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/runtime"
	"github.com/modelcached/modelcached/pkg/store/memory"
)

type fakeModel struct {
	size uint64

	mu     sync.Mutex
	closed bool
}

func (m *fakeModel) Execute(ctx context.Context, contentType string, payload []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, model.ErrClosed
	}
	return payload, nil
}

func (m *fakeModel) SizeBytes() uint64 { return m.size }

func (m *fakeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeModel) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeLoader struct {
	mu    sync.Mutex
	sizes map[model.ID]uint64
	loads map[model.ID]int
	err   error
	delay time.Duration
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		sizes: make(map[model.ID]uint64),
		loads: make(map[model.ID]int),
	}
}

func (l *fakeLoader) Load(ctx context.Context, id model.ID, path string) (runtime.Model, error) {
	l.mu.Lock()
	l.loads[id]++
	size, ok := l.sizes[id]
	err := l.err
	delay := l.delay
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		size = 100
	}
	return &fakeModel{size: size}, nil
}

func (l *fakeLoader) loadCount(id model.ID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[id]
}

func newPool(t *testing.T, budget uint64, loader runtime.Loader) *Pool {
	t.Helper()

	p, err := New(Config{Budget: budget, Loader: loader})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func admit(t *testing.T, p *Pool, id model.ID) *Handle {
	t.Helper()

	h, err := p.Admit(context.Background(), id, diskcache.Entry{ID: id})
	if err != nil {
		t.Fatalf("Admit(%s) failed: %v", id, err)
	}
	return h
}

func TestAdmit_TwoSlotScenario(t *testing.T) {
	loader := newFakeLoader()
	p := newPool(t, 200, loader)

	admit(t, p, "a.tar.gz").Release()
	time.Sleep(2 * time.Millisecond)
	admit(t, p, "b.tar.gz").Release()
	time.Sleep(2 * time.Millisecond)

	// Touch a so b is the LRU.
	if h, ok := p.Get("a.tar.gz"); !ok {
		t.Fatal("expected a.tar.gz resident")
	} else {
		h.Release()
	}
	time.Sleep(2 * time.Millisecond)

	admit(t, p, "c.tar.gz").Release()

	if p.Contains("b.tar.gz") {
		t.Error("expected LRU model b.tar.gz to be evicted")
	}
	if !p.Contains("a.tar.gz") || !p.Contains("c.tar.gz") {
		t.Error("expected a.tar.gz and c.tar.gz resident")
	}
	if p.TotalSize() > 200 {
		t.Errorf("pool budget exceeded: %d > 200", p.TotalSize())
	}
}

func TestAdmit_LexicalTieBreak(t *testing.T) {
	loader := newFakeLoader()
	p := newPool(t, 200, loader)

	// Freeze the clock so both residents share one lastAccess and only the
	// identity order decides who goes.
	frozen := time.Now()
	p.now = func() time.Time { return frozen }

	admit(t, p, "b.tar.gz").Release()
	admit(t, p, "a.tar.gz").Release()

	admit(t, p, "c.tar.gz").Release()

	if p.Contains("a.tar.gz") {
		t.Error("expected lexically smaller a.tar.gz to be evicted on tie")
	}
	if !p.Contains("b.tar.gz") || !p.Contains("c.tar.gz") {
		t.Error("expected b.tar.gz and c.tar.gz resident")
	}
}

func TestAdmit_ModelTooLarge(t *testing.T) {
	loader := newFakeLoader()
	loader.sizes["small.tar.gz"] = 60
	loader.sizes["huge.tar.gz"] = 150
	p := newPool(t, 100, loader)

	admit(t, p, "small.tar.gz").Release()

	_, err := p.Admit(context.Background(), "huge.tar.gz", diskcache.Entry{ID: "huge.tar.gz"})
	if !errors.Is(err, model.ErrModelTooLarge) {
		t.Fatalf("expected ErrModelTooLarge, got %v", err)
	}

	// No eviction happened: the resident model and accounting are untouched.
	if !p.Contains("small.tar.gz") {
		t.Error("resident model evicted by an oversized admit")
	}
	if p.TotalSize() != 60 {
		t.Errorf("pool size = %d, want 60", p.TotalSize())
	}
}

func TestAdmit_CoalescesConcurrentLoads(t *testing.T) {
	loader := newFakeLoader()
	loader.delay = 50 * time.Millisecond
	p := newPool(t, 0, loader)

	const waiters = 8
	var wg sync.WaitGroup
	handles := make([]*Handle, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = p.Admit(context.Background(), "a.tar.gz", diskcache.Entry{ID: "a.tar.gz"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("waiter %d failed: %v", i, err)
			continue
		}
		handles[i].Release()
	}
	if n := loader.loadCount("a.tar.gz"); n != 1 {
		t.Errorf("loader calls = %d, want exactly 1", n)
	}
	if p.Len() != 1 {
		t.Errorf("residents = %d, want 1", p.Len())
	}
}

func TestAdmit_LoadErrorLeavesPoolUnchanged(t *testing.T) {
	loader := newFakeLoader()
	p := newPool(t, 0, loader)

	admit(t, p, "a.tar.gz").Release()

	loader.mu.Lock()
	loader.err = model.ErrInvalidPackage
	loader.mu.Unlock()

	_, err := p.Admit(context.Background(), "broken.tar.gz", diskcache.Entry{ID: "broken.tar.gz"})
	if !errors.Is(err, model.ErrInvalidPackage) {
		t.Fatalf("expected ErrInvalidPackage, got %v", err)
	}
	if p.Len() != 1 || !p.Contains("a.tar.gz") {
		t.Error("failed load changed pool state")
	}
}

func TestEvict_RefcountedClose(t *testing.T) {
	loader := newFakeLoader()
	p := newPool(t, 0, loader)

	h := admit(t, p, "a.tar.gz")
	fm := h.Model().(*fakeModel)

	if !p.Evict("a.tar.gz") {
		t.Fatal("Evict returned false for a resident model")
	}

	// Accounting dropped immediately, runtime survives until release.
	if p.Contains("a.tar.gz") || p.TotalSize() != 0 {
		t.Error("evicted model still charged against the pool")
	}
	if fm.isClosed() {
		t.Fatal("runtime closed while an execution held a handle")
	}
	if _, err := h.Model().Execute(context.Background(), "application/json", []byte("x")); err != nil {
		t.Errorf("in-flight execution failed after eviction: %v", err)
	}

	h.Release()
	if !fm.isClosed() {
		t.Error("runtime not closed on last release")
	}

	h.Release() // idempotent
}

func TestBudgetInvariantUnderChurn(t *testing.T) {
	loader := newFakeLoader()
	p := newPool(t, 250, loader)

	ids := []model.ID{"m0", "m1", "m2", "m3", "m4"}
	for _, id := range ids {
		admit(t, p, id).Release()
		if p.TotalSize() > 250 {
			t.Fatalf("pool budget exceeded: %d > 250", p.TotalSize())
		}
		time.Sleep(time.Millisecond)
	}

	if p.Len() != 2 {
		t.Errorf("expected 2 residents under budget, got %d", p.Len())
	}
}

func TestAdmit_PinsDiskEntry(t *testing.T) {
	remote := memory.New()
	data := make([]byte, 100)
	if err := remote.Put(context.Background(), "a.tar.gz", data); err != nil {
		t.Fatal(err)
	}

	cache, err := diskcache.New(diskcache.Config{Dir: t.TempDir(), Remote: remote})
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	entry, err := cache.FetchOrGet(context.Background(), "a.tar.gz")
	if err != nil {
		t.Fatal(err)
	}

	loader := newFakeLoader()
	p, err := New(Config{Loader: loader, Disk: cache})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	h, err := p.Admit(context.Background(), "a.tar.gz", entry)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	h.Release()

	if err := cache.Invalidate("a.tar.gz"); err == nil {
		t.Error("disk entry of a resident model was not pinned")
	}

	p.Evict("a.tar.gz")

	if err := cache.Invalidate("a.tar.gz"); err != nil {
		t.Errorf("disk entry still pinned after eviction: %v", err)
	}
}

// gatedLoader blocks inside Load until released, exposing the window where
// a load is in flight.
type gatedLoader struct {
	entered chan struct{}
	release chan struct{}
}

func (l *gatedLoader) Load(ctx context.Context, id model.ID, path string) (runtime.Model, error) {
	close(l.entered)
	<-l.release
	return &fakeModel{size: 10}, nil
}

func TestAdmit_PinHeldDuringLoad(t *testing.T) {
	remote := memory.New()
	for _, id := range []model.ID{"a.tar.gz", "b.tar.gz"} {
		if err := remote.Put(context.Background(), id, make([]byte, 60)); err != nil {
			t.Fatal(err)
		}
	}

	cache, err := diskcache.New(diskcache.Config{Dir: t.TempDir(), Budget: 100, Remote: remote})
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	entry, err := cache.FetchOrGet(context.Background(), "a.tar.gz")
	if err != nil {
		t.Fatal(err)
	}

	loader := &gatedLoader{entered: make(chan struct{}), release: make(chan struct{})}
	p, err := New(Config{Loader: loader, Disk: cache})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	done := make(chan error, 1)
	var h *Handle
	go func() {
		var admitErr error
		h, admitErr = p.Admit(context.Background(), "a.tar.gz", entry)
		done <- admitErr
	}()
	<-loader.entered

	// With a's load in flight its disk entry is pinned: staging b (60+60
	// over a 100-byte budget) must fail instead of reclaiming it.
	if _, err := cache.FetchOrGet(context.Background(), "b.tar.gz"); !errors.Is(err, model.ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded while a.tar.gz is loading, got %v", err)
	}

	close(loader.release)
	if err := <-done; err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	h.Release()

	if !p.Contains("a.tar.gz") {
		t.Fatal("expected a.tar.gz resident")
	}
	if !cache.Contains("a.tar.gz") {
		t.Fatal("resident model left without a disk entry")
	}
}

func TestAdmit_FailedLoadUnpinsDiskEntry(t *testing.T) {
	remote := memory.New()
	if err := remote.Put(context.Background(), "a.tar.gz", make([]byte, 60)); err != nil {
		t.Fatal(err)
	}

	cache, err := diskcache.New(diskcache.Config{Dir: t.TempDir(), Remote: remote})
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	entry, err := cache.FetchOrGet(context.Background(), "a.tar.gz")
	if err != nil {
		t.Fatal(err)
	}

	loader := newFakeLoader()
	loader.err = model.ErrInvalidPackage
	p, err := New(Config{Loader: loader, Disk: cache})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, err := p.Admit(context.Background(), "a.tar.gz", entry); !errors.Is(err, model.ErrInvalidPackage) {
		t.Fatalf("expected ErrInvalidPackage, got %v", err)
	}

	if err := cache.Invalidate("a.tar.gz"); err != nil {
		t.Errorf("disk entry left pinned after a failed load: %v", err)
	}
}

func TestClose(t *testing.T) {
	loader := newFakeLoader()
	p := newPool(t, 0, loader)

	h := admit(t, p, "a.tar.gz")
	fm := h.Model().(*fakeModel)
	h.Release()

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !fm.isClosed() {
		t.Error("resident runtime not closed by pool Close")
	}

	_, err := p.Admit(context.Background(), "b.tar.gz", diskcache.Entry{ID: "b.tar.gz"})
	if !errors.Is(err, model.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}
