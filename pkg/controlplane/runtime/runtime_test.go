package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcached/modelcached/pkg/controlplane/models"
	cpstore "github.com/modelcached/modelcached/pkg/controlplane/store"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/runtime/stub"
	"github.com/modelcached/modelcached/pkg/store/memory"
)

func publishPackage(t *testing.T, remote *memory.Store, id model.ID) {
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
	if err := os.WriteFile(filepath.Join(src, "model", "weights.bin"), make([]byte, 256), 0644); err != nil {
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

func newTestManager(t *testing.T) (*Manager, cpstore.Store, *memory.Store) {
	t.Helper()

	db, err := cpstore.New(&cpstore.Config{
		Type:   cpstore.DatabaseTypeSQLite,
		SQLite: cpstore.SQLiteConfig{Path: filepath.Join(t.TempDir(), "cp.db")},
	})
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	remote := memory.New()

	m, err := NewManager(Config{
		Store:   db,
		Remote:  remote,
		Loader:  &stub.Loader{WorkDir: t.TempDir()},
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	return m, db, remote
}

func testEndpoint(name string) *models.Endpoint {
	return &models.Endpoint{
		Name:         name,
		MemoryBudget: 1 << 20,
		Runtime:      "stub",
		Models: []models.EndpointModel{
			{Name: "classifier", ArtifactID: "classifier-v1.tar.gz", ContentType: "application/json"},
		},
	}
}

func TestCreateEndpointAndInvoke(t *testing.T) {
	m, _, remote := newTestManager(t)
	publishPackage(t, remote, "classifier-v1.tar.gz")

	ctx := context.Background()
	if err := m.CreateEndpoint(ctx, testEndpoint("prod")); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	payload := []byte(`{"input": 1}`)
	out, err := m.Invoke(ctx, "prod", "req-1", "classifier", "application/json", payload)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if string(out) != string(payload) {
		t.Errorf("Invoke returned %q, want echoed payload", out)
	}

	stats, err := m.GetStats("prod")
	if err != nil {
		t.Fatal(err)
	}
	if stats.PoolResident != 1 || stats.DiskEntries != 1 {
		t.Errorf("stats = %+v, want one resident model and one disk entry", stats)
	}
}

func TestInvoke_UnknownEndpoint(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Invoke(context.Background(), "ghost", "req-1", "classifier", "application/json", nil)
	if !errors.Is(err, models.ErrEndpointNotFound) {
		t.Errorf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestInvoke_RawArtifactIdentity(t *testing.T) {
	m, _, remote := newTestManager(t)
	publishPackage(t, remote, "adhoc-v1.tar.gz")

	ctx := context.Background()
	ep := testEndpoint("prod")
	ep.Models = nil
	if err := m.CreateEndpoint(ctx, ep); err != nil {
		t.Fatal(err)
	}

	// No mapping: the target is used as the artifact identity directly.
	if _, err := m.Invoke(ctx, "prod", "req-1", "adhoc-v1.tar.gz", "application/json", []byte("x")); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
}

func TestUpdateEndpoint_InvalidatesReplacedArtifact(t *testing.T) {
	m, _, remote := newTestManager(t)
	publishPackage(t, remote, "classifier-v1.tar.gz")
	publishPackage(t, remote, "classifier-v2.tar.gz")

	ctx := context.Background()
	ep := testEndpoint("prod")
	if err := m.CreateEndpoint(ctx, ep); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Invoke(ctx, "prod", "req-1", "classifier", "application/json", []byte("x")); err != nil {
		t.Fatal(err)
	}

	ep.Models = []models.EndpointModel{
		{Name: "classifier", ArtifactID: "classifier-v2.tar.gz", ContentType: "application/json"},
	}
	if err := m.UpdateEndpoint(ctx, ep); err != nil {
		t.Fatalf("UpdateEndpoint failed: %v", err)
	}

	stats, err := m.GetStats("prod")
	if err != nil {
		t.Fatal(err)
	}
	if stats.PoolResident != 0 || stats.DiskEntries != 0 {
		t.Errorf("replaced artifact still cached: %+v", stats)
	}

	// The name now serves the new version.
	if _, err := m.Invoke(ctx, "prod", "req-2", "classifier", "application/json", []byte("x")); err != nil {
		t.Fatalf("Invoke after re-point failed: %v", err)
	}
	if n := remote.FetchCount("classifier-v2.tar.gz"); n != 1 {
		t.Errorf("v2 fetches = %d, want 1", n)
	}
}

func TestDeleteEndpoint_ReleasesInstance(t *testing.T) {
	m, _, remote := newTestManager(t)
	publishPackage(t, remote, "classifier-v1.tar.gz")

	ctx := context.Background()
	if err := m.CreateEndpoint(ctx, testEndpoint("prod")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Invoke(ctx, "prod", "req-1", "classifier", "application/json", []byte("x")); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteEndpoint(ctx, "prod"); err != nil {
		t.Fatalf("DeleteEndpoint failed: %v", err)
	}

	_, err := m.Invoke(ctx, "prod", "req-2", "classifier", "application/json", []byte("x"))
	if !errors.Is(err, models.ErrEndpointNotFound) {
		t.Errorf("expected ErrEndpointNotFound after delete, got %v", err)
	}
}

func TestStart_RealizesPersistedEndpoints(t *testing.T) {
	m, db, remote := newTestManager(t)
	publishPackage(t, remote, "classifier-v1.tar.gz")

	ctx := context.Background()
	if _, err := db.CreateEndpoint(ctx, testEndpoint("prod")); err != nil {
		t.Fatal(err)
	}

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := m.Invoke(ctx, "prod", "req-1", "classifier", "application/json", []byte("x")); err != nil {
		t.Fatalf("Invoke after Start failed: %v", err)
	}
}
