package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/modelcached/modelcached/pkg/controlplane/models"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()

	cfg := &Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "controlplane.db")},
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEndpoint(name string) *models.Endpoint {
	return &models.Endpoint{
		Name:         name,
		MemoryBudget: 1 << 30,
		DiskBudget:   10 << 30,
		Runtime:      "stub",
		Models: []models.EndpointModel{
			{Name: "classifier", ArtifactID: "classifier-v1.tar.gz", ContentType: "application/json"},
		},
	}
}

func TestCreateAndGetEndpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateEndpoint(ctx, testEndpoint("prod"))
	if err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}
	if id == "" {
		t.Fatal("CreateEndpoint returned empty id")
	}

	ep, err := s.GetEndpoint(ctx, "prod")
	if err != nil {
		t.Fatalf("GetEndpoint failed: %v", err)
	}
	if ep.MemoryBudget != 1<<30 {
		t.Errorf("memory budget = %d, want %d", ep.MemoryBudget, 1<<30)
	}
	if len(ep.Models) != 1 || ep.Models[0].ArtifactID != "classifier-v1.tar.gz" {
		t.Errorf("models not persisted: %+v", ep.Models)
	}
}

func TestCreateEndpoint_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateEndpoint(ctx, testEndpoint("prod")); err != nil {
		t.Fatal(err)
	}

	_, err := s.CreateEndpoint(ctx, testEndpoint("prod"))
	if !errors.Is(err, models.ErrDuplicateEndpoint) {
		t.Errorf("expected ErrDuplicateEndpoint, got %v", err)
	}
}

func TestGetEndpoint_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetEndpoint(context.Background(), "missing")
	if !errors.Is(err, models.ErrEndpointNotFound) {
		t.Errorf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestUpdateEndpoint_ReplacesModels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ep := testEndpoint("prod")
	if _, err := s.CreateEndpoint(ctx, ep); err != nil {
		t.Fatal(err)
	}

	ep.MemoryBudget = 2 << 30
	ep.Models = []models.EndpointModel{
		{Name: "classifier", ArtifactID: "classifier-v2.tar.gz", ContentType: "application/json"},
		{Name: "ranker", ArtifactID: "ranker-v1.tar.gz", ContentType: "application/json"},
	}
	if err := s.UpdateEndpoint(ctx, ep); err != nil {
		t.Fatalf("UpdateEndpoint failed: %v", err)
	}

	got, err := s.GetEndpoint(ctx, "prod")
	if err != nil {
		t.Fatal(err)
	}
	if got.MemoryBudget != 2<<30 {
		t.Errorf("memory budget = %d, want %d", got.MemoryBudget, 2<<30)
	}
	if len(got.Models) != 2 {
		t.Fatalf("models = %d, want 2", len(got.Models))
	}
	for _, m := range got.Models {
		if m.Name == "classifier" && m.ArtifactID != "classifier-v2.tar.gz" {
			t.Errorf("classifier not re-pointed: %s", m.ArtifactID)
		}
	}
}

func TestUpdateEndpoint_NotFound(t *testing.T) {
	s := newTestStore(t)

	ep := testEndpoint("ghost")
	ep.ID = "does-not-exist"
	if err := s.UpdateEndpoint(context.Background(), ep); !errors.Is(err, models.ErrEndpointNotFound) {
		t.Errorf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateEndpoint(ctx, testEndpoint("prod")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteEndpoint(ctx, "prod"); err != nil {
		t.Fatalf("DeleteEndpoint failed: %v", err)
	}

	if _, err := s.GetEndpoint(ctx, "prod"); !errors.Is(err, models.ErrEndpointNotFound) {
		t.Errorf("endpoint still present after delete: %v", err)
	}

	// Mappings are gone too.
	var count int64
	if err := s.DB().Model(&models.EndpointModel{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("endpoint models left behind: %d", count)
	}
}

func TestListEndpointsSortedByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"staging", "prod", "dev"} {
		if _, err := s.CreateEndpoint(ctx, testEndpoint(name)); err != nil {
			t.Fatal(err)
		}
	}

	eps, err := s.ListEndpoints(ctx)
	if err != nil {
		t.Fatalf("ListEndpoints failed: %v", err)
	}
	if len(eps) != 3 || eps[0].Name != "dev" || eps[2].Name != "staging" {
		names := make([]string, len(eps))
		for i, ep := range eps {
			names[i] = ep.Name
		}
		t.Errorf("ListEndpoints order = %v, want [dev prod staging]", names)
	}
}

func TestHealthcheck(t *testing.T) {
	s := newTestStore(t)
	if err := s.Healthcheck(context.Background()); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}
