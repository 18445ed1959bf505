package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcached/modelcached/pkg/model"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	data := []byte("artifact bytes")

	if err := s.Put(ctx, "m1.tar.gz", data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, sum, err := s.Get(ctx, "m1.tar.gz")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get returned %q, want %q", got, data)
	}
	if err := sum.Verify(got); err != nil {
		t.Errorf("returned checksum does not verify: %v", err)
	}
}

func TestPut_RefusesOverwrite(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Put(ctx, "m1.tar.gz", []byte("v1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err := s.Put(ctx, "m1.tar.gz", []byte("v2"))
	if !errors.Is(err, model.ErrIdentityExists) {
		t.Errorf("expected ErrIdentityExists, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := New()

	_, _, err := s.Get(context.Background(), "missing.tar.gz")
	if !errors.Is(err, model.ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

func TestHeadAndList(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, id := range []model.ID{"b.tar.gz", "a.tar.gz"} {
		if err := s.Put(ctx, id, []byte("xx")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	info, err := s.Head(ctx, "a.tar.gz")
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if info.Size != 2 {
		t.Errorf("Head size = %d, want 2", info.Size)
	}

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 2 || infos[0].ID != "a.tar.gz" {
		t.Errorf("List returned %v, want sorted [a.tar.gz b.tar.gz]", infos)
	}
}

func TestClosedStore(t *testing.T) {
	s := New()
	_ = s.Close()

	if _, _, err := s.Get(context.Background(), "x"); !errors.Is(err, model.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
