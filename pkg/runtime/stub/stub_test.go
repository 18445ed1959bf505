package stub

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcached/modelcached/pkg/model"
)

func stageArchive(t *testing.T) string {
	t.Helper()

	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "code"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(src, "model"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "code", "inference.py"), []byte("def predict(x): return x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "model", "weights.bin"), []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	data, err := model.BuildPackage(src)
	if err != nil {
		t.Fatalf("BuildPackage failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "m.tar.gz")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndExecute(t *testing.T) {
	loader := &Loader{WorkDir: t.TempDir()}
	ctx := context.Background()

	m, err := loader.Load(ctx, "m.tar.gz", stageArchive(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer m.Close()

	if m.SizeBytes() == 0 {
		t.Error("expected nonzero footprint")
	}

	payload := []byte(`{"input": [1, 2, 3]}`)
	out, err := m.Execute(ctx, "application/json", payload)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(out) != string(payload) {
		t.Errorf("Execute returned %q, want echoed payload", out)
	}
}

func TestLoad_RejectsNonArchive(t *testing.T) {
	loader := &Loader{WorkDir: t.TempDir()}

	path := filepath.Join(t.TempDir(), "bogus.tar.gz")
	if err := os.WriteFile(path, []byte("not a gzip stream"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := loader.Load(context.Background(), "bogus.tar.gz", path); err == nil {
		t.Error("expected Load to reject a non-archive file")
	}
}

func TestClose_ReleasesUnpackDir(t *testing.T) {
	loader := &Loader{WorkDir: t.TempDir()}

	m, err := loader.Load(context.Background(), "m.tar.gz", stageArchive(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	stub := m.(*Model)
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !stub.Closed() {
		t.Error("Closed() = false after Close")
	}
	if _, err := os.Stat(stub.dir); !os.IsNotExist(err) {
		t.Error("unpack directory left behind after Close")
	}

	if _, err := m.Execute(context.Background(), "application/json", nil); !errors.Is(err, model.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}
