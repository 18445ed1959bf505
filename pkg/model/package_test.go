package model

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writePackageDir lays out a minimal valid package directory.
func writePackageDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for p, content := range map[string]string{
		"code/inference.py":  "def handler(payload):\n    return payload\n",
		"code/requirements":  "none\n",
		"model/weights.bin":  "\x00\x01\x02\x03",
		"model/tokenizer.js": "{}",
	} {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	return dir
}

// archiveOf builds a tar.gz from entries, bypassing BuildPackage validation.
func archiveOf(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func TestBuildAndValidatePackage(t *testing.T) {
	dir := writePackageDir(t)

	data, err := BuildPackage(dir)
	if err != nil {
		t.Fatalf("BuildPackage failed: %v", err)
	}

	if err := ValidatePackage(bytes.NewReader(data)); err != nil {
		t.Errorf("ValidatePackage failed on built package: %v", err)
	}
}

func TestValidatePackage_MissingEntryPoint(t *testing.T) {
	data := archiveOf(t, map[string]string{
		"code/helpers.py":   "pass",
		"model/weights.bin": "xx",
	})

	err := ValidatePackage(bytes.NewReader(data))
	if !errors.Is(err, ErrInvalidPackage) {
		t.Errorf("expected ErrInvalidPackage, got %v", err)
	}
}

func TestValidatePackage_MissingData(t *testing.T) {
	data := archiveOf(t, map[string]string{
		"code/inference.py": "pass",
	})

	err := ValidatePackage(bytes.NewReader(data))
	if !errors.Is(err, ErrInvalidPackage) {
		t.Errorf("expected ErrInvalidPackage, got %v", err)
	}
}

func TestValidatePackage_NotGzip(t *testing.T) {
	err := ValidatePackage(bytes.NewReader([]byte("plain text")))
	if !errors.Is(err, ErrInvalidPackage) {
		t.Errorf("expected ErrInvalidPackage, got %v", err)
	}
}

func TestValidatePackage_PathTraversal(t *testing.T) {
	data := archiveOf(t, map[string]string{
		"../escape":         "bad",
		"code/inference.py": "pass",
		"model/weights.bin": "xx",
	})

	err := ValidatePackage(bytes.NewReader(data))
	if !errors.Is(err, ErrInvalidPackage) {
		t.Errorf("expected ErrInvalidPackage for traversal, got %v", err)
	}
}

func TestUnpackPackage(t *testing.T) {
	dir := writePackageDir(t)
	data, err := BuildPackage(dir)
	if err != nil {
		t.Fatalf("BuildPackage failed: %v", err)
	}

	dest := t.TempDir()
	if err := UnpackPackage(bytes.NewReader(data), dest); err != nil {
		t.Fatalf("UnpackPackage failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "code", "inference.py"))
	if err != nil {
		t.Fatalf("unpacked entry point missing: %v", err)
	}
	if len(got) == 0 {
		t.Error("unpacked entry point is empty")
	}

	if _, err := os.Stat(filepath.Join(dest, "model", "weights.bin")); err != nil {
		t.Errorf("unpacked data subtree missing: %v", err)
	}
}

func TestChecksum(t *testing.T) {
	data := []byte("model bytes")
	sum := ComputeChecksum(data)

	if err := sum.Verify(data); err != nil {
		t.Errorf("Verify failed on matching data: %v", err)
	}

	err := sum.Verify([]byte("tampered"))
	if !errors.Is(err, ErrCorruptArtifact) {
		t.Errorf("expected ErrCorruptArtifact, got %v", err)
	}

	// Unknown checksum verifies trivially.
	if err := Checksum("").Verify(data); err != nil {
		t.Errorf("empty checksum should verify, got %v", err)
	}
}

func TestIDValidate(t *testing.T) {
	valid := []ID{"bert-base-v3.tar.gz", "ner/en-v1.tar.gz", "m"}
	for _, id := range valid {
		if err := id.Validate(); err != nil {
			t.Errorf("Validate(%q) unexpected error: %v", id, err)
		}
	}

	invalid := []ID{"", "  ", "/abs.tar.gz", "../up.tar.gz", "a/../b", ".hidden", "bad\nname"}
	for _, id := range invalid {
		if err := id.Validate(); !errors.Is(err, ErrInvalidIdentity) {
			t.Errorf("Validate(%q) expected ErrInvalidIdentity, got %v", id, err)
		}
	}
}

func TestServeErrorUnwrap(t *testing.T) {
	err := NewServeError("fetch", "summarizer", "bert-v3.tar.gz", ErrTransientStore)
	if !errors.Is(err, ErrTransientStore) {
		t.Error("errors.Is should match the wrapped sentinel")
	}
	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
}
