package model

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Package layout constants. An artifact archive is a gzip-compressed tar
// containing a code directory with an inference entry point and a model data
// subtree. The serving runtime loads the package as a unit; archives missing
// either subtree are rejected at publish and load time.
const (
	// CodeDir is the archive directory holding inference code.
	CodeDir = "code"

	// EntryPoint is the required inference entry point inside CodeDir.
	EntryPoint = "code/inference.py"

	// DataDir is the archive directory holding model weights and assets.
	DataDir = "model"
)

// Checksum is a lowercase hex-encoded SHA-256 digest of an artifact's bytes.
// An empty checksum means "unknown" (legacy objects published without one);
// verification is skipped in that case and only sizes are compared.
type Checksum string

// ComputeChecksum returns the SHA-256 checksum of data.
func ComputeChecksum(data []byte) Checksum {
	sum := sha256.Sum256(data)
	return Checksum(hex.EncodeToString(sum[:]))
}

// Verify checks data against the checksum. Unknown checksums verify
// trivially.
func (c Checksum) Verify(data []byte) error {
	if c == "" {
		return nil
	}
	if got := ComputeChecksum(data); got != c {
		return fmt.Errorf("%w: checksum mismatch (want %s, got %s)", ErrCorruptArtifact, c, got)
	}
	return nil
}

// ValidatePackage checks that r contains a well-formed artifact archive:
// a gzip tar with the inference entry point and at least one file under the
// model data subtree. It reads headers only and discards file contents.
func ValidatePackage(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: not a gzip archive: %v", ErrInvalidPackage, err)
	}
	defer gz.Close()

	var hasEntryPoint, hasData bool

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: malformed tar: %v", ErrInvalidPackage, err)
		}

		name := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		if strings.HasPrefix(name, "..") || path.IsAbs(name) {
			return fmt.Errorf("%w: unsafe path %q in archive", ErrInvalidPackage, hdr.Name)
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if name == EntryPoint {
			hasEntryPoint = true
		}
		if strings.HasPrefix(name, DataDir+"/") {
			hasData = true
		}
	}

	if !hasEntryPoint {
		return fmt.Errorf("%w: missing entry point %q", ErrInvalidPackage, EntryPoint)
	}
	if !hasData {
		return fmt.Errorf("%w: missing %q data subtree", ErrInvalidPackage, DataDir)
	}

	return nil
}

// BuildPackage tars and compresses a package directory into archive bytes.
// The directory must already follow the package layout; the resulting
// archive is validated before being returned.
func BuildPackage(dir string) ([]byte, error) {
	out := &bytes.Buffer{}
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive %q: %w", dir, err)
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	data := out.Bytes()
	if err := ValidatePackage(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return data, nil
}

// UnpackPackage extracts an artifact archive into destDir. Paths are
// sanitized against traversal; symlinks and devices are skipped.
func UnpackPackage(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: not a gzip archive: %v", ErrInvalidPackage, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: malformed tar: %v", ErrInvalidPackage, err)
		}

		name := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		if strings.HasPrefix(name, "..") || path.IsAbs(name) {
			return fmt.Errorf("%w: unsafe path %q in archive", ErrInvalidPackage, hdr.Name)
		}

		target := filepath.Join(destDir, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		default:
			// Symlinks, devices, and other special entries are not part of
			// the package contract.
			continue
		}
	}
}
