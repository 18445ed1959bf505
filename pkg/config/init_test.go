package config

import (
	"path/filepath"
	"testing"
)

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of generated config failed: %v", err)
	}
	if len(cfg.API.JWT.Secret) < 32 {
		t.Errorf("generated JWT secret too short: %d chars", len(cfg.API.JWT.Secret))
	}

	// Refuses to overwrite without force.
	if err := InitConfigToPath(path, false); err == nil {
		t.Error("expected error when config already exists")
	}
	if err := InitConfigToPath(path, true); err != nil {
		t.Errorf("force overwrite failed: %v", err)
	}
}
