package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadConfigMissingFile verifies that a missing file falls back to the
// defaults instead of failing
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	def := DefaultConfig()
	if cfg.Grid.PatchSize != def.Grid.PatchSize || cfg.Alignment.Model != def.Alignment.Model {
		t.Error("Missing config file did not yield defaults")
	}
}

// TestSaveLoadRoundTrip verifies that a saved configuration loads back with
// the same values
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Grid.PatchSize = 21
	cfg.Grid.Stride = 5
	cfg.Alignment.Model = "affine"
	cfg.Alignment.Tolerance = 1e-4
	cfg.Densify.MinError = 1e-3
	cfg.Output.MagnitudeImage = "mag.png"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.Grid.PatchSize != 21 || loaded.Grid.Stride != 5 {
		t.Errorf("Grid did not round trip: %+v", loaded.Grid)
	}
	if loaded.Alignment.Model != "affine" || loaded.Alignment.Tolerance != 1e-4 {
		t.Errorf("Alignment did not round trip: %+v", loaded.Alignment)
	}
	if loaded.Densify.MinError != 1e-3 {
		t.Errorf("Densify did not round trip: %+v", loaded.Densify)
	}
	if loaded.Output.MagnitudeImage != "mag.png" {
		t.Errorf("Output did not round trip: %+v", loaded.Output)
	}
}

// TestLoadConfigPartialFile verifies that fields absent from the file keep
// their defaults
func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("grid:\n  patchSize: 25\n"), 0644); err != nil {
		t.Fatalf("Failed to write partial config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Grid.PatchSize != 25 {
		t.Errorf("Overridden patch size = %d, want 25", cfg.Grid.PatchSize)
	}
	if cfg.Alignment.MaxIterations != DefaultConfig().Alignment.MaxIterations {
		t.Error("Unset field lost its default")
	}
}

// TestCreateDefaultConfigFile verifies the convenience helper writes a
// loadable file
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Config file is empty")
	}
}
