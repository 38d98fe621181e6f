package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/structweave/stb2ifc/core/model"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Logging.Level != "info" || f.Logging.Format != "text" {
		t.Fatalf("logging defaults = %+v", f.Logging)
	}
	if f.Server.Addr != ":8080" {
		t.Fatalf("server addr = %q", f.Server.Addr)
	}
	if f.History.Path != "stb2ifc-history.db" {
		t.Fatalf("history path = %q", f.History.Path)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stb2ifc.yaml")
	content := `
logging:
  level: debug
  format: json
conversion:
  mode: element_centric
  enable_fallback: false
  fallback_threshold: 10s
  duplicate_tolerance: 3
  confidence_threshold: 0.9
history:
  path: /tmp/runs.db
server:
  addr: :9090
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Logging.Level != "debug" || f.Logging.Format != "json" {
		t.Fatalf("logging = %+v", f.Logging)
	}
	if f.Server.Addr != ":9090" || f.History.Path != "/tmp/runs.db" {
		t.Fatalf("server = %+v history = %+v", f.Server, f.History)
	}

	cfg, err := f.IntegrateConfig()
	if err != nil {
		t.Fatalf("IntegrateConfig: %v", err)
	}
	if cfg.Mode != model.ModeElementCentric {
		t.Fatalf("Mode = %q", cfg.Mode)
	}
	if cfg.EnableFallback {
		t.Fatal("EnableFallback should be overridden to false")
	}
	if cfg.FallbackThreshold != 10*time.Second {
		t.Fatalf("FallbackThreshold = %v", cfg.FallbackThreshold)
	}
	if cfg.DuplicateTolerance != 3 {
		t.Fatalf("DuplicateTolerance = %d", cfg.DuplicateTolerance)
	}
	if cfg.ConfidenceThreshold != 0.9 {
		t.Fatalf("ConfidenceThreshold = %v", cfg.ConfidenceThreshold)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("logging: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("want error for malformed YAML")
	}
}

func TestIntegrateConfigDefaults(t *testing.T) {
	cfg, err := Default().IntegrateConfig()
	if err != nil {
		t.Fatalf("IntegrateConfig: %v", err)
	}
	if cfg.Mode != model.ModeHybrid {
		t.Fatalf("Mode = %q, want hybrid", cfg.Mode)
	}
	if !cfg.EnableFallback {
		t.Fatal("EnableFallback should default to true")
	}
	if cfg.ConfidenceThreshold != 0.7 {
		t.Fatalf("ConfidenceThreshold = %v", cfg.ConfidenceThreshold)
	}
}

func TestIntegrateConfigRejects(t *testing.T) {
	f := Default()
	f.Conversion.Mode = "turbo"
	if _, err := f.IntegrateConfig(); err == nil {
		t.Fatal("want error for unknown mode")
	}

	f = Default()
	f.Conversion.FallbackThreshold = "soon"
	if _, err := f.IntegrateConfig(); err == nil {
		t.Fatal("want error for unparseable duration")
	}
}
