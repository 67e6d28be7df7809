package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if cfg.Browse.MaxEntries != 0 || len(cfg.Servers) != 0 {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
[browse]
max_entries = 50
show_empty_files = true
strict_parent_id = true

[network]
response_timeout_ms = 5000
discovery_wait_ms = 2000

[cache]
size = 1048576
ttl_ms = 60000
compress = true

[[servers]]
ip = "10.0.0.5"
port = 8200
control_url = "/ctl/ContentDir"
name = "NAS"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Browse.MaxEntries != 50 || !cfg.Browse.ShowEmptyFiles || !cfg.Browse.StrictParentID {
		t.Fatalf("browse section: %+v", cfg.Browse)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].IP != "10.0.0.5" || cfg.Servers[0].Port != 8200 {
		t.Fatalf("servers section: %+v", cfg.Servers)
	}

	engine := cfg.Engine()
	if engine.ResponseTimeout != 5*time.Second {
		t.Fatalf("response timeout: %v", engine.ResponseTimeout)
	}
	if engine.DiscoveryWait != 2*time.Second {
		t.Fatalf("discovery wait: %v", engine.DiscoveryWait)
	}
	if engine.CacheSize != 1048576 || engine.CacheTTL != time.Minute || !engine.CacheCompress {
		t.Fatalf("cache mapping: %+v", engine)
	}
}

func TestLoadRejectsDirectory(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("directory path must error")
	}
}
