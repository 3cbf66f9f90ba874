package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: file\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Store.Path != "projects.json" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d", cfg.HTTP.Port)
	}
	if cfg.MQTT.PublishPrefix != "luxaudit" {
		t.Errorf("PublishPrefix = %q", cfg.MQTT.PublishPrefix)
	}
	if cfg.Capture.DedupRadius != DefaultDedupRadius {
		t.Errorf("DedupRadius = %v", cfg.Capture.DedupRadius)
	}
	if cfg.Capture.Rule.AllowZero {
		t.Error("default rule must reject zero readings")
	}
	if !strings.Contains(cfg.Report.Title, "RETILAP") {
		t.Errorf("Report.Title = %q", cfg.Report.Title)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "store: [not a map\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"unknown backend",
			"store:\n  backend: carrier-pigeon\n",
			"unknown store backend",
		},
		{
			"remote without url",
			"store:\n  backend: remote\n",
			"store.remote.url",
		},
		{
			"remote without auth",
			"store:\n  backend: remote\n  remote:\n    url: https://example.com/doc\n",
			"token",
		},
		{
			"tokenUrl without refresh token",
			"store:\n  backend: remote\n  remote:\n    url: https://example.com/doc\n    tokenUrl: https://example.com/oauth\n",
			"refreshToken",
		},
		{
			"negative dedup radius",
			"capture:\n  dedupRadius: -1\n",
			"dedupRadius",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestConfigReferenceTableOverride(t *testing.T) {
	path := writeConfig(t, `
reference:
  - category: "Taller"
    em: 300
    uo: 0.5
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	table, err := cfg.ReferenceTable()
	if err != nil {
		t.Fatalf("ReferenceTable: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("Len = %d, want 1", table.Len())
	}
	if e := table.Lookup("Taller"); e.Em != 300 {
		t.Errorf("Em = %v, want 300", e.Em)
	}
}

func TestConfigOpenStoreBackends(t *testing.T) {
	dir := t.TempDir()
	table := DefaultReferenceTable()

	cfg := DefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "projects.json")
	store, err := cfg.OpenStore(table)
	if err != nil {
		t.Fatalf("OpenStore file: %v", err)
	}
	if _, ok := store.(*FileStore); !ok {
		t.Errorf("store = %T, want *FileStore", store)
	}

	cfg.Store.Backend = StoreBackendRemote
	cfg.Store.Remote.URL = "https://example.com/doc.json"
	cfg.Store.Remote.Token = "tok"
	store, err = cfg.OpenStore(table)
	if err != nil {
		t.Fatalf("OpenStore remote: %v", err)
	}
	remote, ok := store.(*RemoteStore)
	if !ok {
		t.Fatalf("store = %T, want *RemoteStore", store)
	}
	if _, ok := remote.Tokens.(StaticToken); !ok {
		t.Errorf("Tokens = %T, want StaticToken", remote.Tokens)
	}

	cfg.Store.Remote.TokenURL = "https://example.com/oauth"
	cfg.Store.Remote.RefreshToken = "refresco"
	store, err = cfg.OpenStore(table)
	if err != nil {
		t.Fatalf("OpenStore remote refreshing: %v", err)
	}
	if _, ok := store.(*RemoteStore).Tokens.(*RefreshingToken); !ok {
		t.Error("tokenUrl should select the refreshing token source")
	}
}
