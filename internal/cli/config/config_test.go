package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DefaultServer != "http://localhost:5080" {
		t.Errorf("DefaultServer = %q, want %q", cfg.DefaultServer, "http://localhost:5080")
	}
	if cfg.DefaultOutput != "table" {
		t.Errorf("DefaultOutput = %q, want %q", cfg.DefaultOutput, "table")
	}
	if cfg.Connections == nil || len(cfg.Connections) != 0 {
		t.Errorf("Connections = %v, want empty map", cfg.Connections)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("DefaultConfigPath() = %q, want absolute", path)
	}
	if !strings.HasSuffix(path, filepath.Join(".rsvpguard", "cli.yaml")) {
		t.Errorf("DefaultConfigPath() = %q, want .rsvpguard/cli.yaml suffix", path)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultServer != "http://localhost:5080" {
		t.Errorf("DefaultServer = %q, want default", cfg.DefaultServer)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte("connections: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "cli.yaml")

	cfg := Default()
	cfg.DefaultOutput = "json"
	cfg.CurrentConnection = "prod"
	cfg.Connections["prod"] = ConnectionConfig{
		Server:   "https://rsvp.example.com",
		AdminKey: "0123456789abcdef",
		CAFile:   "/etc/rsvpguard/ca.pem",
	}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 0600", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.DefaultOutput != "json" {
		t.Errorf("DefaultOutput = %q, want json", got.DefaultOutput)
	}
	name, conn := got.Current()
	if name != "prod" || conn.Server != "https://rsvp.example.com" || conn.AdminKey != "0123456789abcdef" {
		t.Errorf("Current() = %q %+v", name, conn)
	}
}

func TestCurrent(t *testing.T) {
	cfg := Default()
	cfg.Connections["dev"] = ConnectionConfig{Server: "http://dev:5080"}

	tests := []struct {
		name       string
		current    string
		wantName   string
		wantServer string
	}{
		{"no profile", "", "", "http://localhost:5080"},
		{"known profile", "dev", "dev", "http://dev:5080"},
		{"unknown profile", "gone", "", "http://localhost:5080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg.CurrentConnection = tt.current
			name, conn := cfg.Current()
			if name != tt.wantName || conn.Server != tt.wantServer {
				t.Errorf("Current() = %q %q, want %q %q", name, conn.Server, tt.wantName, tt.wantServer)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	cfg := Default()
	cfg.CurrentConnection = "prod"
	cfg.Connections["prod"] = ConnectionConfig{Server: "https://prod:5443", AdminKey: "saved-key-000000"}

	conn := Merge(cfg, map[string]string{EnvAdminKey: "env-key-11111111"})
	if conn.Server != "https://prod:5443" {
		t.Errorf("Server = %q, want profile server", conn.Server)
	}
	if conn.AdminKey != "env-key-11111111" {
		t.Errorf("AdminKey = %q, want env override", conn.AdminKey)
	}

	conn = Merge(cfg, map[string]string{EnvServer: "http://other:5080"})
	if conn.Server != "http://other:5080" {
		t.Errorf("Server = %q, want env override", conn.Server)
	}
}
