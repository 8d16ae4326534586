package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/rsvpguard/internal/infra/shutdown"
	"github.com/yndnr/rsvpguard/internal/server/config"
	"github.com/yndnr/rsvpguard/internal/telemetry/logger"
	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
)

func testConfig(t *testing.T) *config.ServerConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Server.HTTP.Addr = "127.0.0.1:0"
	cfg.Storage.Engine = config.EngineMemory
	cfg.Backup.Dir = t.TempDir()
	cfg.Security.AdminKey = "0123456789abcdef0123"
	return cfg
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	body := "storage:\n  engine: memory\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Storage.Engine != config.EngineMemory {
		t.Errorf("cfg = %+v", cfg)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("storage:\n  engine: floppy\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := loadConfig(bad); err == nil {
		t.Error("loadConfig(bad) expected error")
	}
}

func TestBuild_MemoryEngine(t *testing.T) {
	cfg := testConfig(t)
	sh := shutdown.NewHandler(5*time.Second, logger.Discard())

	app, err := build(cfg, logger.Discard(), metric.NewRegistry(), sh)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	t.Cleanup(func() { _ = sh.Shutdown() })

	if err := readiness(app)(context.Background()); err != nil {
		t.Errorf("readiness() error = %v", err)
	}
	if app.keyPair != nil || app.redis != nil || app.badger != nil {
		t.Errorf("unexpected optional components: %+v", app)
	}
	if app.http.Addr() != cfg.Server.HTTP.Addr {
		t.Errorf("Addr() = %q", app.http.Addr())
	}
}

func TestBuild_BadgerEngineServesRequests(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Engine = config.EngineBadger
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.SyncWrites = false
	metrics := metric.NewRegistry()
	sh := shutdown.NewHandler(5*time.Second, logger.Discard())

	app, err := build(cfg, logger.Discard(), metrics, sh)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	t.Cleanup(func() { _ = sh.Shutdown() })
	if app.badger == nil {
		t.Fatal("badger store not opened")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go func() { _ = app.http.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ready")
	if err != nil {
		t.Fatalf("GET /ready error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/ready status = %d", resp.StatusCode)
	}
}

func TestMaintenanceTasks(t *testing.T) {
	tests := []struct {
		name      string
		interval  time.Duration
		retention int
		want      []string
	}{
		{
			name:      "all",
			interval:  time.Hour,
			retention: 7,
			want:      []string{"ratelimit-cleanup", "failure-cleanup", "blocklist-cleanup", "scheduled-backup", "backup-retention"},
		},
		{
			name: "no backups",
			want: []string{"ratelimit-cleanup", "failure-cleanup", "blocklist-cleanup"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Backup.Interval = tt.interval
			cfg.Backup.RetentionDays = tt.retention
			tasks := maintenanceTasks(cfg, nil, nil, nil, nil)
			if len(tasks) != len(tt.want) {
				t.Fatalf("maintenanceTasks() = %d tasks, want %d", len(tasks), len(tt.want))
			}
			for i, task := range tasks {
				if task.Name != tt.want[i] {
					t.Errorf("task[%d] = %q, want %q", i, task.Name, tt.want[i])
				}
				if task.Interval <= 0 {
					t.Errorf("task %q has no interval", task.Name)
				}
			}
		})
	}
}

func TestRestartNeeded(t *testing.T) {
	base := config.Default()

	same := config.Default()
	same.Log.Level = "debug"
	same.Security.RapidRequestThreshold++
	if restartNeeded(base, same) {
		t.Error("reloadable changes reported as needing a restart")
	}

	moved := config.Default()
	moved.Server.HTTP.Addr = "0.0.0.0:9999"
	if !restartNeeded(base, moved) {
		t.Error("listen address change not reported")
	}

	rekeyed := config.Default()
	rekeyed.Security.AdminKey = "another-admin-key-0000"
	if !restartNeeded(base, rekeyed) {
		t.Error("admin key change not reported")
	}
}
