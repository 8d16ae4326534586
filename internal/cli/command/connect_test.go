package command

import (
	"errors"
	"strings"
	"testing"

	"github.com/yndnr/rsvpguard/internal/cli/config"
	"github.com/yndnr/rsvpguard/internal/cli/connection"
)

func TestConnect_SavesProfile(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("GET /health", map[string]string{"status": "healthy"})

	r := newCLIRun(t)
	if err := r.run("", "-K", testAdminKey, "connect", "--name", "staging", srv.URL); err != nil {
		t.Fatalf("connect error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), `as "staging"`) {
		t.Errorf("stdout = %q", r.stdout.String())
	}
	if srv.count("GET", "/health") != 1 {
		t.Error("connect did not check /health")
	}

	cfg, err := config.Load(r.configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CurrentConnection != "staging" {
		t.Errorf("CurrentConnection = %q", cfg.CurrentConnection)
	}
	conn := cfg.Connections["staging"]
	if conn.Server != srv.URL || conn.AdminKey != testAdminKey {
		t.Errorf("saved connection = %+v", conn)
	}

	// The saved profile now serves later commands without --server.
	srv.reply("GET /admin/v1/status", map[string]any{"version": "9.9.9"})
	r.stdout.Reset()
	if err := r.run("", "system", "status"); err != nil {
		t.Fatalf("status via profile error = %v", err)
	}
	if got := srv.last().Auth; got != "Bearer "+testAdminKey {
		t.Errorf("Authorization = %q", got)
	}
}

func TestConnect_Errors(t *testing.T) {
	down := newMockServer(t)
	downURL := down.URL
	down.Close()

	tests := []struct {
		name string
		args []string
	}{
		{"bad scheme", []string{"connect", "--no-check", "ftp://example.com"}},
		{"no host", []string{"connect", "--no-check", "http://"}},
		{"unreachable", []string{"--timeout", "2s", "connect", downURL}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newCLIRun(t)
			if err := r.run("", tt.args...); err == nil {
				t.Fatal("connect expected error")
			}
			cfg, _ := config.Load(r.configPath)
			if len(cfg.Connections) != 0 {
				t.Errorf("connection saved after failure: %+v", cfg.Connections)
			}
		})
	}
}

func TestConnect_ListUseRemove(t *testing.T) {
	r := newCLIRun(t)
	for _, args := range [][]string{
		{"connect", "--no-check", "--name", "a", "http://a.example:5080"},
		{"connect", "--no-check", "--name", "b", "http://b.example:5080"},
	} {
		if err := r.run("", args...); err != nil {
			t.Fatalf("%v error = %v", args, err)
		}
	}

	r.stdout.Reset()
	if err := r.run("", "connect", "list"); err != nil {
		t.Fatalf("list error = %v", err)
	}
	out := r.stdout.String()
	if !strings.Contains(out, "a.example") || !strings.Contains(out, "b.example") {
		t.Errorf("list output = %q", out)
	}

	r.stdout.Reset()
	if err := r.run("", "use", "a"); err != nil {
		t.Fatalf("use error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), "http://a.example:5080") {
		t.Errorf("use output = %q", r.stdout.String())
	}

	err := r.run("", "use", "missing")
	if !errors.Is(err, connection.ErrUnknownConnection) {
		t.Errorf("use missing error = %v, want ErrUnknownConnection", err)
	}

	if err := r.run("", "connect", "remove", "b"); err != nil {
		t.Fatalf("remove error = %v", err)
	}
	if err := r.run("", "connect", "remove", "b"); !errors.Is(err, connection.ErrUnknownConnection) {
		t.Errorf("second remove error = %v", err)
	}

	cfg, _ := config.Load(r.configPath)
	if _, ok := cfg.Connections["b"]; ok {
		t.Error("connection b still saved")
	}
	if cfg.CurrentConnection != "a" {
		t.Errorf("CurrentConnection = %q, want a", cfg.CurrentConnection)
	}
}

func TestDisconnect(t *testing.T) {
	r := newCLIRun(t)
	if err := r.run("", "disconnect"); err != nil {
		t.Fatalf("disconnect error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), "Not connected") {
		t.Errorf("stdout = %q", r.stdout.String())
	}

	if err := r.run("", "connect", "--no-check", "http://rsvp.example:5080"); err != nil {
		t.Fatalf("connect error = %v", err)
	}
	r.stdout.Reset()
	if err := r.run("", "disconnect"); err != nil {
		t.Fatalf("disconnect error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), "Disconnected") {
		t.Errorf("stdout = %q", r.stdout.String())
	}
	cfg, _ := config.Load(r.configPath)
	if cfg.CurrentConnection != "" {
		t.Errorf("CurrentConnection = %q", cfg.CurrentConnection)
	}
	if _, ok := cfg.Connections["default"]; !ok {
		t.Error("disconnect removed the saved profile")
	}
}
