package command

import (
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestShell_RunsCommands(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("GET /admin/v1/status", map[string]any{"version": "2.0.1", "guests": 7})
	srv.reply("GET /health", map[string]string{"status": "healthy"})

	r := newCLIRun(t)
	r.stdin = strings.Join([]string{
		"system status",
		"nosuchcommand",
		"shell",
		"system health",
		"exit",
	}, "\n") + "\n"

	if err := r.run(srv.URL, "shell", "--history-file", ""); err != nil {
		t.Fatalf("shell error = %v", err)
	}
	out := r.stdout.String()
	if !strings.Contains(out, "2.0.1") {
		t.Errorf("status not printed:\n%s", out)
	}
	if !strings.Contains(out, "already in the shell") {
		t.Errorf("nested shell not refused:\n%s", out)
	}
	if !strings.Contains(out, "Server is healthy") {
		t.Errorf("shell stopped after an error:\n%s", out)
	}
	if got := srv.count("GET", "/admin/v1/status"); got != 1 {
		t.Errorf("status calls = %d, want 1", got)
	}
	// Every line reuses the shell's --server and --admin-key.
	if got := srv.last().Auth; got != "Bearer "+testAdminKey {
		t.Errorf("Authorization = %q", got)
	}
}

func TestShell_EOF(t *testing.T) {
	r := newCLIRun(t)
	if err := r.run("", "shell", "--history-file", ""); err != nil {
		t.Fatalf("shell on empty input error = %v", err)
	}
}

func TestCommandPaths(t *testing.T) {
	cmds := []*cli.Command{
		{Name: "backup", Subcommands: []*cli.Command{{Name: "list"}, {Name: "restore"}}},
		{Name: "shell"},
		{Name: "secret", Hidden: true},
	}
	got := strings.Join(commandPaths(cmds, ""), ",")
	if got != "backup,backup list,backup restore" {
		t.Errorf("commandPaths() = %q", got)
	}
}
