package command

import (
	"encoding/csv"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/service"
	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
)

// bulkEcho issues a fake token for every guest it receives.
func bulkEcho() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req handler.BulkIssueRequest
		if err := jsonDecode(r, &req); err != nil {
			errorEnvelope(w, http.StatusBadRequest, "RG-REQ-4000", err.Error())
			return
		}
		res := service.IssueResult{}
		for _, g := range req.Guests {
			if g.Name == "" {
				res.Failures = append(res.Failures, service.IssueFailure{GuestID: g.GuestID, Message: "name required"})
				continue
			}
			issued := service.IssuedGuest{
				GuestID:   g.GuestID,
				Name:      g.Name,
				Token:     "tok-" + g.Name,
				ExpiresAt: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
			}
			if req.WithBackup {
				issued.BackupToken = "bak-" + g.Name
			}
			res.Issued = append(res.Issued, issued)
		}
		dataEnvelope(w, http.StatusOK, res)
	}
}

func TestLoadGuests(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "yaml list", file: "g.yaml", body: "- name: Ana\n- name: Rui\n  plus_one_allowed: true\n", want: 2},
		{name: "yaml wrapped", file: "g.yml", body: "guests:\n  - name: Ana\n", want: 1},
		{name: "json list", file: "g.json", body: `[{"name":"Ana","channel":"email","contact":"ana@example.com"}]`, want: 1},
		{name: "json wrapped", file: "w.json", body: `{"guests":[{"name":"Ana"},{"name":"Rui"}]}`, want: 2},
		{name: "empty", file: "e.yaml", body: "[]\n", wantErr: true},
		{name: "bad extension", file: "g.csv", body: "name\nAna\n", wantErr: true},
		{name: "malformed", file: "m.json", body: `{"guests": [`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			got, err := LoadGuests(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadGuests() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("LoadGuests() = %d guests, want %d", len(got), tt.want)
			}
		})
	}

	if _, err := LoadGuests(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadGuests(missing) expected error")
	}
}

func TestGuestsImport_Batches(t *testing.T) {
	srv := newMockServer(t)
	srv.handle("POST /admin/v1/tokens/bulk", bulkEcho())

	dir := t.TempDir()
	list := filepath.Join(dir, "guests.yaml")
	var b strings.Builder
	for _, n := range []string{"Ana", "Rui", "Ines", "Joao", "Marta"} {
		b.WriteString("- name: " + n + "\n")
	}
	if err := os.WriteFile(list, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	out := filepath.Join(dir, "tokens.csv")

	r := newCLIRun(t)
	err := r.run(srv.URL, "guests", "import", "--batch-size", "2", "--with-backup", "--tokens-out", out, list)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	if got := srv.count("POST", "/admin/v1/tokens/bulk"); got != 3 {
		t.Errorf("bulk requests = %d, want 3", got)
	}
	if !strings.Contains(r.stdout.String(), "Issued 5, failed 0") {
		t.Errorf("stdout = %q", r.stdout.String())
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("csv rows = %d, want header + 5", len(rows))
	}
	if rows[1][2] != "tok-Ana" || rows[1][3] != "bak-Ana" {
		t.Errorf("first row = %v", rows[1])
	}
	if info, err := os.Stat(out); err == nil && info.Mode().Perm() != 0o600 {
		t.Errorf("tokens file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestGuestsImport_InvalidBatchSize(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "guests.yaml")
	if err := os.WriteFile(list, []byte("- name: Ana\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	r := newCLIRun(t)
	for _, n := range []string{"0", "100000"} {
		if err := r.run("http://127.0.0.1:1", "guests", "import", "--batch-size", n, list); err == nil {
			t.Errorf("batch-size %s expected error", n)
		}
	}
}

func TestGuestsAdd(t *testing.T) {
	srv := newMockServer(t)
	srv.handle("POST /admin/v1/tokens/bulk", bulkEcho())

	r := newCLIRun(t)
	err := r.run(srv.URL, "-w", "guests", "add",
		"--name", "Ana", "--id", "g-1", "--channel", "email", "--contact", "ana@example.com",
		"--plus-one", "--tag", "family", "--tag", "vip", "--priority", "high", "--with-backup")
	if err != nil {
		t.Fatalf("add error = %v", err)
	}

	var req handler.BulkIssueRequest
	decodeBody(t, srv.last().Body, &req)
	if len(req.Guests) != 1 || !req.WithBackup {
		t.Fatalf("request = %+v", req)
	}
	g := req.Guests[0]
	if g.GuestID != "g-1" || g.Channel != "email" || !g.PlusOneAllowed || len(g.Tags) != 2 || g.Priority != "high" {
		t.Errorf("guest = %+v", g)
	}
	out := r.stdout.String()
	if !strings.Contains(out, "BACKUP_TOKEN") || !strings.Contains(out, "bak-Ana") {
		t.Errorf("wide output missing backup token:\n%s", out)
	}
}

func TestGuestsAdd_ReportsFailures(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("POST /admin/v1/tokens/bulk", service.IssueResult{
		Failures: []service.IssueFailure{{GuestID: "g-9", Name: "Ana", Message: "duplicate guest id"}},
	})

	r := newCLIRun(t)
	if err := r.run(srv.URL, "guests", "add", "--name", "Ana", "--id", "g-9"); err != nil {
		t.Fatalf("add error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), "duplicate guest id") {
		t.Errorf("stdout = %q", r.stdout.String())
	}
}

func TestToken_ValidateAndComplete(t *testing.T) {
	srv := newMockServer(t)
	now := time.Now()
	srv.reply("POST /v1/tokens/validate", handler.ValidateTokenResponse{
		Valid:  true,
		Reason: "ok",
		Guest:  &handler.GuestView{GuestID: "g-1", Name: "Ana", ExpiresAt: now.Add(time.Hour)},
	})
	srv.reply("POST /v1/tokens/complete", handler.CompleteTokenResponse{
		Guest:            &handler.GuestView{GuestID: "g-1", Name: "Ana", Used: true, CompletedAt: &now},
		AlreadyCompleted: true,
	})

	r := newCLIRun(t)
	if err := r.run(srv.URL, "token", "validate", "abc123"); err != nil {
		t.Fatalf("validate error = %v", err)
	}
	var req handler.TokenRequest
	decodeBody(t, srv.last().Body, &req)
	if req.Token != "abc123" {
		t.Errorf("token sent = %q", req.Token)
	}
	if !strings.Contains(r.stdout.String(), "g-1 (Ana)") {
		t.Errorf("validate output = %q", r.stdout.String())
	}

	r.stdout.Reset()
	if err := r.run(srv.URL, "token", "complete", "abc123"); err != nil {
		t.Fatalf("complete error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), "true") {
		t.Errorf("complete output = %q", r.stdout.String())
	}

	if err := r.run(srv.URL, "token", "validate"); err == nil {
		t.Error("validate without token expected error")
	}
}
