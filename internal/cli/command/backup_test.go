package command

import (
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/rsvpguard/internal/backup"
	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
)

func sampleMeta() backup.Metadata {
	return backup.Metadata{
		Version:      backup.FormatVersion,
		ID:           "bk-20260901",
		CreatedAt:    time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC),
		DataTypes:    []backup.DataType{backup.DataCampaign, backup.DataGuests},
		RecordCounts: map[backup.DataType]int{backup.DataGuests: 120, backup.DataCampaign: 1},
		Checksum:     "sha256:abcd",
		Size:         2048,
		Compressed:   true,
	}
}

func TestBackupCreate(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("POST /admin/v1/backups", sampleMeta())

	r := newCLIRun(t)
	if err := r.run(srv.URL, "backup", "create", "--no-compress", "--types", "guests", "--types", "campaign"); err != nil {
		t.Fatalf("create error = %v", err)
	}
	var req handler.CreateBackupRequest
	decodeBody(t, srv.last().Body, &req)
	if req.Compress == nil || *req.Compress {
		t.Errorf("Compress = %v, want false", req.Compress)
	}
	if req.Encrypt != nil {
		t.Errorf("Encrypt = %v, want unset", *req.Encrypt)
	}
	if len(req.DataTypes) != 2 {
		t.Errorf("DataTypes = %v", req.DataTypes)
	}

	out := r.stdout.String()
	for _, want := range []string{"bk-20260901", "campaign,guests", "120", "sha256:abcd"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBackupList(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("GET /admin/v1/backups", backupListResponse{Backups: []backup.Metadata{sampleMeta()}, Count: 1})

	r := newCLIRun(t)
	if err := r.run(srv.URL, "backup", "list"); err != nil {
		t.Fatalf("list error = %v", err)
	}
	out := r.stdout.String()
	if !strings.Contains(out, "bk-20260901") || !strings.Contains(out, "121") {
		t.Errorf("list output = %q", out)
	}
}

func TestBackupPlanAndValidate(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("GET /admin/v1/backups/bk-1/plan", backup.RecoveryPlan{
		BackupID: "bk-1",
		Risks:    []string{"existing guests will be kept unless --overwrite is set"},
	})
	srv.reply("POST /admin/v1/backups/bk-1/validate", backup.Validation{IsValid: true, ChecksumMatch: true, StructureValid: true, DataIntegrity: true})
	srv.reply("POST /admin/v1/backups/bk-2/validate", backup.Validation{Errors: []string{"checksum mismatch"}})

	r := newCLIRun(t)
	if err := r.run(srv.URL, "backup", "plan", "bk-1"); err != nil {
		t.Fatalf("plan error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), "risk: existing guests") {
		t.Errorf("plan output = %q", r.stdout.String())
	}

	if err := r.run(srv.URL, "backup", "validate", "bk-1"); err != nil {
		t.Errorf("validate bk-1 error = %v", err)
	}
	r.stdout.Reset()
	if err := r.run(srv.URL, "backup", "validate", "bk-2"); err == nil {
		t.Error("validate bk-2 expected error")
	}
	if !strings.Contains(r.stdout.String(), "checksum mismatch") {
		t.Errorf("validate output = %q", r.stdout.String())
	}

	if err := r.run(srv.URL, "backup", "show"); err == nil {
		t.Error("show without id expected error")
	}
}

func TestBackupRestore_Confirmation(t *testing.T) {
	tests := []struct {
		name      string
		stdin     string
		args      []string
		wantCalls int
	}{
		{name: "declined", stdin: "n\n", args: []string{"bk-1"}, wantCalls: 0},
		{name: "no input", stdin: "", args: []string{"bk-1"}, wantCalls: 0},
		{name: "accepted", stdin: "yes\n", args: []string{"bk-1"}, wantCalls: 1},
		{name: "yes flag", args: []string{"--yes", "bk-1"}, wantCalls: 1},
		{name: "dry run skips prompt", args: []string{"--dry-run", "bk-1"}, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newMockServer(t)
			srv.reply("POST /admin/v1/backups/bk-1/restore", backup.OperationStatus{
				ID: "job-1", BackupID: "bk-1", Status: backup.StatusCompleted,
			})
			r := newCLIRun(t)
			r.stdin = tt.stdin
			if err := r.run(srv.URL, append([]string{"backup", "restore"}, tt.args...)...); err != nil {
				t.Fatalf("restore error = %v", err)
			}
			if got := srv.count("POST", "/admin/v1/backups/bk-1/restore"); got != tt.wantCalls {
				t.Errorf("restore calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestBackupRestore_RequestFields(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("POST /admin/v1/backups/bk-1/restore", backup.OperationStatus{ID: "job-1", Status: backup.StatusCompleted, DryRun: true})

	r := newCLIRun(t)
	err := r.run(srv.URL, "backup", "restore", "--dry-run", "--overwrite", "--skip-checksum", "--types", "guests", "bk-1")
	if err != nil {
		t.Fatalf("restore error = %v", err)
	}
	var req handler.RestoreRequest
	decodeBody(t, srv.last().Body, &req)
	if !req.DryRun || !req.Overwrite || req.ValidateChecksum == nil || *req.ValidateChecksum {
		t.Errorf("request = %+v", req)
	}
	if len(req.SelectiveTypes) != 1 || req.SelectiveTypes[0] != "guests" {
		t.Errorf("SelectiveTypes = %v", req.SelectiveTypes)
	}
	if !strings.Contains(r.stdout.String(), "(dry run)") {
		t.Errorf("stdout = %q", r.stdout.String())
	}
}

func TestBackupRestore_WaitPollsUntilDone(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("POST /admin/v1/backups/bk-1/restore", backup.OperationStatus{ID: "job-7", Status: backup.StatusRunning})
	var polls atomic.Int32
	srv.handle("GET /admin/v1/restores/job-7", func(w http.ResponseWriter, _ *http.Request) {
		st := backup.OperationStatus{ID: "job-7", Status: backup.StatusRunning, StepsCompleted: 1, TotalSteps: 3}
		if polls.Add(1) >= 3 {
			st.Status = backup.StatusCompleted
			st.StepsCompleted = 3
		}
		dataEnvelope(w, http.StatusOK, st)
	})

	r := newCLIRun(t)
	err := r.run(srv.URL, "backup", "restore", "--yes", "--wait", "--poll-interval", "10ms", "bk-1")
	if err != nil {
		t.Fatalf("restore error = %v", err)
	}
	if polls.Load() < 3 {
		t.Errorf("polls = %d, want >= 3", polls.Load())
	}
	if !strings.Contains(r.stdout.String(), "completed") {
		t.Errorf("stdout = %q", r.stdout.String())
	}
}

func TestBackupRestore_Failed(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("POST /admin/v1/backups/bk-1/restore", backup.OperationStatus{
		ID: "job-2", Status: backup.StatusFailed, Errors: []string{"decrypt: wrong key"},
	})

	r := newCLIRun(t)
	err := r.run(srv.URL, "backup", "restore", "--yes", "bk-1")
	if err == nil || !strings.Contains(err.Error(), "job-2 failed") {
		t.Fatalf("restore error = %v, want failure", err)
	}
	if !strings.Contains(r.stdout.String(), "decrypt: wrong key") {
		t.Errorf("stdout = %q", r.stdout.String())
	}
}

func TestBackupStatusCancelCleanup(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("GET /admin/v1/restores", operationList{
		Operations: []backup.OperationStatus{{ID: "job-1", BackupID: "bk-1", Status: backup.StatusRunning, TotalSteps: 3}},
		Count:      1,
	})
	srv.reply("DELETE /admin/v1/restores/job-1", backup.OperationStatus{ID: "job-1", Status: backup.StatusCancelled})
	srv.reply("POST /admin/v1/backups/cleanup", backup.CleanupResult{Deleted: 2, ReclaimedBytes: 4096})

	r := newCLIRun(t)
	if err := r.run(srv.URL, "backup", "status"); err != nil {
		t.Fatalf("status error = %v", err)
	}
	if out := r.stdout.String(); !strings.Contains(out, "job-1") || !strings.Contains(out, "0/3") {
		t.Errorf("status output = %q", out)
	}

	r.stdout.Reset()
	if err := r.run(srv.URL, "backup", "cancel", "job-1"); err != nil {
		t.Fatalf("cancel error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), "cancelled") {
		t.Errorf("cancel output = %q", r.stdout.String())
	}

	r.stdout.Reset()
	if err := r.run(srv.URL, "backup", "cleanup", "--retention-days", "14"); err != nil {
		t.Fatalf("cleanup error = %v", err)
	}
	var req handler.CleanupBackupsRequest
	decodeBody(t, srv.last().Body, &req)
	if req.RetentionDays != 14 {
		t.Errorf("RetentionDays = %d", req.RetentionDays)
	}
	if !strings.Contains(r.stdout.String(), "Deleted 2 backups") {
		t.Errorf("cleanup output = %q", r.stdout.String())
	}
}
