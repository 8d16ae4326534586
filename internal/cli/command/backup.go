package command

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rsvpguard/internal/backup"
	"github.com/yndnr/rsvpguard/internal/cli/output"
	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
)

// BackupCommand returns the backup subcommand group.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Create, inspect and restore backups",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a backup",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "encrypt", Usage: "encrypt with the server's backup key"},
					&cli.BoolFlag{Name: "no-compress", Usage: "store uncompressed"},
					&cli.StringSliceFlag{Name: "types", Usage: "data types to include (default all)"},
				},
				Action: backupCreate,
			},
			{
				Name:   "list",
				Usage:  "List backups, newest first",
				Action: backupList,
			},
			{
				Name:      "show",
				Usage:     "Show one backup's metadata",
				ArgsUsage: "BACKUP_ID",
				Action:    backupShow,
			},
			{
				Name:      "plan",
				Usage:     "Show the recovery plan for a backup",
				ArgsUsage: "BACKUP_ID",
				Action:    backupPlan,
			},
			{
				Name:      "validate",
				Usage:     "Check a backup's checksum and structure",
				ArgsUsage: "BACKUP_ID",
				Action:    backupValidate,
			},
			{
				Name:      "restore",
				Usage:     "Restore a backup",
				ArgsUsage: "BACKUP_ID",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "types", Usage: "restore only these data types"},
					&cli.BoolFlag{Name: "dry-run", Usage: "report what would be restored"},
					&cli.BoolFlag{Name: "overwrite", Usage: "replace existing records"},
					&cli.BoolFlag{Name: "skip-checksum", Usage: "do not verify the checksum first"},
					&cli.BoolFlag{Name: "wait", Usage: "poll until the restore finishes"},
					&cli.DurationFlag{Name: "poll-interval", Usage: "status poll interval with --wait", Value: time.Second},
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
				},
				Action: backupRestore,
			},
			{
				Name:      "status",
				Usage:     "Show a restore job, or list all jobs",
				ArgsUsage: "[JOB_ID]",
				Action:    backupStatus,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a running restore",
				ArgsUsage: "JOB_ID",
				Action:    backupCancel,
			},
			{
				Name:  "cleanup",
				Usage: "Delete backups older than the retention period",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "retention-days", Usage: "override the server's retention"},
				},
				Action: backupCleanup,
			},
		},
	}
}

func backupCreate(c *cli.Context) error {
	req := handler.CreateBackupRequest{DataTypes: c.StringSlice("types")}
	if c.IsSet("encrypt") {
		v := c.Bool("encrypt")
		req.Encrypt = &v
	}
	if c.Bool("no-compress") {
		v := false
		req.Compress = &v
	}

	var meta backup.Metadata
	if err := call(c, http.MethodPost, "/admin/v1/backups", req, &meta); err != nil {
		return err
	}
	return renderBackupMeta(c, meta)
}

type backupListResponse struct {
	Backups []backup.Metadata `json:"backups"`
	Count   int               `json:"count"`
}

func backupList(c *cli.Context) error {
	var res backupListResponse
	if err := call(c, http.MethodGet, "/admin/v1/backups", nil, &res); err != nil {
		return err
	}
	return render(c, res, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("ID", "CREATED", "TYPES", "RECORDS", "SIZE", "ENCRYPTED")
		for _, m := range res.Backups {
			t.AddRow(m.ID, formatTime(m.CreatedAt), joinTypes(m.DataTypes), strconv.Itoa(totalRecords(m.RecordCounts)),
				strconv.FormatInt(m.Size, 10), strconv.FormatBool(m.Encryption != nil))
		}
		return t
	})
}

func backupShow(c *cli.Context) error {
	id, err := backupID(c)
	if err != nil {
		return err
	}
	var meta backup.Metadata
	if err := call(c, http.MethodGet, "/admin/v1/backups/"+id, nil, &meta); err != nil {
		return err
	}
	return renderBackupMeta(c, meta)
}

func renderBackupMeta(c *cli.Context, m backup.Metadata) error {
	return render(c, m, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("FIELD", "VALUE")
		t.AddRow("ID", m.ID)
		t.AddRow("Created", formatTime(m.CreatedAt))
		t.AddRow("Types", joinTypes(m.DataTypes))
		for _, dt := range sortedTypes(m.RecordCounts) {
			t.AddRow("  "+string(dt), strconv.Itoa(m.RecordCounts[dt]))
		}
		t.AddRow("Size", strconv.FormatInt(m.Size, 10))
		t.AddRow("Compressed", strconv.FormatBool(m.Compressed))
		enc := "no"
		if m.Encryption != nil {
			enc = string(m.Encryption.Algorithm)
		}
		t.AddRow("Encryption", enc)
		t.AddRow("Checksum", m.Checksum)
		return t
	})
}

func backupPlan(c *cli.Context) error {
	id, err := backupID(c)
	if err != nil {
		return err
	}
	var plan backup.RecoveryPlan
	if err := call(c, http.MethodGet, "/admin/v1/backups/"+id+"/plan", nil, &plan); err != nil {
		return err
	}
	err = render(c, plan, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("STEP", "RECORDS", "ESTIMATED", "DESCRIPTION")
		for _, s := range plan.Steps {
			t.AddRow(s.Name, strconv.Itoa(s.Records), s.Estimated.String(), s.Description)
		}
		t.AddRow("total", "", plan.TotalEstimatedTime.String(), "")
		return t
	})
	if err != nil || ParseGlobalFlags(c).Output != output.FormatTable {
		return err
	}
	for _, r := range plan.Risks {
		fmt.Fprintf(outWriter(c), "risk: %s\n", r)
	}
	return nil
}

func backupValidate(c *cli.Context) error {
	id, err := backupID(c)
	if err != nil {
		return err
	}
	var v backup.Validation
	if err := call(c, http.MethodPost, "/admin/v1/backups/"+id+"/validate", nil, &v); err != nil {
		return err
	}
	err = render(c, v, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("CHECK", "RESULT")
		t.AddRow("valid", strconv.FormatBool(v.IsValid))
		t.AddRow("checksum", strconv.FormatBool(v.ChecksumMatch))
		t.AddRow("structure", strconv.FormatBool(v.StructureValid))
		t.AddRow("integrity", strconv.FormatBool(v.DataIntegrity))
		for _, w := range v.Warnings {
			t.AddRow("warning", w)
		}
		for _, e := range v.Errors {
			t.AddRow("error", e)
		}
		return t
	})
	if err != nil {
		return err
	}
	if !v.IsValid {
		return fmt.Errorf("backup %s failed validation", id)
	}
	return nil
}

func backupRestore(c *cli.Context) error {
	id, err := backupID(c)
	if err != nil {
		return err
	}
	dryRun := c.Bool("dry-run")
	if !dryRun && !c.Bool("yes") {
		ok, err := confirm(c, fmt.Sprintf("Restore backup %s into the running server?", id))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(outWriter(c), "Aborted")
			return nil
		}
	}

	req := handler.RestoreRequest{
		SelectiveTypes: c.StringSlice("types"),
		DryRun:         dryRun,
		Overwrite:      c.Bool("overwrite"),
	}
	if c.Bool("skip-checksum") {
		v := false
		req.ValidateChecksum = &v
	}

	var st backup.OperationStatus
	if err := call(c, http.MethodPost, "/admin/v1/backups/"+id+"/restore", req, &st); err != nil {
		return err
	}
	if c.Bool("wait") && !st.Status.Terminal() {
		if st, err = waitRestore(c, st.ID, c.Duration("poll-interval")); err != nil {
			return err
		}
	}
	if err := renderOperation(c, st); err != nil {
		return err
	}
	if st.Status == backup.StatusFailed {
		return fmt.Errorf("restore %s failed", st.ID)
	}
	return nil
}

// waitRestore polls a job until it reaches a terminal state.
func waitRestore(c *cli.Context, job string, interval time.Duration) (backup.OperationStatus, error) {
	if interval <= 0 {
		interval = time.Second
	}
	sp := output.NewSpinner(errWriter(c), "Restoring "+job)
	sp.Start()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		var st backup.OperationStatus
		if err := call(c, http.MethodGet, "/admin/v1/restores/"+url.PathEscape(job), nil, &st); err != nil {
			sp.Fail("status poll failed")
			return st, err
		}
		if st.Status.Terminal() {
			if st.Status == backup.StatusCompleted {
				sp.Success(fmt.Sprintf("Restore %s %s", job, st.Status))
			} else {
				sp.Fail(fmt.Sprintf("Restore %s %s", job, st.Status))
			}
			return st, nil
		}
		sp.SetMessage(fmt.Sprintf("Restoring %s: step %d/%d %s", job, st.StepsCompleted, st.TotalSteps, st.CurrentStep))

		select {
		case <-c.Context.Done():
			sp.Stop()
			return st, c.Context.Err()
		case <-ticker.C:
		}
	}
}

type operationList struct {
	Operations []backup.OperationStatus `json:"operations"`
	Count      int                      `json:"count"`
}

func backupStatus(c *cli.Context) error {
	job := c.Args().First()
	if job == "" {
		var res operationList
		if err := call(c, http.MethodGet, "/admin/v1/restores", nil, &res); err != nil {
			return err
		}
		return render(c, res, func() *output.Table {
			t := &output.Table{}
			t.SetHeaders("JOB", "BACKUP", "STATUS", "STEPS", "DRY_RUN", "STARTED")
			for _, op := range res.Operations {
				t.AddRow(op.ID, op.BackupID, string(op.Status),
					fmt.Sprintf("%d/%d", op.StepsCompleted, op.TotalSteps),
					strconv.FormatBool(op.DryRun), formatTime(op.StartedAt))
			}
			return t
		})
	}

	var st backup.OperationStatus
	if err := call(c, http.MethodGet, "/admin/v1/restores/"+url.PathEscape(job), nil, &st); err != nil {
		return err
	}
	return renderOperation(c, st)
}

func backupCancel(c *cli.Context) error {
	job := c.Args().First()
	if job == "" {
		return errors.New("job id required")
	}
	var st backup.OperationStatus
	if err := call(c, http.MethodDelete, "/admin/v1/restores/"+url.PathEscape(job), nil, &st); err != nil {
		return err
	}
	return renderOperation(c, st)
}

func renderOperation(c *cli.Context, st backup.OperationStatus) error {
	return render(c, st, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("STEP", "STATUS", "RECORDS", "ERROR")
		for _, s := range st.Steps {
			t.AddRow(s.Name, string(s.Status), strconv.Itoa(s.Records), orDash(s.Error))
		}
		label := string(st.Status)
		if st.DryRun {
			label += " (dry run)"
		}
		t.AddRow("job "+st.ID, label, strconv.Itoa(totalRecords(st.RecoveredCounts)), strings.Join(st.Errors, "; "))
		return t
	})
}

func backupCleanup(c *cli.Context) error {
	req := handler.CleanupBackupsRequest{RetentionDays: c.Int("retention-days")}
	var res backup.CleanupResult
	if err := call(c, http.MethodPost, "/admin/v1/backups/cleanup", req, &res); err != nil {
		return err
	}
	return render(c, res, func() *output.Table {
		t := &output.Table{}
		t.AddRow(fmt.Sprintf("Deleted %d backups, reclaimed %d bytes", res.Deleted, res.ReclaimedBytes))
		return t
	})
}

func backupID(c *cli.Context) (string, error) {
	id := c.Args().First()
	if id == "" {
		return "", errors.New("backup id required")
	}
	return url.PathEscape(id), nil
}

// confirm asks a yes/no question on the app's reader.
func confirm(c *cli.Context, question string) (bool, error) {
	fmt.Fprintf(outWriter(c), "%s [y/N] ", question)
	line, err := bufio.NewReader(readerOrStdin(c)).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func joinTypes(types []backup.DataType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return orDash(strings.Join(parts, ","))
}

func sortedTypes(m map[backup.DataType]int) []backup.DataType {
	out := make([]backup.DataType, 0, len(m))
	for dt := range m {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func totalRecords(m map[backup.DataType]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
