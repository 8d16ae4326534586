package command

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rsvpguard/internal/cli/output"
	"github.com/yndnr/rsvpguard/internal/infra/buildinfo"
	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server status and health",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show server status summary",
				Action: systemStatus,
			},
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: systemProbe("/health", "healthy"),
			},
			{
				Name:   "ready",
				Usage:  "Check server readiness (storage reachable)",
				Action: systemProbe("/ready", "ready"),
			},
			{
				Name:   "version",
				Usage:  "Show CLI and server versions",
				Action: systemVersion,
			},
		},
	}
}

func systemStatus(c *cli.Context) error {
	var st handler.StatusResponse
	if err := call(c, http.MethodGet, "/admin/v1/status", nil, &st); err != nil {
		return err
	}

	return render(c, st, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("FIELD", "VALUE")
		t.AddRow("Version", st.Version)
		t.AddRow("Commit", st.Commit)
		t.AddRow("Started", formatTime(st.StartedAt))
		t.AddRow("Uptime", (time.Duration(st.UptimeSeconds) * time.Second).String())
		t.AddRow("Guests", strconv.Itoa(st.Guests))
		t.AddRow("Events", fmt.Sprintf("%d / %d (evicted %d)", st.Events, st.EventCapacity, st.EventsEvicted))
		t.AddRow("Blocked", strconv.Itoa(st.BlockedCount))
		t.AddRow("Recovery jobs", strconv.Itoa(st.RecoveryJobs))
		t.AddRow("Campaign", orDash(st.CampaignName))
		t.AddRow("Event day", orDash(st.CampaignEventDay))
		return t
	})
}

type probeResult struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func systemProbe(path, want string) cli.ActionFunc {
	return func(c *cli.Context) error {
		var result probeResult
		if err := call(c, http.MethodGet, path, nil, &result); err != nil {
			return fmt.Errorf("server is not %s: %w", want, err)
		}

		client, err := EnsureConnected(c)
		if err != nil {
			return err
		}
		return render(c, result, func() *output.Table {
			t := &output.Table{}
			t.AddRow("✓ Server is "+result.Status, client.BaseURL())
			return t
		})
	}
}

type versionInfo struct {
	CLI    buildinfo.Info `json:"cli"`
	Server string         `json:"server,omitempty"`
	Commit string         `json:"server_commit,omitempty"`
}

func systemVersion(c *cli.Context) error {
	info := versionInfo{CLI: buildinfo.Get()}
	var st handler.StatusResponse
	if err := call(c, http.MethodGet, "/admin/v1/status", nil, &st); err == nil {
		info.Server = st.Version
		info.Commit = st.Commit
	} else if ParseGlobalFlags(c).Verbose {
		fmt.Fprintf(errWriter(c), "server version unavailable: %v\n", err)
	}

	return render(c, info, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("COMPONENT", "VERSION")
		t.AddRow("cli", buildinfo.String())
		t.AddRow("server", orDash(info.Server))
		return t
	})
}
