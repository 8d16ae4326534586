package command

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rsvpguard/internal/cli/output"
	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/security"
	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
)

// SecurityCommand returns the security subcommand group.
func SecurityCommand() *cli.Command {
	return &cli.Command{
		Name:    "security",
		Aliases: []string{"sec"},
		Usage:   "Security events and the blocklist",
		Subcommands: []*cli.Command{
			{
				Name:  "summary",
				Usage: "Summarize recent security events",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "hours", Usage: "window in hours", Value: handler.DefaultSummaryHours},
				},
				Action: securitySummary,
			},
			{
				Name:  "events",
				Usage: "List security events",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "since", Usage: "duration (1h) or RFC 3339 time"},
					&cli.StringSliceFlag{Name: "type", Usage: "event type (repeatable)"},
					&cli.StringFlag{Name: "identifier", Usage: "source identifier"},
					&cli.StringFlag{Name: "min-severity", Usage: "low, medium, high or critical"},
					&cli.IntFlag{Name: "limit", Usage: "newest N events", Value: handler.DefaultEventsLimit},
				},
				Action: securityEvents,
			},
			{
				Name:   "blocklist",
				Usage:  "List blocked identifiers",
				Action: securityBlocklist,
			},
			{
				Name:      "block",
				Usage:     "Block an identifier",
				ArgsUsage: "IDENTIFIER",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reason", Usage: "why it is blocked", Value: "manual"},
					&cli.DurationFlag{Name: "ttl", Usage: "block duration (permanent when zero)"},
				},
				Action: securityBlock,
			},
			{
				Name:      "unblock",
				Usage:     "Remove an identifier from the blocklist",
				ArgsUsage: "IDENTIFIER",
				Action:    securityUnblock,
			},
		},
	}
}

func securitySummary(c *cli.Context) error {
	var sum security.Summary
	path := "/admin/v1/security/summary?hours=" + strconv.Itoa(c.Int("hours"))
	if err := call(c, http.MethodGet, path, nil, &sum); err != nil {
		return err
	}

	err := render(c, sum, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("TYPE", "COUNT")
		for _, row := range sortedCounts(sum.ByType) {
			t.AddRow(row.key, strconv.Itoa(row.n))
		}
		t.AddRow("total", strconv.Itoa(sum.Total))
		return t
	})
	if err != nil || ParseGlobalFlags(c).Output != output.FormatTable {
		return err
	}

	w := outWriter(c)
	if len(sum.TopOffenders) > 0 {
		fmt.Fprintln(w, "\nTop offenders:")
		t := &output.Table{}
		t.SetHeaders("IDENTIFIER", "EVENTS", "HIGHEST")
		for _, o := range sum.TopOffenders {
			t.AddRow(o.Identifier, strconv.Itoa(o.Events), o.HighestSeverity.String())
		}
		_ = t.Render(w)
	}
	if len(sum.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range sum.Recommendations {
			fmt.Fprintf(w, "  [%s] %s\n", r.Priority, r.Message)
		}
	}
	return nil
}

func securityEvents(c *cli.Context) error {
	q := url.Values{}
	if v := c.String("since"); v != "" {
		q.Set("since", v)
	}
	for _, typ := range c.StringSlice("type") {
		q.Add("type", typ)
	}
	if v := c.String("identifier"); v != "" {
		q.Set("identifier", v)
	}
	if v := c.String("min-severity"); v != "" {
		if _, err := domain.ParseSeverity(v); err != nil {
			return err
		}
		q.Set("min_severity", v)
	}
	if v := c.Int("limit"); v > 0 {
		q.Set("limit", strconv.Itoa(v))
	}

	path := "/admin/v1/security/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res handler.EventsResponse
	if err := call(c, http.MethodGet, path, nil, &res); err != nil {
		return err
	}

	return render(c, res, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("TIME", "TYPE", "SEVERITY", "IDENTIFIER", "DETAIL")
		for _, ev := range res.Events {
			t.AddRow(formatTime(ev.Timestamp), string(ev.Type), ev.Severity.String(), orDash(ev.Identifier), eventDetail(ev))
		}
		return t
	})
}

func eventDetail(ev domain.SecurityEvent) string {
	if len(ev.Metadata) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ev.Metadata))
	for _, row := range sortedStrings(ev.Metadata) {
		parts = append(parts, row[0]+"="+row[1])
	}
	return strings.Join(parts, " ")
}

type blocklistResponse struct {
	Entries []domain.BlockEntry `json:"entries"`
	Count   int                 `json:"count"`
}

// blockRow is the table layout of a block list entry. Wide mode adds the
// remaining lifetime.
type blockRow struct {
	Identifier string    `json:"identifier"`
	Reason     string    `json:"reason"`
	Blocked    time.Time `json:"blocked"`
	Expires    string    `json:"expires"`
	Remaining  string    `json:"remaining" table:"wide"`
	Auto       bool      `json:"auto"`
}

func blockRows(entries []domain.BlockEntry, now time.Time) []blockRow {
	rows := make([]blockRow, 0, len(entries))
	for _, e := range entries {
		row := blockRow{
			Identifier: e.Identifier,
			Reason:     e.Reason,
			Blocked:    e.BlockedAt,
			Expires:    "never",
			Remaining:  "-",
			Auto:       e.Automatic,
		}
		if !e.ExpiresAt.IsZero() {
			row.Expires = formatTime(e.ExpiresAt)
			row.Remaining = e.ExpiresAt.Sub(now).Round(time.Second).String()
		}
		rows = append(rows, row)
	}
	return rows
}

func securityBlocklist(c *cli.Context) error {
	var res blocklistResponse
	if err := call(c, http.MethodGet, "/admin/v1/security/blocklist", nil, &res); err != nil {
		return err
	}
	if f := ParseGlobalFlags(c).Output; f == output.FormatTable || f == "" {
		if len(res.Entries) == 0 {
			fmt.Fprintln(outWriter(c), "No blocked identifiers.")
			return nil
		}
		return render(c, blockRows(res.Entries, time.Now()), nil)
	}
	return render(c, res, nil)
}

func securityBlock(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("identifier required")
	}
	req := handler.BlockRequest{Reason: c.String("reason")}
	if ttl := c.Duration("ttl"); ttl > 0 {
		req.TTL = ttl.String()
	}
	var entry domain.BlockEntry
	if err := call(c, http.MethodPost, "/admin/v1/security/blocklist/"+url.PathEscape(id), req, &entry); err != nil {
		return err
	}
	return render(c, entry, func() *output.Table {
		t := &output.Table{}
		expires := "never"
		if !entry.ExpiresAt.IsZero() {
			expires = formatTime(entry.ExpiresAt)
		}
		t.AddRow("Blocked "+entry.Identifier, "until "+expires)
		return t
	})
}

func securityUnblock(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("identifier required")
	}
	var res handler.UnblockResponse
	if err := call(c, http.MethodDelete, "/admin/v1/security/blocklist/"+url.PathEscape(id), nil, &res); err != nil {
		return err
	}
	return render(c, res, func() *output.Table {
		t := &output.Table{}
		if res.Removed {
			t.AddRow("Unblocked " + res.Identifier)
		} else {
			t.AddRow(res.Identifier + " was not blocked")
		}
		return t
	})
}

type countRow struct {
	key string
	n   int
}

// sortedCounts orders by count descending, then by key.
func sortedCounts[K ~string](m map[K]int) []countRow {
	rows := make([]countRow, 0, len(m))
	for k, n := range m {
		rows = append(rows, countRow{key: string(k), n: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].n != rows[j].n {
			return rows[i].n > rows[j].n
		}
		return rows[i].key < rows[j].key
	})
	return rows
}

func sortedStrings(m map[string]string) [][2]string {
	out := make([][2]string, 0, len(m))
	for k, v := range m {
		out = append(out, [2]string{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
