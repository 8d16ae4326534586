package command

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rsvpguard/internal/cli/output"
	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
)

// CampaignCommand returns the campaign subcommand group.
func CampaignCommand() *cli.Command {
	return &cli.Command{
		Name:  "campaign",
		Usage: "Show or update the invitation campaign",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the current campaign",
				Action: campaignShow,
			},
			{
				Name:  "set",
				Usage: "Create or replace the campaign",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "campaign id (kept when empty)"},
					&cli.StringFlag{Name: "name", Usage: "campaign name", Required: true},
					&cli.StringFlag{Name: "event-date", Usage: "event date, YYYY-MM-DD or RFC 3339", Required: true},
					&cli.DurationFlag{Name: "token-ttl", Usage: "token lifetime (server default when zero)"},
					&cli.StringSliceFlag{Name: "template", Usage: "message template as key=text (repeatable)"},
				},
				Action: campaignSet,
			},
		},
	}
}

func campaignShow(c *cli.Context) error {
	var res handler.CampaignResponse
	if err := call(c, http.MethodGet, "/admin/v1/campaign", nil, &res); err != nil {
		return err
	}
	return renderCampaign(c, res)
}

func campaignSet(c *cli.Context) error {
	date, err := parseEventDate(c.String("event-date"))
	if err != nil {
		return err
	}
	templates, err := parseTemplates(c.StringSlice("template"))
	if err != nil {
		return err
	}
	req := handler.CampaignRequest{
		ID:        c.String("id"),
		Name:      c.String("name"),
		EventDate: date,
		Templates: templates,
	}
	if ttl := c.Duration("token-ttl"); ttl > 0 {
		req.TokenTTL = ttl.String()
	}

	var res handler.CampaignResponse
	if err := call(c, http.MethodPut, "/admin/v1/campaign", req, &res); err != nil {
		return err
	}
	return renderCampaign(c, res)
}

func renderCampaign(c *cli.Context, res handler.CampaignResponse) error {
	return render(c, res, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("FIELD", "VALUE")
		t.AddRow("ID", res.ID)
		t.AddRow("Name", res.Name)
		t.AddRow("Event date", res.EventDate.Format("2006-01-02"))
		t.AddRow("Token TTL", res.TokenTTL)
		t.AddRow("Updated", formatTime(res.UpdatedAt))
		keys := make([]string, 0, len(res.Templates))
		for k := range res.Templates {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.AddRow("Template "+k, res.Templates[k])
		}
		return t
	})
}

func parseEventDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid event date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func parseTemplates(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid template %q: want key=text", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}
