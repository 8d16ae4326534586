package command

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/rsvpguard/internal/cli/output"
	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
)

// DefaultImportBatch is how many guests one bulk request carries.
const DefaultImportBatch = 500

// GuestsCommand returns the guests subcommand group.
func GuestsCommand() *cli.Command {
	return &cli.Command{
		Name:  "guests",
		Usage: "Issue invitation tokens",
		Subcommands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Issue tokens for every guest in a YAML or JSON list",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "guests per request",
						Value: DefaultImportBatch,
					},
					&cli.BoolFlag{
						Name:  "with-backup",
						Usage: "also issue a backup token per guest",
					},
					&cli.StringFlag{
						Name:  "tokens-out",
						Usage: "write issued tokens to this CSV file",
					},
				},
				Action: guestsImport,
			},
			{
				Name:  "add",
				Usage: "Issue a token for one guest",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "guest name", Required: true},
					&cli.StringFlag{Name: "id", Usage: "guest id (generated when empty)"},
					&cli.StringFlag{Name: "channel", Usage: "contact channel: email, phone, whatsapp"},
					&cli.StringFlag{Name: "contact", Usage: "contact address"},
					&cli.BoolFlag{Name: "plus-one", Usage: "allow a plus-one"},
					&cli.StringSliceFlag{Name: "tag", Usage: "tag (repeatable)"},
					&cli.StringFlag{Name: "priority", Usage: "high, normal or low"},
					&cli.BoolFlag{Name: "with-backup", Usage: "also issue a backup token"},
				},
				Action: guestsAdd,
			},
		},
	}
}

// guestFile accepts either a bare list or {guests: [...]}.
type guestFile struct {
	Guests []service.GuestInput `yaml:"guests" json:"guests"`
}

// LoadGuests reads guests from a .yaml, .yml or .json file. JSON is a
// subset of YAML, so one decoder serves both.
func LoadGuests(path string) ([]service.GuestInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("%s: unsupported guest list format (want .yaml, .yml or .json)", path)
	}

	var list []service.GuestInput
	if err := yaml.Unmarshal(data, &list); err != nil {
		var wrapped guestFile
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		list = wrapped.Guests
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: no guests", path)
	}
	return list, nil
}

func guestsImport(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("guest list file required")
	}
	guests, err := LoadGuests(path)
	if err != nil {
		return err
	}

	batch := c.Int("batch-size")
	if batch <= 0 || batch > handler.MaxBulkGuests {
		return fmt.Errorf("batch-size must be between 1 and %d", handler.MaxBulkGuests)
	}

	bar := output.NewCounter(errWriter(c), "Issuing", int64(len(guests)))
	var total service.IssueResult
	for start := 0; start < len(guests); start += batch {
		end := min(start+batch, len(guests))
		res, err := issue(c, guests[start:end], c.Bool("with-backup"))
		if err != nil {
			fmt.Fprintln(errWriter(c))
			if len(total.Issued) > 0 {
				PrintError("%d guests were issued before the failure", len(total.Issued))
				_ = writeTokens(c.String("tokens-out"), total.Issued)
			}
			return err
		}
		total.Issued = append(total.Issued, res.Issued...)
		total.Failures = append(total.Failures, res.Failures...)
		total.CollisionRetries += res.CollisionRetries
		bar.Increment(int64(end - start))
	}
	bar.Finish()

	if err := writeTokens(c.String("tokens-out"), total.Issued); err != nil {
		return err
	}
	return renderIssue(c, total)
}

func guestsAdd(c *cli.Context) error {
	in := service.GuestInput{
		GuestID:        c.String("id"),
		Name:           c.String("name"),
		Channel:        domain.ContactChannel(c.String("channel")),
		Contact:        c.String("contact"),
		PlusOneAllowed: c.Bool("plus-one"),
		Tags:           c.StringSlice("tag"),
		Priority:       domain.Priority(c.String("priority")),
	}
	res, err := issue(c, []service.GuestInput{in}, c.Bool("with-backup"))
	if err != nil {
		return err
	}
	return renderIssue(c, *res)
}

func issue(c *cli.Context, guests []service.GuestInput, withBackup bool) (*service.IssueResult, error) {
	var res service.IssueResult
	req := handler.BulkIssueRequest{Guests: guests, WithBackup: withBackup}
	if err := call(c, http.MethodPost, "/admin/v1/tokens/bulk", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func renderIssue(c *cli.Context, res service.IssueResult) error {
	err := render(c, res, func() *output.Table {
		t := &output.Table{}
		if ParseGlobalFlags(c).Wide {
			t.SetHeaders("GUEST_ID", "NAME", "TOKEN", "BACKUP_TOKEN", "EXPIRES")
		} else {
			t.SetHeaders("GUEST_ID", "NAME", "TOKEN", "EXPIRES")
		}
		for _, g := range res.Issued {
			if ParseGlobalFlags(c).Wide {
				t.AddRow(g.GuestID, g.Name, g.Token, orDash(g.BackupToken), formatTime(g.ExpiresAt))
			} else {
				t.AddRow(g.GuestID, g.Name, g.Token, formatTime(g.ExpiresAt))
			}
		}
		return t
	})
	if err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output == output.FormatTable || ParseGlobalFlags(c).Output == "" {
		fmt.Fprintf(outWriter(c), "\nIssued %d, failed %d\n", len(res.Issued), len(res.Failures))
		for _, f := range res.Failures {
			fmt.Fprintf(outWriter(c), "  - %s (%s): %s\n", orDash(f.GuestID), orDash(f.Name), f.Message)
		}
	}
	return nil
}

// writeTokens writes issued tokens as CSV. An empty path is a no-op.
func writeTokens(path string, issued []service.IssuedGuest) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"guest_id", "name", "token", "backup_token", "expires_at"})
	for _, g := range issued {
		_ = w.Write([]string{g.GuestID, g.Name, g.Token, g.BackupToken, g.ExpiresAt.UTC().Format(time.RFC3339)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// TokenCommand exercises the public token endpoints, mainly for support
// staff checking a guest's link.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Check or complete a guest token",
		Subcommands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate a token as the invitation page would",
				ArgsUsage: "TOKEN",
				Action:    tokenValidate,
			},
			{
				Name:      "complete",
				Usage:     "Record a completed RSVP for a token",
				ArgsUsage: "TOKEN",
				Action:    tokenComplete,
			},
		},
	}
}

func tokenValidate(c *cli.Context) error {
	tok := c.Args().First()
	if tok == "" {
		return errors.New("token required")
	}
	var res handler.ValidateTokenResponse
	if err := call(c, http.MethodPost, "/v1/tokens/validate", handler.TokenRequest{Token: tok}, &res); err != nil {
		return err
	}
	return render(c, res, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("FIELD", "VALUE")
		t.AddRow("Valid", fmt.Sprint(res.Valid))
		t.AddRow("Reason", orDash(string(res.Reason)))
		if res.Guest != nil {
			t.AddRow("Guest", res.Guest.GuestID+" ("+res.Guest.Name+")")
			t.AddRow("Expires", formatTime(res.Guest.ExpiresAt))
			t.AddRow("Used", fmt.Sprint(res.Guest.Used))
		}
		return t
	})
}

func tokenComplete(c *cli.Context) error {
	tok := c.Args().First()
	if tok == "" {
		return errors.New("token required")
	}
	var res handler.CompleteTokenResponse
	if err := call(c, http.MethodPost, "/v1/tokens/complete", handler.TokenRequest{Token: tok}, &res); err != nil {
		return err
	}
	return render(c, res, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("GUEST_ID", "NAME", "COMPLETED", "ALREADY_COMPLETED")
		if res.Guest != nil {
			completed := "-"
			if res.Guest.CompletedAt != nil {
				completed = formatTime(*res.Guest.CompletedAt)
			}
			t.AddRow(res.Guest.GuestID, res.Guest.Name, completed, fmt.Sprint(res.AlreadyCompleted))
		}
		return t
	})
}
