package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rsvpguard/internal/cli/config"
	"github.com/yndnr/rsvpguard/internal/cli/connection"
	"github.com/yndnr/rsvpguard/internal/cli/output"
	"github.com/yndnr/rsvpguard/internal/infra/buildinfo"
)

const connMgrKey = "connMgr"

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:    "rsvpguard-cli",
		Usage:   "rsvpguard command-line administration tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ConnectCommand(),
			DisconnectCommand(),
			UseCommand(),
			SystemCommand(),
			GuestsCommand(),
			TokenCommand(),
			CampaignCommand(),
			SecurityCommand(),
			BackupCommand(),
			ConfigCommand(),
			ShellCommand(),
		},
		Before: before,
		// Templates may contain commas; slice flags are repeated instead.
		DisableSliceFlagSeparator: true,
	}
	return app
}

// before loads the CLI config once per process. The shell re-enters Run
// for every line and keeps the manager it already has.
func before(c *cli.Context) error {
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	if _, ok := c.App.Metadata[connMgrKey].(*connection.Manager); ok {
		return nil
	}
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	c.App.Metadata[connMgrKey] = connection.NewManager(cfg, path)
	return nil
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "rsvpguard server address (e.g. https://rsvp.example.com:5443)",
		},
		&cli.StringFlag{
			Name:    "admin-key",
			Aliases: []string{"K"},
			Usage:   "admin API key",
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "PEM bundle trusted for https servers",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "skip TLS certificate verification",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per-request timeout",
			Value: connection.DefaultTimeout,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "CLI config file",
			Value: config.DefaultConfigPath(),
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server   string
	AdminKey string
	CAFile   string
	Insecure bool

	Output  output.Format
	Wide    bool
	Timeout time.Duration
	Verbose bool
}

// ParseGlobalFlags resolves the global flags against the saved profile and
// the environment. Explicit flags win.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	cfg := config.Default()
	if mgr := GetConnectionManager(c); mgr != nil {
		cfg = mgr.Config()
	}
	conn := config.Merge(cfg, config.Environ())

	flags := &GlobalFlags{
		Server:   conn.Server,
		AdminKey: conn.AdminKey,
		CAFile:   conn.CAFile,
		Insecure: conn.InsecureSkipVerify,
		Output:   output.Format(cfg.DefaultOutput),
		Wide:     c.Bool("wide"),
		Timeout:  c.Duration("timeout"),
		Verbose:  c.Bool("verbose"),
	}
	if c.IsSet("server") {
		flags.Server = c.String("server")
	}
	if c.IsSet("admin-key") {
		flags.AdminKey = c.String("admin-key")
	}
	if c.IsSet("ca-file") {
		flags.CAFile = c.String("ca-file")
	}
	if c.IsSet("insecure") {
		flags.Insecure = c.Bool("insecure")
	}
	if c.IsSet("output") {
		flags.Output = output.Format(c.String("output"))
	}
	if flags.Timeout <= 0 {
		flags.Timeout = connection.DefaultTimeout
	}
	return flags
}

// GetConnectionManager retrieves the connection manager from context.
func GetConnectionManager(c *cli.Context) *connection.Manager {
	if mgr, ok := c.App.Metadata[connMgrKey].(*connection.Manager); ok {
		return mgr
	}
	return nil
}

// EnsureConnected builds an HTTP client for the resolved server.
func EnsureConnected(c *cli.Context) (*connection.HTTPClient, error) {
	flags := ParseGlobalFlags(c)
	if err := connection.ValidateServer(flags.Server); err != nil {
		return nil, err
	}
	return connection.NewHTTPClient(flags.Server, connection.Options{
		AdminKey:           flags.AdminKey,
		CAFile:             flags.CAFile,
		InsecureSkipVerify: flags.Insecure,
		Timeout:            flags.Timeout,
	})
}

// requestContext bounds one command's API calls.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, ParseGlobalFlags(c).Timeout)
}

// call performs one request and decodes the envelope data into target.
func call(c *cli.Context, method, path string, body, target any) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if ParseGlobalFlags(c).Verbose {
		fmt.Fprintf(errWriter(c), "%s %s%s\n", method, client.BaseURL(), path)
	}
	resp, err := client.Do(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return connection.ParseResponse(resp, target)
}

// render prints data in the selected format. table, when non-nil, gives
// the table layout; otherwise the table formatter derives columns from
// data's struct tags.
func render(c *cli.Context, data any, table func() *output.Table) error {
	flags := ParseGlobalFlags(c)
	format, err := output.ParseFormat(string(flags.Output))
	if err != nil {
		return err
	}
	w := outWriter(c)
	if format == output.FormatTable && table != nil {
		return table().Render(w)
	}
	return output.NewFormatter(format, flags.Wide).Format(w, data)
}

func outWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func readerOrStdin(c *cli.Context) io.Reader {
	if c.App != nil && c.App.Reader != nil {
		return c.App.Reader
	}
	return os.Stdin
}

func errWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
