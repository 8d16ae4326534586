package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/rsvpguard/internal/cli/output"
	"github.com/yndnr/rsvpguard/internal/infra/confloader"
	serverconfig "github.com/yndnr/rsvpguard/internal/server/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:  "cli",
				Usage: "CLI local configuration",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Show CLI configuration with admin keys masked",
						Action: configCLIShow,
					},
					{
						Name:   "path",
						Usage:  "Print the CLI configuration file path",
						Action: configCLIPath,
					},
					{
						Name:      "set-output",
						Usage:     "Set the default output format",
						ArgsUsage: "table|json|yaml",
						Action:    configCLISetOutput,
					},
				},
			},
			{
				Name:  "server",
				Usage: "Server configuration files",
				Subcommands: []*cli.Command{
					{
						Name:      "validate",
						Usage:     "Load and verify a server configuration file locally",
						ArgsUsage: "FILE",
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "show",
								Usage: "print the merged configuration with secrets masked",
							},
						},
						Action: configServerValidate,
					},
				},
			},
		},
	}
}

type cliConfigView struct {
	Path              string           `json:"path"`
	DefaultServer     string           `json:"default_server"`
	DefaultOutput     string           `json:"default_output"`
	CurrentConnection string           `json:"current_connection,omitempty"`
	Connections       []connectionView `json:"connections"`
}

type connectionView struct {
	Name     string `json:"name"`
	Server   string `json:"server"`
	AdminKey string `json:"admin_key,omitempty"`
	CAFile   string `json:"ca_file,omitempty"`
	Insecure bool   `json:"insecure_skip_verify,omitempty"`
}

func configCLIShow(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return errors.New("connection manager not initialized")
	}
	cfg := mgr.Config()
	view := cliConfigView{
		Path:              c.String("config"),
		DefaultServer:     cfg.DefaultServer,
		DefaultOutput:     cfg.DefaultOutput,
		CurrentConnection: cfg.CurrentConnection,
	}
	for _, conn := range mgr.List() {
		view.Connections = append(view.Connections, connectionView{
			Name:     conn.Name,
			Server:   conn.Server,
			AdminKey: maskKey(conn.AdminKey),
			CAFile:   conn.CAFile,
			Insecure: conn.InsecureSkipVerify,
		})
	}

	return render(c, view, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("SETTING", "VALUE")
		t.AddRow("file", orDash(view.Path))
		t.AddRow("default_server", view.DefaultServer)
		t.AddRow("default_output", view.DefaultOutput)
		t.AddRow("current_connection", orDash(view.CurrentConnection))
		for _, conn := range view.Connections {
			t.AddRow("connection "+conn.Name, conn.Server+" key="+orDash(conn.AdminKey))
		}
		return t
	})
}

func configCLIPath(c *cli.Context) error {
	fmt.Fprintln(outWriter(c), c.String("config"))
	return nil
}

func configCLISetOutput(c *cli.Context) error {
	format, err := output.ParseFormat(c.Args().First())
	if err != nil {
		return err
	}
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return errors.New("connection manager not initialized")
	}
	mgr.Config().DefaultOutput = string(format)
	if err := mgr.Save(); err != nil {
		return err
	}
	fmt.Fprintf(outWriter(c), "Default output set to %s\n", format)
	return nil
}

func configServerValidate(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("configuration file path required")
	}

	cfg := serverconfig.Default()
	loader := confloader.NewLoader(confloader.WithConfigFile(path))
	if err := loader.Load(cfg); err != nil {
		return err
	}
	if err := serverconfig.Verify(cfg); err != nil {
		fmt.Fprintf(outWriter(c), "✗ %s is invalid:\n%v\n", path, err)
		return errors.New("validation failed")
	}

	fmt.Fprintf(outWriter(c), "✓ %s is valid\n", path)
	if !c.Bool("show") {
		return nil
	}
	data, err := yaml.Marshal(serverconfig.Sanitize(cfg))
	if err != nil {
		return err
	}
	_, err = outWriter(c).Write(data)
	return err
}

func maskKey(k string) string {
	switch {
	case k == "":
		return ""
	case len(k) <= 8:
		return "****"
	default:
		return k[:4] + "****" + k[len(k)-2:]
	}
}
