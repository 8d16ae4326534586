package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rsvpguard/internal/cli/config"
	"github.com/yndnr/rsvpguard/internal/cli/connection"
	"github.com/yndnr/rsvpguard/internal/cli/output"
)

// ConnectCommand returns the connect command.
func ConnectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Save a server profile and make it current",
		ArgsUsage: "[SERVER]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Connection name",
				Value:   "default",
			},
			&cli.BoolFlag{
				Name:  "no-check",
				Usage: "Save without checking that the server answers /health",
			},
		},
		Action: connectAction,
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List saved connections",
				Action: connectList,
			},
			{
				Name:      "remove",
				Usage:     "Delete a saved connection",
				ArgsUsage: "NAME",
				Action:    connectRemove,
			},
		},
	}
}

func connectAction(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	server := c.Args().First()
	if server == "" {
		server = flags.Server
	}

	mgr := GetConnectionManager(c)
	if mgr == nil {
		return errors.New("connection manager not initialized")
	}

	conn := connection.Connection{
		Name: c.String("name"),
		ConnectionConfig: config.ConnectionConfig{
			Server:             server,
			AdminKey:           flags.AdminKey,
			CAFile:             flags.CAFile,
			InsecureSkipVerify: flags.Insecure,
		},
	}
	if err := connection.ValidateServer(server); err != nil {
		return err
	}

	if !c.Bool("no-check") {
		client, err := connection.NewHTTPClient(server, connection.Options{
			AdminKey:           conn.AdminKey,
			CAFile:             conn.CAFile,
			InsecureSkipVerify: conn.InsecureSkipVerify,
			Timeout:            flags.Timeout,
		})
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		resp, err := client.Get(ctx, "/health")
		if err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		if err := connection.ParseResponse(resp, nil); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
	}

	if err := mgr.Connect(conn); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	if err := mgr.Save(); err != nil {
		return fmt.Errorf("save connection: %w", err)
	}

	fmt.Fprintf(outWriter(c), "Connected to %s as %q\n", server, conn.Name)
	return nil
}

type connectionRow struct {
	Current  bool   `json:"current"`
	Name     string `json:"name"`
	Server   string `json:"server"`
	HasKey   bool   `json:"has_admin_key"`
	CAFile   string `json:"ca_file,omitempty"`
	Insecure bool   `json:"insecure_skip_verify,omitempty"`
}

func connectList(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return errors.New("connection manager not initialized")
	}
	current := ""
	if cur := mgr.Current(); cur != nil {
		current = cur.Name
	}

	var rows []connectionRow
	for _, conn := range mgr.List() {
		rows = append(rows, connectionRow{
			Current:  conn.Name == current,
			Name:     conn.Name,
			Server:   conn.Server,
			HasKey:   conn.AdminKey != "",
			CAFile:   conn.CAFile,
			Insecure: conn.InsecureSkipVerify,
		})
	}

	return render(c, rows, func() *output.Table {
		t := &output.Table{}
		t.SetHeaders("", "NAME", "SERVER", "ADMIN KEY")
		for _, r := range rows {
			marker := ""
			if r.Current {
				marker = "*"
			}
			key := "no"
			if r.HasKey {
				key = "yes"
			}
			t.AddRow(marker, r.Name, r.Server, key)
		}
		return t
	})
}

func connectRemove(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return errors.New("connection name required")
	}
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return errors.New("connection manager not initialized")
	}
	if !mgr.Remove(name) {
		return fmt.Errorf("%w: %s", connection.ErrUnknownConnection, name)
	}
	if err := mgr.Save(); err != nil {
		return err
	}
	fmt.Fprintf(outWriter(c), "Removed connection %q\n", name)
	return nil
}

// DisconnectCommand returns the disconnect command.
func DisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:   "disconnect",
		Usage:  "Clear the current connection; saved profiles are kept",
		Action: disconnectAction,
	}
}

func disconnectAction(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return errors.New("connection manager not initialized")
	}

	if !mgr.IsConnected() {
		fmt.Fprintln(outWriter(c), "Not connected to any server")
		return nil
	}

	mgr.Disconnect()
	if err := mgr.Save(); err != nil {
		return err
	}
	fmt.Fprintln(outWriter(c), "Disconnected")
	return nil
}

// UseCommand returns the use command for switching connections.
func UseCommand() *cli.Command {
	return &cli.Command{
		Name:      "use",
		Usage:     "Switch to a saved connection",
		ArgsUsage: "CONNECTION_NAME",
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				return errors.New("connection name required")
			}
			mgr := GetConnectionManager(c)
			if mgr == nil {
				return errors.New("connection manager not initialized")
			}
			if err := mgr.Use(name); err != nil {
				return err
			}
			if err := mgr.Save(); err != nil {
				return err
			}
			fmt.Fprintf(outWriter(c), "Switched to connection %q (%s)\n", name, mgr.Current().Server)
			return nil
		},
	}
}
