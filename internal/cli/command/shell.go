package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rsvpguard/internal/cli/repl"
)

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Run commands interactively",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "history-file",
				Usage: "history file (empty keeps history in memory)",
				Value: repl.DefaultHistoryPath(),
			},
		},
		Action: shellAction,
	}
}

func shellAction(c *cli.Context) error {
	app := c.App
	// Commands inside the shell report errors; they must not exit the process.
	app.ExitErrHandler = func(*cli.Context, error) {}

	prefix := inheritedFlags(c)
	exec := func(ctx context.Context, args []string) error {
		if len(args) > 0 && args[0] == "shell" {
			return errors.New("already in the shell")
		}
		full := append(append([]string{app.Name}, prefix...), args...)
		return app.RunContext(ctx, full)
	}

	r := repl.New(exec,
		repl.WithIO(readerOrStdin(c), outWriter(c)),
		repl.WithHistory(repl.NewHistory(c.String("history-file"))),
		repl.WithCompleter(repl.NewCompleter(commandPaths(app.Commands, "")...)),
	)
	fmt.Fprintf(outWriter(c), "rsvpguard-cli %s. Type \"exit\" to quit, end a line with ? for completions.\n", app.Version)
	return r.Run(c.Context)
}

// inheritedFlags repeats the global flags given to the shell itself so
// every line runs against the same server.
func inheritedFlags(c *cli.Context) []string {
	var out []string
	for _, name := range []string{"config", "server", "admin-key", "ca-file", "output", "timeout"} {
		if c.IsSet(name) {
			out = append(out, "--"+name, c.String(name))
		}
	}
	for _, name := range []string{"insecure", "wide", "verbose"} {
		if c.IsSet(name) && c.Bool(name) {
			out = append(out, "--"+name)
		}
	}
	return out
}

// commandPaths lists every command and subcommand as space separated paths.
func commandPaths(cmds []*cli.Command, prefix string) []string {
	var out []string
	for _, cmd := range cmds {
		if cmd.Hidden || cmd.Name == "shell" {
			continue
		}
		path := cmd.Name
		if prefix != "" {
			path = prefix + " " + cmd.Name
		}
		out = append(out, path)
		out = append(out, commandPaths(cmd.Subcommands, path)...)
	}
	return out
}
