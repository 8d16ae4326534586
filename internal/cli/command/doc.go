// Package command defines the rsvpguard-cli commands on urfave/cli/v2.
//
// Every command resolves a server connection (flags, then the
// RSVPGUARD_CLI_* environment, then the active saved profile), calls the
// admin API and renders the result as a table, JSON or YAML.
package command
