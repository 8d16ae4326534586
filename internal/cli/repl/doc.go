// Package repl runs rsvpguard-cli commands interactively.
//
// Each input line is split into arguments and handed to an Executor,
// normally the CLI app itself. A line ending in "?" lists the commands
// that complete it. History persists to ~/.rsvpguard/history.
package repl
