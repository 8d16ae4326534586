// Package config holds the rsvpguard-cli settings file.
//
// The file lives at ~/.rsvpguard/cli.yaml and stores saved connection
// profiles, the active profile and the default output format. It is
// written with mode 0600 because profiles carry admin keys.
package config
