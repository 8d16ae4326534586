// Package main provides the entry point for rsvpguard-server.
//
// The server guards a wedding invitation campaign:
//
//   - Public token validation and RSVP completion for the invitation page
//   - Admin HTTP API for guest import, the campaign, security events,
//     the blocklist and backups
//   - Prometheus metrics on /metrics
//   - Background maintenance: rate limit and blocklist cleanup,
//     scheduled backups and backup retention
//
// Usage:
//
//	rsvpguard-server [flags]
//	rsvpguard-server --config /etc/rsvpguard/server.yaml
//
// The detection policy, log level and TLS key pair are reloaded when their
// files change; everything else needs a restart.
package main
