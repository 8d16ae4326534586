// Package main provides the entry point for rsvpguard-cli.
//
// The CLI administers a running rsvpguard server over its admin HTTP API:
//
//   - Guest import and single token issue
//   - Campaign settings
//   - Security events, summaries and the blocklist
//   - Backup, restore and retention
//   - Saved connection profiles and local configuration
//
// Usage:
//
//	rsvpguard-cli [global flags] command [flags]
//	rsvpguard-cli connect https://rsvp.example.com:5443 -K $ADMIN_KEY
//	rsvpguard-cli guests import guests.yaml --tokens-out tokens.csv
//	rsvpguard-cli -o json security events --since 2h
//
// Every command also runs inside "rsvpguard-cli shell".
package main
