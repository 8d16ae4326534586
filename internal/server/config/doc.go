// Package config defines the rsvpguard-server configuration.
//
//   - spec.go: ServerConfig and its sections
//   - default.go: Default values
//   - verify.go: Verify, collecting every problem in one error
//   - convert.go: conversions into component configs
//   - sanitize.go: a copy with secrets masked, for logging
//
// Values are loaded by internal/infra/confloader from YAML, RSVPGUARD_
// environment variables and flags, over the defaults from Default.
package config
