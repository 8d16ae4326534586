// Package tlsroots loads TLS material for rsvpguard.
//
// The server serves a KeyPair that reloads itself when the certificate or
// key file changes; the CLI builds its client config from ClientConfig,
// trusting the system roots plus an optional CA bundle.
package tlsroots
