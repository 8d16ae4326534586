// Package buildinfo exposes version information for the rsvpguard binaries.
//
// Values are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/rsvpguard/internal/infra/buildinfo.Version=v1.0.0"
//
// When they are not, Get falls back to the module build info embedded by
// the Go toolchain.
package buildinfo
