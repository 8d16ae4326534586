// Package shutdown coordinates graceful termination of rsvpguard-server.
//
// Components register named hooks; on SIGINT, SIGTERM or a cancelled
// context the hooks run in reverse registration order under a shared
// deadline, so the HTTP listener stops before the stores it serves from.
package shutdown
