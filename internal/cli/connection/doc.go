// Package connection talks to an rsvpguard server's admin API.
//
// HTTPClient sends authenticated JSON requests and unwraps the response
// envelope. Manager keeps the saved connection profiles from the CLI
// config file and tracks which one is active.
package connection
