// Package output renders command results for rsvpguard-cli.
//
// Results print as an aligned table by default, or as JSON or YAML for
// scripting. Long-running commands such as guest imports and restores
// report through ProgressBar and Spinner.
package output
