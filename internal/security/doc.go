// Package security holds the detection side of token validation.
//
//   - EventLog: bounded ring of SecurityEvents with Query and Summarize
//   - Analyzer: user agent and velocity heuristics producing a Severity
//   - FailureTracker: lightweight per-identifier invalid-token counter
//   - BlockList: identifiers refused before any other check (memory, Redis)
//   - OriginChecker: transport and allow-list check on the caller's origin
//   - PolicyHolder: hot-swappable denylists and allow-lists
package security
