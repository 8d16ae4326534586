// Package httpserver provides the HTTP/HTTPS server for rsvpguard.
//
// Routes:
//
//   - Token endpoints: POST /v1/tokens/validate, POST /v1/tokens/complete
//   - Admin endpoints: /admin/v1/* behind a bearer admin key
//   - Health endpoints: /health, /ready, /metrics
//
// Every request passes Recover, RequestID, AccessLog, Throttle and MaxBody.
// Public routes add CORS for the invitation page; admin routes add
// NetworkACL and AdminAuth. TLS certificates reload without a restart when
// a tlsroots.KeyPair is supplied.
package httpserver
