package command

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rsvpguard/internal/cli/config"
	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
)

const testAdminKey = "test-admin-key-0123456789"

// mockServer answers admin API calls with canned envelopes and records
// what it received.
type mockServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   []byte
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	m := &mockServer{handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		_, _ = body.ReadFrom(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body.Bytes()))
		m.mu.Lock()
		m.requests = append(m.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   body.Bytes(),
		})
		h, ok := m.handlers[r.Method+" "+r.URL.Path]
		m.mu.Unlock()
		if !ok {
			errorEnvelope(w, http.StatusNotFound, "RG-HTTP-4040", "not found")
			return
		}
		h(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

// handle registers a handler for "METHOD /path".
func (m *mockServer) handle(route string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[route] = h
}

// reply registers a handler that always answers with data.
func (m *mockServer) reply(route string, data any) {
	m.handle(route, func(w http.ResponseWriter, _ *http.Request) {
		dataEnvelope(w, http.StatusOK, data)
	})
}

func (m *mockServer) last() recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return recordedRequest{}
	}
	return m.requests[len(m.requests)-1]
}

func (m *mockServer) count(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func dataEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(handler.NewResponse("req-test", data))
}

func errorEnvelope(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(handler.NewErrorResponse("req-test", code, message, nil))
}

// cliRun runs the CLI app once with an isolated config file.
type cliRun struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
	stdin  string

	configPath string
}

func newCLIRun(t *testing.T) *cliRun {
	t.Helper()
	t.Setenv(config.EnvServer, "")
	t.Setenv(config.EnvAdminKey, "")
	return &cliRun{configPath: filepath.Join(t.TempDir(), "cli.yaml")}
}

// run executes args against server. An empty server omits --server.
func (r *cliRun) run(server string, args ...string) error {
	app := App()
	app.Writer = &r.stdout
	app.ErrWriter = &r.stderr
	app.Reader = strings.NewReader(r.stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := []string{app.Name, "--config", r.configPath}
	if server != "" {
		full = append(full, "--server", server, "--admin-key", testAdminKey)
	}
	full = append(full, args...)
	return app.RunContext(context.Background(), full)
}

func decodeBody(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode request body %q: %v", body, err)
	}
}

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
