package connection

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/yndnr/rsvpguard/internal/cli/config"
)

// ErrUnknownConnection is returned by Use for a name with no saved profile.
var ErrUnknownConnection = errors.New("unknown connection")

// Manager manages the saved connection profiles.
type Manager struct {
	cfg  *config.CLIConfig
	path string
}

// Connection is a named profile.
type Connection struct {
	Name string
	config.ConnectionConfig
}

// NewManager wraps cfg. path is where Save writes; empty means the
// default location.
func NewManager(cfg *config.CLIConfig, path string) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	if cfg.Connections == nil {
		cfg.Connections = make(map[string]config.ConnectionConfig)
	}
	return &Manager{cfg: cfg, path: path}
}

// Config returns the underlying configuration.
func (m *Manager) Config() *config.CLIConfig {
	return m.cfg
}

// Connect stores conn under its name and makes it current.
func (m *Manager) Connect(conn Connection) error {
	if conn.Name == "" {
		return errors.New("connection name required")
	}
	if err := ValidateServer(conn.Server); err != nil {
		return err
	}
	m.cfg.Connections[conn.Name] = conn.ConnectionConfig
	m.cfg.CurrentConnection = conn.Name
	return nil
}

// Use switches to a saved profile.
func (m *Manager) Use(name string) error {
	if _, ok := m.cfg.Connections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, name)
	}
	m.cfg.CurrentConnection = name
	return nil
}

// Remove deletes a saved profile and reports whether it existed.
func (m *Manager) Remove(name string) bool {
	if _, ok := m.cfg.Connections[name]; !ok {
		return false
	}
	delete(m.cfg.Connections, name)
	if m.cfg.CurrentConnection == name {
		m.cfg.CurrentConnection = ""
	}
	return true
}

// Disconnect clears the current profile. Saved profiles are kept.
func (m *Manager) Disconnect() {
	m.cfg.CurrentConnection = ""
}

// Current returns the active profile, or nil.
func (m *Manager) Current() *Connection {
	if m.cfg.CurrentConnection == "" {
		return nil
	}
	cc, ok := m.cfg.Connections[m.cfg.CurrentConnection]
	if !ok {
		return nil
	}
	return &Connection{Name: m.cfg.CurrentConnection, ConnectionConfig: cc}
}

// IsConnected returns true if a profile is active.
func (m *Manager) IsConnected() bool {
	return m.Current() != nil
}

// List returns all saved profiles sorted by name.
func (m *Manager) List() []Connection {
	names := make([]string, 0, len(m.cfg.Connections))
	for name := range m.cfg.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Connection, 0, len(names))
	for _, name := range names {
		out = append(out, Connection{Name: name, ConnectionConfig: m.cfg.Connections[name]})
	}
	return out
}

// Save persists the profiles.
func (m *Manager) Save() error {
	return config.Save(m.cfg, m.path)
}

// ValidateServer checks that server is an http(s) address with a host.
func ValidateServer(server string) error {
	if server == "" {
		return errors.New("server address required")
	}
	raw := server
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server address %q: %w", server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server address %q: scheme must be http or https", server)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server address %q: missing host", server)
	}
	return nil
}
