package config

// CLIConfig is the configuration for rsvpguard-cli.
type CLIConfig struct {
	DefaultServer string `yaml:"default_server"`
	DefaultOutput string `yaml:"default_output"` // table, json, yaml

	// Saved connections by name.
	Connections map[string]ConnectionConfig `yaml:"connections"`

	// CurrentConnection names the profile used when no --server is given.
	CurrentConnection string `yaml:"current_connection,omitempty"`
}

// ConnectionConfig stores saved connection details.
type ConnectionConfig struct {
	Server             string `yaml:"server"`
	AdminKey           string `yaml:"admin_key,omitempty"`
	CAFile             string `yaml:"ca_file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultServer: "http://localhost:5080",
		DefaultOutput: "table",
		Connections:   make(map[string]ConnectionConfig),
	}
}

// Current returns the active profile, falling back to DefaultServer.
func (c *CLIConfig) Current() (string, ConnectionConfig) {
	if c.CurrentConnection != "" {
		if conn, ok := c.Connections[c.CurrentConnection]; ok {
			return c.CurrentConnection, conn
		}
	}
	return "", ConnectionConfig{Server: c.DefaultServer}
}
