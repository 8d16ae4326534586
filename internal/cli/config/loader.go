package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the active profile. They carry a
// CLI_ infix so the server loader, which reads RSVPGUARD_*, ignores them.
const (
	EnvServer   = "RSVPGUARD_CLI_SERVER"
	EnvAdminKey = "RSVPGUARD_CLI_ADMIN_KEY"
)

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".rsvpguard", "cli.yaml")
}

// Load reads the CLI configuration. A missing file yields Default().
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cli config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse cli config %s: %w", path, err)
	}
	if cfg.Connections == nil {
		cfg.Connections = make(map[string]ConnectionConfig)
	}
	if cfg.DefaultOutput == "" {
		cfg.DefaultOutput = "table"
	}
	return cfg, nil
}

// Save writes cfg atomically with mode 0600.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode cli config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cli-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Merge applies RSVPGUARD_CLI_* environment overrides to the active profile
// and returns it. env is usually built from os.Getenv.
func Merge(cfg *CLIConfig, env map[string]string) ConnectionConfig {
	_, conn := cfg.Current()
	if v := env[EnvServer]; v != "" {
		conn.Server = v
	}
	if v := env[EnvAdminKey]; v != "" {
		conn.AdminKey = v
	}
	return conn
}

// Environ collects the variables Merge reads.
func Environ() map[string]string {
	env := make(map[string]string, 2)
	for _, k := range []string{EnvServer, EnvAdminKey} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env
}
