// Package config loads gateway configuration: bind address, upstream
// URLs, model-name mapping, admin basic-auth credentials, and the
// optional static account table (spec.md §6's configuration knobs),
// grounded on the TOML-plus-env-override loader in
// MasterTroll-007-GreenForge/internal/config/config.go.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the root gateway configuration.
type Config struct {
	ConfigPath string `toml:"-"`

	Server   ServerConfig            `toml:"server"`
	Upstream UpstreamConfig          `toml:"upstream"`
	Admin    AdminConfig             `toml:"admin"`
	Models   map[string]string       `toml:"models"`
	Accounts []StaticAccountConfig   `toml:"accounts"`
}

type ServerConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	DataDir string `toml:"data_dir"`
}

type UpstreamConfig struct {
	BaseURL string `toml:"base_url"`
}

type AdminConfig struct {
	Enabled  bool   `toml:"enabled"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// StaticAccountConfig is one entry of the optional static account table
// (spec.md §1), bypassing the account store entirely.
type StaticAccountConfig struct {
	Name   string `toml:"name"`
	APIKey string `toml:"api_key"`
}

// Default returns a Config with the gateway's out-of-the-box settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			DataDir: defaultDataDir(),
		},
		Upstream: UpstreamConfig{
			BaseURL: "https://q.us-east-1.amazonaws.com",
		},
		Models: map[string]string{},
	}
}

// Load reads config from path, falling back to defaults when path is
// empty or missing, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	cfg.ConfigPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// ModelMapper returns a convert.ModelMapper-shaped function backed by
// the configured alias table. Unknown names pass through unchanged.
func (c *Config) ModelMapper() func(string) string {
	return func(alias string) string {
		if mapped, ok := c.Models[alias]; ok {
			return mapped
		}
		return alias
	}
}

// StaticAccountTable returns the configured static accounts as an
// api_key -> name map, ready for accounts.Store.LoadStatic.
func (c *Config) StaticAccountTable() map[string]string {
	table := make(map[string]string, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.APIKey != "" {
			table[a.APIKey] = a.Name
		}
	}
	return table
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KIRO_GATEWAY_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KIRO_GATEWAY_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KIRO_GATEWAY_DATA_DIR"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("KIRO_UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("KIRO_ADMIN_USERNAME"); v != "" {
		cfg.Admin.Username = v
		cfg.Admin.Enabled = true
	}
	if v := os.Getenv("KIRO_ADMIN_PASSWORD"); v != "" {
		cfg.Admin.Password = v
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("KIRO_GATEWAY_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".kiro-gateway")
	}
	return filepath.Join(home, ".kiro-gateway")
}
