// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     config
// Description: TOML/YAML configuration, environment overrides and endpoint URLs
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server ServerConfig `toml:"server" yaml:"server"`
	WS     WSConfig     `toml:"ws" yaml:"ws"`
	Log    LogConfig    `toml:"log" yaml:"log"`
	Serve  ServeConfig  `toml:"serve" yaml:"serve"`
}

// ServerConfig locates the Kubefill REST backend
type ServerConfig struct {
	Hostname string   `toml:"hostname" yaml:"hostname" validate:"required"`
	Port     int      `toml:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Secure   bool     `toml:"secure" yaml:"secure"`
	APIPath  string   `toml:"api_path" yaml:"api_path"`
	Timeout  Duration `toml:"timeout" yaml:"timeout"`
}

// WSConfig holds the live log websocket settings
type WSConfig struct {
	Path             string   `toml:"path" yaml:"path" validate:"required"`
	Secure           bool     `toml:"secure" yaml:"secure"`
	ReadyTimeout     Duration `toml:"ready_timeout" yaml:"ready_timeout"`
	HandshakeTimeout Duration `toml:"handshake_timeout" yaml:"handshake_timeout"`
	// ReadLimit caps the size of one inbound frame in bytes
	ReadLimit int64 `toml:"read_limit" yaml:"read_limit" validate:"gte=0"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `toml:"format" yaml:"format" validate:"oneof=json text"`
	File   string `toml:"file" yaml:"file"`
}

// ServeConfig holds settings of the bundled log server
type ServeConfig struct {
	Host           string   `toml:"host" yaml:"host"`
	Port           int      `toml:"port" yaml:"port" validate:"gte=1,lte=65535"`
	LogsPath       string   `toml:"logs_path" yaml:"logs_path" validate:"required"`
	DBPath         string   `toml:"db_path" yaml:"db_path" validate:"required"`
	FollowInterval Duration `toml:"follow_interval" yaml:"follow_interval"`
}

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses a duration scalar
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a TOML or YAML file, chosen by extension.
// Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.expandEnvVars()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultPaths lists the locations searched when no path is given
func DefaultPaths() []string {
	return []string{
		"./configs/kflogs.toml",
		"./kflogs.toml",
		"./kflogs.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/kflogs/config.toml"),
	}
}

// LoadFromEnv loads configuration from the KFLOGS_CONFIG environment variable
// or the first default location that exists. Without any file the defaults
// are used, still subject to environment overrides.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv("KFLOGS_CONFIG")
	if path == "" {
		for _, p := range DefaultPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		return Load(path)
	}

	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server
	if c.Server.Hostname == "" {
		c.Server.Hostname = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.APIPath == "" {
		c.Server.APIPath = "api"
	}
	if c.Server.Timeout.Duration == 0 {
		c.Server.Timeout.Duration = 30 * time.Second
	}

	// WS
	if c.WS.Path == "" {
		c.WS.Path = "ws"
	}
	if c.WS.ReadyTimeout.Duration == 0 {
		c.WS.ReadyTimeout.Duration = 2 * time.Second
	}
	if c.WS.HandshakeTimeout.Duration == 0 {
		c.WS.HandshakeTimeout.Duration = 10 * time.Second
	}
	if c.WS.ReadLimit == 0 {
		c.WS.ReadLimit = 2 << 20
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	// Serve
	if c.Serve.Host == "" {
		c.Serve.Host = "0.0.0.0"
	}
	if c.Serve.Port == 0 {
		c.Serve.Port = 8080
	}
	if c.Serve.LogsPath == "" {
		c.Serve.LogsPath = "./data/logs"
	}
	if c.Serve.DBPath == "" {
		c.Serve.DBPath = "./data/kflogs.db"
	}
	if c.Serve.FollowInterval.Duration == 0 {
		c.Serve.FollowInterval.Duration = 500 * time.Millisecond
	}
}

// expandEnvVars expands environment variables in path values
func (c *Config) expandEnvVars() {
	c.Log.File = os.ExpandEnv(c.Log.File)
	c.Serve.LogsPath = os.ExpandEnv(c.Serve.LogsPath)
	c.Serve.DBPath = os.ExpandEnv(c.Serve.DBPath)
}

// applyEnv overrides endpoint settings from the deployment environment.
// Empty variables are ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("SERVER_HOSTNAME"); ok {
		c.Server.Hostname = v
	}
	if v, ok := get("SERVER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := get("SERVER_API_PATH"); ok {
		c.Server.APIPath = v
	}
	if v, ok := get("SERVER_SECURE"); ok {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_SECURE %q: %w", v, err)
		}
		c.Server.Secure = secure
	}
	if v, ok := get("WS_PATH"); ok {
		c.WS.Path = v
	}
	if v, ok := get("WS_SECURE"); ok {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid WS_SECURE %q: %w", v, err)
		}
		c.WS.Secure = secure
	}
	return nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.WS.ReadyTimeout.Duration <= 0 {
		return fmt.Errorf("invalid config: ws.ready_timeout must be positive")
	}
	return nil
}

// APIBaseURL returns the REST base URL, e.g. http://localhost:8080/api
func (c *Config) APIBaseURL() string {
	scheme := "http"
	if c.Server.Secure {
		scheme = "https"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   hostPort(c.Server.Hostname, c.Server.Port, scheme),
		Path:   "/" + strings.Trim(c.Server.APIPath, "/"),
	}
	return strings.TrimSuffix(u.String(), "/")
}

// WebsocketURL returns the live log endpoint for one client token
func (c *Config) WebsocketURL(token string) string {
	scheme := "ws"
	if c.WS.Secure {
		scheme = "wss"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     hostPort(c.Server.Hostname, c.Server.Port, scheme),
		Path:     "/" + strings.Trim(c.WS.Path, "/"),
		RawQuery: url.Values{"id": []string{token}}.Encode(),
	}
	return u.String()
}

// ListenAddr returns the bind address of the log server
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Serve.Host, strconv.Itoa(c.Serve.Port))
}

// hostPort omits the port when it is unset or the scheme default
func hostPort(host string, port int, scheme string) string {
	switch {
	case port == 0,
		port == 80 && (scheme == "http" || scheme == "ws"),
		port == 443 && (scheme == "https" || scheme == "wss"):
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
