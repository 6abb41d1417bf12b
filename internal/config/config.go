// internal/config/config.go
//
// This package handles configuration and the .naqsh directory structure.
// Every directory naqsh runs from gets a .naqsh/ folder holding the config
// file, the persisted session and the logs.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// NaqshDir is the name of the directory we create in the working directory
	NaqshDir = ".naqsh"

	// DefaultBaseURL is where the marketplace API listens in development.
	DefaultBaseURL = "http://localhost:5000"
	// DefaultRefreshPath is the endpoint that exchanges a refresh token for a new access token.
	DefaultRefreshPath = "/api/auth/refresh"
	// DefaultTimeout bounds a single HTTP round trip.
	DefaultTimeout = 15 * time.Second
	// DefaultSessionPath is relative to the .naqsh directory.
	DefaultSessionPath = "state/session.yaml"

	DefaultMockHost       = "127.0.0.1"
	DefaultMockPort       = 5000
	DefaultMockAccessTTL  = 15 * time.Minute
	DefaultMockRefreshTTL = 30 * 24 * time.Hour
)

const defaultProjectConfigYAML = `# naqsh configuration
version: 1

# Remote marketplace API.
api:
  base_url: http://localhost:5000
  refresh_path: /api/auth/refresh
  timeout: 15s
  # Client-side throttling. 0 disables it.
  rate_limit_rps: 0
  rate_limit_burst: 1

# Where the access/refresh token pair is kept between runs (relative to .naqsh/).
session:
  path: state/session.yaml

# Set an address (e.g. 127.0.0.1:9464) to expose /metrics while naqsh runs.
metrics:
  address: ""

# Local stand-in for the API, started with "naqsh mock-api".
mock_api:
  host: 127.0.0.1
  port: 5000
  access_ttl: 15m
  refresh_ttl: 720h
`

// APIConfig describes how to reach the remote API.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RefreshPath    string        `yaml:"refresh_path"`
	Timeout        time.Duration `yaml:"timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
}

// SessionConfig locates the persisted credential pair.
type SessionConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls the optional prometheus endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// MockAPIConfig configures the local API stand-in.
type MockAPIConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	Secret     string        `yaml:"secret,omitempty"`
}

// ProjectConfig models .naqsh/config.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Metrics MetricsConfig `yaml:"metrics"`
	MockAPI MockAPIConfig `yaml:"mock_api"`
}

// Config holds the runtime configuration for naqsh.
type Config struct {
	// WorkDir is the directory where the user ran `naqsh` from
	WorkDir string

	// NaqshProjectDir is WorkDir/.naqsh
	NaqshProjectDir string

	Project ProjectConfig
}

// InitNaqshDir creates the .naqsh directory structure in the given directory.
//
// Structure created:
// .naqsh/
// ├── config.yaml
// ├── logs/       <- naqsh.log (debug) and activity.log (what the user saw)
// └── state/      <- session.yaml
func InitNaqshDir(workDir string) error {
	naqshDir := filepath.Join(workDir, NaqshDir)
	dirs := []string{
		filepath.Join(naqshDir, "logs"),
		filepath.Join(naqshDir, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(naqshDir, "config.yaml"))
}

// NewConfig loads .naqsh/config.yaml (if present) and applies NAQSH_* environment overrides.
func NewConfig(workDir string) (*Config, error) {
	cfg := &Config{
		WorkDir:         workDir,
		NaqshProjectDir: filepath.Join(workDir, NaqshDir),
		Project:         defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.Project.applyEnvOverrides()
	cfg.Project.normalize()
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ProjectConfigPath returns the on-disk location for the config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.NaqshProjectDir, "config.yaml")
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.NaqshProjectDir, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.NaqshProjectDir, "state")
}

// SessionPath returns the absolute location of the persisted session file.
func (c *Config) SessionPath() string {
	p := c.Project.Session.Path
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.NaqshProjectDir, p)
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.Project.API.BaseURL, "/")
}

// MockAddress returns the host:port the mock API binds to.
func (c *Config) MockAddress() string {
	return net.JoinHostPort(c.Project.MockAPI.Host, strconv.Itoa(c.Project.MockAPI.Port))
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		API: APIConfig{
			BaseURL:        DefaultBaseURL,
			RefreshPath:    DefaultRefreshPath,
			Timeout:        DefaultTimeout,
			RateLimitBurst: 1,
		},
		Session: SessionConfig{Path: DefaultSessionPath},
		MockAPI: MockAPIConfig{
			Host:       DefaultMockHost,
			Port:       DefaultMockPort,
			AccessTTL:  DefaultMockAccessTTL,
			RefreshTTL: DefaultMockRefreshTTL,
		},
	}
}

func (pc *ProjectConfig) applyEnvOverrides() {
	if value := strings.TrimSpace(os.Getenv("NAQSH_API_URL")); value != "" {
		pc.API.BaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv("NAQSH_API_TIMEOUT")); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			pc.API.Timeout = d
		}
	}
	if value, ok := os.LookupEnv("NAQSH_METRICS_ADDR"); ok {
		pc.Metrics.Address = strings.TrimSpace(value)
	}
	if value := strings.TrimSpace(os.Getenv("NAQSH_MOCK_HOST")); value != "" {
		pc.MockAPI.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("NAQSH_MOCK_PORT")); value != "" {
		if port, err := strconv.Atoi(value); err == nil && isValidPort(port) {
			pc.MockAPI.Port = port
		}
	}
	if value := strings.TrimSpace(os.Getenv("NAQSH_MOCK_SECRET")); value != "" {
		pc.MockAPI.Secret = value
	}
}

func (pc *ProjectConfig) normalize() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	pc.API.BaseURL = strings.TrimRight(strings.TrimSpace(pc.API.BaseURL), "/")
	if pc.API.BaseURL == "" {
		pc.API.BaseURL = DefaultBaseURL
	}
	pc.API.RefreshPath = strings.TrimSpace(pc.API.RefreshPath)
	if pc.API.RefreshPath == "" {
		pc.API.RefreshPath = DefaultRefreshPath
	}
	if !strings.HasPrefix(pc.API.RefreshPath, "/") {
		pc.API.RefreshPath = "/" + pc.API.RefreshPath
	}
	if pc.API.Timeout <= 0 {
		pc.API.Timeout = DefaultTimeout
	}
	if pc.API.RateLimitBurst <= 0 {
		pc.API.RateLimitBurst = 1
	}
	pc.Session.Path = strings.TrimSpace(pc.Session.Path)
	if pc.Session.Path == "" {
		pc.Session.Path = DefaultSessionPath
	}
	pc.Metrics.Address = strings.TrimSpace(pc.Metrics.Address)
	pc.MockAPI.Host = strings.TrimSpace(pc.MockAPI.Host)
	if pc.MockAPI.Host == "" {
		pc.MockAPI.Host = DefaultMockHost
	}
	if !isValidPort(pc.MockAPI.Port) {
		pc.MockAPI.Port = DefaultMockPort
	}
	if pc.MockAPI.AccessTTL <= 0 {
		pc.MockAPI.AccessTTL = DefaultMockAccessTTL
	}
	if pc.MockAPI.RefreshTTL <= 0 {
		pc.MockAPI.RefreshTTL = DefaultMockRefreshTTL
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	u, err := url.Parse(pc.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", pc.API.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("api.base_url is missing a host")
	}
	if pc.API.RateLimitRPS < 0 {
		return fmt.Errorf("api.rate_limit_rps must be >= 0")
	}
	if pc.MockAPI.RefreshTTL < pc.MockAPI.AccessTTL {
		return fmt.Errorf("mock_api.refresh_ttl must not be shorter than access_ttl")
	}
	return nil
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
