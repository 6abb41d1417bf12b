package mockapi

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/naqsh/internal/config"
)

const (
	// DefaultMaxBodyBytes leaves room for three 5MB review images.
	DefaultMaxBodyBytes int64 = 20 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the mock API server.
type Settings struct {
	Host         string
	Port         int
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Secret       string
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig builds Settings from the mock_api section of .naqsh/config.yaml.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Host:       config.DefaultMockHost,
		Port:       config.DefaultMockPort,
		AccessTTL:  config.DefaultMockAccessTTL,
		RefreshTTL: config.DefaultMockRefreshTTL,
	}
	if cfg != nil {
		raw := cfg.Project.MockAPI
		if host := strings.TrimSpace(raw.Host); host != "" {
			settings.Host = host
		}
		if isValidPort(raw.Port) {
			settings.Port = raw.Port
		}
		if raw.AccessTTL > 0 {
			settings.AccessTTL = raw.AccessTTL
		}
		if raw.RefreshTTL > 0 {
			settings.RefreshTTL = raw.RefreshTTL
		}
		settings.Secret = raw.Secret
	}
	settings.normalize()
	return settings
}

func (s *Settings) normalize() {
	if s == nil {
		return
	}
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = config.DefaultMockHost
	}
	// Port 0 is kept so tests can bind an ephemeral port.
	if s.Port < 0 || s.Port > 65535 {
		s.Port = config.DefaultMockPort
	}
	if s.AccessTTL <= 0 {
		s.AccessTTL = config.DefaultMockAccessTTL
	}
	if s.RefreshTTL < s.AccessTTL {
		s.RefreshTTL = s.AccessTTL
	}
	if strings.TrimSpace(s.Secret) == "" {
		s.Secret = uuid.NewString() + uuid.NewString()
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
