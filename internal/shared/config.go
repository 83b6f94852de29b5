package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Spotify     SpotifyConfig     `toml:"spotify"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify ClientIdentity `toml:"spotify"`
}

// ClientIdentity is the Spotify application identity used against the accounts endpoint.
type ClientIdentity struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// SpotifyConfig controls the API client.
type SpotifyConfig struct {
	PlaylistID           string   `toml:"playlist_id"`
	TokenPath            string   `toml:"token_path"`
	Scopes               []string `toml:"scopes"`
	MaxAttempts          int      `toml:"max_attempts"`
	RetryInterval        Duration `toml:"retry_interval"`
	RequestTimeout       Duration `toml:"request_timeout"`
	CacheRefreshInterval Duration `toml:"cache_refresh_interval"`
	SearchCacheSize      int      `toml:"search_cache_size"`
	SearchCacheTTL       Duration `toml:"search_cache_ttl"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
//
// BaseURL is the externally visible address of the service and is used to build the OAuth redirect URI.
type ServerConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	BaseURL string `toml:"base_url"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration wraps [time.Duration] so it can be written as "5m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedirectURI returns the OAuth callback registered with Spotify.
func (s ServerConfig) RedirectURI() string {
	return strings.TrimRight(s.BaseURL, "/") + "/authorize/"
}

// LogLevel parses the configured level, falling back to info.
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes the configuration back to disk as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides configuration values with the deployment environment.
//
// CLIENT_ID, CLIENT_SECRET, URL and PLAYLIST_ID are honoured when set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv("CLIENT_ID"); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := getenv("CLIENT_SECRET"); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v := getenv("URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := getenv("PLAYLIST_ID"); v != "" {
		c.Spotify.PlaylistID = v
	}
}

// Validate reports configuration that would prevent the API client from working.
func (c *Config) Validate() error {
	id := c.Credentials.Spotify
	if id.ClientID == "" || id.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret are required", ErrMissingCredentials)
	}
	if id.ClientID == "your_spotify_client_id" || id.ClientSecret == "your_spotify_client_secret" {
		return fmt.Errorf("%w: spotify credentials still hold placeholder values", ErrInvalidCredentials)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("%w: server.base_url is required to build the redirect URI", ErrInvalidConfig)
	}
	if c.Spotify.MaxAttempts < 1 {
		return fmt.Errorf("%w: spotify.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Spotify.TokenPath == "" {
		return fmt.Errorf("%w: spotify.token_path is required", ErrInvalidConfig)
	}
	return nil
}
