package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./jukebox.db" {
			t.Errorf("expected database path ./jukebox.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8888 {
			t.Errorf("expected server port 8888, got %d", config.Server.Port)
		}

		if config.Spotify.MaxAttempts != 5 {
			t.Errorf("expected max attempts 5, got %d", config.Spotify.MaxAttempts)
		}

		if config.Spotify.SearchCacheTTL.Duration != 5*time.Minute {
			t.Errorf("expected search cache ttl 5m, got %s", config.Spotify.SearchCacheTTL)
		}

		if config.Spotify.CacheRefreshInterval.Duration != 15*time.Minute {
			t.Errorf("expected cache refresh interval 15m, got %s", config.Spotify.CacheRefreshInterval)
		}

		if config.Spotify.TokenPath != "spotify.token" {
			t.Errorf("expected token path spotify.token, got %s", config.Spotify.TokenPath)
		}

		if len(config.Spotify.Scopes) != 2 {
			t.Errorf("expected 2 default scopes, got %v", config.Spotify.Scopes)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		testConfig := `[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"

[spotify]
playlist_id = "37i9dQZF1DXcBWIGoYBM5M"
max_attempts = 2
retry_interval = "250ms"

[server]
port = 9000
base_url = "https://jukebox.example.com/"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Credentials.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected client_id test_client_id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Spotify.MaxAttempts != 2 {
			t.Errorf("expected max attempts 2, got %d", config.Spotify.MaxAttempts)
		}
		if config.Spotify.RetryInterval.Duration != 250*time.Millisecond {
			t.Errorf("expected retry interval 250ms, got %s", config.Spotify.RetryInterval)
		}
		if config.Server.Host != "127.0.0.1" {
			t.Errorf("expected default host to survive partial config, got %s", config.Server.Host)
		}
		if got := config.Server.RedirectURI(); got != "https://jukebox.example.com/authorize/" {
			t.Errorf("unexpected redirect URI %s", got)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("LoadConfig Invalid Duration", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[spotify]\nretry_interval = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error for invalid duration")
		}
	})

	t.Run("SaveConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := DefaultConfig()
		config.Spotify.PlaylistID = "saved_playlist"

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}
		if loaded.Spotify.PlaylistID != "saved_playlist" {
			t.Errorf("expected playlist id to round trip, got %q", loaded.Spotify.PlaylistID)
		}
		if loaded.Spotify.SearchCacheTTL != config.Spotify.SearchCacheTTL {
			t.Errorf("expected durations to round trip, got %s", loaded.Spotify.SearchCacheTTL)
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		env := map[string]string{
			"CLIENT_ID":     "env_id",
			"CLIENT_SECRET": "env_secret",
			"URL":           "https://env.example.com",
			"PLAYLIST_ID":   "env_playlist",
		}
		config := DefaultConfig()
		config.ApplyEnv(func(k string) string { return env[k] })

		if config.Credentials.Spotify.ClientID != "env_id" {
			t.Errorf("expected env client id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Credentials.Spotify.ClientSecret != "env_secret" {
			t.Errorf("expected env client secret, got %s", config.Credentials.Spotify.ClientSecret)
		}
		if config.Server.BaseURL != "https://env.example.com" {
			t.Errorf("expected env base url, got %s", config.Server.BaseURL)
		}
		if config.Spotify.PlaylistID != "env_playlist" {
			t.Errorf("expected env playlist, got %s", config.Spotify.PlaylistID)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tt := []struct {
			name    string
			mutate  func(*Config)
			wantErr error
		}{
			{
				name:    "placeholder credentials",
				mutate:  func(c *Config) {},
				wantErr: ErrInvalidCredentials,
			},
			{
				name: "missing secret",
				mutate: func(c *Config) {
					c.Credentials.Spotify = ClientIdentity{ClientID: "id"}
				},
				wantErr: ErrMissingCredentials,
			},
			{
				name: "zero attempts",
				mutate: func(c *Config) {
					c.Credentials.Spotify = ClientIdentity{ClientID: "id", ClientSecret: "secret"}
					c.Spotify.MaxAttempts = 0
				},
				wantErr: ErrInvalidConfig,
			},
			{
				name: "missing base url",
				mutate: func(c *Config) {
					c.Credentials.Spotify = ClientIdentity{ClientID: "id", ClientSecret: "secret"}
					c.Server.BaseURL = ""
				},
				wantErr: ErrInvalidConfig,
			},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				config := DefaultConfig()
				tc.mutate(config)
				if err := config.Validate(); !errors.Is(err, tc.wantErr) {
					t.Errorf("Validate() = %v, want %v", err, tc.wantErr)
				}
			})
		}
	})

	t.Run("LogLevel", func(t *testing.T) {
		config := DefaultConfig()
		config.Log.Level = "debug"
		if config.LogLevel() != log.DebugLevel {
			t.Errorf("expected debug level, got %v", config.LogLevel())
		}

		config.Log.Level = "nonsense"
		if config.LogLevel() != log.InfoLevel {
			t.Errorf("expected fallback to info, got %v", config.LogLevel())
		}
	})
}
