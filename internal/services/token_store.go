package services

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

// DefaultTokenPath is where the credential is persisted when the config does not say otherwise.
const DefaultTokenPath = "spotify.token"

// Credential is the access/refresh pair returned by the accounts token endpoint.
type Credential struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"` // seconds
	// ObtainedAt is stamped locally when the token endpoint answers.
	ObtainedAt time.Time `json:"obtained_at,omitzero"`
}

// HasRefreshToken reports whether the credential can be renewed without user interaction.
func (c *Credential) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

// Expiry returns when the access token stops being valid, or the zero time when unknown.
func (c *Credential) Expiry() time.Time {
	if c == nil || c.ObtainedAt.IsZero() || c.ExpiresIn <= 0 {
		return time.Time{}
	}
	return c.ObtainedAt.Add(time.Duration(c.ExpiresIn) * time.Second)
}

// AuthorizationHeader returns the value sent with api-family requests.
func (c *Credential) AuthorizationHeader() string {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.AccessToken
}

// Token converts the credential to an [oauth2.Token].
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    c.TokenType,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry(),
		ExpiresIn:    int64(c.ExpiresIn),
	}
}

// persistedToken is the JSON document stored (base64 encoded) in the token file.
type persistedToken struct {
	Credential
	PlaylistID string `json:"playlistId,omitempty"`
}

// TokenStore persists the live credential to a single file.
type TokenStore struct {
	path   string
	logger *log.Logger
}

// NewTokenStore creates a TokenStore writing to path.
func NewTokenStore(path string, logger *log.Logger) *TokenStore {
	if path == "" {
		path = DefaultTokenPath
	}
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &TokenStore{path: path, logger: logger}
}

// Path returns the file path where the credential is stored.
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the persisted credential and the playlist ID stored alongside it.
//
// Returns (nil, "", nil) when the file does not exist. A file that cannot be decoded is deleted and also
// reported as absent so the caller falls back to re-authorization.
func (s *TokenStore) Load() (*Credential, string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("reading token file: %w", err)
	}

	token, err := decodeToken(data)
	if err != nil {
		s.logger.Warn("discarding corrupt token file", "path", s.path, "error", err)
		if rmErr := s.Delete(); rmErr != nil {
			s.logger.Error("failed to remove corrupt token file", "path", s.path, "error", rmErr)
		}
		return nil, "", nil
	}

	cred := token.Credential
	return &cred, token.PlaylistID, nil
}

// Save overwrites the token file with cred and, when non-empty, playlistID.
func (s *TokenStore) Save(cred *Credential, playlistID string) error {
	if cred == nil {
		return errors.New("cannot save nil credential")
	}

	data, err := json.Marshal(persistedToken{Credential: *cred, PlaylistID: playlistID})
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating token directory: %w", err)
		}
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if err := os.WriteFile(s.path, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	return nil
}

// Delete removes the token file. A missing file is not an error.
func (s *TokenStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

func decodeToken(data []byte) (*persistedToken, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}

	var token persistedToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	if token.AccessToken == "" {
		return nil, errors.New("token has no access_token")
	}

	return &token, nil
}
