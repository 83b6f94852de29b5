// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/jukebox/internal/services"
)

// MockService is a test double for [services.PlaylistService].
//
// Each operation returns the matching Err field when set. Calls are recorded for assertions.
type MockService struct {
	mu sync.Mutex

	Link         string
	Authed       bool
	Playlist     string
	Name         string
	Results      []services.Track
	ValidStates  map[string]bool
	Added        []string
	Searches     []string
	Codes        []string
	RefreshCalls int

	ExchangeErr error
	RefreshErr  error
	SearchErr   error
	AddErr      error
	NameErr     error
	SetErr      error
}

// NewMockService returns an authorized mock with a playlist selected.
func NewMockService() *MockService {
	return &MockService{
		Link:        "https://accounts.example/authorize?state=s1",
		Authed:      true,
		Playlist:    "pl",
		Name:        "Party Mix",
		ValidStates: map[string]bool{"s1": true},
	}
}

func (m *MockService) AuthorizationLink() string { return m.Link }

func (m *MockService) VerifyState(state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ValidStates[state] {
		return false
	}
	delete(m.ValidStates, state)
	return true
}

func (m *MockService) ExchangeCode(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Codes = append(m.Codes, code)
	if m.ExchangeErr != nil {
		return m.ExchangeErr
	}
	m.Authed = true
	return nil
}

func (m *MockService) RefreshIfNeeded(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefreshCalls++
	return m.RefreshErr
}

func (m *MockService) SearchTrack(ctx context.Context, query string) ([]services.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Searches = append(m.Searches, query)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	return m.Results, nil
}

func (m *MockService) AddTrackToPlaylist(ctx context.Context, trackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddErr != nil {
		return m.AddErr
	}
	m.Added = append(m.Added, trackID)
	return nil
}

func (m *MockService) PlaylistName(ctx context.Context) (string, error) {
	if m.NameErr != nil {
		return "", m.NameErr
	}
	return m.Name, nil
}

func (m *MockService) HasToken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Authed
}

func (m *MockService) SetPlaylistID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.Playlist = id
	return nil
}

func (m *MockService) PlaylistID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Playlist
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
