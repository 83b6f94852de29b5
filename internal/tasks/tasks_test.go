package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
)

type mockReloader struct {
	mu      sync.Mutex
	reloads int
	size    int
	errs    []error
}

func (m *mockReloader) ReloadCache(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return err
	}
	m.size++
	return nil
}

func (m *mockReloader) CacheSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *mockReloader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloads
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestCacheRefresher(t *testing.T) {
	t.Run("RefreshOnce", func(t *testing.T) {
		tests := []struct {
			name    string
			err     error
			wantErr bool
			phase   Phase
		}{
			{"Success", nil, false, ReloadFinished},
			{"Playlist Not Set", fmt.Errorf("reload: %w", shared.ErrPlaylistNotSet), false, ReloadSkipped},
			{"No Token", &services.Error{Kind: services.KindNoToken}, false, ReloadSkipped},
			{"Upstream Failure", &services.Error{Kind: services.KindUpstream, Message: "boom"}, true, ReloadFailed},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				m := &mockReloader{}
				if tt.err != nil {
					m.errs = []error{tt.err}
				}
				events := make(chan RefreshEvent, 4)
				r := NewCacheRefresher(m, time.Minute, quietLogger()).WithEvents(events)

				err := r.RefreshOnce(context.Background())
				if (err != nil) != tt.wantErr {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				close(events)

				var phases []Phase
				for ev := range events {
					phases = append(phases, ev.Phase)
				}
				if len(phases) != 2 || phases[0] != ReloadStarted || phases[1] != tt.phase {
					t.Errorf("expected [reload_started %v], got %v", tt.phase, phases)
				}
			})
		}
	})

	t.Run("Finished Event Reports Track Count", func(t *testing.T) {
		m := &mockReloader{size: 41}
		events := make(chan RefreshEvent, 2)
		r := NewCacheRefresher(m, time.Minute, quietLogger()).WithEvents(events)

		if err := r.RefreshOnce(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		<-events
		ev := <-events
		if ev.Tracks != 42 {
			t.Errorf("expected 42 tracks, got %d", ev.Tracks)
		}
		if ev.Message == "" || ev.At.IsZero() {
			t.Errorf("expected message and timestamp, got %+v", ev)
		}
	})

	t.Run("Full Event Channel Does Not Block", func(t *testing.T) {
		m := &mockReloader{}
		events := make(chan RefreshEvent)
		r := NewCacheRefresher(m, time.Minute, quietLogger()).WithEvents(events)

		done := make(chan error, 1)
		go func() { done <- r.RefreshOnce(context.Background()) }()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("refresh: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("refresh blocked on event channel")
		}
	})

	t.Run("Run", func(t *testing.T) {
		t.Run("Disabled Interval Returns Immediately", func(t *testing.T) {
			m := &mockReloader{}
			r := NewCacheRefresher(m, 0, quietLogger())

			if err := r.Run(context.Background()); err != nil {
				t.Errorf("expected nil, got %v", err)
			}
			if m.count() != 0 {
				t.Error("expected no reloads")
			}
		})

		t.Run("Reloads Until Cancelled", func(t *testing.T) {
			m := &mockReloader{errs: []error{errors.New("transient")}}
			r := NewCacheRefresher(m, 5*time.Millisecond, quietLogger())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- r.Run(ctx) }()

			deadline := time.Now().Add(2 * time.Second)
			for m.count() < 3 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			cancel()

			select {
			case err := <-done:
				if err != nil {
					t.Errorf("expected nil on cancel, got %v", err)
				}
			case <-time.After(time.Second):
				t.Fatal("Run did not stop after cancel")
			}
			if m.count() < 3 {
				t.Errorf("expected loop to continue past a failure, got %d reloads", m.count())
			}
		})
	})
}

func TestPhase(t *testing.T) {
	for phase, want := range map[Phase]string{
		ReloadStarted:  "reload_started",
		ReloadFinished: "reload_finished",
		ReloadFailed:   "reload_failed",
		ReloadSkipped:  "reload_skipped",
		Phase(99):      "",
	} {
		if phase.String() != want {
			t.Errorf("expected %q, got %q", want, phase.String())
		}
	}
}
