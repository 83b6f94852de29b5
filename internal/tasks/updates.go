package tasks

import (
	"fmt"
	"time"
)

// RefreshEvent reports one step of a cache refresh to the CLI or server layer.
type RefreshEvent struct {
	Phase   Phase     // Refresh phase
	Tracks  int       // Cached track count after the phase
	Err     error     // Set for [ReloadFailed] and [ReloadSkipped]
	At      time.Time // When the phase was reached
	Message string    // Human-readable message for display
}

// Refresh phase enumeration
type Phase int

const (
	ReloadStarted Phase = iota
	ReloadFinished
	ReloadFailed
	ReloadSkipped
)

func (p Phase) String() string {
	switch p {
	case ReloadStarted:
		return "reload_started"
	case ReloadFinished:
		return "reload_finished"
	case ReloadFailed:
		return "reload_failed"
	case ReloadSkipped:
		return "reload_skipped"
	default:
		return ""
	}
}

func startedEvent(at time.Time, tracks int) RefreshEvent {
	return RefreshEvent{
		Phase:   ReloadStarted,
		Tracks:  tracks,
		At:      at,
		Message: "Reloading playlist cache...",
	}
}

func finishedEvent(at time.Time, tracks int, took time.Duration) RefreshEvent {
	return RefreshEvent{
		Phase:   ReloadFinished,
		Tracks:  tracks,
		At:      at,
		Message: fmt.Sprintf("Playlist cache reloaded with %d tracks in %s", tracks, took.Round(time.Millisecond)),
	}
}

func failedEvent(at time.Time, err error) RefreshEvent {
	return RefreshEvent{
		Phase:   ReloadFailed,
		Err:     err,
		At:      at,
		Message: fmt.Sprintf("Playlist cache reload failed: %v", err),
	}
}

func skippedEvent(at time.Time, err error) RefreshEvent {
	return RefreshEvent{
		Phase:   ReloadSkipped,
		Err:     err,
		At:      at,
		Message: fmt.Sprintf("Playlist cache reload skipped: %v", err),
	}
}
