package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/jukebox/internal/shared"
)

// Submission statuses.
const (
	StatusAdded     = "added"
	StatusDuplicate = "duplicate"
	StatusFailed    = "failed"
)

// Statuses lists every valid submission status.
var Statuses = []string{StatusAdded, StatusDuplicate, StatusFailed}

// Submission is one attempt to add a track to the playlist.
type Submission struct {
	id        string
	trackID   string
	status    string
	detail    string
	createdAt time.Time
}

// NewSubmission creates a submission stamped with the current time. The ID is assigned on insert.
func NewSubmission(trackID, status, detail string) *Submission {
	return &Submission{
		trackID:   trackID,
		status:    status,
		detail:    detail,
		createdAt: time.Now().UTC(),
	}
}

// RestoreSubmission rebuilds a submission read from storage.
func RestoreSubmission(id, trackID, status, detail string, createdAt time.Time) *Submission {
	return &Submission{id: id, trackID: trackID, status: status, detail: detail, createdAt: createdAt}
}

func (s *Submission) ID() string           { return s.id }
func (s *Submission) TrackID() string      { return s.trackID }
func (s *Submission) Status() string       { return s.status }
func (s *Submission) Detail() string       { return s.detail }
func (s *Submission) CreatedAt() time.Time { return s.createdAt }

// SetID assigns the storage identifier.
func (s *Submission) SetID(id string) { s.id = id }

// Validate checks that the track ID and status are set and the status is known.
func (s *Submission) Validate() error {
	if s.trackID == "" {
		return fmt.Errorf("%w: track_id is required", shared.ErrInvalidInput)
	}
	if !slices.Contains(Statuses, s.status) {
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, s.status)
	}
	return nil
}
