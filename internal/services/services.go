// package services implements the Spotify Web API client behind the playlist service
package services

import (
	"context"
	"strings"
)

// PlaylistService is the set of client operations the route layer and CLI call.
type PlaylistService interface {
	// AuthorizationLink returns the URL that starts the authorization-code flow.
	AuthorizationLink() string

	// VerifyState consumes an OAuth state issued by AuthorizationLink.
	VerifyState(state string) bool

	// ExchangeCode trades an authorization code (or the stored refresh token when code is empty) for a credential.
	ExchangeCode(ctx context.Context, code string) error

	// RefreshIfNeeded renews the credential when it is about to expire.
	RefreshIfNeeded(ctx context.Context) error

	// SearchTrack returns the tracks matching query.
	SearchTrack(ctx context.Context, query string) ([]Track, error)

	// AddTrackToPlaylist appends a track to the configured playlist unless it is already there.
	AddTrackToPlaylist(ctx context.Context, trackID string) error

	// PlaylistName returns the configured playlist's display name.
	PlaylistName(ctx context.Context) (string, error)

	// HasToken reports whether a credential is live.
	HasToken() bool

	// SetPlaylistID selects the playlist tracks are added to.
	SetPlaylistID(id string) error

	// PlaylistID returns the selected playlist, or "" when none is set.
	PlaylistID() string
}

// Recorder receives the outcome of every add attempt.
type Recorder interface {
	Record(ctx context.Context, trackID, status, detail string) error
}

// Image is an artwork resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Artist is the simplified artist object embedded in tracks.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Album is the simplified album object embedded in tracks.
type Album struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ReleaseDate string  `json:"release_date"`
	Images      []Image `json:"images"`
	URI         string  `json:"uri"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// Track is a Spotify track as returned by search.
type Track struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Artists      []Artist     `json:"artists"`
	Album        Album        `json:"album"`
	DurationMS   int          `json:"duration_ms"`
	Explicit     bool         `json:"explicit"`
	Popularity   int          `json:"popularity"`
	URI          string       `json:"uri"`
	ExternalURLs externalURLs `json:"external_urls"`
}

// ArtistNames joins the track's artist names with commas.
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Link returns the track's web URL.
func (t Track) Link() string {
	if t.ExternalURLs.Spotify != "" {
		return t.ExternalURLs.Spotify
	}
	return spotifyTrackURL + t.ID
}

// Artwork returns the first album image URL, or "" when the album has none.
func (t Track) Artwork() string {
	if len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}

type owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type playlistTracks struct {
	Total int `json:"total"`
}

// PlaylistInfo is the playlist metadata shown to users.
type PlaylistInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Owner       owner          `json:"owner"`
	Public      bool           `json:"public"`
	Tracks      playlistTracks `json:"tracks"`
	Images      []Image        `json:"images"`
	URI         string         `json:"uri"`
}

// OwnerName returns the playlist owner's display name, falling back to the owner ID.
func (p PlaylistInfo) OwnerName() string {
	if p.Owner.DisplayName != "" {
		return p.Owner.DisplayName
	}
	return p.Owner.ID
}

// TrackCount returns the total reported by the API.
func (p PlaylistInfo) TrackCount() int {
	return p.Tracks.Total
}
