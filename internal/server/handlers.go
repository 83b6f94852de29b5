package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/desertthunder/jukebox/internal/services"
)

type indexPage struct {
	Authed       bool
	Success      bool
	AlreadyAdded bool
	AuthMissing  bool
	NeedsSetup   bool
	AuthLink     string
	PlaylistName string
}

type searchPage struct {
	Query        string
	QueryInvalid bool
	Searched     bool
	Tracks       []services.Track
}

// handleIndex renders the submission form along with the outcome flags carried in the query string.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := indexPage{
		Authed:       q.Get("authed") != "",
		Success:      q.Get("success") != "",
		AlreadyAdded: q.Get("already_added") != "",
		AuthMissing:  !s.service.HasToken(),
		NeedsSetup:   s.service.PlaylistID() == "",
	}

	if page.AuthMissing {
		page.AuthLink = s.service.AuthorizationLink()
	} else if !page.NeedsSetup {
		name, err := s.service.PlaylistName(r.Context())
		if err != nil {
			s.logger.Warn("playlist name unavailable", "error", err)
		}
		page.PlaylistName = name
	}

	s.render(w, "index.html", page)
}

// handleSearch renders the search form and, for POST requests, the matching tracks.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.render(w, "search.html", searchPage{})
		return
	}

	query := strings.TrimSpace(r.PostFormValue("query"))
	if query == "" {
		s.render(w, "search.html", searchPage{QueryInvalid: true})
		return
	}

	if !s.refresh(w, r) {
		return
	}

	tracks, err := s.service.SearchTrack(r.Context(), query)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.render(w, "search.html", searchPage{Query: query, Searched: true, Tracks: tracks})
}

// handleSubmit adds the track named by the spotify_link form field.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	trackID, err := services.ParseTrackID(r.PostFormValue("spotify_link"))
	if err != nil {
		s.logger.Debug("submission rejected", "error", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if !s.refresh(w, r) {
		return
	}

	s.logger.Info("adding track", "track", trackID)
	if err := s.service.AddTrackToPlaylist(r.Context(), trackID); err != nil {
		s.fail(w, r, err)
		return
	}

	http.Redirect(w, r, "/?success=1", http.StatusFound)
}

// handleSetup selects the playlist when none is configured.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if s.service.PlaylistID() != "" {
		http.Error(w, "Playlist already configured", http.StatusConflict)
		return
	}

	id, err := services.ParsePlaylistID(r.PostFormValue("playlist"))
	if err != nil {
		http.Error(w, "Invalid playlist", http.StatusBadRequest)
		return
	}

	if err := s.service.SetPlaylistID(id); err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info("playlist selected", "playlist", id)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{
		"status":     "ok",
		"service":    "jukebox",
		"authorized": s.service.HasToken(),
		"playlist":   s.service.PlaylistID() != "",
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("health response failed", "error", err)
	}
}

// refresh renews the credential ahead of an API call. It reports false when a response was already written.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) bool {
	err := s.service.RefreshIfNeeded(r.Context())
	switch {
	case err == nil:
		return true
	case services.KindOf(err) == services.KindNoToken:
		s.fail(w, r, err)
		return false
	default:
		s.logger.Warn("credential refresh failed", "error", err)
		return true
	}
}

// fail maps a client error to a redirect or status code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch services.KindOf(err) {
	case services.KindNoToken:
		link, _ := services.AuthLinkOf(err)
		if link == "" {
			link = s.service.AuthorizationLink()
		}
		http.Redirect(w, r, link, http.StatusFound)
	case services.KindAlreadyAdded:
		http.Redirect(w, r, "/?already_added=1", http.StatusFound)
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) render(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.Render(w, page, data); err != nil {
		s.logger.Error("render failed", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
