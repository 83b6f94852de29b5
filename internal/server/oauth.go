package server

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
)

// AuthorizeHandler handles the OAuth2 authorization code callback.
// Implements the Handler interface for registration with a Router.
//
// The service authorizes once; callbacks that arrive after a credential exists are rejected.
type AuthorizeHandler struct {
	service services.PlaylistService
	logger  *log.Logger
}

// NewAuthorizeHandler creates a callback handler that trades codes through service.
func NewAuthorizeHandler(service services.PlaylistService, logger *log.Logger) *AuthorizeHandler {
	return &AuthorizeHandler{service: service, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthorizeHandler) Routes() []string {
	return []string{"/authorize/"}
}

// ServeHTTP handles the OAuth callback request.
//
// Validates the state parameter, exchanges the authorization code and redirects to the index page.
func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.service.HasToken() {
		http.Error(w, "Already authorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		if reason := q.Get("error"); reason != "" {
			h.logger.Warn("authorization denied", "error", reason, "description", q.Get("error_description"))
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if !h.service.VerifyState(q.Get("state")) {
		h.logger.Warn("authorization callback rejected", "error", shared.ErrInvalidState)
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	if err := h.service.ExchangeCode(r.Context(), code); err != nil {
		if errors.Is(err, shared.ErrMissingArgument) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		h.logger.Error("token exchange failed", "error", err)
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("authorized")
	http.Redirect(w, r, "/?authed=1", http.StatusFound)
}
