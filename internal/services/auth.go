package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthPath  = "/authorize"
	spotifyTokenPath = "/api/token"

	stateCacheSize = 256
	stateTTL       = 10 * time.Minute
)

// DefaultScopes are requested when the config does not list any.
var DefaultScopes = []string{"playlist-modify-public", "playlist-read-collaborative"}

// AuthorizationFlow builds the user-facing authorization link and trades codes or refresh tokens for credentials.
type AuthorizationFlow struct {
	config     *oauth2.Config
	dispatcher *Dispatcher
	states     *expirable.LRU[string, struct{}]
	logger     *log.Logger
	now        func() time.Time
}

// AuthorizationFlowOpts contains configuration for [NewAuthorizationFlow].
type AuthorizationFlowOpts struct {
	Identity    shared.ClientIdentity
	RedirectURI string
	Scopes      []string
	AccountsURL string
	Dispatcher  *Dispatcher
	Logger      *log.Logger
}

// NewAuthorizationFlow creates an AuthorizationFlow sending token requests through opts.Dispatcher.
func NewAuthorizationFlow(opts AuthorizationFlowOpts) *AuthorizationFlow {
	if opts.AccountsURL == "" {
		opts.AccountsURL = spotifyAccountsURL
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = DefaultScopes
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &AuthorizationFlow{
		config: &oauth2.Config{
			ClientID:     opts.Identity.ClientID,
			ClientSecret: opts.Identity.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AccountsURL + spotifyAuthPath,
				TokenURL:  opts.AccountsURL + spotifyTokenPath,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		dispatcher: opts.Dispatcher,
		states:     expirable.NewLRU[string, struct{}](stateCacheSize, nil, stateTTL),
		logger:     opts.Logger,
		now:        time.Now,
	}
}

// AuthorizationLink returns the URL the user visits to grant access. Each call issues a fresh state.
func (f *AuthorizationFlow) AuthorizationLink() string {
	state, err := shared.GenerateState()
	if err != nil {
		f.logger.Error("failed to generate state", "error", err)
		state = shared.GenerateID()
	}
	f.states.Add(state, struct{}{})
	return f.config.AuthCodeURL(state)
}

// RedirectURI is the callback registered with the provider.
func (f *AuthorizationFlow) RedirectURI() string {
	return f.config.RedirectURL
}

// VerifyState reports whether state was issued by this flow and has not expired. A state verifies once.
func (f *AuthorizationFlow) VerifyState(state string) bool {
	if state == "" {
		return false
	}
	if _, ok := f.states.Get(state); !ok {
		return false
	}
	f.states.Remove(state)
	return true
}

// Exchange trades an authorization code for a credential.
func (f *AuthorizationFlow) Exchange(ctx context.Context, code string) (*Credential, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {f.config.RedirectURL},
	}

	cred, err := f.requestToken(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}
	return cred, nil
}

// Refresh renews current using its refresh token. When the response omits a refresh token the old one is kept.
func (f *AuthorizationFlow) Refresh(ctx context.Context, current *Credential) (*Credential, error) {
	if !current.HasRefreshToken() {
		return nil, noTokenError(f.AuthorizationLink(), shared.ErrNoRefreshToken)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
	}

	cred, err := f.requestToken(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	if cred.RefreshToken == "" {
		cred.RefreshToken = current.RefreshToken
	}
	return cred, nil
}

func (f *AuthorizationFlow) requestToken(ctx context.Context, form url.Values) (*Credential, error) {
	resp, err := f.dispatcher.Send(ctx, Request{
		Family: FamilyAccounts,
		Method: http.MethodPost,
		Path:   spotifyTokenPath,
		Form:   form,
	})
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := resp.Decode(&cred); err != nil {
		return nil, err
	}
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response has no access_token", shared.ErrUnexpectedContent)
	}

	cred.ObtainedAt = f.now()
	return &cred, nil
}
