package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	spotifyTrackURL = "https://open.spotify.com/track/"
	trackURIPrefix  = "spotify:track:"

	playlistURIPrefix = "spotify:playlist:"

	// refreshSkew renews a credential this long before it expires.
	refreshSkew = time.Minute
)

var (
	trackLinkPattern = regexp.MustCompile(`^https?://open\.spotify\.com/(?:intl-[a-z-]+/)?track/([^?/#]+)`)
	trackIDPattern   = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

	playlistLinkPattern = regexp.MustCompile(`^https?://open\.spotify\.com/(?:intl-[a-z-]+/)?playlist/([^?/#]+)`)
	playlistIDPattern   = regexp.MustCompile(`^[0-9A-Za-z]+$`)
)

// ParseTrackID extracts a track ID from a web link, a spotify:track: URI or a bare ID.
func ParseTrackID(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("%w: empty track link", shared.ErrInvalidInput)
	}

	if m := trackLinkPattern.FindStringSubmatch(link); m != nil && trackIDPattern.MatchString(m[1]) {
		return m[1], nil
	}
	if id, ok := strings.CutPrefix(link, trackURIPrefix); ok {
		if trackIDPattern.MatchString(id) {
			return id, nil
		}
		return "", fmt.Errorf("%w: not a track URI: %q", shared.ErrInvalidInput, link)
	}
	if trackIDPattern.MatchString(link) {
		return link, nil
	}

	return "", fmt.Errorf("%w: not a track link: %q", shared.ErrInvalidInput, link)
}

// ParsePlaylistID extracts a playlist ID from a web link, a spotify:playlist: URI or a bare ID.
func ParsePlaylistID(link string) (string, error) {
	link = strings.TrimSpace(link)
	if m := playlistLinkPattern.FindStringSubmatch(link); m != nil {
		return m[1], nil
	}
	if id, ok := strings.CutPrefix(link, playlistURIPrefix); ok {
		link = id
	}
	if playlistIDPattern.MatchString(link) {
		return link, nil
	}
	return "", fmt.Errorf("%w: not a playlist link: %q", shared.ErrInvalidInput, link)
}

// ClientState is the authorization state of a [SpotifyClient].
type ClientState int

const (
	Uninitialized ClientState = iota
	AwaitingAuthorization
	Authorized
)

func (s ClientState) String() string {
	switch s {
	case AwaitingAuthorization:
		return "awaiting_authorization"
	case Authorized:
		return "authorized"
	default:
		return "uninitialized"
	}
}

// ClientOpts contains configuration for [NewSpotifyClient].
type ClientOpts struct {
	Identity    shared.ClientIdentity
	RedirectURI string
	Scopes      []string
	// PlaylistID takes precedence over the one persisted with the token.
	PlaylistID string

	TokenStore     *TokenStore
	HTTPClient     *http.Client
	AccountsURL    string
	APIURL         string
	Policy         Policy
	RetryInterval  time.Duration
	RequestTimeout time.Duration

	SearchCacheSize int
	SearchCacheTTL  time.Duration

	Recorder Recorder
	Logger   *log.Logger
	Metrics  *Metrics
}

// ClientOptsFromConfig maps the loaded configuration onto [ClientOpts].
func ClientOptsFromConfig(cfg *shared.Config, logger *log.Logger) ClientOpts {
	policy := DefaultPolicy()
	if cfg.Spotify.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Spotify.MaxAttempts
	}

	return ClientOpts{
		Identity:        cfg.Credentials.Spotify,
		RedirectURI:     cfg.Server.RedirectURI(),
		Scopes:          cfg.Spotify.Scopes,
		PlaylistID:      cfg.Spotify.PlaylistID,
		TokenStore:      NewTokenStore(cfg.Spotify.TokenPath, logger),
		Policy:          policy,
		RetryInterval:   cfg.Spotify.RetryInterval.Duration,
		RequestTimeout:  cfg.Spotify.RequestTimeout.Duration,
		SearchCacheSize: cfg.Spotify.SearchCacheSize,
		SearchCacheTTL:  cfg.Spotify.SearchCacheTTL.Duration,
		Logger:          logger,
	}
}

// clientState is the mutable state owned by the client. It is replaced as a whole on every change.
type clientState struct {
	cred       *Credential
	playlistID string
	// playlistName is the fetched name of playlistID, or "" until fetched.
	playlistName string
}

// SpotifyClient composes the token store, authorization flow, dispatcher and playlist cache into the operations
// exposed to the route layer. One client serves the whole process and is passed to collaborators explicitly.
type SpotifyClient struct {
	dispatcher *Dispatcher
	auth       *AuthorizationFlow
	store      *TokenStore
	cache      *PlaylistCache
	searches   *expirable.LRU[string, []Track]
	recorder   Recorder

	refreshGroup singleflight.Group

	mu    sync.RWMutex
	state clientState

	logger  *log.Logger
	metrics *Metrics
	now     func() time.Time
}

var _ PlaylistService = (*SpotifyClient)(nil)

// NewSpotifyClient creates a client and restores any persisted credential.
func NewSpotifyClient(opts ClientOpts) (*SpotifyClient, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.TokenStore == nil {
		opts.TokenStore = NewTokenStore(DefaultTokenPath, opts.Logger)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.RequestTimeout}
	}

	logger := shared.WithLogger(opts.Logger, "component", "spotify")

	dispatcher := NewDispatcher(DispatcherOpts{
		Identity:      opts.Identity,
		HTTPClient:    opts.HTTPClient,
		AccountsURL:   opts.AccountsURL,
		APIURL:        opts.APIURL,
		Policy:        opts.Policy,
		RetryInterval: opts.RetryInterval,
		Logger:        logger,
		Metrics:       opts.Metrics,
	})

	auth := NewAuthorizationFlow(AuthorizationFlowOpts{
		Identity:    opts.Identity,
		RedirectURI: opts.RedirectURI,
		Scopes:      opts.Scopes,
		AccountsURL: dispatcher.accountsURL,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	c := &SpotifyClient{
		dispatcher: dispatcher,
		auth:       auth,
		store:      opts.TokenStore,
		recorder:   opts.Recorder,
		logger:     logger,
		metrics:    opts.Metrics,
		now:        time.Now,
	}
	c.cache = NewPlaylistCache(c.fetchPlaylistPage, c.postTrack, logger, opts.Metrics)
	if opts.SearchCacheSize > 0 {
		c.searches = expirable.NewLRU[string, []Track](opts.SearchCacheSize, nil, opts.SearchCacheTTL)
	}
	dispatcher.bind(c)

	cred, persistedPlaylist, err := c.store.Load()
	if err != nil {
		return nil, err
	}

	playlistID := opts.PlaylistID
	if playlistID == "" {
		playlistID = persistedPlaylist
	}
	c.state = clientState{cred: cred, playlistID: playlistID}

	if cred != nil {
		logger.Info("restored credential", "path", c.store.Path(), "refreshable", cred.HasRefreshToken())
	}

	return c, nil
}

func (c *SpotifyClient) credential() *Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.cred
}

func (c *SpotifyClient) snapshot() clientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// setCredential replaces the live credential and persists it with the playlist ID.
func (c *SpotifyClient) setCredential(cred *Credential) error {
	c.mu.Lock()
	c.state = clientState{cred: cred, playlistID: c.state.playlistID, playlistName: c.state.playlistName}
	playlistID := c.state.playlistID
	c.mu.Unlock()

	if err := c.store.Save(cred, playlistID); err != nil {
		c.logger.Error("failed to persist credential", "path", c.store.Path(), "error", err)
		return err
	}
	return nil
}

// refresh renews the live credential. Concurrent callers share one token request.
func (c *SpotifyClient) refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		cred, err := c.auth.Refresh(ctx, c.credential())
		c.metrics.refreshed(err)
		if err != nil {
			return nil, err
		}

		if err := c.setCredential(cred); err != nil {
			c.logger.Warn("refreshed credential was not persisted", "error", err)
		}
		c.logger.Info("access token refreshed", "expires_in", cred.ExpiresIn)
		return nil, nil
	})
	return err
}

// AuthorizationLink returns the URL that starts the authorization-code flow.
func (c *SpotifyClient) AuthorizationLink() string {
	return c.auth.AuthorizationLink()
}

// VerifyState consumes an OAuth state issued by [SpotifyClient.AuthorizationLink].
func (c *SpotifyClient) VerifyState(state string) bool {
	return c.auth.VerifyState(state)
}

// ExchangeCode obtains a credential.
//
// With a code, the authorization code is exchanged even if a credential exists. Without a code, the stored refresh
// token is used; with neither, [shared.ErrMissingArgument] is returned.
func (c *SpotifyClient) ExchangeCode(ctx context.Context, code string) error {
	if code == "" {
		if c.credential() == nil {
			return fmt.Errorf("%w: 'code'", shared.ErrMissingArgument)
		}
		return c.refresh(ctx)
	}

	cred, err := c.auth.Exchange(ctx, code)
	if err != nil {
		return err
	}

	if err := c.setCredential(cred); err != nil {
		return err
	}
	c.logger.Info("authorization code exchanged", "scope", cred.Scope)
	return nil
}

// RefreshIfNeeded renews the credential when it expires within a minute. Credentials of unknown age are left to the
// dispatcher's 401 handling.
func (c *SpotifyClient) RefreshIfNeeded(ctx context.Context) error {
	cred := c.credential()
	if cred == nil {
		return noTokenError(c.AuthorizationLink(), nil)
	}

	expiry := cred.Expiry()
	if expiry.IsZero() || c.now().Add(refreshSkew).Before(expiry) {
		return nil
	}

	c.logger.Debug("access token near expiry", "expiry", expiry)
	return c.refresh(ctx)
}

// SearchTrack returns tracks matching query. Results are cached when a search cache is configured.
func (c *SpotifyClient) SearchTrack(ctx context.Context, query string) ([]Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}

	key := strings.ToLower(query)
	if c.searches != nil {
		if tracks, ok := c.searches.Get(key); ok {
			return tracks, nil
		}
	}

	resp, err := c.dispatcher.Send(ctx, Request{
		Family: FamilyAPI,
		Path:   "/search",
		Query:  url.Values{"q": {query}, "type": {"track"}},
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Tracks struct {
			Items []Track `json:"items"`
		} `json:"tracks"`
	}
	if err := resp.Decode(&result); err != nil {
		return nil, err
	}

	tracks := result.Tracks.Items
	if tracks == nil {
		tracks = []Track{}
	}
	if c.searches != nil {
		c.searches.Add(key, tracks)
	}
	return tracks, nil
}

// AddTrackToPlaylist appends trackID to the selected playlist unless the cache already knows it.
func (c *SpotifyClient) AddTrackToPlaylist(ctx context.Context, trackID string) error {
	if trackID == "" {
		return fmt.Errorf("%w: track ID", shared.ErrMissingArgument)
	}
	if c.PlaylistID() == "" {
		return shared.ErrPlaylistNotSet
	}

	c.logger.Info("adding track", "track", trackID)
	err := c.cache.Add(ctx, trackID)
	c.record(ctx, trackID, err)
	return err
}

func (c *SpotifyClient) record(ctx context.Context, trackID string, addErr error) {
	if c.recorder == nil {
		return
	}

	status, detail := models.StatusAdded, ""
	switch {
	case KindOf(addErr) == KindAlreadyAdded:
		status = models.StatusDuplicate
	case addErr != nil:
		status, detail = models.StatusFailed, addErr.Error()
	}

	if err := c.recorder.Record(ctx, trackID, status, detail); err != nil {
		c.logger.Warn("failed to record submission", "track", trackID, "error", err)
	}
}

func (c *SpotifyClient) playlistPath(suffix string) (string, error) {
	id := c.PlaylistID()
	if id == "" {
		return "", shared.ErrPlaylistNotSet
	}
	return "/playlists/" + url.PathEscape(id) + suffix, nil
}

func (c *SpotifyClient) fetchPlaylistPage(ctx context.Context, offset, limit int) (*PlaylistPage, error) {
	path, err := c.playlistPath("/tracks")
	if err != nil {
		return nil, err
	}

	resp, err := c.dispatcher.Send(ctx, Request{
		Family: FamilyAPI,
		Path:   path,
		Query: url.Values{
			"offset": {strconv.Itoa(offset)},
			"limit":  {strconv.Itoa(limit)},
			"fields": {"items(track(id)),total"},
		},
	})
	if err != nil {
		return nil, err
	}

	var page PlaylistPage
	if err := resp.Decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *SpotifyClient) postTrack(ctx context.Context, trackID string) error {
	path, err := c.playlistPath("/tracks")
	if err != nil {
		return err
	}

	resp, err := c.dispatcher.Send(ctx, Request{
		Family: FamilyAPI,
		Method: http.MethodPost,
		Path:   path,
		JSON:   map[string][]string{"uris": {trackURIPrefix + trackID}},
	})
	if err != nil {
		return err
	}

	// Only a 2xx JSON reply carrying a snapshot confirms the add.
	var added struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Kind: KindUpstream, Message: "unconfirmed track add", Status: resp.StatusCode}
	}
	if err := resp.Decode(&added); err != nil {
		return &Error{Kind: KindUpstream, Message: "unconfirmed track add", Status: resp.StatusCode, Err: err}
	}
	if added.SnapshotID == "" {
		return &Error{
			Kind:    KindUpstream,
			Message: "unconfirmed track add",
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%w: missing snapshot_id", shared.ErrUnexpectedContent),
		}
	}
	return nil
}

// FetchPlaylistInfo returns the selected playlist's metadata.
func (c *SpotifyClient) FetchPlaylistInfo(ctx context.Context) (*PlaylistInfo, error) {
	path, err := c.playlistPath("")
	if err != nil {
		return nil, err
	}

	resp, err := c.dispatcher.Send(ctx, Request{
		Family: FamilyAPI,
		Path:   path,
		Query:  url.Values{"fields": {"id,name,description,owner(id,display_name),public,tracks(total),images,uri"}},
	})
	if err != nil {
		return nil, err
	}

	var info PlaylistInfo
	if err := resp.Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

// PlaylistName returns the selected playlist's name. The name is fetched once per selected playlist.
func (c *SpotifyClient) PlaylistName(ctx context.Context) (string, error) {
	st := c.snapshot()
	if st.playlistID == "" {
		return "", shared.ErrPlaylistNotSet
	}
	if st.playlistName != "" {
		return st.playlistName, nil
	}
	path := "/playlists/" + url.PathEscape(st.playlistID)

	resp, err := c.dispatcher.Send(ctx, Request{
		Family: FamilyAPI,
		Path:   path,
		Query:  url.Values{"fields": {"name"}},
	})
	if err != nil {
		return "", err
	}

	var info struct {
		Name string `json:"name"`
	}
	if err := resp.Decode(&info); err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.state.playlistID == st.playlistID {
		next := c.state
		next.playlistName = info.Name
		c.state = next
	}
	c.mu.Unlock()
	return info.Name, nil
}

// HasToken reports whether a credential is live.
func (c *SpotifyClient) HasToken() bool {
	return c.credential() != nil
}

// Token returns a copy of the live credential, or nil.
func (c *SpotifyClient) Token() *Credential {
	cred := c.credential()
	if cred == nil {
		return nil
	}
	cp := *cred
	return &cp
}

// SetPlaylistID selects the playlist and persists it next to the credential. Changing the playlist drops the cache.
func (c *SpotifyClient) SetPlaylistID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: playlist ID", shared.ErrMissingArgument)
	}

	c.mu.Lock()
	changed := c.state.playlistID != id
	name := c.state.playlistName
	if changed {
		name = ""
	}
	c.state = clientState{cred: c.state.cred, playlistID: id, playlistName: name}
	cred := c.state.cred
	c.mu.Unlock()

	if changed {
		c.cache.Invalidate()
		c.logger.Info("playlist selected", "playlist", id)
	}

	if cred == nil {
		return nil
	}
	return c.store.Save(cred, id)
}

// PlaylistID returns the selected playlist, or "".
func (c *SpotifyClient) PlaylistID() string {
	return c.snapshot().playlistID
}

// InvalidateCache drops the playlist cache.
func (c *SpotifyClient) InvalidateCache() {
	c.cache.Invalidate()
}

// ReloadCache invalidates and reloads the playlist cache.
func (c *SpotifyClient) ReloadCache(ctx context.Context) error {
	if c.PlaylistID() == "" {
		return shared.ErrPlaylistNotSet
	}
	return c.cache.Reload(ctx)
}

// CacheSize returns the number of cached playlist tracks.
func (c *SpotifyClient) CacheSize() int {
	return c.cache.Len()
}

// CacheLoadedAt returns when the playlist cache was loaded, or the zero time.
func (c *SpotifyClient) CacheLoadedAt() time.Time {
	return c.cache.LoadedAt()
}

// State reports the authorization state.
func (c *SpotifyClient) State() ClientState {
	if c == nil {
		return Uninitialized
	}
	if c.credential() == nil {
		return AwaitingAuthorization
	}
	return Authorized
}

// Logout forgets the live credential and removes the token file.
func (c *SpotifyClient) Logout() error {
	c.mu.Lock()
	c.state = clientState{playlistID: c.state.playlistID, playlistName: c.state.playlistName}
	c.mu.Unlock()

	c.cache.Invalidate()
	return c.store.Delete()
}
