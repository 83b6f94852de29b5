package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyAccountsURL = "https://accounts.spotify.com"
	spotifyAPIURL      = "https://api.spotify.com/v1"
)

// Family selects the endpoint family a request is sent to.
type Family string

const (
	// FamilyAccounts is the OAuth host, authenticated with the Basic client credential.
	FamilyAccounts Family = "accounts"
	// FamilyAPI is the resource host, authenticated with the live access token.
	FamilyAPI Family = "api"
)

// Request describes one call through the [Dispatcher].
//
// At most one of Form and JSON is encoded as the body.
type Request struct {
	Family Family
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	JSON   any
	Header http.Header
}

// Response is a raw API response.
//
// Bodies with a JSON content type are flagged IsJSON; anything else is passed through untouched.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	IsJSON     bool
}

// Decode unmarshals a JSON body into v. Non-JSON responses are reported as [shared.ErrUnexpectedContent].
func (r *Response) Decode(v any) error {
	if r == nil || !r.IsJSON {
		contentType := ""
		if r != nil {
			contentType = r.Header.Get("Content-Type")
		}
		return fmt.Errorf("%w: content type %q", shared.ErrUnexpectedContent, contentType)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is an error object found in a JSON response body.
type APIError struct {
	Status  int
	Message string
	// OAuth marks the accounts-style {"error": "...", "error_description": "..."} shape.
	OAuth bool
}

func (e *APIError) status() int {
	if e == nil {
		return 0
	}
	return e.Status
}

// parseAPIError extracts the error payload of r, or nil when the response is not an error.
func parseAPIError(r *Response) *APIError {
	if r == nil || !r.IsJSON {
		return nil
	}

	var envelope struct {
		Error       json.RawMessage `json:"error"`
		Description string          `json:"error_description"`
	}
	if err := json.Unmarshal(r.Body, &envelope); err != nil {
		return nil
	}

	raw := bytes.TrimSpace(envelope.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '"' {
		var code string
		if err := json.Unmarshal(raw, &code); err != nil {
			return nil
		}
		msg := envelope.Description
		if msg == "" {
			msg = code
		}
		return &APIError{Status: r.StatusCode, Message: msg, OAuth: true}
	}

	var obj struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	if obj.Status == 0 {
		obj.Status = r.StatusCode
	}
	return &APIError{Status: obj.Status, Message: obj.Message}
}

// session is the credential state the dispatcher reads and renews.
type session interface {
	credential() *Credential
	refresh(ctx context.Context) error
	AuthorizationLink() string
}

// Dispatcher issues requests against both endpoint families and applies the retry policy.
type Dispatcher struct {
	httpClient  *http.Client
	accountsURL string
	apiURL      string
	basic       string
	session     session
	retrier     *Retrier
	logger      *log.Logger
	metrics     *Metrics
}

// DispatcherOpts contains configuration for [NewDispatcher].
type DispatcherOpts struct {
	Identity      shared.ClientIdentity
	HTTPClient    *http.Client
	AccountsURL   string
	APIURL        string
	Policy        Policy
	RetryInterval time.Duration
	Logger        *log.Logger
	Metrics       *Metrics
}

// NewDispatcher creates a dispatcher. It cannot send api-family requests until bound to a session.
func NewDispatcher(opts DispatcherOpts) *Dispatcher {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.AccountsURL == "" {
		opts.AccountsURL = spotifyAccountsURL
	}
	if opts.APIURL == "" {
		opts.APIURL = spotifyAPIURL
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	var limiter *rate.Limiter
	if opts.RetryInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.RetryInterval), 1)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(opts.Identity.ClientID + ":" + opts.Identity.ClientSecret))

	return &Dispatcher{
		httpClient:  opts.HTTPClient,
		accountsURL: strings.TrimRight(opts.AccountsURL, "/"),
		apiURL:      strings.TrimRight(opts.APIURL, "/"),
		basic:       basic,
		retrier: &Retrier{
			Policy:  opts.Policy,
			Limiter: limiter,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
		},
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// bind attaches the credential owner used for api-family requests and 401 refreshes.
func (d *Dispatcher) bind(s session) {
	d.session = s
	d.retrier.Refresh = s.refresh
}

// Send performs req under the retry policy.
//
// api-family requests without a credential fail with a NoToken error carrying the authorization link.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Response, error) {
	if req.Family == FamilyAPI && (d.session == nil || d.session.credential() == nil) {
		link := ""
		if d.session != nil {
			link = d.session.AuthorizationLink()
		}
		return nil, noTokenError(link, nil)
	}

	if req.Method == "" {
		req.Method = http.MethodGet
	}

	target, err := d.url(req)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	send := func(ctx context.Context) (*Response, error) {
		return d.do(ctx, req, target, body, contentType)
	}

	resp, err := d.retrier.Do(ctx, send, d.classifier(req.Family))
	d.metrics.request(req.Family, err)
	return resp, err
}

func (d *Dispatcher) url(req Request) (string, error) {
	var base string
	switch req.Family {
	case FamilyAccounts:
		base = d.accountsURL
	case FamilyAPI:
		base = d.apiURL
	default:
		return "", fmt.Errorf("%w: unknown endpoint family %q", shared.ErrInvalidArgument, req.Family)
	}

	target := base + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	return target, nil
}

func encodeBody(req Request) ([]byte, string, error) {
	switch {
	case req.Form != nil:
		return []byte(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return data, "application/json", nil
	default:
		return nil, "", nil
	}
}

// do sends a single attempt. The authorization header is computed per attempt so a refresh takes effect.
func (d *Dispatcher) do(ctx context.Context, req Request, target string, body []byte, contentType string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Authorization") == "" {
		auth, err := d.authorization(req.Family)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", auth)
	}

	d.logger.Debug("sending request", "method", req.Method, "url", target)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		d.logger.Error("request failed", "method", req.Method, "url", target, "error", err)
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(fmt.Errorf("failed to read response: %w", err))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		IsJSON:     strings.Contains(resp.Header.Get("Content-Type"), "application/json"),
	}, nil
}

func (d *Dispatcher) authorization(family Family) (string, error) {
	if family == FamilyAccounts {
		return "Basic " + d.basic, nil
	}

	cred := d.session.credential()
	if cred == nil {
		return "", noTokenError(d.session.AuthorizationLink(), nil)
	}
	return cred.AuthorizationHeader(), nil
}

// classifier returns the decision function for a family. Accounts-family errors never trigger a refresh.
func (d *Dispatcher) classifier(family Family) Classifier {
	policy := d.retrier.Policy
	return func(r *Response) (Decision, *APIError) {
		apiErr := parseAPIError(r)
		if apiErr == nil {
			return Accept, nil
		}
		if family == FamilyAccounts || apiErr.OAuth {
			return Abort, apiErr
		}
		return policy.Classify(apiErr), apiErr
	}
}
