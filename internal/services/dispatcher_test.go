package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/shared"
)

type fakeSession struct {
	cred       *Credential
	refreshes  int
	refreshErr error
}

func (s *fakeSession) credential() *Credential { return s.cred }

func (s *fakeSession) refresh(context.Context) error {
	s.refreshes++
	if s.refreshErr != nil {
		return s.refreshErr
	}
	s.cred = &Credential{TokenType: "Bearer", AccessToken: "fresh", RefreshToken: s.cred.RefreshToken}
	return nil
}

func (s *fakeSession) AuthorizationLink() string { return "https://accounts.example.com/authorize?state=x" }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func apiErrorBody(status int, msg string) map[string]any {
	return map[string]any{"error": map[string]any{"status": status, "message": msg}}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestDispatcher(t *testing.T, srv *httptest.Server, s session) *Dispatcher {
	t.Helper()
	d := NewDispatcher(DispatcherOpts{
		Identity:    shared.ClientIdentity{ClientID: "id", ClientSecret: "secret"},
		HTTPClient:  srv.Client(),
		AccountsURL: srv.URL + "/accounts",
		APIURL:      srv.URL + "/v1",
		Logger:      discardLogger(),
	})
	if s != nil {
		d.bind(s)
	}
	return d
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("Retry Policy", func(t *testing.T) {
		t.Run("Five Unauthorized Responses Exhaust Attempts", func(t *testing.T) {
			var sends atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sends.Add(1)
				writeJSON(w, http.StatusUnauthorized, apiErrorBody(401, "The access token expired"))
			}))
			defer srv.Close()

			sess := &fakeSession{cred: &Credential{AccessToken: "stale", RefreshToken: "r"}}
			d := newTestDispatcher(t, srv, sess)

			_, err := d.Send(ctx, Request{Family: FamilyAPI, Path: "/me"})
			if KindOf(err) != KindExhausted {
				t.Fatalf("expected exhausted error, got %v", err)
			}
			if !errors.Is(err, shared.ErrRetriesExhausted) {
				t.Errorf("expected ErrRetriesExhausted, got %v", err)
			}
			if !strings.Contains(err.Error(), "no valid response after 5 tries") {
				t.Errorf("unexpected message: %v", err)
			}
			if got := sends.Load(); got != DefaultMaxAttempts {
				t.Errorf("expected %d sends, got %d", DefaultMaxAttempts, got)
			}
			if sess.refreshes != DefaultMaxAttempts-1 {
				t.Errorf("expected %d refreshes, got %d", DefaultMaxAttempts-1, sess.refreshes)
			}
		})

		t.Run("Refresh Updates Authorization Header", func(t *testing.T) {
			var headers []string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				headers = append(headers, r.Header.Get("Authorization"))
				if r.Header.Get("Authorization") == "Bearer stale" {
					writeJSON(w, http.StatusUnauthorized, apiErrorBody(401, "expired"))
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"id": "me"})
			}))
			defer srv.Close()

			sess := &fakeSession{cred: &Credential{AccessToken: "stale", RefreshToken: "r"}}
			d := newTestDispatcher(t, srv, sess)

			resp, err := d.Send(ctx, Request{Family: FamilyAPI, Path: "/me"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(headers) != 2 || headers[1] != "Bearer fresh" {
				t.Errorf("expected second attempt with refreshed token, got %v", headers)
			}

			var body map[string]string
			if err := resp.Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["id"] != "me" {
				t.Errorf("expected id 'me', got %q", body["id"])
			}
		})

		t.Run("Refresh Failure Is Returned", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, apiErrorBody(401, "expired"))
			}))
			defer srv.Close()

			refreshErr := errors.New("refresh broke")
			sess := &fakeSession{cred: &Credential{AccessToken: "stale"}, refreshErr: refreshErr}
			d := newTestDispatcher(t, srv, sess)

			_, err := d.Send(ctx, Request{Family: FamilyAPI, Path: "/me"})
			if !errors.Is(err, refreshErr) {
				t.Errorf("expected refresh error, got %v", err)
			}
			if sess.refreshes != 1 {
				t.Errorf("expected 1 refresh, got %d", sess.refreshes)
			}
		})

		t.Run("Forbidden Then Success Retries Once", func(t *testing.T) {
			var sends atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if sends.Add(1) == 1 {
					writeJSON(w, http.StatusForbidden, apiErrorBody(403, "rate limited"))
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"name": "Party"})
			}))
			defer srv.Close()

			sess := &fakeSession{cred: &Credential{AccessToken: "tok"}}
			d := newTestDispatcher(t, srv, sess)

			resp, err := d.Send(ctx, Request{Family: FamilyAPI, Path: "/playlists/p"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got := sends.Load(); got != 2 {
				t.Errorf("expected 2 sends, got %d", got)
			}
			if sess.refreshes != 0 {
				t.Errorf("expected no refresh, got %d", sess.refreshes)
			}
			if !resp.IsJSON {
				t.Error("expected JSON response")
			}
		})

		t.Run("Other Status Aborts With Message", func(t *testing.T) {
			var sends atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sends.Add(1)
				writeJSON(w, http.StatusNotFound, apiErrorBody(404, "Resource not found"))
			}))
			defer srv.Close()

			d := newTestDispatcher(t, srv, &fakeSession{cred: &Credential{AccessToken: "tok"}})

			_, err := d.Send(ctx, Request{Family: FamilyAPI, Path: "/playlists/missing"})
			if KindOf(err) != KindUpstream {
				t.Fatalf("expected upstream error, got %v", err)
			}
			if !strings.Contains(err.Error(), "Resource not found") {
				t.Errorf("expected upstream message in %q", err.Error())
			}
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Error("expected ErrAPIRequest")
			}
			if got := sends.Load(); got != 1 {
				t.Errorf("expected 1 send, got %d", got)
			}
		})

		t.Run("Transport Error Aborts Immediately", func(t *testing.T) {
			var calls int
			client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
				calls++
				return nil, errors.New("connection refused")
			})}

			d := NewDispatcher(DispatcherOpts{HTTPClient: client, Logger: discardLogger()})
			d.bind(&fakeSession{cred: &Credential{AccessToken: "tok"}})

			_, err := d.Send(ctx, Request{Family: FamilyAPI, Path: "/me"})
			if KindOf(err) != KindTransport {
				t.Fatalf("expected transport error, got %v", err)
			}
			if !errors.Is(err, shared.ErrTransport) {
				t.Error("expected ErrTransport")
			}
			if calls != 1 {
				t.Errorf("expected 1 call, got %d", calls)
			}
		})
	})

	t.Run("No Credential", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		}))
		defer srv.Close()

		d := newTestDispatcher(t, srv, &fakeSession{})

		_, err := d.Send(ctx, Request{Family: FamilyAPI, Path: "/me"})
		if KindOf(err) != KindNoToken {
			t.Fatalf("expected no token error, got %v", err)
		}
		link, ok := AuthLinkOf(err)
		if !ok || link == "" {
			t.Error("expected authorization link on error")
		}
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Error("expected ErrNotAuthenticated")
		}
	})

	t.Run("Accounts Family", func(t *testing.T) {
		t.Run("Uses Basic Credential And Form Body", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user, pass, ok := r.BasicAuth()
				if !ok || user != "id" || pass != "secret" {
					t.Errorf("expected basic auth id:secret, got %q %q", user, pass)
				}
				if r.URL.Path != "/accounts/api/token" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
					t.Errorf("unexpected content type %q", ct)
				}
				r.ParseForm()
				if r.PostForm.Get("grant_type") != "client_credentials" {
					t.Errorf("unexpected form %v", r.PostForm)
				}
				writeJSON(w, http.StatusOK, map[string]string{"access_token": "a"})
			}))
			defer srv.Close()

			d := newTestDispatcher(t, srv, nil)
			_, err := d.Send(ctx, Request{
				Family: FamilyAccounts,
				Method: http.MethodPost,
				Path:   "/api/token",
				Form:   map[string][]string{"grant_type": {"client_credentials"}},
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("OAuth Errors Never Refresh", func(t *testing.T) {
			var sends atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sends.Add(1)
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error":             "invalid_grant",
					"error_description": "Invalid refresh token",
				})
			}))
			defer srv.Close()

			sess := &fakeSession{cred: &Credential{AccessToken: "tok", RefreshToken: "r"}}
			d := newTestDispatcher(t, srv, sess)

			_, err := d.Send(ctx, Request{Family: FamilyAccounts, Method: http.MethodPost, Path: "/api/token"})
			if KindOf(err) != KindUpstream {
				t.Fatalf("expected upstream error, got %v", err)
			}
			if !strings.Contains(err.Error(), "Invalid refresh token") {
				t.Errorf("expected description in %q", err.Error())
			}
			if sess.refreshes != 0 || sends.Load() != 1 {
				t.Errorf("expected single send and no refresh, got %d sends %d refreshes", sends.Load(), sess.refreshes)
			}
		})
	})

	t.Run("Caller Authorization Header Wins", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer override" {
				t.Errorf("expected caller header, got %q", got)
			}
			writeJSON(w, http.StatusOK, map[string]string{})
		}))
		defer srv.Close()

		d := newTestDispatcher(t, srv, &fakeSession{cred: &Credential{AccessToken: "tok"}})
		_, err := d.Send(ctx, Request{
			Family: FamilyAPI,
			Path:   "/me",
			Header: http.Header{"Authorization": {"Bearer override"}},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("Non-JSON Response Is Passed Through", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("plain text"))
		}))
		defer srv.Close()

		d := newTestDispatcher(t, srv, &fakeSession{cred: &Credential{AccessToken: "tok"}})
		resp, err := d.Send(ctx, Request{Family: FamilyAPI, Path: "/me"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.IsJSON {
			t.Error("expected non-JSON response")
		}
		if string(resp.Body) != "plain text" {
			t.Errorf("expected raw body, got %q", resp.Body)
		}
		var v any
		if err := resp.Decode(&v); !errors.Is(err, shared.ErrUnexpectedContent) {
			t.Errorf("expected ErrUnexpectedContent, got %v", err)
		}
	})

	t.Run("JSON Body And Query", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("fields") != "name" {
				t.Errorf("expected fields query, got %q", r.URL.RawQuery)
			}
			var body map[string][]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if len(body["uris"]) != 1 {
				t.Errorf("unexpected body %v", body)
			}
			writeJSON(w, http.StatusCreated, map[string]string{"snapshot_id": "s"})
		}))
		defer srv.Close()

		d := newTestDispatcher(t, srv, &fakeSession{cred: &Credential{AccessToken: "tok"}})
		_, err := d.Send(ctx, Request{
			Family: FamilyAPI,
			Method: http.MethodPost,
			Path:   "/playlists/p/tracks",
			Query:  map[string][]string{"fields": {"name"}},
			JSON:   map[string][]string{"uris": {"spotify:track:1"}},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("Unknown Family", func(t *testing.T) {
		d := NewDispatcher(DispatcherOpts{Logger: discardLogger()})
		_, err := d.Send(ctx, Request{Family: "bogus", Path: "/"})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name    string
		resp    *Response
		want    *APIError
		wantNil bool
	}{
		{
			name: "API Error Object",
			resp: &Response{StatusCode: 401, IsJSON: true, Body: []byte(`{"error":{"status":401,"message":"expired"}}`)},
			want: &APIError{Status: 401, Message: "expired"},
		},
		{
			name: "Missing Status Falls Back To HTTP Status",
			resp: &Response{StatusCode: 502, IsJSON: true, Body: []byte(`{"error":{"message":"bad gateway"}}`)},
			want: &APIError{Status: 502, Message: "bad gateway"},
		},
		{
			name: "OAuth Error",
			resp: &Response{StatusCode: 400, IsJSON: true, Body: []byte(`{"error":"invalid_grant","error_description":"bad"}`)},
			want: &APIError{Status: 400, Message: "bad", OAuth: true},
		},
		{
			name: "OAuth Error Without Description",
			resp: &Response{StatusCode: 400, IsJSON: true, Body: []byte(`{"error":"invalid_client"}`)},
			want: &APIError{Status: 400, Message: "invalid_client", OAuth: true},
		},
		{name: "Success Body", resp: &Response{StatusCode: 200, IsJSON: true, Body: []byte(`{"name":"x"}`)}, wantNil: true},
		{name: "Null Error", resp: &Response{StatusCode: 200, IsJSON: true, Body: []byte(`{"error":null}`)}, wantNil: true},
		{name: "Non-JSON", resp: &Response{StatusCode: 500, Body: []byte(`{"error":"x"}`)}, wantNil: true},
		{name: "JSON Array", resp: &Response{StatusCode: 200, IsJSON: true, Body: []byte(`[1,2]`)}, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAPIError(tt.resp)
			if tt.wantNil {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
