package services

import (
	"errors"
	"fmt"

	"github.com/desertthunder/jukebox/internal/shared"
)

// Kind discriminates the failures the client reports to its callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoToken
	KindAlreadyAdded
	KindUpstream
	KindExhausted
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindNoToken:
		return "no_token"
	case KindAlreadyAdded:
		return "already_added"
	case KindUpstream:
		return "upstream"
	case KindExhausted:
		return "exhausted"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// sentinel maps a kind to the shared error it satisfies under [errors.Is].
func (k Kind) sentinel() error {
	switch k {
	case KindNoToken:
		return shared.ErrNotAuthenticated
	case KindAlreadyAdded:
		return shared.ErrAlreadyAdded
	case KindUpstream:
		return shared.ErrAPIRequest
	case KindExhausted:
		return shared.ErrRetriesExhausted
	case KindTransport:
		return shared.ErrTransport
	default:
		return nil
	}
}

// Error is the tagged error returned by every client operation.
//
// Callers switch on Kind (or use [KindOf]) instead of inspecting concrete types.
type Error struct {
	Kind Kind
	// Message is the upstream API message for KindUpstream, a summary otherwise.
	Message string
	// AuthLink is set for KindNoToken and points the user back into the authorization flow.
	AuthLink string
	// Status is the HTTP status carried by the upstream error payload, if any.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("spotify: %s: %v", msg, e.Err)
	}
	return "spotify: " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the shared sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the [Kind] of err, or KindUnknown when err did not come from the client.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// AuthLinkOf returns the authorization link carried by a NoToken error.
func AuthLinkOf(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindNoToken {
		return e.AuthLink, true
	}
	return "", false
}

func noTokenError(link string, cause error) *Error {
	return &Error{Kind: KindNoToken, Message: "no access token, authorization required", AuthLink: link, Err: cause}
}

func alreadyAddedError(trackID string) *Error {
	return &Error{Kind: KindAlreadyAdded, Message: fmt.Sprintf("track %s is already in the playlist", trackID)}
}

func upstreamError(apiErr *APIError) *Error {
	if apiErr == nil {
		return &Error{Kind: KindUpstream, Message: "unexpected response"}
	}
	return &Error{Kind: KindUpstream, Message: apiErr.Message, Status: apiErr.Status}
}

func exhaustedError(attempts int, last *APIError) *Error {
	e := &Error{Kind: KindExhausted, Message: fmt.Sprintf("no valid response after %d tries", attempts)}
	if last != nil {
		e.Status = last.Status
	}
	return e
}

func transportError(cause error) *Error {
	return &Error{Kind: KindTransport, Message: "request failed", Err: cause}
}
