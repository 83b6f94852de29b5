package services

import (
	"context"
	"net/http"
	"slices"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// DefaultMaxAttempts bounds how many times a single request is sent.
const DefaultMaxAttempts = 5

// Decision is what the retry loop does with one attempt's outcome.
type Decision int

const (
	// Accept returns the response to the caller.
	Accept Decision = iota
	// Refresh renews the credential before the next attempt.
	Refresh
	// Retry sends the same request again.
	Retry
	// Abort fails with the upstream error.
	Abort
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Refresh:
		return "refresh"
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Policy describes the bounded retry behaviour as data.
type Policy struct {
	MaxAttempts int
	RefreshOn   []int // statuses answered with a token refresh
	RetryOn     []int // statuses retried unchanged
}

// DefaultPolicy refreshes on 401 and retries 403, which the API also uses while rate limiting.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		RefreshOn:   []int{http.StatusUnauthorized},
		RetryOn:     []int{http.StatusForbidden},
	}
}

// Classify maps an API error payload to a [Decision]. A nil error is accepted.
func (p Policy) Classify(apiErr *APIError) Decision {
	switch {
	case apiErr == nil:
		return Accept
	case slices.Contains(p.RefreshOn, apiErr.Status):
		return Refresh
	case slices.Contains(p.RetryOn, apiErr.Status):
		return Retry
	default:
		return Abort
	}
}

// SendFunc performs one attempt. It must rebuild the request each time so a refreshed credential is picked up.
type SendFunc func(ctx context.Context) (*Response, error)

// Classifier inspects a response and decides what happens next.
type Classifier func(*Response) (Decision, *APIError)

// Retrier runs a [SendFunc] under a [Policy].
type Retrier struct {
	Policy Policy
	// Refresh is invoked for [Refresh] decisions; when nil those decisions abort.
	Refresh func(ctx context.Context) error
	// Limiter paces [Retry] decisions; nil retries immediately.
	Limiter *rate.Limiter
	Logger  *log.Logger
	Metrics *Metrics
}

// Do sends until the classifier accepts, aborts, or the attempts run out.
//
// Transport failures returned by send end the loop immediately. Refresh and backoff only happen when another attempt
// remains.
func (r *Retrier) Do(ctx context.Context, send SendFunc, classify Classifier) (*Response, error) {
	maxAttempts := r.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last *APIError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := send(ctx)
		if err != nil {
			return nil, err
		}

		decision, apiErr := classify(resp)
		switch decision {
		case Accept:
			return resp, nil
		case Abort:
			return nil, upstreamError(apiErr)
		case Refresh:
			if r.Refresh == nil {
				return nil, upstreamError(apiErr)
			}
		}

		last = apiErr
		r.Metrics.retry(apiErr.status())
		if attempt == maxAttempts {
			break
		}

		switch decision {
		case Refresh:
			r.logger().Info("access token rejected, refreshing", "attempt", attempt)
			if err := r.Refresh(ctx); err != nil {
				return nil, err
			}
		case Retry:
			r.logger().Warn("request rejected, retrying as-is", "attempt", attempt, "status", apiErr.status())
			if r.Limiter != nil {
				if err := r.Limiter.Wait(ctx); err != nil {
					return nil, transportError(err)
				}
			}
		}
	}

	return nil, exhaustedError(maxAttempts, last)
}

func (r *Retrier) logger() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}
