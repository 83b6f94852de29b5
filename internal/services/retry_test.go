package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name   string
		apiErr *APIError
		want   Decision
	}{
		{"Nil Error Accepts", nil, Accept},
		{"Unauthorized Refreshes", &APIError{Status: 401}, Refresh},
		{"Forbidden Retries", &APIError{Status: 403}, Retry},
		{"Not Found Aborts", &APIError{Status: 404}, Abort},
		{"Server Error Aborts", &APIError{Status: 500}, Abort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Classify(tt.apiErr); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("Default Bound", func(t *testing.T) {
		if p.MaxAttempts != 5 {
			t.Errorf("expected 5 attempts, got %d", p.MaxAttempts)
		}
	})
}

func TestRetrier(t *testing.T) {
	ctx := context.Background()
	ok := &Response{StatusCode: 200}

	script := func(decisions ...Decision) (SendFunc, Classifier, *int) {
		sends := 0
		send := func(context.Context) (*Response, error) {
			sends++
			return ok, nil
		}
		classify := func(*Response) (Decision, *APIError) {
			d := decisions[min(sends, len(decisions))-1]
			if d == Accept {
				return Accept, nil
			}
			status := map[Decision]int{Refresh: 401, Retry: 403, Abort: 400}[d]
			return d, &APIError{Status: status, Message: d.String()}
		}
		return send, classify, &sends
	}

	t.Run("Accept Returns First Response", func(t *testing.T) {
		r := &Retrier{Policy: DefaultPolicy(), Logger: discardLogger()}
		send, classify, sends := script(Accept)

		resp, err := r.Do(ctx, send, classify)
		if err != nil || resp != ok {
			t.Fatalf("expected response, got %v %v", resp, err)
		}
		if *sends != 1 {
			t.Errorf("expected 1 send, got %d", *sends)
		}
	})

	t.Run("Refresh Without Hook Aborts", func(t *testing.T) {
		r := &Retrier{Policy: DefaultPolicy(), Logger: discardLogger()}
		send, classify, sends := script(Refresh)

		_, err := r.Do(ctx, send, classify)
		if KindOf(err) != KindUpstream {
			t.Errorf("expected upstream error, got %v", err)
		}
		if *sends != 1 {
			t.Errorf("expected 1 send, got %d", *sends)
		}
	})

	t.Run("Retries Exhaust After Max Attempts", func(t *testing.T) {
		r := &Retrier{Policy: Policy{MaxAttempts: 3, RetryOn: []int{403}}, Logger: discardLogger()}
		send, classify, sends := script(Retry)

		_, err := r.Do(ctx, send, classify)
		if KindOf(err) != KindExhausted {
			t.Fatalf("expected exhausted error, got %v", err)
		}
		var e *Error
		if !errors.As(err, &e) || e.Status != 403 {
			t.Errorf("expected last status 403 on error, got %v", err)
		}
		if *sends != 3 {
			t.Errorf("expected 3 sends, got %d", *sends)
		}
	})

	t.Run("Zero Attempts Sends Once", func(t *testing.T) {
		r := &Retrier{Logger: discardLogger()}
		send, classify, sends := script(Accept)

		if _, err := r.Do(ctx, send, classify); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if *sends != 1 {
			t.Errorf("expected 1 send, got %d", *sends)
		}
	})

	t.Run("Send Error Stops Loop", func(t *testing.T) {
		r := &Retrier{Policy: DefaultPolicy(), Logger: discardLogger()}
		boom := transportError(errors.New("boom"))
		calls := 0
		send := func(context.Context) (*Response, error) {
			calls++
			return nil, boom
		}

		_, err := r.Do(ctx, send, func(*Response) (Decision, *APIError) { return Accept, nil })
		if !errors.Is(err, boom) {
			t.Errorf("expected send error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("Limiter Wait Honours Context", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
		limiter.Allow()

		r := &Retrier{Policy: DefaultPolicy(), Limiter: limiter, Logger: discardLogger()}
		send, classify, _ := script(Retry)

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		_, err := r.Do(cctx, send, classify)
		if KindOf(err) != KindTransport {
			t.Errorf("expected transport error from limiter, got %v", err)
		}
	})

	t.Run("Refresh Then Accept", func(t *testing.T) {
		refreshes := 0
		r := &Retrier{
			Policy:  DefaultPolicy(),
			Refresh: func(context.Context) error { refreshes++; return nil },
			Logger:  discardLogger(),
		}
		send, classify, sends := script(Refresh, Accept)

		if _, err := r.Do(ctx, send, classify); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if refreshes != 1 || *sends != 2 {
			t.Errorf("expected 1 refresh and 2 sends, got %d and %d", refreshes, *sends)
		}
	})
}
