// package tasks implements background maintenance of the playlist cache.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
)

// CacheReloader is the part of the API client the refresher drives.
type CacheReloader interface {
	ReloadCache(ctx context.Context) error
	CacheSize() int
}

// CacheRefresher periodically invalidates and reloads the playlist cache so external playlist edits are picked up.
type CacheRefresher struct {
	client   CacheReloader
	interval time.Duration
	logger   *log.Logger
	events   chan<- RefreshEvent
	now      func() time.Time
}

// NewCacheRefresher creates a refresher. An interval of zero or less disables [CacheRefresher.Run].
func NewCacheRefresher(client CacheReloader, interval time.Duration, logger *log.Logger) *CacheRefresher {
	if logger == nil {
		logger = log.Default()
	}
	return &CacheRefresher{
		client:   client,
		interval: interval,
		logger:   shared.WithLogger(logger, "task", "cache-refresher"),
		now:      time.Now,
	}
}

// WithEvents sends refresh events to ch. Sends never block; events are dropped when ch is full.
func (r *CacheRefresher) WithEvents(ch chan<- RefreshEvent) *CacheRefresher {
	r.events = ch
	return r
}

// Interval returns the refresh period.
func (r *CacheRefresher) Interval() time.Duration {
	return r.interval
}

// Run reloads the cache every interval until ctx is done. Failed reloads are logged and retried on the next tick.
func (r *CacheRefresher) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Debug("cache refresher disabled")
		return nil
	}

	r.logger.Info("cache refresher started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("cache refresher stopped")
			return nil
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("cache refresh failed", "error", err)
			}
		}
	}
}

// RefreshOnce reloads the cache now.
//
// A missing playlist or credential is reported as skipped and returns nil, since there is nothing to refresh yet.
func (r *CacheRefresher) RefreshOnce(ctx context.Context) error {
	start := r.now()
	r.send(startedEvent(start, r.client.CacheSize()))

	err := r.client.ReloadCache(ctx)
	switch {
	case err == nil:
		tracks := r.client.CacheSize()
		r.send(finishedEvent(r.now(), tracks, r.now().Sub(start)))
		r.logger.Debug("cache refreshed", "tracks", tracks)
		return nil
	case errors.Is(err, shared.ErrPlaylistNotSet), services.KindOf(err) == services.KindNoToken:
		r.send(skippedEvent(r.now(), err))
		r.logger.Debug("cache refresh skipped", "reason", err)
		return nil
	default:
		r.send(failedEvent(r.now(), err))
		return err
	}
}

// send delivers an event without blocking.
func (r *CacheRefresher) send(ev RefreshEvent) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- ev:
	default:
	}
}
