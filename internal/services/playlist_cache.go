package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// PlaylistPageSize is the number of items requested per page when loading the playlist.
const PlaylistPageSize = 100

// PlaylistItem is one entry of a playlist page. Track is nil for removed or local items.
type PlaylistItem struct {
	Track *struct {
		ID string `json:"id"`
	} `json:"track"`
}

// PlaylistPage is one page of the playlist's track listing.
type PlaylistPage struct {
	Items []PlaylistItem `json:"items"`
	Total int            `json:"total"`
}

// PageFetcher fetches the page starting at offset.
type PageFetcher func(ctx context.Context, offset, limit int) (*PlaylistPage, error)

// TrackAdder appends a track to the remote playlist.
type TrackAdder func(ctx context.Context, trackID string) error

// PlaylistCache mirrors the membership of the configured playlist.
//
// The first caller of [PlaylistCache.EnsureLoaded] loads every page; concurrent callers wait for the same load.
type PlaylistCache struct {
	fetch PageFetcher
	add   TrackAdder

	group singleflight.Group
	addMu sync.Mutex

	mu         sync.RWMutex
	tracks     []string
	index      map[string]struct{}
	loaded     bool
	loadedAt   time.Time
	generation uint64

	logger  *log.Logger
	metrics *Metrics
}

// NewPlaylistCache creates an empty, unloaded cache.
func NewPlaylistCache(fetch PageFetcher, add TrackAdder, logger *log.Logger, metrics *Metrics) *PlaylistCache {
	if logger == nil {
		logger = log.Default()
	}
	return &PlaylistCache{
		fetch:   fetch,
		add:     add,
		index:   make(map[string]struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// EnsureLoaded loads the playlist unless it is already loaded. An empty playlist counts as loaded.
func (c *PlaylistCache) EnsureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded, gen := c.loaded, c.generation
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, joined := c.group.Do(fmt.Sprintf("load-%d", gen), func() (any, error) {
		return nil, c.load(ctx, gen)
	})
	if joined {
		c.logger.Debug("joined in-flight playlist load", "generation", gen)
	}
	return err
}

func (c *PlaylistCache) load(ctx context.Context, gen uint64) error {
	c.mu.RLock()
	done := c.loaded && c.generation == gen
	c.mu.RUnlock()
	if done {
		return nil
	}

	var (
		tracks []string
		offset int
		pages  int
	)
	for {
		page, err := c.fetch(ctx, offset, PlaylistPageSize)
		if err != nil {
			return err
		}
		pages++

		for _, item := range page.Items {
			if item.Track != nil && item.Track.ID != "" {
				tracks = append(tracks, item.Track.ID)
			}
		}
		offset += len(page.Items)

		if len(page.Items) == 0 || offset >= page.Total {
			break
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		c.logger.Debug("discarding playlist load superseded by invalidation", "generation", gen)
		return nil
	}

	c.tracks = tracks
	c.index = make(map[string]struct{}, len(tracks))
	for _, id := range tracks {
		c.index[id] = struct{}{}
	}
	c.loaded = true
	c.loadedAt = time.Now()
	c.metrics.cacheSize(len(tracks))

	c.logger.Info("playlist cache loaded", "tracks", len(tracks), "pages", pages)
	return nil
}

// Contains reports whether trackID is a known member. It never queries the API.
func (c *PlaylistCache) Contains(trackID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[trackID]
	return ok
}

// Add loads the cache if needed, rejects known members with an AlreadyAdded error and otherwise adds the track
// remotely. The cache is only extended after the remote add succeeds.
func (c *PlaylistCache) Add(ctx context.Context, trackID string) error {
	c.addMu.Lock()
	defer c.addMu.Unlock()

	// A load superseded by an invalidation leaves the cache unloaded; membership is only checked once loaded.
	for !c.Loaded() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.EnsureLoaded(ctx); err != nil {
			return err
		}
	}

	if c.Contains(trackID) {
		c.metrics.duplicate()
		return alreadyAddedError(trackID)
	}

	if err := c.add(ctx, trackID); err != nil {
		return err
	}

	c.mu.Lock()
	if c.loaded {
		c.tracks = append(c.tracks, trackID)
		c.index[trackID] = struct{}{}
		c.metrics.cacheSize(len(c.tracks))
	}
	c.mu.Unlock()

	c.metrics.added()
	return nil
}

// Invalidate drops the cached membership. The next [PlaylistCache.EnsureLoaded] reloads it.
// It waits for an add in progress to finish.
func (c *PlaylistCache) Invalidate() {
	c.addMu.Lock()
	defer c.addMu.Unlock()
	c.invalidate()
}

func (c *PlaylistCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = nil
	c.index = make(map[string]struct{})
	c.loaded = false
	c.loadedAt = time.Time{}
	c.generation++
}

// Reload invalidates the cache and loads it again. Adds wait until the reload finishes.
func (c *PlaylistCache) Reload(ctx context.Context) error {
	c.addMu.Lock()
	defer c.addMu.Unlock()
	c.invalidate()
	return c.EnsureLoaded(ctx)
}

// Len returns the number of cached tracks.
func (c *PlaylistCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}

// Tracks returns a copy of the cached track IDs in playlist order.
func (c *PlaylistCache) Tracks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.tracks)
}

// LoadedAt returns when the cache was last loaded, or the zero time when it is not loaded.
func (c *PlaylistCache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Loaded reports whether the membership has been loaded.
func (c *PlaylistCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}
