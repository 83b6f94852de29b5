package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/desertthunder/jukebox/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Search prints the tracks matching the query.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}
	if err := client.RefreshIfNeeded(ctx); err != nil {
		return err
	}

	tracks, err := client.SearchTrack(ctx, query)
	if err != nil {
		return err
	}
	if limit := int(cmd.Int("limit")); limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, true)
	}

	if len(tracks) == 0 {
		return r.writePlain("No tracks found for %q\n", query)
	}

	r.writePlainHeader(fmt.Sprintf("Results for %q", query))
	for i, t := range tracks {
		d := time.Duration(t.DurationMS) * time.Millisecond
		r.writePlain("%2d. %s · %s (%d:%02d)\n", i+1, t.Name, t.ArtistNames(), int(d.Minutes()), int(d.Seconds())%60)
		r.writePlain("    %s\n", t.Link())
	}
	return nil
}

// Add appends a track to the playlist.
func (r *Runner) Add(ctx context.Context, cmd *cli.Command) error {
	trackID, err := services.ParseTrackID(cmd.StringArg("link"))
	if err != nil {
		return err
	}

	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}
	if err := client.RefreshIfNeeded(ctx); err != nil {
		return err
	}

	switch err := client.AddTrackToPlaylist(ctx, trackID); services.KindOf(err) {
	case services.KindUnknown:
		if err != nil {
			return err
		}
		return r.writePlain("✓ Added %s\n", trackID)
	case services.KindAlreadyAdded:
		return r.writePlain("• %s is already in the playlist\n", trackID)
	default:
		return err
	}
}

// PlaylistInfo prints the selected playlist's metadata.
func (r *Runner) PlaylistInfo(ctx context.Context, cmd *cli.Command) error {
	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}
	if err := client.RefreshIfNeeded(ctx); err != nil {
		return err
	}

	info, err := client.FetchPlaylistInfo(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(info, true)
	}

	r.writePlainHeader(info.Name)
	r.writePlain("ID:     %s\n", info.ID)
	r.writePlain("Owner:  %s\n", info.OwnerName())
	r.writePlain("Tracks: %d\n", info.TrackCount())
	r.writePlain("Public: %t\n", info.Public)
	if info.Description != "" {
		r.writePlainln("%s", info.Description)
	}
	return nil
}

// PlaylistSet selects the playlist tracks are added to.
func (r *Runner) PlaylistSet(ctx context.Context, cmd *cli.Command) error {
	id, err := services.ParsePlaylistID(cmd.StringArg("playlist"))
	if err != nil {
		return err
	}

	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}

	if err := client.SetPlaylistID(id); err != nil {
		return err
	}

	if !client.HasToken() {
		r.logger.Warn("playlist is only persisted once a token is stored; set spotify.playlist_id in the config instead")
	}
	return r.writePlain("✓ Playlist set to %s\n", id)
}

// PlaylistReload reloads the membership cache and reports the result.
func (r *Runner) PlaylistReload(ctx context.Context, cmd *cli.Command) error {
	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}
	if client.PlaylistID() == "" {
		return shared.ErrPlaylistNotSet
	}

	events := make(chan tasks.RefreshEvent, 4)
	refreshErr := tasks.NewCacheRefresher(client, 0, r.logger).WithEvents(events).RefreshOnce(ctx)
	close(events)

	for ev := range events {
		if ev.Phase == tasks.ReloadStarted {
			continue
		}
		r.writePlain("%s\n", ev.Message)
	}
	return refreshErr
}
