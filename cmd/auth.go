package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLink prints the authorization link and optionally opens it.
func (r *Runner) AuthLink(ctx context.Context, cmd *cli.Command) error {
	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}

	link := client.AuthorizationLink()
	if err := r.writePlain("%s\n", link); err != nil {
		return err
	}

	if cmd.Bool("open") {
		if err := r.openBrowser(ctx, link); err != nil {
			r.logger.Warn("could not open browser", "error", err)
		}
	}
	return nil
}

// AuthExchange trades the code from the callback URL for a token.
func (r *Runner) AuthExchange(ctx context.Context, cmd *cli.Command) error {
	code := strings.TrimSpace(cmd.StringArg("code"))
	if code == "" {
		return fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}

	if err := client.ExchangeCode(ctx, code); err != nil {
		return err
	}
	return r.writePlain("✓ Authorized\n")
}

// AuthRefresh renews the stored token with its refresh token.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}

	if err := client.ExchangeCode(ctx, ""); err != nil {
		return err
	}

	if exp := client.Token().Expiry(); !exp.IsZero() {
		return r.writePlain("✓ Token refreshed, expires %s\n", exp.Local().Format(time.RFC1123))
	}
	return r.writePlain("✓ Token refreshed\n")
}

type authStatus struct {
	State       string     `json:"state"`
	PlaylistID  string     `json:"playlist_id,omitempty"`
	Refreshable bool       `json:"refreshable"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	TokenPath   string     `json:"token_path"`
}

// AuthStatus reports whether a token is stored and when it expires.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}

	status := authStatus{
		State:      client.State().String(),
		PlaylistID: client.PlaylistID(),
		TokenPath:  r.config.Spotify.TokenPath,
	}
	if cred := client.Token(); cred != nil {
		status.Refreshable = cred.HasRefreshToken()
		if exp := cred.Expiry(); !exp.IsZero() {
			status.ExpiresAt = &exp
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlainHeader("Authorization")
	r.writePlain("State:       %s\n", status.State)
	r.writePlain("Token file:  %s\n", status.TokenPath)
	if status.PlaylistID != "" {
		r.writePlain("Playlist:    %s\n", status.PlaylistID)
	} else {
		r.writePlain("Playlist:    (not set)\n")
	}
	if client.HasToken() {
		r.writePlain("Refreshable: %t\n", status.Refreshable)
		if status.ExpiresAt != nil {
			r.writePlain("Expires:     %s\n", status.ExpiresAt.Local().Format(time.RFC1123))
		}
	}
	return nil
}

// AuthLogout deletes the stored token.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	client, err := r.spotify(ctx)
	if err != nil {
		return err
	}

	if err := client.Logout(); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return r.writePlain("✓ Logged out\n")
}
