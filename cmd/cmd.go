// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output JSON",
	}
}

// serveCommand runs the web service
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the submission web service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, defaults to server.host:server.port",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand creates the config file and database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and initialize the database",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent migration instead",
			},
		},
		Action: r.Setup,
	}
}

// authCommand handles the OAuth lifecycle
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:  "link",
				Usage: "Print the authorization link",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "open",
						Usage: "Open the link in a browser",
					},
				},
				Action: r.AuthLink,
			},
			{
				Name:  "exchange",
				Usage: "Trade an authorization code for a token",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "code",
					},
				},
				Action: r.AuthExchange,
			},
			{
				Name:   "refresh",
				Usage:  "Renew the stored token",
				Action: r.AuthRefresh,
			},
			{
				Name:   "status",
				Usage:  "Show the authorization state",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored token",
				Action: r.AuthLogout,
			},
		},
	}
}

// searchCommand searches the catalog
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search for tracks",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "query",
			},
		},
		Flags: []cli.Flag{
			jsonFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of tracks to show",
				Value: 10,
			},
		},
		Action: r.Search,
	}
}

// addCommand appends a track to the playlist
func addCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a track by link, URI or ID",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "link",
			},
		},
		Action: r.Add,
	}
}

// playlistCommand handles the target playlist
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlist",
		Usage: "Inspect or select the target playlist",
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show playlist metadata",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.PlaylistInfo,
			},
			{
				Name:  "set",
				Usage: "Select the playlist by link, URI or ID",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "playlist",
					},
				},
				Action: r.PlaylistSet,
			},
			{
				Name:   "reload",
				Usage:  "Reload the playlist membership cache",
				Action: r.PlaylistReload,
			},
		},
	}
}

// historyCommand lists recorded submissions
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded submissions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (text, json, csv, markdown)",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status (added, duplicate, failed)",
			},
			&cli.StringFlag{
				Name:  "track",
				Usage: "Filter by track ID",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of submissions",
				Value: 20,
			},
		},
		Action: r.History,
	}
}
