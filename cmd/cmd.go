// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for the database and configuration file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write an example config.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path (defaults to --config)",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// metadataCommand handles archive item metadata operations
func metadataCommand(r *Runner) *cli.Command {
	listFlags := func(extra ...cli.Flag) []cli.Flag {
		return append([]cli.Flag{
			&cli.StringFlag{
				Name:  "email",
				Usage: "Uploader email (defaults to archive.email)",
			},
			&cli.IntFlag{
				Name:  "rows",
				Usage: "Maximum number of items to fetch",
				Value: 1000,
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Bypass the cache",
			},
		}, extra...)
	}

	return &cli.Command{
		Name:    "metadata",
		Aliases: []string{"md"},
		Usage:   "Internet Archive metadata operations",
		Commands: []*cli.Command{
			{
				Name:  "apply",
				Usage: "Apply a batch of field updates from a JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Batch file with {items, updates} or a list of them ('-' for stdin)",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "stream",
						Usage: "Print progress events as they happen",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Summary format: text, markdown, csv or json",
						Value: "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the summary to a file instead of stdout",
					},
				},
				Action: r.MetadataApply,
			},
			{
				Name:  "get",
				Usage: "Print the current metadata of an item",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Item identifier",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Bypass the cache",
					},
				},
				Action: r.MetadataGet,
			},
			{
				Name:  "list",
				Usage: "List items uploaded by an account",
				Flags: listFlags(&cli.BoolFlag{
					Name:  "json",
					Usage: "Output raw JSON",
				}),
				Action: r.MetadataList,
			},
			{
				Name:  "analyze",
				Usage: "Find items with missing or malformed band, venue and date fields",
				Flags: listFlags(
					&cli.StringFlag{
						Name:  "apply-file",
						Usage: "Write the suggested fixes as a batch file",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				),
				Action: r.MetadataAnalyze,
			},
			{
				Name:  "audit",
				Usage: "Find items whose identifier date disagrees with the title date",
				Flags: listFlags(&cli.BoolFlag{
					Name:  "csv",
					Usage: "Output CSV",
				}),
				Action: r.MetadataAudit,
			},
		},
	}
}

// youtubeCommand handles YouTube matching operations
func youtubeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "youtube",
		Aliases: []string{"yt"},
		Usage:   "YouTube video matching",
		Commands: []*cli.Command{
			{
				Name:  "match",
				Usage: "Find the channel video for a recording title",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "title",
						Aliases:  []string{"t"},
						Usage:    "Recording title, e.g. 'Band @ Venue on 1977-05-08'",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "Recording date when the title has none",
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "Archive identifier, keeps cached results per item",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Ignore cached results",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.YouTubeMatch,
			},
			{
				Name:  "quota",
				Usage: "Show today's search quota usage",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.YouTubeQuota,
			},
			{
				Name:  "auth",
				Usage: "Authorize read access to YouTube with OAuth2",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: defaultAuthTimeout,
					},
				},
				Action: r.YouTubeAuth,
			},
		},
	}
}

// cacheCommand handles the local lookup cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and clear cached lookups",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Delete cached entries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "scope",
						Usage: "youtube, metadata or all",
						Value: "all",
					},
				},
				Action: r.CacheClear,
			},
			{
				Name:  "stats",
				Usage: "Count cached entries per scope",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheStats,
			},
			{
				Name:   "sweep",
				Usage:  "Delete entries older than the cache TTL",
				Action: r.CacheSweep,
			},
		},
	}
}

// serveCommand runs the HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the batch, match and cache endpoints over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for interactive batch runs.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Preview, confirm and follow a batch interactively",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Batch file with {items, updates}",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the TUI is running",
				Value: "iasync-tui.log",
			},
		},
		Action: r.TUI,
	}
}
