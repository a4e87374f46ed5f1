// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "User ID",
		Required: true,
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (txt, csv, markdown, json)",
		Value:   "txt",
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create a config file if missing, then initialize the database",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "config-only",
				Usage: "Only write the config file",
			},
		},
		Action: r.Setup,
	}
}

// migrateCommand manages the schema.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Database schema migrations",
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply pending migrations",
				Action: r.MigrateUp,
			},
			{
				Name:   "down",
				Usage:  "Roll back the latest migration",
				Action: r.MigrateDown,
			},
			{
				Name:   "status",
				Usage:  "List applied migrations",
				Action: r.MigrateStatus,
			},
		},
	}
}

// usersCommand manages the users whose accounts are synced.
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage users",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an active user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Usage: "Email address", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Display name"},
				},
				Action: r.UsersCreate,
			},
			{
				Name:  "list",
				Usage: "List users",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "active", Usage: "Only active users"},
					jsonFlag(),
				},
				Action: r.UsersList,
			},
			{
				Name:   "activate",
				Usage:  "Include a user in scheduled syncs",
				Flags:  []cli.Flag{userFlag()},
				Action: r.UsersSetActive(true),
			},
			{
				Name:   "deactivate",
				Usage:  "Exclude a user from syncs",
				Flags:  []cli.Flag{userFlag()},
				Action: r.UsersSetActive(false),
			},
		},
	}
}

// accountsCommand links platform accounts to users.
func accountsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "accounts",
		Aliases: []string{"acct"},
		Usage:   "Manage linked platform accounts",
		Commands: []*cli.Command{
			{
				Name:  "link",
				Usage: "Link or relink a platform account",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "platform", Aliases: []string{"p"}, Usage: "Platform", Required: true},
					&cli.StringFlag{Name: "handle", Usage: "Account handle or URL on the platform", Required: true},
					&cli.StringFlag{Name: "token", Usage: "Access token", Required: true, Sources: cli.EnvVars("SOCIALSYNC_ACCESS_TOKEN")},
					&cli.StringFlag{Name: "refresh-token", Usage: "Refresh token"},
					&cli.DurationFlag{Name: "expires-in", Usage: "Token lifetime; zero means it does not expire"},
				},
				Action: r.AccountsLink,
			},
			{
				Name:  "unlink",
				Usage: "Remove a linked account",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "platform", Aliases: []string{"p"}, Usage: "Platform", Required: true},
				},
				Action: r.AccountsUnlink,
			},
			{
				Name:   "list",
				Usage:  "List a user's linked accounts",
				Flags:  []cli.Flag{userFlag()},
				Action: r.AccountsList,
			},
		},
	}
}

// syncCommand requests, inspects and runs sync tasks.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Request and inspect sync tasks",
		Commands: []*cli.Command{
			{
				Name:  "request",
				Usage: "Queue a sync for a user's linked accounts",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringSliceFlag{
						Name:    "platform",
						Aliases: []string{"p"},
						Usage:   "Platform to sync (instagram, facebook, tiktok); repeatable, defaults to every linked account",
					},
					jsonFlag(),
				},
				Action: r.SyncRequest,
			},
			{
				Name:  "status",
				Usage: "Show one task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "task"},
				},
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SyncStatus,
			},
			{
				Name:  "list",
				Usage: "List a user's tasks, newest first",
				Flags: []cli.Flag{
					userFlag(),
					formatFlag(),
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of tasks", Value: 20},
				},
				Action: r.SyncList,
			},
			{
				Name:  "revoke",
				Usage: "Cancel a queued or running task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "task"},
				},
				Action: r.SyncRevoke,
			},
			{
				Name:   "all",
				Usage:  "Queue a sync for every active user once",
				Action: r.SyncAll,
			},
			{
				Name:  "run",
				Usage: "Execute queued tasks in this process",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "once", Usage: "Exit when no task is eligible"},
				},
				Action: r.SyncRun,
			},
		},
	}
}

// snapshotsCommand reads metric history.
func snapshotsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "snapshots",
		Aliases: []string{"snap"},
		Usage:   "Metric snapshot history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Show snapshot history for a user's pages",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "platform", Aliases: []string{"p"}, Usage: "Only this platform"},
					formatFlag(),
					&cli.IntFlag{Name: "limit", Usage: "Snapshots per page", Value: 30},
				},
				Action: r.SnapshotsList,
			},
			{
				Name:  "export",
				Usage: "Write a page's snapshot history to a file",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "platform", Aliases: []string{"p"}, Usage: "Platform", Required: true},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "File format (csv, markdown, txt, json)", Value: "csv"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of snapshots"},
				},
				Action: r.SnapshotsExport,
			},
		},
	}
}

// serveCommand runs the long-lived process.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run workers, the scheduler and the HTTP API under supervision",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address, overrides server.host and server.port"},
			&cli.BoolFlag{Name: "no-http", Usage: "Run workers only"},
		},
		Action: r.Serve,
	}
}

// watchCommand opens the dashboard.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Live dashboard of a user's sync tasks",
		Flags: []cli.Flag{
			userFlag(),
			&cli.BoolFlag{Name: "work", Usage: "Also execute tasks in this process"},
			&cli.DurationFlag{Name: "refresh", Usage: "Task list refresh interval", Value: 2 * time.Second},
			&cli.StringFlag{Name: "log-file", Usage: "Where logs go while the dashboard is open", Value: "./tmp/socialsync-watch.log"},
		},
		Action: r.Watch,
	}
}
