// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// taskCommand handles task submission and tracking operations
func taskCommand(r *Runner) *cli.Command {
	typeFlag := &cli.StringFlag{
		Name:    "type",
		Aliases: []string{"t"},
		Usage:   "Task type (file, scraper, playlist, academic, pdf)",
		Value:   "file",
	}

	return &cli.Command{
		Name:  "task",
		Usage: "Submit and track server tasks",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Submit a new task to the server",
				Flags: []cli.Flag{
					typeFlag,
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "JSON body with task parameters",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Track the task until it finishes",
						Value: true,
					},
				},
				Action: r.TaskStart,
			},
			{
				Name:  "watch",
				Usage: "Track an already-running task until it finishes",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "task_id"},
				},
				Flags:  []cli.Flag{typeFlag},
				Action: r.TaskWatch,
			},
			{
				Name:  "status",
				Usage: "Fetch the current server status for a task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "task_id"},
				},
				Flags: []cli.Flag{
					typeFlag,
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.TaskStatus,
			},
			{
				Name:  "cancel",
				Usage: "Request server-side cancellation of a task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "task_id"},
				},
				Flags:  []cli.Flag{typeFlag},
				Action: r.TaskCancel,
			},
		},
	}
}

// historyCommand handles recorded task outcomes
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Recorded task outcomes",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent task outcomes",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries to return",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:   "clear",
				Usage:  "Delete all recorded task outcomes",
				Action: r.HistoryClear,
			},
		},
	}
}

// pingCommand probes the server liveness endpoint
func pingCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "ping",
		Usage:  "Check that the server is reachable",
		Action: r.Ping,
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a starter config.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "path",
						Aliases: []string{"p"},
						Usage:   "Path for the configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the task history database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db",
						Usage: "Path to the SQLite database file",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for interactive task tracking.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Track a task in an interactive terminal UI",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "task_id"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Task type (file, scraper, playlist, academic, pdf)",
				Value:   "file",
			},
		},
		Action: r.TUI,
	}
}
