package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/LosAICode/neurogen-client/internal/history"
	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/LosAICode/neurogen-client/internal/track"
	"github.com/LosAICode/neurogen-client/internal/transport"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	client *transport.Client
	push   *transport.Channel
	engine *track.Engine
	store  *history.Store
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Client *transport.Client
	Push   *transport.Channel
	Engine *track.Engine
	Store  *history.Store
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Client == nil {
		opts.Client = transport.NewClient(transport.ClientOpts{
			BaseURL:      opts.Config.Server.BaseURL,
			APIToken:     opts.Config.Server.APIToken,
			RateLimitRPS: opts.Config.Polling.RateLimitRPS,
			Logger:       opts.Logger,
		})
	}
	if opts.Push == nil && opts.Config.Server.PushURL != "" {
		opts.Push = transport.NewChannel(opts.Config.Server.PushURL, opts.Logger)
	}
	if opts.Store == nil {
		opts.Store = openStore(opts.Config, opts.Logger)
	}
	if opts.Engine == nil {
		var push track.PushConn
		if opts.Push != nil {
			push = opts.Push
		}
		var sink track.HistorySink
		if opts.Store != nil {
			sink = opts.Store
		}
		opts.Engine = track.NewEngine(track.EngineOpts{
			Config:  track.ConfigFromShared(opts.Config),
			Client:  opts.Client,
			Push:    push,
			Logger:  opts.Logger,
			History: sink,
		})
	}

	return &Runner{
		config: opts.Config,
		client: opts.Client,
		push:   opts.Push,
		engine: opts.Engine,
		store:  opts.Store,
		logger: opts.Logger,
		output: opts.Output,
	}
}

// openStore opens the task history database. History is best-effort: a
// missing or broken database degrades to nil instead of blocking tracking.
func openStore(config *shared.Config, logger *log.Logger) *history.Store {
	path := config.Database.Path
	if path == "" {
		path = "neurogen.db"
	}

	db, err := shared.NewDatabase(path)
	if err != nil {
		logger.Warn("task history unavailable", "path", path, "err", err)
		return nil
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	store := history.NewStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		logger.Warn("task history unavailable", "path", path, "err", err)
		db.Close()
		return nil
	}
	return store
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, taskCommand, historyCommand, pingCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
