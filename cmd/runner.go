package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/repositories"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	clock      shared.Clock
	fetcher    tasks.Fetcher
	db         *sql.DB
	repos      *stores
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from the --config flag before any command runs.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Clock      shared.Clock
	Fetcher    tasks.Fetcher // replaces the configured provider when set
}

// stores groups the repositories every command works against.
type stores struct {
	users *repositories.UserRepository
	creds *repositories.CredentialRepository
	tasks *repositories.TaskRepository
	pages *repositories.PageRepository
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		clock:      opts.Clock,
		fetcher:    opts.Fetcher,
	}
}

// App builds the root command.
func (r *Runner) App() *cli.Command {
	return &cli.Command{
		Name:    "socialsync",
		Usage:   "Sync social media profiles and derive engagement metrics",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("SOCIALSYNC_CONFIG"),
			},
		},
		Before:   r.configure,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, migrateCommand, usersCommand, accountsCommand, syncCommand,
		snapshotsCommand, serveCommand, watchCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// configure loads the configuration file unless one was injected, then applies the log level.
//
// A missing file falls back to the embedded defaults so setup can run first.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if r.configPath == "" || cmd.IsSet("config") {
		r.configPath = cmd.String("config")
	}

	if r.config == nil {
		if _, err := os.Stat(r.configPath); errors.Is(err, os.ErrNotExist) {
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
			r.config = shared.DefaultConfig()
		} else {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		}
	}

	r.logger.SetLevel(shared.ParseLevel(r.config.Log.Level))
	return ctx, nil
}

// database opens and migrates the configured database on first use.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

func (r *Runner) stores() (*stores, error) {
	if r.repos != nil {
		return r.repos, nil
	}

	db, err := r.database()
	if err != nil {
		return nil, err
	}
	r.repos = &stores{
		users: repositories.NewUserRepository(db),
		creds: repositories.NewCredentialRepository(db),
		tasks: repositories.NewTaskRepository(db),
		pages: repositories.NewPageRepository(db),
	}
	return r.repos, nil
}

// dispatcher builds a [tasks.Dispatcher] over the runner's stores.
func (r *Runner) dispatcher(opts ...tasks.DispatcherOption) (*tasks.Dispatcher, error) {
	s, err := r.stores()
	if err != nil {
		return nil, err
	}
	opts = append([]tasks.DispatcherOption{tasks.WithDispatcherClock(r.clock)}, opts...)
	return tasks.NewDispatcher(s.users, s.creds, s.tasks, r.logger, opts...), nil
}

// SetLogger replaces the logger, e.g. to keep log output off a full-screen UI.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the database handle.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db, r.repos = nil, nil
	return err
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

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
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
