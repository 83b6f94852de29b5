package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/repositories"
	"github.com/desertthunder/jukebox/internal/services"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "config.toml"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The Spotify client and the database are built on first use from the loaded configuration unless injected.
type Runner struct {
	config       *shared.Config
	configPath   string
	configFixed  bool
	client       *services.SpotifyClient
	db           *sql.DB
	ownsDB       bool
	httpClient   *http.Client
	registry     *prometheus.Registry
	metrics      *services.Metrics
	logger       *log.Logger
	output       io.Writer
	getenv       func(string) string
	openBrowser  func(ctx context.Context, url string) error
	submissionDB *repositories.SubmissionRepository
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	// Config skips loading the --config file when set.
	Config      *shared.Config
	ConfigPath  string
	Client      *services.SpotifyClient
	DB          *sql.DB
	HTTPClient  *http.Client
	Registry    *prometheus.Registry
	Logger      *log.Logger
	Output      io.Writer
	Getenv      func(string) string
	OpenBrowser func(ctx context.Context, url string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	configFixed := opts.Config != nil
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = defaultConfigPath
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		configFixed: configFixed,
		client:      opts.Client,
		db:          opts.DB,
		httpClient:  opts.HTTPClient,
		registry:    opts.Registry,
		logger:      opts.Logger,
		output:      opts.Output,
		getenv:      opts.Getenv,
		openBrowser: opts.OpenBrowser,
	}
}

// command builds the root command.
func (r *Runner) command() *cli.Command {
	return &cli.Command{
		Name:    "jukebox",
		Usage:   "Let anyone append tracks to one Spotify playlist",
		Version: "0.1.0",
		Writer:  r.output,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   r.configPath,
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, authCommand, searchCommand, addCommand, playlistCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads the configuration named by --config and applies environment overrides.
//
// A missing file is not an error; the embedded defaults are used.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")

	if !r.configFixed {
		if _, err := os.Stat(r.configPath); err == nil {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		} else {
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		}
	}

	r.config.ApplyEnv(r.getenv)
	shared.SetLogLevel(r.logger, r.config.LogLevel())
	return ctx, nil
}

// database opens and migrates the configured database once.
func (r *Runner) database(ctx context.Context) (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db, r.ownsDB = db, true
	return db, nil
}

// submissions returns the submission history repository.
func (r *Runner) submissions(ctx context.Context) (*repositories.SubmissionRepository, error) {
	if r.submissionDB != nil {
		return r.submissionDB, nil
	}
	db, err := r.database(ctx)
	if err != nil {
		return nil, err
	}
	r.submissionDB = repositories.NewSubmissionRepository(db)
	return r.submissionDB, nil
}

// spotify returns the API client, building it from the configuration on first use.
//
// Submission history is best effort: a database that cannot be opened only disables recording.
func (r *Runner) spotify(ctx context.Context) (*services.SpotifyClient, error) {
	if r.client != nil {
		return r.client, nil
	}

	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	if r.metrics == nil {
		r.metrics = services.NewMetrics(r.registry)
	}

	opts := services.ClientOptsFromConfig(r.config, r.logger)
	opts.HTTPClient = r.httpClient
	opts.Metrics = r.metrics
	if repo, err := r.submissions(ctx); err != nil {
		r.logger.Warn("submission history disabled", "error", err)
	} else {
		opts.Recorder = repo
	}

	client, err := services.NewSpotifyClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create spotify client: %w", err)
	}
	r.client = client
	return client, nil
}

// Close releases the database when the runner opened it.
func (r *Runner) Close() error {
	if r.db != nil && r.ownsDB {
		r.ownsDB = false
		return r.db.Close()
	}
	return nil
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
