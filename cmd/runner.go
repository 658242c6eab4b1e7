package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/iasync/internal/matcher"
	"github.com/desertthunder/iasync/internal/ratelimit"
	"github.com/desertthunder/iasync/internal/repositories"
	"github.com/desertthunder/iasync/internal/services"
	"github.com/desertthunder/iasync/internal/shared"
	"github.com/desertthunder/iasync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and remote clients are built lazily by [Runner.init] so commands like `setup config`
// work before a database exists.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	sleep      ratelimit.SleepFunc

	db       *sql.DB
	ownsDB   bool
	archive  services.Archive
	searcher matcher.Searcher
	cache    *repositories.CacheRepository
	quota    *repositories.QuotaRepository
	tokens   *repositories.TokenRepository
	engine   *tasks.Engine
	matcher  *matcher.Matcher
	ready    bool
}

// RunnerOpts contains configuration options for creating a Runner.
//
// DB, Archive and Searcher replace the ones [Runner.init] would build from the config.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB
	Archive    services.Archive
	Searcher   matcher.Searcher
	Sleep      ratelimit.SleepFunc
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
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		sleep:      opts.Sleep,
		db:         opts.DB,
		archive:    opts.Archive,
		searcher:   opts.Searcher,
	}
}

// SetLogger replaces the logger. Components built afterwards use it.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Bootstrap loads the .env file and the configuration named by the global flags.
func (r *Runner) Bootstrap(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	shared.SetVerbose(r.logger, cmd.Bool("verbose"))

	if err := shared.LoadEnvFile(cmd.String("env")); err != nil {
		r.logger.Warn("failed to load env file", "error", err)
	}

	r.configPath = cmd.String("config")
	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	shared.ApplyEnvOverrides(r.config)
	if err := r.config.Validate(); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// init opens the database and builds the clients, engine and matcher once.
func (r *Runner) init(ctx context.Context) error {
	if r.ready {
		return nil
	}

	if r.db == nil {
		db, err := shared.OpenConfigured(r.config.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		r.db = db
		r.ownsDB = true
	}

	r.cache = repositories.NewCacheRepository(r.db, r.config.Cache.Lifetime())
	r.quota = repositories.NewQuotaRepository(r.db)
	r.tokens = repositories.NewTokenRepository(r.db)

	if r.archive == nil {
		a := r.config.Archive
		r.archive = services.NewArchiveService(a.BaseURL, a.AccessKey, a.SecretKey).WithHTTPClient(r.httpClient)
	}

	caller := ratelimit.NewCaller(ratelimit.Options{
		Attempts: r.config.Limits.RetryAttempts,
		Delay:    r.config.Limits.Backoff(),
		Pacer:    ratelimit.NewPacer(r.config.Limits.Delay()),
		Logger:   r.logger,
		Sleep:    r.sleep,
	})
	r.engine = tasks.NewEngine(tasks.Options{
		Archive: r.archive,
		Cache:   r.cache,
		Caller:  caller,
		Logger:  r.logger,
	})

	if r.searcher == nil && r.config.YouTube.Enabled() {
		searcher, err := r.buildSearcher(ctx)
		if err != nil {
			r.logger.Warn("youtube matching disabled", "error", err)
		} else {
			r.searcher = searcher
		}
	}

	yt := r.config.YouTube
	r.matcher = matcher.New(matcher.Options{
		Searcher:   r.searcher,
		Cache:      r.cache,
		Quota:      r.quota,
		ChannelID:  yt.ChannelID,
		DailyQuota: yt.DailyQuota,
		SearchCost: yt.SearchCost,
		Logger:     r.logger,
	})

	r.ready = true
	return nil
}

// buildSearcher prefers the API key and falls back to the stored OAuth token.
func (r *Runner) buildSearcher(ctx context.Context) (matcher.Searcher, error) {
	yt := r.config.YouTube
	opts := services.YouTubeOptions{APIKey: yt.APIKey, Endpoint: yt.Endpoint, MaxResults: yt.MaxResults}

	if yt.APIKey == "" {
		source, err := r.tokens.TokenSource(ctx, services.YouTubeOAuthConfig(yt.ClientID, yt.ClientSecret))
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return nil, fmt.Errorf("%w: run 'iasync youtube auth' first", err)
		}
		if err != nil {
			return nil, err
		}
		opts.TokenSource = source
	}
	return services.NewYouTubeSearcher(ctx, opts)
}

// Close releases the database when the runner opened it.
func (r *Runner) Close() error {
	if r.ownsDB && r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, metadataCommand, youtubeCommand, cacheCommand, serveCommand, tuiCommand,
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
