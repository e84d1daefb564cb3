package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/inkwell/internal/commands"
	"github.com/colonyops/inkwell/internal/core/config"
	"github.com/colonyops/inkwell/internal/data/db"
	"github.com/colonyops/inkwell/internal/data/stores"
	"github.com/colonyops/inkwell/internal/pipeline"
	"github.com/colonyops/inkwell/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser func()
		database  *db.DB
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "inkwell",
		Usage:     "Capture ideas and publish them everywhere",
		UsageText: "inkwell [global options] command [command options]",
		Description: `Inkwell moves raw thoughts through a writing pipeline: capture them
verbatim, tag and cross-reference them, organize them into chapters,
derive per-channel drafts, and publish on a schedule that respects
each channel's rate limits.

Captured quotes are immutable and IDs are never reused, so any idea
can be cited by number forever.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("INKWELL_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/inkwell.log)",
				Sources:     cli.EnvVars("INKWELL_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("INKWELL_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("INKWELL_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Always log to a file; use explicit path or default to <datadir>/inkwell.log
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "inkwell.log")
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			// Open database connection
			dbOpts := db.OpenOptions{
				MaxOpenConns: cfg.Database.MaxOpenConns,
				MaxIdleConns: cfg.Database.MaxIdleConns,
			}
			database, err = db.Open(cfg.DataDir, dbOpts)
			if err != nil {
				return ctx, fmt.Errorf("open database: %w", err)
			}

			// Create stores
			ideaStore := stores.NewIdeaStore(database)
			contentStore := stores.NewContentStore(database)
			alertStore := stores.NewAlertStore(database)

			svcLogger := log.With().Str("component", "pipeline").Logger()

			flags.Service = pipeline.NewService(ideaStore, contentStore, alertStore, cfg, svcLogger)
			flags.Contents = contentStore
			flags.Alerts = alertStore

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			// Close database connection
			if database != nil {
				if err := database.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close database")
					return err
				}
			}

			// Close log file
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app = commands.NewCaptureCmd(flags).Register(app)
	app = commands.NewTagCmd(flags).Register(app)
	app = commands.NewLinkCmd(flags).Register(app)
	app = commands.NewOrganizeCmd(flags).Register(app)
	app = commands.NewDraftCmd(flags).Register(app)
	app = commands.NewPublishCmd(flags).Register(app)
	app = commands.NewRunCmd(flags).Register(app)
	app = commands.NewSealCmd(flags).Register(app)
	app = commands.NewLsCmd(flags).Register(app)
	app = commands.NewReportCmd(flags).Register(app)
	app = commands.NewAlertsCmd(flags).Register(app)
	app = commands.NewConfigValidateCmd(flags).Register(app)

	exitCode := 0
	runErr := app.Run(ctx, os.Args)
	if runErr != nil {
		fmt.Println()
		fmt.Println(runErr.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
