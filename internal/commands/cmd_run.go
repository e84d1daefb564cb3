package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/colonyops/inkwell/internal/pipeline/scheduler"
	"github.com/colonyops/inkwell/internal/pipeline/sweep"
	"github.com/colonyops/inkwell/pkg/executil"
	"github.com/colonyops/inkwell/pkg/logutils"
	"github.com/urfave/cli/v3"
)

type RunCmd struct {
	flags *Flags

	// flags
	once bool
	poll time.Duration
}

// NewRunCmd creates a new run command
func NewRunCmd(flags *Flags) *RunCmd {
	return &RunCmd{flags: flags}
}

// Register adds the run command to the application
func (cmd *RunCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run the publish scheduler",
		UsageText: "inkwell run [--once]",
		Description: `Starts one publish worker per configured channel plus the periodic
archive sweep, and runs until interrupted.

With --once each channel's due queue is drained a single time and the
command exits, which suits cron-style invocation.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "once",
				Usage:       "drain due work once and exit",
				Destination: &cmd.once,
			},
			&cli.DurationFlag{
				Name:        "poll",
				Usage:       "queue poll interval for idle workers",
				Value:       time.Second,
				Destination: &cmd.poll,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RunCmd) run(ctx context.Context, c *cli.Command) error {
	// The scheduler runs in the foreground, so log human-readable to
	// stderr instead of the JSON log file.
	logger, err := logutils.NewConsole(cmd.flags.LogLevel)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}

	pub := scheduler.NewExecPublisher(cmd.flags.Config, &executil.RealExecutor{})
	sched := scheduler.New(
		cmd.flags.Service,
		cmd.flags.Contents,
		cmd.flags.Config,
		pub,
		logger.With().Str("component", "scheduler").Logger(),
		scheduler.Options{PollInterval: cmd.poll},
	)

	if cmd.once {
		if err := sched.RunOnce(ctx); err != nil {
			return fmt.Errorf("run once: %w", err)
		}
		if _, err := cmd.flags.Service.SweepArchive(ctx); err != nil {
			return fmt.Errorf("archive sweep: %w", err)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweep.Start(ctx, cmd.flags.Service, cmd.flags.Config.Sweep.Interval.Std())

	logger.Info().Msg("scheduler started")
	sched.Start(ctx)
	logger.Info().Msg("scheduler stopped")

	return nil
}
