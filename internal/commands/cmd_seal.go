package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

type SealCmd struct {
	flags *Flags
}

// NewSealCmd creates a new seal command
func NewSealCmd(flags *Flags) *SealCmd {
	return &SealCmd{flags: flags}
}

// Register adds the seal and sweep commands to the application
func (cmd *SealCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "seal",
			Usage:     "Archive a used idea immediately",
			UsageText: "inkwell seal <id>",
			Description: `Moves a used idea straight to the archive without waiting for the
periodic sweep. Archived ideas are immutable.`,
			Action: cmd.runSeal,
		},
		&cli.Command{
			Name:      "sweep",
			Usage:     "Archive all used ideas now",
			UsageText: "inkwell sweep",
			Description: `Runs the archive sweep once: every idea whose derived content has
all settled is moved to the archive. Safe to run repeatedly.`,
			Action: cmd.runSweep,
		},
	)

	return app
}

func (cmd *SealCmd) runSeal(ctx context.Context, c *cli.Command) error {
	id, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}

	if err := cmd.flags.Service.Seal(ctx, id); err != nil {
		return fmt.Errorf("seal idea %d: %w", id, err)
	}

	fmt.Fprintf(c.Root().Writer, "archived #%d\n", id)
	return nil
}

func (cmd *SealCmd) runSweep(ctx context.Context, c *cli.Command) error {
	swept, err := cmd.flags.Service.SweepArchive(ctx)
	if err != nil {
		return fmt.Errorf("archive sweep: %w", err)
	}

	fmt.Fprintf(c.Root().Writer, "archived %d idea(s)\n", swept)
	return nil
}
