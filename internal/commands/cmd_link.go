package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/colonyops/inkwell/pkg/iojson"
	"github.com/urfave/cli/v3"
)

type LinkCmd struct {
	flags *Flags

	// flags
	jsonOutput bool
}

// NewLinkCmd creates a new link command
func NewLinkCmd(flags *Flags) *LinkCmd {
	return &LinkCmd{flags: flags}
}

// Register adds the link and related commands to the application
func (cmd *LinkCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "link",
			Usage:     "Cross-reference two ideas",
			UsageText: "inkwell link <id> <id>",
			Description: `Records a symmetric cross-reference between two ideas. Linking is
idempotent; the same pair can be linked any number of times with no
effect, in either order.`,
			Action: cmd.runLink,
		},
		&cli.Command{
			Name:      "related",
			Usage:     "List ideas cross-referenced with an idea",
			UsageText: "inkwell related <id> [--json]",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:        "json",
					Usage:       "output as JSON",
					Destination: &cmd.jsonOutput,
				},
			},
			Action: cmd.runRelated,
		},
	)

	return app
}

func (cmd *LinkCmd) runLink(ctx context.Context, c *cli.Command) error {
	a, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}
	b, err := ideaIDArg(c, 1)
	if err != nil {
		return err
	}

	if err := cmd.flags.Service.Link(ctx, a, b); err != nil {
		return fmt.Errorf("link %d and %d: %w", a, b, err)
	}

	fmt.Fprintf(c.Root().Writer, "linked #%d <-> #%d\n", a, b)
	return nil
}

func (cmd *LinkCmd) runRelated(ctx context.Context, c *cli.Command) error {
	id, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}

	related, err := cmd.flags.Service.Related(ctx, id)
	if err != nil {
		return fmt.Errorf("related for %d: %w", id, err)
	}

	if cmd.jsonOutput {
		return iojson.WriteWith(c.Root().Writer, os.Stderr, related)
	}

	if len(related) == 0 {
		fmt.Fprintf(os.Stderr, "No cross-references for #%d\n", id)
		return nil
	}

	for _, r := range related {
		fmt.Fprintf(c.Root().Writer, "#%d\n", r)
	}
	return nil
}
