package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

type TagCmd struct {
	flags *Flags
}

// NewTagCmd creates a new tag command
func NewTagCmd(flags *Flags) *TagCmd {
	return &TagCmd{flags: flags}
}

// Register adds the tag and refine commands to the application
func (cmd *TagCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "tag",
			Usage:     "Attach tags to an idea",
			UsageText: "inkwell tag <id> <tag> [<tag>...]",
			Description: `Adds one or more tags to an idea. Tagging is additive and
idempotent: tags the idea already carries are skipped, never duplicated.`,
			Action: cmd.runTag,
		},
		&cli.Command{
			Name:      "refine",
			Usage:     "Record a refined variant of an idea's quote",
			UsageText: "inkwell refine <id> <text>",
			Description: `Stores a cleaned-up version of the captured quote. The original
capture is kept verbatim; refining again replaces only the refined text.`,
			Action: cmd.runRefine,
		},
	)

	return app
}

func (cmd *TagCmd) runTag(ctx context.Context, c *cli.Command) error {
	id, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}

	tags := c.Args().Slice()[1:]
	if len(tags) == 0 {
		return fmt.Errorf("no tags provided")
	}

	if err := cmd.flags.Service.AttachTags(ctx, id, tags); err != nil {
		return fmt.Errorf("tag idea %d: %w", id, err)
	}

	fmt.Fprintf(c.Root().Writer, "tagged #%d with %s\n", id, strings.Join(tags, ", "))
	return nil
}

func (cmd *TagCmd) runRefine(ctx context.Context, c *cli.Command) error {
	id, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}

	text := strings.Join(c.Args().Slice()[1:], " ")
	if err := cmd.flags.Service.Refine(ctx, id, text); err != nil {
		return fmt.Errorf("refine idea %d: %w", id, err)
	}

	fmt.Fprintf(c.Root().Writer, "refined #%d\n", id)
	return nil
}
