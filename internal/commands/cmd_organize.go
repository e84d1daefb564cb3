package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

type OrganizeCmd struct {
	flags *Flags

	// flags
	history bool
}

// NewOrganizeCmd creates a new organize command
func NewOrganizeCmd(flags *Flags) *OrganizeCmd {
	return &OrganizeCmd{flags: flags}
}

// Register adds the organize, hold, resume, and chapter commands to the application
func (cmd *OrganizeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "organize",
			Usage:     "Assign an idea to a chapter and start organizing it",
			UsageText: "inkwell organize <id> <chapter>",
			Description: `Places an idea under a chapter and moves it into the organizing
stage. An idea already organizing is simply reassigned.`,
			Action: cmd.runOrganize,
		},
		&cli.Command{
			Name:      "hold",
			Usage:     "Put an idea on hold",
			UsageText: "inkwell hold <id>",
			Action:    cmd.runHold,
		},
		&cli.Command{
			Name:      "resume",
			Usage:     "Take an idea off hold",
			UsageText: "inkwell resume <id>",
			Description: `Returns a held idea to where it left off: back to organizing if a
chapter is assigned, back to new otherwise.`,
			Action: cmd.runResume,
		},
		&cli.Command{
			Name:      "chapter",
			Usage:     "Reassign an idea's chapter or show its history",
			UsageText: "inkwell chapter <id> [<chapter>] [--history]",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:        "history",
					Usage:       "show the full chapter reassignment history",
					Destination: &cmd.history,
				},
			},
			Action: cmd.runChapter,
		},
	)

	return app
}

func (cmd *OrganizeCmd) runOrganize(ctx context.Context, c *cli.Command) error {
	id, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}

	chapter := c.Args().Get(1)
	if chapter == "" {
		return fmt.Errorf("missing chapter argument")
	}

	if err := cmd.flags.Service.Organize(ctx, id, chapter); err != nil {
		return fmt.Errorf("organize idea %d: %w", id, err)
	}

	fmt.Fprintf(c.Root().Writer, "organizing #%d under %q\n", id, chapter)
	return nil
}

func (cmd *OrganizeCmd) runHold(ctx context.Context, c *cli.Command) error {
	id, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}

	if err := cmd.flags.Service.Hold(ctx, id); err != nil {
		return fmt.Errorf("hold idea %d: %w", id, err)
	}

	fmt.Fprintf(c.Root().Writer, "#%d on hold\n", id)
	return nil
}

func (cmd *OrganizeCmd) runResume(ctx context.Context, c *cli.Command) error {
	id, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}

	if err := cmd.flags.Service.Resume(ctx, id); err != nil {
		return fmt.Errorf("resume idea %d: %w", id, err)
	}

	resumed, err := cmd.flags.Service.GetIdea(ctx, id)
	if err != nil {
		return fmt.Errorf("get idea %d: %w", id, err)
	}

	fmt.Fprintf(c.Root().Writer, "#%d resumed as %s\n", id, resumed.Status)
	return nil
}

func (cmd *OrganizeCmd) runChapter(ctx context.Context, c *cli.Command) error {
	id, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}

	if cmd.history {
		changes, err := cmd.flags.Service.ChapterHistory(ctx, id)
		if err != nil {
			return fmt.Errorf("chapter history for %d: %w", id, err)
		}

		if len(changes) == 0 {
			fmt.Fprintf(os.Stderr, "No chapter history for #%d\n", id)
			return nil
		}

		w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "CHAPTER\tASSIGNED")
		for _, ch := range changes {
			chapter := ch.Chapter
			if chapter == "" {
				chapter = "(unassigned)"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\n", chapter, ch.AssignedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}

	chapter := c.Args().Get(1)
	if chapter == "" {
		return fmt.Errorf("missing chapter argument (or pass --history)")
	}

	if err := cmd.flags.Service.AssignChapter(ctx, id, chapter); err != nil {
		return fmt.Errorf("assign chapter for %d: %w", id, err)
	}

	fmt.Fprintf(c.Root().Writer, "#%d assigned to %q\n", id, chapter)
	return nil
}
