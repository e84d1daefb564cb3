package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

type PublishCmd struct {
	flags *Flags

	// flags
	at string
}

// NewPublishCmd creates a new publish command group
func NewPublishCmd(flags *Flags) *PublishCmd {
	return &PublishCmd{flags: flags}
}

// Register adds the queue, cancel, and waive commands to the application
func (cmd *PublishCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "queue",
			Usage:     "Enqueue a draft for publishing",
			UsageText: "inkwell queue <content-id> [--at <time>]",
			Description: `Moves a draft onto its channel's publish queue. Items publish in
enqueue order, one at a time per channel, honoring the channel's
rate-limit window. With --at the item is held until the given time.`,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:        "at",
					Usage:       "earliest publish time (RFC 3339)",
					Destination: &cmd.at,
				},
			},
			Action: cmd.runQueue,
		},
		&cli.Command{
			Name:      "cancel",
			Usage:     "Pull a queued item back to draft",
			UsageText: "inkwell cancel <content-id>",
			Description: `Removes a queued item from its channel's queue and returns it to
draft. An item the scheduler has already picked up cannot be cancelled.`,
			Action: cmd.runCancel,
		},
		&cli.Command{
			Name:      "waive",
			Usage:     "Permanently give up on a draft",
			UsageText: "inkwell waive <content-id>",
			Description: `Marks a draft, unclaimed queued item, or failed item as waived.
Waived content counts as settled, so it no longer blocks its idea from
completing.`,
			Action: cmd.runWaive,
		},
	)

	return app
}

func (cmd *PublishCmd) runQueue(ctx context.Context, c *cli.Command) error {
	contentID := c.Args().First()
	if contentID == "" {
		return fmt.Errorf("missing content ID argument")
	}

	var at *time.Time
	if cmd.at != "" {
		parsed, err := time.Parse(time.RFC3339, cmd.at)
		if err != nil {
			return fmt.Errorf("invalid --at value %q: %w", cmd.at, err)
		}
		at = &parsed
	}

	if err := cmd.flags.Service.Queue(ctx, contentID, at); err != nil {
		return fmt.Errorf("queue %s: %w", contentID, err)
	}

	fmt.Fprintf(c.Root().Writer, "queued %s\n", contentID)
	return nil
}

func (cmd *PublishCmd) runCancel(ctx context.Context, c *cli.Command) error {
	contentID := c.Args().First()
	if contentID == "" {
		return fmt.Errorf("missing content ID argument")
	}

	if err := cmd.flags.Service.Cancel(ctx, contentID); err != nil {
		return fmt.Errorf("cancel %s: %w", contentID, err)
	}

	fmt.Fprintf(c.Root().Writer, "cancelled %s, back to draft\n", contentID)
	return nil
}

func (cmd *PublishCmd) runWaive(ctx context.Context, c *cli.Command) error {
	contentID := c.Args().First()
	if contentID == "" {
		return fmt.Errorf("missing content ID argument")
	}

	if err := cmd.flags.Service.Waive(ctx, contentID); err != nil {
		return fmt.Errorf("waive %s: %w", contentID, err)
	}

	fmt.Fprintf(c.Root().Writer, "waived %s\n", contentID)
	return nil
}
