package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/colonyops/inkwell/pkg/iojson"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

type DraftCmd struct {
	flags *Flags

	// flags
	channel    string
	bodyFile   string
	jsonOutput bool
}

// NewDraftCmd creates a new draft command
func NewDraftCmd(flags *Flags) *DraftCmd {
	return &DraftCmd{flags: flags}
}

// Register adds the draft command to the application
func (cmd *DraftCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "draft",
		Usage:     "Derive channel-specific content from an idea",
		UsageText: "inkwell draft <id> --channel <name> [options] [body]",
		Description: `Creates a draft for one publish channel from an organizing idea.
The body is taken from the argument, from --file, or from stdin.

Each idea can hold at most one live draft per channel; drafting for a
channel whose previous draft failed or was waived is allowed.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "channel",
				Aliases:     []string{"c"},
				Usage:       "target channel (twitter, bluesky, book-section, ...)",
				Required:    true,
				Destination: &cmd.channel,
			},
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "read the draft body from a file",
				Destination: &cmd.bodyFile,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output the created draft as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *DraftCmd) run(ctx context.Context, c *cli.Command) error {
	id, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}

	body, err := cmd.readBody(c)
	if err != nil {
		return err
	}

	draft, err := cmd.flags.Service.Draft(ctx, id, cmd.channel, body)
	if err != nil {
		return fmt.Errorf("draft for idea %d: %w", id, err)
	}

	if cmd.jsonOutput {
		return iojson.WriteWith(c.Root().Writer, os.Stderr, draft)
	}

	fmt.Fprintf(c.Root().Writer, "drafted %s for #%d on %s\n", draft.ID, id, draft.Channel)
	return nil
}

func (cmd *DraftCmd) readBody(c *cli.Command) (string, error) {
	if body := strings.Join(c.Args().Slice()[1:], " "); body != "" {
		return body, nil
	}

	if cmd.bodyFile != "" {
		raw, err := os.ReadFile(cmd.bodyFile)
		if err != nil {
			return "", fmt.Errorf("read body file: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no body provided (stdin is a terminal); pass the body as an argument, use --file, or pipe it in")
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
