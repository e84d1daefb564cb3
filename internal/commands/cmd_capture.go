package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/colonyops/inkwell/internal/core/idea"
	"github.com/colonyops/inkwell/internal/pipeline"
	"github.com/colonyops/inkwell/pkg/iojson"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

type CaptureCmd struct {
	flags *Flags

	// flags
	source         string
	tags           []string
	idempotencyKey string
	jsonOutput     bool
}

// NewCaptureCmd creates a new capture command
func NewCaptureCmd(flags *Flags) *CaptureCmd {
	return &CaptureCmd{flags: flags}
}

// Register adds the capture command to the application
func (cmd *CaptureCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "capture",
		Usage:     "Capture a raw thought into the pipeline",
		UsageText: "inkwell capture [options] <quote>",
		Description: `Records a verbatim quote and allocates it a permanent ID.

The quote is immutable after capture; use 'inkwell refine' to record a
cleaned-up variant later. When no quote argument is given the quote is
read from stdin, which is how transcript importers feed the pipeline.

Pass --key to make a capture idempotent: replaying the same key returns
the already-captured idea instead of allocating a new one.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "source",
				Aliases:     []string{"s"},
				Usage:       "capture source (human, import, automated-transcript)",
				Value:       string(idea.SourceHuman),
				Destination: &cmd.source,
			},
			&cli.StringSliceFlag{
				Name:        "tag",
				Aliases:     []string{"t"},
				Usage:       "tag to attach at capture time (repeatable)",
				Destination: &cmd.tags,
			},
			&cli.StringFlag{
				Name:        "key",
				Aliases:     []string{"k"},
				Usage:       "idempotency key for replay-safe imports",
				Destination: &cmd.idempotencyKey,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output the captured idea as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *CaptureCmd) run(ctx context.Context, c *cli.Command) error {
	quote := strings.Join(c.Args().Slice(), " ")
	if quote == "" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("no quote provided (stdin is a terminal); pass the quote as an argument or pipe it in")
		}
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		quote = strings.TrimSpace(string(raw))
	}

	captured, existed, err := cmd.flags.Service.Capture(ctx, pipeline.CaptureRequest{
		Quote:          quote,
		Source:         idea.Source(cmd.source),
		Tags:           cmd.tags,
		IdempotencyKey: cmd.idempotencyKey,
	})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	if cmd.jsonOutput {
		return iojson.WriteWith(c.Root().Writer, os.Stderr, captured)
	}

	if existed {
		fmt.Fprintf(c.Root().Writer, "already captured as #%d\n", captured.ID)
		return nil
	}

	fmt.Fprintf(c.Root().Writer, "captured #%d\n", captured.ID)
	return nil
}
