package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/colonyops/inkwell/pkg/iojson"
	"github.com/urfave/cli/v3"
)

type AlertsCmd struct {
	flags *Flags

	// flags
	clear      bool
	jsonOutput bool
}

// NewAlertsCmd creates a new alerts command
func NewAlertsCmd(flags *Flags) *AlertsCmd {
	return &AlertsCmd{flags: flags}
}

// Register adds the alerts command to the application
func (cmd *AlertsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "alerts",
		Usage:     "Show operator alerts",
		UsageText: "inkwell alerts [--clear] [--json]",
		Description: `Lists alerts raised by the pipeline, such as drafts that exhausted
their publish retries. Alerts stay until cleared.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "clear",
				Usage:       "dismiss all alerts",
				Destination: &cmd.clear,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *AlertsCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.clear {
		if err := cmd.flags.Alerts.Clear(ctx); err != nil {
			return fmt.Errorf("clear alerts: %w", err)
		}
		fmt.Fprintln(c.Root().Writer, "alerts cleared")
		return nil
	}

	alerts, err := cmd.flags.Alerts.List(ctx)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	if len(alerts) == 0 {
		if !cmd.jsonOutput {
			fmt.Fprintf(os.Stderr, "No alerts\n")
		}
		return nil
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, a := range alerts {
			if err := iojson.WriteLine(out, a); err != nil {
				return fmt.Errorf("encode alert: %w", err)
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tLEVEL\tMESSAGE")

	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", a.CreatedAt.Format("2006-01-02 15:04"), a.Level, a.Message)
	}

	return w.Flush()
}
