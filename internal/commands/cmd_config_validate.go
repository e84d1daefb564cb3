package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/colonyops/inkwell/pkg/iojson"
	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"
)

type ConfigValidateCmd struct {
	flags *Flags

	// flags
	jsonOutput bool
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate configuration file",
				UsageText:   "inkwell config validate [--json]",
				Description: "Validates channel settings, rate windows, and file paths, and reports channels that cannot publish.",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON",
						Destination: &cmd.jsonOutput,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	err := cmd.flags.Config.ValidateDeep(cmd.flags.ConfigPath)
	warnings := cmd.flags.Config.Warnings()

	if cmd.jsonOutput {
		out := struct {
			Valid    bool     `json:"valid"`
			Errors   []string `json:"errors,omitempty"`
			Warnings any      `json:"warnings,omitempty"`
		}{Valid: err == nil, Warnings: warnings}

		var fieldErrs criterio.FieldErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", fe.Field, fe.Err))
			}
		} else if err != nil {
			out.Errors = append(out.Errors, err.Error())
		}

		if werr := iojson.WriteWith(c.Root().Writer, os.Stderr, out); werr != nil {
			return werr
		}
		if err != nil {
			return cli.Exit("", 1)
		}
		return nil
	}

	out := c.Root().Writer

	for _, warn := range warnings {
		fmt.Fprintf(out, "warning: %s: %s (%s)\n", warn.Category, warn.Message, warn.Item)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return cli.Exit("", 1)
	}

	fmt.Fprintln(out, "configuration is valid")
	return nil
}
