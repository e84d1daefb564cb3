package commands

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/colonyops/inkwell/internal/core/content"
	"github.com/colonyops/inkwell/internal/core/idea"
	"github.com/colonyops/inkwell/internal/data/stores"
	"github.com/colonyops/inkwell/pkg/iojson"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

var reportHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

type ReportCmd struct {
	flags *Flags

	// flags
	jsonOutput bool
}

// NewReportCmd creates a new report command
func NewReportCmd(flags *Flags) *ReportCmd {
	return &ReportCmd{flags: flags}
}

// Register adds the report command to the application
func (cmd *ReportCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "report",
		Usage:     "Summarize pipeline progress by chapter",
		UsageText: "inkwell report [--json]",
		Description: `Shows, per chapter, how many ideas sit in each stage and how much
derived content has been posted. Unassigned ideas are grouped under
their own row.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

// chapterReport is one chapter's aggregate row.
type chapterReport struct {
	Chapter   string `json:"chapter"`
	Total     int    `json:"total"`
	Organized int    `json:"organized"`
	Used      int    `json:"used"`
	Archived  int    `json:"archived"`
	Posted    int    `json:"posted"`
	Pending   int    `json:"pending"`
}

func (cmd *ReportCmd) run(ctx context.Context, c *cli.Command) error {
	ideas, err := cmd.flags.Service.ListIdeas(ctx, stores.Filter{})
	if err != nil {
		return fmt.Errorf("list ideas: %w", err)
	}

	byChapter := map[string]*chapterReport{}
	for _, item := range ideas {
		row, ok := byChapter[item.Chapter]
		if !ok {
			row = &chapterReport{Chapter: item.Chapter}
			byChapter[item.Chapter] = row
		}

		row.Total++
		switch item.Status {
		case idea.StatusOrganizing, idea.StatusInCreation:
			row.Organized++
		case idea.StatusUsed:
			row.Used++
		case idea.StatusArchived:
			row.Archived++
		}

		contents, err := cmd.flags.Service.ContentForIdea(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("content for idea %d: %w", item.ID, err)
		}
		for _, ct := range contents {
			switch {
			case ct.Lifecycle == content.LifecyclePosted:
				row.Posted++
			case !ct.Lifecycle.Settled():
				row.Pending++
			}
		}
	}

	rows := make([]chapterReport, 0, len(byChapter))
	for _, row := range byChapter {
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, func(a, b chapterReport) int {
		return strings.Compare(a.Chapter, b.Chapter)
	})

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, row := range rows {
			if err := iojson.WriteLine(out, row); err != nil {
				return fmt.Errorf("encode report row: %w", err)
			}
		}
		return nil
	}

	if len(rows) == 0 {
		fmt.Fprintf(os.Stderr, "Nothing to report\n")
		return nil
	}

	header := "Pipeline report"
	if term.IsTerminal(int(os.Stdout.Fd())) {
		header = reportHeaderStyle.Render(header)
	}
	fmt.Fprintln(out, header)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHAPTER\tIDEAS\tORGANIZING\tUSED\tARCHIVED\tPOSTED\tPENDING")

	for _, row := range rows {
		chapter := row.Chapter
		if chapter == "" {
			chapter = "(unassigned)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			chapter, row.Total, row.Organized, row.Used, row.Archived, row.Posted, row.Pending)
	}

	return w.Flush()
}
