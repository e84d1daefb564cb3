package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/colonyops/inkwell/internal/core/content"
	"github.com/colonyops/inkwell/internal/core/idea"
	"github.com/colonyops/inkwell/internal/data/stores"
	"github.com/colonyops/inkwell/pkg/iojson"
	"github.com/urfave/cli/v3"
)

type LsCmd struct {
	flags *Flags

	// flags
	status     string
	chapter    string
	tag        string
	jsonOutput bool
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags) *LsCmd {
	return &LsCmd{flags: flags}
}

// Register adds the ls and show commands to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "ls",
			Usage:     "List ideas",
			UsageText: "inkwell ls [--status <s>] [--chapter <c>] [--tag <glob>] [--json]",
			Description: `Displays a table of ideas with their status, chapter, and tags.

The --tag filter accepts glob patterns, so 'inkwell ls --tag "book/*"'
matches every idea tagged under the book/ prefix.`,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:        "status",
					Aliases:     []string{"s"},
					Usage:       "filter by status",
					Destination: &cmd.status,
				},
				&cli.StringFlag{
					Name:        "chapter",
					Aliases:     []string{"c"},
					Usage:       "filter by chapter",
					Destination: &cmd.chapter,
				},
				&cli.StringFlag{
					Name:        "tag",
					Aliases:     []string{"t"},
					Usage:       "filter by tag (glob patterns allowed)",
					Destination: &cmd.tag,
				},
				&cli.BoolFlag{
					Name:        "json",
					Usage:       "output as JSON lines",
					Destination: &cmd.jsonOutput,
				},
			},
			Action: cmd.runLs,
		},
		&cli.Command{
			Name:      "show",
			Usage:     "Show one idea in full",
			UsageText: "inkwell show <id> [--json]",
			Description: `Prints an idea with its refined text, tags, cross-references,
derived content, and audit trail.`,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:        "json",
					Usage:       "output as JSON",
					Destination: &cmd.jsonOutput,
				},
			},
			Action: cmd.runShow,
		},
	)

	return app
}

func (cmd *LsCmd) runLs(ctx context.Context, c *cli.Command) error {
	if cmd.status != "" && !idea.Status(cmd.status).IsValid() {
		return fmt.Errorf("unknown status %q (valid: %s)", cmd.status, statusNames())
	}

	ideas, err := cmd.flags.Service.ListIdeas(ctx, stores.Filter{
		Status:  idea.Status(cmd.status),
		Chapter: cmd.chapter,
		Tag:     cmd.tag,
	})
	if err != nil {
		return fmt.Errorf("list ideas: %w", err)
	}

	if len(ideas) == 0 {
		if !cmd.jsonOutput {
			fmt.Fprintf(os.Stderr, "No ideas found\n")
		}
		return nil
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, item := range ideas {
			if err := iojson.WriteLine(out, item); err != nil {
				return fmt.Errorf("encode idea: %w", err)
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tCHAPTER\tTAGS\tQUOTE")

	for _, item := range ideas {
		chapter := item.Chapter
		if chapter == "" {
			chapter = "-"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			item.ID, item.Status, chapter, strings.Join(item.Tags, ","), truncate(item.Quote, 60))
	}

	return w.Flush()
}

func (cmd *LsCmd) runShow(ctx context.Context, c *cli.Command) error {
	id, err := ideaIDArg(c, 0)
	if err != nil {
		return err
	}

	item, err := cmd.flags.Service.GetIdea(ctx, id)
	if err != nil {
		return fmt.Errorf("get idea %d: %w", id, err)
	}

	contents, err := cmd.flags.Service.ContentForIdea(ctx, id)
	if err != nil {
		return fmt.Errorf("content for idea %d: %w", id, err)
	}

	audit, err := cmd.flags.Service.AuditLog(ctx, id)
	if err != nil {
		return fmt.Errorf("audit log for idea %d: %w", id, err)
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		return iojson.WriteWith(out, os.Stderr, struct {
			Idea    idea.Idea         `json:"idea"`
			Content any               `json:"content,omitempty"`
			Audit   []idea.AuditEntry `json:"audit,omitempty"`
		}{item, contents, audit})
	}

	fmt.Fprintf(out, "#%d [%s] %s\n", item.ID, item.Status, item.Quote)
	if item.Refined != "" {
		fmt.Fprintf(out, "  refined: %s\n", item.Refined)
	}
	fmt.Fprintf(out, "  source: %s\n", item.Source)
	if item.Chapter != "" {
		fmt.Fprintf(out, "  chapter: %s\n", item.Chapter)
	}
	if len(item.Tags) > 0 {
		fmt.Fprintf(out, "  tags: %s\n", strings.Join(item.Tags, ", "))
	}
	if len(item.CrossRefs) > 0 {
		refs := make([]string, len(item.CrossRefs))
		for i, r := range item.CrossRefs {
			refs[i] = fmt.Sprintf("#%d", r)
		}
		fmt.Fprintf(out, "  linked: %s\n", strings.Join(refs, ", "))
	}

	if len(contents) > 0 {
		now := time.Now()
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "CONTENT\tCHANNEL\tLIFECYCLE\tATTEMPTS")
		for _, ct := range contents {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", ct.ID, ct.Channel, contentState(ct, now), ct.Attempts)
		}
		_ = w.Flush()
	}

	if len(audit) > 0 {
		fmt.Fprintln(out)
		for _, e := range audit {
			fmt.Fprintf(out, "  %s  %-16s %s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.Kind, e.Detail)
		}
	}

	return nil
}

func statusNames() string {
	names := make([]string, 0, len(idea.Statuses()))
	for _, s := range idea.Statuses() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// contentState renders a content row's lifecycle, marking queued items
// that are still waiting on their scheduled time.
func contentState(ct content.Content, now time.Time) string {
	if ct.Lifecycle == content.LifecycleQueued && !ct.Due(now) {
		return string(ct.Lifecycle) + " (scheduled)"
	}
	return string(ct.Lifecycle)
}

// truncate shortens s to at most n runes, never splitting a multibyte
// character.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}
