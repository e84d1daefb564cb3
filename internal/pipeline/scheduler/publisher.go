package scheduler

import (
	"context"
	"fmt"

	"github.com/colonyops/inkwell/internal/core/config"
	"github.com/colonyops/inkwell/internal/core/content"
	"github.com/colonyops/inkwell/pkg/executil"
)

// Publisher delivers a draft to its external channel. Implementations are
// black boxes to the pipeline: success means the channel accepted the post.
type Publisher interface {
	Publish(ctx context.Context, channel string, c content.Content) error
}

// ExecPublisher publishes by running the channel's configured shell
// command with the draft body on stdin.
type ExecPublisher struct {
	cfg  *config.Config
	exec executil.Executor
}

var _ Publisher = (*ExecPublisher)(nil)

// NewExecPublisher creates a publisher backed by shell commands.
func NewExecPublisher(cfg *config.Config, exec executil.Executor) *ExecPublisher {
	return &ExecPublisher{cfg: cfg, exec: exec}
}

// Publish runs the channel command. A non-zero exit or a context timeout
// is a publish failure.
func (p *ExecPublisher) Publish(ctx context.Context, channel string, c content.Content) error {
	ch, ok := p.cfg.Channel(channel)
	if !ok {
		return fmt.Errorf("channel %q is not configured", channel)
	}
	if !ch.Publishable() {
		return fmt.Errorf("channel %q has no publish command", channel)
	}

	if err := p.exec.RunShInput(ctx, c.Body, ch.Command); err != nil {
		return fmt.Errorf("publish command for %s: %w", channel, err)
	}
	return nil
}
