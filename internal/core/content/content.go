// Package content defines channel-specific drafts derived from ideas.
package content

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Lifecycle represents the publish state of a derived draft.
type Lifecycle string

const (
	LifecycleDrafted Lifecycle = "drafted"
	LifecycleQueued  Lifecycle = "queued"
	LifecyclePosted  Lifecycle = "posted"
	LifecycleFailed  Lifecycle = "failed"
	LifecycleWaived  Lifecycle = "waived"
)

// Settled reports whether the draft no longer blocks its idea from being
// archived. Failed drafts are not settled: they hold the idea in creation
// until retried (as a fresh draft) or waived.
func (l Lifecycle) Settled() bool {
	return l == LifecyclePosted || l == LifecycleWaived
}

// Built-in channel names. Channels are configuration-driven; these are the
// destinations the default config knows about.
const (
	ChannelTwitter     = "twitter"
	ChannelBluesky     = "bluesky"
	ChannelThreads     = "threads"
	ChannelReddit      = "reddit"
	ChannelSubstack    = "substack"
	ChannelBookSection = "book-section"
)

// Content is a platform-specific draft derived from one idea. The body is
// opaque to the pipeline.
type Content struct {
	ID          string     `json:"id"`
	IdeaID      int64      `json:"idea_id"`
	Channel     string     `json:"channel"`
	Body        string     `json:"body"`
	Lifecycle   Lifecycle  `json:"lifecycle"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	QueuedAt    *time.Time `json:"queued_at,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	// ClaimedAt is set when a channel worker takes the item off the
	// queue. A claimed item can no longer be canceled.
	ClaimedAt *time.Time `json:"-"`
}

// Due reports whether a queued item is eligible for publishing at now.
func (c *Content) Due(now time.Time) bool {
	if c.Lifecycle != LifecycleQueued {
		return false
	}
	return c.ScheduledAt == nil || !c.ScheduledAt.After(now)
}

// Validate checks a draft before it is recorded.
func (c *Content) Validate() error {
	if c.IdeaID <= 0 {
		return errors.New("draft requires an idea id")
	}
	if strings.TrimSpace(c.Channel) == "" {
		return ErrEmptyChannel
	}
	if strings.TrimSpace(c.Body) == "" {
		return ErrEmptyBody
	}
	return nil
}

// Validation errors for Content.
var (
	ErrEmptyChannel = errors.New("channel is required")
	ErrEmptyBody    = errors.New("draft body is required")

	// ErrNotFound is returned when a content ID does not exist.
	ErrNotFound = errors.New("derived content not found")

	// ErrNotCancelable is returned when cancellation arrives after the
	// publish call has been issued.
	ErrNotCancelable = errors.New("publish already in flight, cannot cancel")
)

// DuplicateChannelPublishError indicates a second non-failed draft for the
// same (idea, channel) pair. An idea is never posted twice to one channel.
type DuplicateChannelPublishError struct {
	IdeaID  int64
	Channel string
}

func (e *DuplicateChannelPublishError) Error() string {
	return fmt.Sprintf("idea %d already has active content for channel %s", e.IdeaID, e.Channel)
}

// ChannelPublishError indicates the external channel API refused or timed
// out on a publish attempt.
type ChannelPublishError struct {
	Channel  string
	Attempts int
	Err      error
}

func (e *ChannelPublishError) Error() string {
	return fmt.Sprintf("publish to %s failed after %d attempt(s): %v", e.Channel, e.Attempts, e.Err)
}

func (e *ChannelPublishError) Unwrap() error {
	return e.Err
}
