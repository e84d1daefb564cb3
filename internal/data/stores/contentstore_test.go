package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/colonyops/inkwell/internal/core/content"
	"github.com/colonyops/inkwell/internal/core/idea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDraft seeds an idea and one drafted content row, returning the draft.
func newDraft(t *testing.T, ctx context.Context, ideas *IdeaStore, contents *ContentStore, channel string) content.Content {
	t.Helper()

	item, err := ideas.Capture(ctx, CaptureParams{Quote: "q", Source: idea.SourceHuman})
	require.NoError(t, err)

	c := content.Content{
		ID:        uuid.NewString(),
		IdeaID:    item.ID,
		Channel:   channel,
		Body:      "draft body",
		Lifecycle: content.LifecycleDrafted,
		CreatedAt: time.Now(),
	}
	require.NoError(t, contents.Create(ctx, c))
	return c
}

func TestContentCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)

		got, err := contents.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.IdeaID, got.IdeaID)
		assert.Equal(t, content.LifecycleDrafted, got.Lifecycle)
		assert.Equal(t, "draft body", got.Body)
		assert.Nil(t, got.QueuedAt)
	})

	t.Run("duplicate channel draft rejected", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)

		dup := content.Content{
			ID:        uuid.NewString(),
			IdeaID:    c.IdeaID,
			Channel:   c.Channel,
			Body:      "second try",
			Lifecycle: content.LifecycleDrafted,
			CreatedAt: time.Now(),
		}
		err := contents.Create(ctx, dup)

		var dupErr *content.DuplicateChannelPublishError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, c.IdeaID, dupErr.IdeaID)
		assert.Equal(t, c.Channel, dupErr.Channel)
	})

	t.Run("same idea different channel allowed", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)

		other := content.Content{
			ID:        uuid.NewString(),
			IdeaID:    c.IdeaID,
			Channel:   content.ChannelBluesky,
			Body:      "bluesky body",
			Lifecycle: content.LifecycleDrafted,
			CreatedAt: time.Now(),
		}
		require.NoError(t, contents.Create(ctx, other))

		all, err := contents.ListByIdea(ctx, c.IdeaID)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("redraft allowed after failure", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.NoError(t, contents.MarkFailed(ctx, c.ID, 3, "timed out"))

		retry := content.Content{
			ID:        uuid.NewString(),
			IdeaID:    c.IdeaID,
			Channel:   c.Channel,
			Body:      "second try",
			Lifecycle: content.LifecycleDrafted,
			CreatedAt: time.Now(),
		}
		require.NoError(t, contents.Create(ctx, retry))
	})
}

func TestContentQueueCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("queue then cancel returns to draft", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.NoError(t, contents.Queue(ctx, c.ID, nil))

		got, err := contents.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, content.LifecycleQueued, got.Lifecycle)
		require.NotNil(t, got.QueuedAt)

		require.NoError(t, contents.Cancel(ctx, c.ID))

		got, err = contents.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, content.LifecycleDrafted, got.Lifecycle)
		assert.Nil(t, got.QueuedAt)
	})

	t.Run("queueing twice is a duplicate", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.NoError(t, contents.Queue(ctx, c.ID, nil))

		err := contents.Queue(ctx, c.ID, nil)
		var dupErr *content.DuplicateChannelPublishError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, c.IdeaID, dupErr.IdeaID)
		assert.Equal(t, c.Channel, dupErr.Channel)
	})

	t.Run("re-enqueueing posted content is a duplicate", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.NoError(t, contents.Queue(ctx, c.ID, nil))
		require.NoError(t, contents.MarkPosted(ctx, c.ID, time.Now(), 1))

		err := contents.Queue(ctx, c.ID, nil)
		var dupErr *content.DuplicateChannelPublishError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, c.IdeaID, dupErr.IdeaID)
		assert.Equal(t, c.Channel, dupErr.Channel)
	})

	t.Run("queueing waived content is not a duplicate", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.NoError(t, contents.Waive(ctx, c.ID))

		err := contents.Queue(ctx, c.ID, nil)
		require.Error(t, err)
		var dupErr *content.DuplicateChannelPublishError
		assert.False(t, errors.As(err, &dupErr))
	})

	t.Run("cancel refused after claim", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.NoError(t, contents.Queue(ctx, c.ID, nil))

		claimed, err := contents.Claim(ctx, c.ID, time.Now())
		require.NoError(t, err)
		require.True(t, claimed)

		assert.ErrorIs(t, contents.Cancel(ctx, c.ID), content.ErrNotCancelable)
	})

	t.Run("cancel of drafted fails", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.Error(t, contents.Cancel(ctx, c.ID))
	})
}

func TestContentQueueOrder(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	ideas := NewIdeaStore(database)
	contents := NewContentStore(database)

	first := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
	second := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)

	require.NoError(t, contents.Queue(ctx, first.ID, nil))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, contents.Queue(ctx, second.ID, nil))

	due, ok, err := contents.NextDue(ctx, content.ChannelTwitter, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, due.ID, "FIFO by enqueue time")

	// scheduled items are not due before their time
	third := newDraft(t, ctx, ideas, contents, content.ChannelBluesky)
	at := time.Now().Add(time.Hour)
	require.NoError(t, contents.Queue(ctx, third.ID, &at))

	_, ok, err = contents.NextDue(ctx, content.ChannelBluesky, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = contents.NextDue(ctx, content.ChannelBluesky, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestContentClaim(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	ideas := NewIdeaStore(database)
	contents := NewContentStore(database)

	c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
	require.NoError(t, contents.Queue(ctx, c.ID, nil))

	claimed, err := contents.Claim(ctx, c.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)

	// second claim loses
	claimed, err = contents.Claim(ctx, c.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)

	// claimed items are no longer due
	_, ok, err := contents.NextDue(ctx, content.ChannelTwitter, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	// releasing stale claims puts the item back
	released, err := contents.ReleaseClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	_, ok, err = contents.NextDue(ctx, content.ChannelTwitter, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestContentPostedFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("mark posted", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.NoError(t, contents.Queue(ctx, c.ID, nil))

		postedAt := time.Now()
		require.NoError(t, contents.MarkPosted(ctx, c.ID, postedAt, 2))

		got, err := contents.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, content.LifecyclePosted, got.Lifecycle)
		assert.Equal(t, 2, got.Attempts)
		require.NotNil(t, got.PostedAt)

		last, err := contents.LastPostedAt(ctx, content.ChannelTwitter)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, postedAt.UnixNano(), last.UnixNano())
	})

	t.Run("mark failed records error and releases claim", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		c := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.NoError(t, contents.Queue(ctx, c.ID, nil))
		_, err := contents.Claim(ctx, c.ID, time.Now())
		require.NoError(t, err)

		require.NoError(t, contents.MarkFailed(ctx, c.ID, 3, "connection refused"))

		got, err := contents.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, content.LifecycleFailed, got.Lifecycle)
		assert.Equal(t, "connection refused", got.LastError)
		assert.Nil(t, got.ClaimedAt)
	})

	t.Run("no posts means no last posted time", func(t *testing.T) {
		database := newTestDB(t)
		contents := NewContentStore(database)

		last, err := contents.LastPostedAt(ctx, content.ChannelTwitter)
		require.NoError(t, err)
		assert.Nil(t, last)
	})
}

func TestContentWaive(t *testing.T) {
	ctx := context.Background()

	t.Run("waive drafted queued and failed", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		drafted := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.NoError(t, contents.Waive(ctx, drafted.ID))

		queued := newDraft(t, ctx, ideas, contents, content.ChannelBluesky)
		require.NoError(t, contents.Queue(ctx, queued.ID, nil))
		require.NoError(t, contents.Waive(ctx, queued.ID))

		failed := newDraft(t, ctx, ideas, contents, content.ChannelThreads)
		require.NoError(t, contents.MarkFailed(ctx, failed.ID, 3, "oops"))
		require.NoError(t, contents.Waive(ctx, failed.ID))
	})

	t.Run("waive refused for posted and claimed", func(t *testing.T) {
		database := newTestDB(t)
		ideas := NewIdeaStore(database)
		contents := NewContentStore(database)

		posted := newDraft(t, ctx, ideas, contents, content.ChannelTwitter)
		require.NoError(t, contents.Queue(ctx, posted.ID, nil))
		require.NoError(t, contents.MarkPosted(ctx, posted.ID, time.Now(), 1))
		require.Error(t, contents.Waive(ctx, posted.ID))

		claimed := newDraft(t, ctx, ideas, contents, content.ChannelBluesky)
		require.NoError(t, contents.Queue(ctx, claimed.ID, nil))
		_, err := contents.Claim(ctx, claimed.ID, time.Now())
		require.NoError(t, err)
		assert.ErrorIs(t, contents.Waive(ctx, claimed.ID), content.ErrNotCancelable)
	})
}

func TestContentCounts(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	ideas := NewIdeaStore(database)
	contents := NewContentStore(database)

	item, err := ideas.Capture(ctx, CaptureParams{Quote: "q", Source: idea.SourceHuman})
	require.NoError(t, err)

	mk := func(channel string) content.Content {
		c := content.Content{
			ID:        uuid.NewString(),
			IdeaID:    item.ID,
			Channel:   channel,
			Body:      "b",
			Lifecycle: content.LifecycleDrafted,
			CreatedAt: time.Now(),
		}
		require.NoError(t, contents.Create(ctx, c))
		return c
	}

	a := mk(content.ChannelTwitter)
	b := mk(content.ChannelBluesky)
	mk(content.ChannelThreads)

	drafted, err := contents.CountDrafted(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), drafted)

	require.NoError(t, contents.Queue(ctx, a.ID, nil))
	require.NoError(t, contents.MarkPosted(ctx, a.ID, time.Now(), 1))
	require.NoError(t, contents.Waive(ctx, b.ID))

	unsettled, err := contents.CountUnsettled(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unsettled, "posted and waived are settled")
}
