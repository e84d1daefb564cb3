package stores

import (
	"context"
	"sync"
	"testing"

	"github.com/colonyops/inkwell/internal/core/idea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateID(t *testing.T) {
	ctx := context.Background()

	t.Run("strictly increasing from one", func(t *testing.T) {
		store := NewIdeaStore(newTestDB(t))

		for want := int64(1); want <= 5; want++ {
			id, err := store.AllocateID(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, id)
		}
	})

	t.Run("concurrent allocations never collide", func(t *testing.T) {
		store := NewIdeaStore(newTestDB(t))

		const n = 20
		ids := make(chan int64, n)
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := store.AllocateID(ctx)
				if err == nil {
					ids <- id
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[int64]bool{}
		for id := range ids {
			assert.False(t, seen[id], "id %d issued twice", id)
			seen[id] = true
		}
		assert.NotEmpty(t, seen)
	})
}

func TestCapture(t *testing.T) {
	ctx := context.Background()

	t.Run("capture and get", func(t *testing.T) {
		store := NewIdeaStore(newTestDB(t))

		created, err := store.Capture(ctx, CaptureParams{
			Quote:  "first thought",
			Source: idea.SourceHuman,
			Tags:   []string{"book/ch1", "voice"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), created.ID)
		assert.Equal(t, idea.StatusNew, created.Status)

		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "first thought", got.Quote)
		assert.Equal(t, idea.SourceHuman, got.Source)
		assert.Equal(t, []string{"book/ch1", "voice"}, got.Tags)
		assert.Empty(t, got.Chapter)
	})

	t.Run("capture writes audit entry", func(t *testing.T) {
		store := NewIdeaStore(newTestDB(t))

		created, err := store.Capture(ctx, CaptureParams{Quote: "q", Source: idea.SourceImport})
		require.NoError(t, err)

		entries, err := store.Audit(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, idea.AuditCaptured, entries[0].Kind)
		assert.Equal(t, "import", entries[0].Detail)
	})

	t.Run("idempotency key lookup", func(t *testing.T) {
		store := NewIdeaStore(newTestDB(t))

		created, err := store.Capture(ctx, CaptureParams{
			Quote:          "replayed thought",
			Source:         idea.SourceTranscript,
			IdempotencyKey: "import-42",
		})
		require.NoError(t, err)

		id, found, err := store.FindByIdempotencyKey(ctx, "import-42")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, created.ID, id)

		_, found, err = store.FindByIdempotencyKey(ctx, "never-seen")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("get not found", func(t *testing.T) {
		store := NewIdeaStore(newTestDB(t))

		_, err := store.Get(ctx, 99)
		assert.ErrorIs(t, err, idea.ErrNotFound)

		ok, err := store.Exists(ctx, 99)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestAttachTags(t *testing.T) {
	ctx := context.Background()
	store := NewIdeaStore(newTestDB(t))

	created, err := store.Capture(ctx, CaptureParams{Quote: "q", Source: idea.SourceHuman, Tags: []string{"a"}})
	require.NoError(t, err)

	// attaching an existing tag plus a new one unions, never duplicates
	require.NoError(t, store.AttachTags(ctx, created.ID, []string{"a", "b"}))
	require.NoError(t, store.AttachTags(ctx, created.ID, []string{"b"}))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Tags)

	// only genuinely new tags are audited
	entries, err := store.Audit(ctx, created.ID)
	require.NoError(t, err)
	var tagged int
	for _, e := range entries {
		if e.Kind == idea.AuditTagged {
			tagged++
		}
	}
	assert.Equal(t, 1, tagged)
}

func TestSetRefined(t *testing.T) {
	ctx := context.Background()
	store := NewIdeaStore(newTestDB(t))

	created, err := store.Capture(ctx, CaptureParams{Quote: "teh original", Source: idea.SourceHuman})
	require.NoError(t, err)

	require.NoError(t, store.SetRefined(ctx, created.ID, "the original"))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "teh original", got.Quote, "capture stays verbatim")
	assert.Equal(t, "the original", got.Refined)

	assert.ErrorIs(t, store.SetRefined(ctx, 99, "x"), idea.ErrNotFound)
}

func TestLink(t *testing.T) {
	ctx := context.Background()

	t.Run("symmetric and idempotent", func(t *testing.T) {
		store := NewIdeaStore(newTestDB(t))

		a, err := store.Capture(ctx, CaptureParams{Quote: "a", Source: idea.SourceHuman})
		require.NoError(t, err)
		b, err := store.Capture(ctx, CaptureParams{Quote: "b", Source: idea.SourceHuman})
		require.NoError(t, err)

		require.NoError(t, store.Link(ctx, a.ID, b.ID))
		// reverse order is the same edge
		require.NoError(t, store.Link(ctx, b.ID, a.ID))

		fromA, err := store.Related(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{b.ID}, fromA)

		fromB, err := store.Related(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{a.ID}, fromB)
	})

	t.Run("missing target fails both sides", func(t *testing.T) {
		store := NewIdeaStore(newTestDB(t))

		a, err := store.Capture(ctx, CaptureParams{Quote: "a", Source: idea.SourceHuman})
		require.NoError(t, err)

		err = store.Link(ctx, a.ID, 999)
		var refErr *idea.CrossReferenceError
		require.ErrorAs(t, err, &refErr)
		assert.Equal(t, int64(999), refErr.ID)

		related, err := store.Related(ctx, a.ID)
		require.NoError(t, err)
		assert.Empty(t, related, "no one-sided edge left behind")
	})

	t.Run("concurrent same pair yields one edge", func(t *testing.T) {
		store := NewIdeaStore(newTestDB(t))

		a, err := store.Capture(ctx, CaptureParams{Quote: "a", Source: idea.SourceHuman})
		require.NoError(t, err)
		b, err := store.Capture(ctx, CaptureParams{Quote: "b", Source: idea.SourceHuman})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = store.Link(ctx, a.ID, b.ID)
				_ = store.Link(ctx, b.ID, a.ID)
			}()
		}
		wg.Wait()

		related, err := store.Related(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{b.ID}, related)
	})
}

func TestAssignChapter(t *testing.T) {
	ctx := context.Background()
	store := NewIdeaStore(newTestDB(t))

	created, err := store.Capture(ctx, CaptureParams{Quote: "q", Source: idea.SourceHuman})
	require.NoError(t, err)

	require.NoError(t, store.AssignChapter(ctx, created.ID, "ch1"))
	require.NoError(t, store.AssignChapter(ctx, created.ID, "ch2"))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ch2", got.Chapter)

	history, err := store.ChapterHistory(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "reassignment history is retained")
	assert.Equal(t, "ch1", history[0].Chapter)
	assert.Equal(t, "ch2", history[1].Chapter)

	assert.ErrorIs(t, store.AssignChapter(ctx, 99, "ch1"), idea.ErrNotFound)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	store := NewIdeaStore(newTestDB(t))

	created, err := store.Capture(ctx, CaptureParams{Quote: "q", Source: idea.SourceHuman})
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(ctx, created.ID, idea.StatusNew, idea.StatusOrganizing))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, idea.StatusOrganizing, got.Status)

	// optimistic check: stale "from" is rejected
	assert.ErrorIs(t, store.SetStatus(ctx, created.ID, idea.StatusNew, idea.StatusOnHold), idea.ErrNotFound)
}

func TestListFilter(t *testing.T) {
	ctx := context.Background()
	store := NewIdeaStore(newTestDB(t))

	seed := []CaptureParams{
		{Quote: "one", Source: idea.SourceHuman, Tags: []string{"book/ch1"}},
		{Quote: "two", Source: idea.SourceHuman, Tags: []string{"book/ch2"}},
		{Quote: "three", Source: idea.SourceHuman, Tags: []string{"voice"}},
	}
	for _, p := range seed {
		_, err := store.Capture(ctx, p)
		require.NoError(t, err)
	}
	require.NoError(t, store.AssignChapter(ctx, 1, "ch1"))
	require.NoError(t, store.SetStatus(ctx, 1, idea.StatusNew, idea.StatusOrganizing))

	t.Run("no filter returns all in id order", func(t *testing.T) {
		all, err := store.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, int64(1), all[0].ID)
		assert.Equal(t, int64(3), all[2].ID)
	})

	t.Run("by status", func(t *testing.T) {
		organizing, err := store.List(ctx, Filter{Status: idea.StatusOrganizing})
		require.NoError(t, err)
		require.Len(t, organizing, 1)
		assert.Equal(t, int64(1), organizing[0].ID)
	})

	t.Run("by chapter", func(t *testing.T) {
		ch1, err := store.List(ctx, Filter{Chapter: "ch1"})
		require.NoError(t, err)
		require.Len(t, ch1, 1)
		assert.Equal(t, "one", ch1[0].Quote)
	})

	t.Run("by tag glob", func(t *testing.T) {
		book, err := store.List(ctx, Filter{Tag: "book/*"})
		require.NoError(t, err)
		assert.Len(t, book, 2)

		exact, err := store.List(ctx, Filter{Tag: "voice"})
		require.NoError(t, err)
		require.Len(t, exact, 1)
		assert.Equal(t, "three", exact[0].Quote)
	})
}
