package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/colonyops/inkwell/internal/core/config"
	"github.com/colonyops/inkwell/internal/core/content"
	"github.com/colonyops/inkwell/internal/core/idea"
	"github.com/colonyops/inkwell/internal/data/db"
	"github.com/colonyops/inkwell/internal/data/stores"
	"github.com/colonyops/inkwell/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePublisher scripts publish outcomes per channel.
type fakePublisher struct {
	mu sync.Mutex

	// errs is consumed front to back per channel; nil entries succeed.
	// An exhausted or missing script always succeeds.
	errs  map[string][]error
	calls []string
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, c content.Content) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, c.ID)

	script := p.errs[channel]
	if len(script) == 0 {
		return nil
	}
	err := script[0]
	p.errs[channel] = script[1:]
	return err
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// hangingPublisher never returns until the per-attempt context expires.
type hangingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *hangingPublisher) Publish(ctx context.Context, channel string, c content.Content) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

func (p *hangingPublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fixture struct {
	svc      *pipeline.Service
	contents *stores.ContentStore
	alerts   *stores.AlertStore
	cfg      *config.Config
	pub      *fakePublisher
	sched    *Scheduler
}

func newFixture(t *testing.T, channel config.ChannelConfig) *fixture {
	t.Helper()

	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err, "Open")
	t.Cleanup(func() { _ = database.Close() })

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Channels = map[string]config.ChannelConfig{"twitter": channel}

	contents := stores.NewContentStore(database)
	alerts := stores.NewAlertStore(database)
	svc := pipeline.NewService(stores.NewIdeaStore(database), contents, alerts, &cfg, zerolog.Nop())

	pub := &fakePublisher{errs: map[string][]error{}}
	sched := New(svc, contents, &cfg, pub, zerolog.Nop(), Options{
		PollInterval:   time.Millisecond,
		InitialBackoff: time.Millisecond,
	})

	return &fixture{svc: svc, contents: contents, alerts: alerts, cfg: &cfg, pub: pub, sched: sched}
}

// queuedDraft walks an idea to a queued twitter draft and returns the
// content ID.
func (f *fixture) queuedDraft(t *testing.T, quote string) string {
	t.Helper()
	ctx := context.Background()

	item, _, err := f.svc.Capture(ctx, pipeline.CaptureRequest{Quote: quote})
	require.NoError(t, err)
	require.NoError(t, f.svc.Organize(ctx, item.ID, "ch1"))

	draft, err := f.svc.Draft(ctx, item.ID, "twitter", "body for "+quote)
	require.NoError(t, err)
	require.NoError(t, f.svc.Queue(ctx, draft.ID, nil))
	return draft.ID
}

func publishableChannel() config.ChannelConfig {
	return config.ChannelConfig{
		MaxAttempts: 3,
		Timeout:     config.Duration(time.Second),
		Command:     "true",
	}
}

func TestRunOncePublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, publishableChannel())

	id := f.queuedDraft(t, "one")

	require.NoError(t, f.sched.RunOnce(ctx))

	got, err := f.contents.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content.LifecyclePosted, got.Lifecycle)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, 1, f.pub.callCount())
}

func TestRunOnceFIFO(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, publishableChannel())

	first := f.queuedDraft(t, "one")
	time.Sleep(2 * time.Millisecond)
	second := f.queuedDraft(t, "two")

	require.NoError(t, f.sched.RunOnce(ctx))

	require.Len(t, f.pub.calls, 2)
	assert.Equal(t, []string{first, second}, f.pub.calls, "enqueue order is publish order")
}

func TestRetryThenSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, publishableChannel())

	id := f.queuedDraft(t, "flaky")
	f.pub.errs["twitter"] = []error{errors.New("rate limited"), nil}

	require.NoError(t, f.sched.RunOnce(ctx))

	got, err := f.contents.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content.LifecyclePosted, got.Lifecycle)
	assert.Equal(t, 2, got.Attempts)

	// no alert for a publish that eventually succeeded
	count, err := f.alerts.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRetriesExhaustedMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, publishableChannel())

	id := f.queuedDraft(t, "doomed")
	f.pub.errs["twitter"] = []error{
		errors.New("unavailable"),
		errors.New("unavailable"),
		errors.New("unavailable"),
	}

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 3, f.pub.callCount())

	got, err := f.contents.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content.LifecycleFailed, got.Lifecycle)
	assert.Equal(t, 3, got.Attempts)
	assert.Contains(t, got.LastError, "unavailable")

	// the failure is surfaced as an alert and the idea stays in creation
	count, err := f.alerts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	item, err := f.svc.GetIdea(ctx, got.IdeaID)
	require.NoError(t, err)
	assert.Equal(t, idea.StatusInCreation, item.Status)
}

func TestHungPublishTimesOutAndFails(t *testing.T) {
	ctx := context.Background()

	ch := publishableChannel()
	ch.Timeout = config.Duration(10 * time.Millisecond)
	ch.MaxAttempts = 2
	f := newFixture(t, ch)

	id := f.queuedDraft(t, "hung")

	// a publisher that never responds is cut off at the attempt timeout
	hang := &hangingPublisher{}
	sched := New(f.svc, f.contents, f.cfg, hang, zerolog.Nop(), Options{
		PollInterval:   time.Millisecond,
		InitialBackoff: time.Millisecond,
	})
	require.NoError(t, sched.RunOnce(ctx))

	assert.Equal(t, 2, hang.callCount(), "every timed-out attempt counts")

	got, err := f.contents.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content.LifecycleFailed, got.Lifecycle)
	assert.Equal(t, 2, got.Attempts)
	assert.Contains(t, got.LastError, "deadline exceeded")

	count, err := f.alerts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRateWindowHoldsSecondItem(t *testing.T) {
	ctx := context.Background()

	ch := publishableChannel()
	ch.Window = config.Duration(time.Hour)
	f := newFixture(t, ch)

	f.queuedDraft(t, "one")
	time.Sleep(2 * time.Millisecond)
	held := f.queuedDraft(t, "two")

	require.NoError(t, f.sched.RunOnce(ctx))

	// only the first publishes; the second waits out the window
	assert.Equal(t, 1, f.pub.callCount())

	got, err := f.contents.Get(ctx, held)
	require.NoError(t, err)
	assert.Equal(t, content.LifecycleQueued, got.Lifecycle)
}

func TestCancelBeforeClaimWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, publishableChannel())

	id := f.queuedDraft(t, "changed my mind")
	require.NoError(t, f.svc.Cancel(ctx, id))

	require.NoError(t, f.sched.RunOnce(ctx))

	assert.Zero(t, f.pub.callCount())

	got, err := f.contents.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, content.LifecycleDrafted, got.Lifecycle)
}

func TestScheduledItemNotDueYet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, publishableChannel())

	item, _, err := f.svc.Capture(ctx, pipeline.CaptureRequest{Quote: "later"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Organize(ctx, item.ID, "ch1"))

	draft, err := f.svc.Draft(ctx, item.ID, "twitter", "body")
	require.NoError(t, err)

	at := time.Now().Add(time.Hour)
	require.NoError(t, f.svc.Queue(ctx, draft.ID, &at))

	require.NoError(t, f.sched.RunOnce(ctx))

	assert.Zero(t, f.pub.callCount())

	got, err := f.contents.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, content.LifecycleQueued, got.Lifecycle)
}

func TestStartReleasesStaleClaims(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, publishableChannel())

	id := f.queuedDraft(t, "stranded")

	// simulate a worker that died mid-publish
	claimed, err := f.contents.Claim(ctx, id, time.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		f.sched.Start(runCtx)
		close(done)
	}()

	// the released item gets picked up and published
	require.Eventually(t, func() bool {
		got, err := f.contents.Get(ctx, id)
		return err == nil && got.Lifecycle == content.LifecyclePosted
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
