package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/colonyops/inkwell/internal/core/content"
	"github.com/colonyops/inkwell/internal/data/db"
)

// ContentStore persists derived content and its per-channel publish queue
// in SQLite. The dedup unique index guarantees at most one active-or-posted
// entry per (idea, channel); violations surface as
// content.DuplicateChannelPublishError.
type ContentStore struct {
	db *db.DB
}

// NewContentStore creates a new SQLite-backed content store.
func NewContentStore(db *db.DB) *ContentStore {
	return &ContentStore{db: db}
}

// Create records a new draft. Returns DuplicateChannelPublishError if a
// non-failed, non-waived entry already exists for the (idea, channel) pair.
func (s *ContentStore) Create(ctx context.Context, c content.Content) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO derived_content (id, idea_id, channel, body, lifecycle, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.IdeaID, c.Channel, c.Body, string(c.Lifecycle), c.CreatedAt.UnixNano())
	if IsConstraintError(err) {
		return &content.DuplicateChannelPublishError{IdeaID: c.IdeaID, Channel: c.Channel}
	}
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

// Get returns a content entry by ID. Returns content.ErrNotFound if missing.
func (s *ContentStore) Get(ctx context.Context, id string) (content.Content, error) {
	row := s.db.Conn().QueryRowContext(ctx, selectContent+` WHERE id = ?`, id)
	c, err := scanContent(row)
	if IsNotFoundError(err) {
		return content.Content{}, content.ErrNotFound
	}
	if err != nil {
		return content.Content{}, fmt.Errorf("get content %s: %w", id, err)
	}
	return c, nil
}

// ListByIdea returns all content for an idea in creation order.
func (s *ContentStore) ListByIdea(ctx context.Context, ideaID int64) ([]content.Content, error) {
	rows, err := s.db.Conn().QueryContext(ctx, selectContent+` WHERE idea_id = ? ORDER BY created_at, id`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list content for idea %d: %w", ideaID, err)
	}
	defer rows.Close()
	return collectContent(rows)
}

// Queue moves a drafted entry into the channel's publish queue. The
// optional "at" time delays the publish.
func (s *ContentStore) Queue(ctx context.Context, id string, at *time.Time) error {
	var scheduled sql.NullInt64
	if at != nil {
		scheduled = sql.NullInt64{Int64: at.UnixNano(), Valid: true}
	}

	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE derived_content SET lifecycle = ?, queued_at = ?, scheduled_at = ?
		 WHERE id = ? AND lifecycle = ?`,
		string(content.LifecycleQueued), time.Now().UnixNano(), scheduled,
		id, string(content.LifecycleDrafted))
	if err != nil {
		return fmt.Errorf("queue content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.queueConflict(ctx, id)
	}
	return nil
}

// queueConflict turns a zero-row queue update into a precise error. An
// entry already queued or posted means the (idea, channel) pair has an
// active publish, so re-enqueueing is a duplicate.
func (s *ContentStore) queueConflict(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch c.Lifecycle {
	case content.LifecycleQueued, content.LifecyclePosted:
		return &content.DuplicateChannelPublishError{IdeaID: c.IdeaID, Channel: c.Channel}
	}
	return fmt.Errorf("content %s is %s, only drafted content can be queued", id, c.Lifecycle)
}

// Cancel removes a queued entry from the queue, returning it to drafted.
// Fails with content.ErrNotCancelable once a worker has claimed the item.
func (s *ContentStore) Cancel(ctx context.Context, id string) error {
	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE derived_content SET lifecycle = ?, queued_at = NULL, scheduled_at = NULL
		 WHERE id = ? AND lifecycle = ? AND claimed_at IS NULL`,
		string(content.LifecycleDrafted), id, string(content.LifecycleQueued))
	if err != nil {
		return fmt.Errorf("cancel content: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Lifecycle == content.LifecycleQueued && c.ClaimedAt != nil {
		return content.ErrNotCancelable
	}
	return fmt.Errorf("content %s is %s, not queued", id, c.Lifecycle)
}

// NextDue returns the oldest unclaimed queue entry for the channel whose
// schedule time has passed. FIFO by enqueue time.
func (s *ContentStore) NextDue(ctx context.Context, channel string, now time.Time) (content.Content, bool, error) {
	row := s.db.Conn().QueryRowContext(ctx,
		selectContent+` WHERE channel = ? AND lifecycle = ? AND claimed_at IS NULL
		 AND (scheduled_at IS NULL OR scheduled_at <= ?)
		 ORDER BY queued_at, id LIMIT 1`,
		channel, string(content.LifecycleQueued), now.UnixNano())

	c, err := scanContent(row)
	if IsNotFoundError(err) {
		return content.Content{}, false, nil
	}
	if err != nil {
		return content.Content{}, false, fmt.Errorf("next due for %s: %w", channel, err)
	}
	return c, true, nil
}

// Claim marks a queue entry as taken by a worker. Once claimed the publish
// call is considered issued and cancellation is refused. Returns false if
// the entry was canceled or claimed in the meantime.
func (s *ContentStore) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE derived_content SET claimed_at = ?
		 WHERE id = ? AND lifecycle = ? AND claimed_at IS NULL`,
		now.UnixNano(), id, string(content.LifecycleQueued))
	if err != nil {
		return false, fmt.Errorf("claim content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseClaims clears claim markers left behind by a worker that went
// down mid-publish, returning those items to the queue. Returns how many
// were released.
func (s *ContentStore) ReleaseClaims(ctx context.Context) (int64, error) {
	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE derived_content SET claimed_at = NULL WHERE lifecycle = ? AND claimed_at IS NOT NULL`,
		string(content.LifecycleQueued))
	if err != nil {
		return 0, fmt.Errorf("release claims: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecordAttempt bumps the attempt counter and stores the last error while
// the entry stays queued for the next retry.
func (s *ContentStore) RecordAttempt(ctx context.Context, id string, attempts int, lastErr string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`UPDATE derived_content SET attempts = ?, last_error = ? WHERE id = ?`,
		attempts, lastErr, id)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// MarkPosted finalizes a successful publish.
func (s *ContentStore) MarkPosted(ctx context.Context, id string, postedAt time.Time, attempts int) error {
	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE derived_content SET lifecycle = ?, posted_at = ?, attempts = ?, last_error = NULL WHERE id = ?`,
		string(content.LifecyclePosted), postedAt.UnixNano(), attempts, id)
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return content.ErrNotFound
	}
	return nil
}

// MarkFailed finalizes an exhausted publish. Failed entries are history; a
// retry is a fresh draft.
func (s *ContentStore) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE derived_content SET lifecycle = ?, attempts = ?, last_error = ?, claimed_at = NULL WHERE id = ?`,
		string(content.LifecycleFailed), attempts, lastErr, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return content.ErrNotFound
	}
	return nil
}

// Waive marks a draft as explicitly waived so it no longer blocks the idea
// from completing. Posted content cannot be waived.
func (s *ContentStore) Waive(ctx context.Context, id string) error {
	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE derived_content SET lifecycle = ?
		 WHERE id = ? AND lifecycle IN (?, ?, ?) AND claimed_at IS NULL`,
		string(content.LifecycleWaived), id,
		string(content.LifecycleDrafted), string(content.LifecycleQueued), string(content.LifecycleFailed))
	if err != nil {
		return fmt.Errorf("waive content: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.ClaimedAt != nil && c.Lifecycle == content.LifecycleQueued {
		return content.ErrNotCancelable
	}
	return fmt.Errorf("content %s is %s and cannot be waived", id, c.Lifecycle)
}

// CountDrafted returns how many drafts exist for an idea in drafted state.
func (s *ContentStore) CountDrafted(ctx context.Context, ideaID int64) (int64, error) {
	var count int64
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM derived_content WHERE idea_id = ? AND lifecycle = ?`,
		ideaID, string(content.LifecycleDrafted)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count drafted: %w", err)
	}
	return count, nil
}

// CountUnsettled returns how many entries still block the idea: anything
// not posted or waived.
func (s *ContentStore) CountUnsettled(ctx context.Context, ideaID int64) (int64, error) {
	var count int64
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM derived_content WHERE idea_id = ? AND lifecycle NOT IN (?, ?)`,
		ideaID, string(content.LifecyclePosted), string(content.LifecycleWaived)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unsettled: %w", err)
	}
	return count, nil
}

// LastPostedAt returns the channel's most recent successful post time, if
// any. The scheduler measures the rate-limit window from this.
func (s *ContentStore) LastPostedAt(ctx context.Context, channel string) (*time.Time, error) {
	var posted sql.NullInt64
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT MAX(posted_at) FROM derived_content WHERE channel = ? AND lifecycle = ?`,
		channel, string(content.LifecyclePosted)).Scan(&posted)
	if err != nil {
		return nil, fmt.Errorf("last posted for %s: %w", channel, err)
	}
	if !posted.Valid {
		return nil, nil
	}
	t := time.Unix(0, posted.Int64)
	return &t, nil
}

const selectContent = `SELECT id, idea_id, channel, body, lifecycle, attempts, last_error,
	scheduled_at, queued_at, claimed_at, posted_at, created_at FROM derived_content`

func collectContent(rows *sql.Rows) ([]content.Content, error) {
	var items []content.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func scanContent(row scanner) (content.Content, error) {
	var c content.Content
	var lastErr sql.NullString
	var scheduled, queued, claimed, posted sql.NullInt64
	var created int64

	err := row.Scan(&c.ID, &c.IdeaID, &c.Channel, &c.Body, (*string)(&c.Lifecycle),
		&c.Attempts, &lastErr, &scheduled, &queued, &claimed, &posted, &created)
	if err != nil {
		return content.Content{}, err
	}

	c.LastError = lastErr.String
	c.ScheduledAt = nullTime(scheduled)
	c.QueuedAt = nullTime(queued)
	c.ClaimedAt = nullTime(claimed)
	c.PostedAt = nullTime(posted)
	c.CreatedAt = time.Unix(0, created)
	return c, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}
