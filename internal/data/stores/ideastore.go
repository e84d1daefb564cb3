package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/colonyops/inkwell/internal/core/idea"
	"github.com/colonyops/inkwell/internal/data/db"
)

// IdeaStore persists ideas, tags, cross-references, chapter history, the
// allocator watermark, and the audit log in SQLite.
//
// The store exposes primitives; lifecycle guards (transition legality,
// archive immutability) live in the pipeline coordinator.
type IdeaStore struct {
	db *db.DB
}

// NewIdeaStore creates a new SQLite-backed idea store.
func NewIdeaStore(db *db.DB) *IdeaStore {
	return &IdeaStore{db: db}
}

// CaptureParams describes a raw capture submission.
type CaptureParams struct {
	Quote          string
	Source         idea.Source
	Tags           []string
	IdempotencyKey string
	CapturedAt     time.Time
}

// allocate bumps the durable watermark and returns the issued ID. Runs
// inside the caller's transaction so a failed capture never consumes an ID
// that another capture could observe as a gap in the audit trail.
func allocate(ctx context.Context, tx *sql.Tx) (int64, error) {
	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT next_id FROM id_watermark WHERE id = 1`).Scan(&next); err != nil {
		return 0, &idea.AllocationError{Err: fmt.Errorf("read watermark: %w", err)}
	}

	res, err := tx.ExecContext(ctx, `UPDATE id_watermark SET next_id = ? WHERE id = 1 AND next_id = ?`, next+1, next)
	if err != nil {
		return 0, &idea.AllocationError{Err: fmt.Errorf("advance watermark: %w", err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &idea.AllocationError{Err: err}
	}
	if n == 0 {
		return 0, &idea.AllocationError{Err: fmt.Errorf("watermark moved concurrently")}
	}

	return next, nil
}

// AllocateID issues the next idea ID, persisting the watermark durably
// before returning. On failure nothing is issued.
func (s *IdeaStore) AllocateID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		id, txErr = allocate(ctx, tx)
		return txErr
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// FindByIdempotencyKey returns the idea ID previously allocated for the
// given capture key, if any.
func (s *IdeaStore) FindByIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	var id int64
	err := s.db.Conn().QueryRowContext(ctx, `SELECT idea_id FROM idempotency_keys WHERE key = ?`, key).Scan(&id)
	if IsNotFoundError(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return id, true, nil
}

// Capture allocates an ID and inserts the idea, its tags, its idempotency
// key, and the capture audit entry in one transaction.
func (s *IdeaStore) Capture(ctx context.Context, p CaptureParams) (idea.Idea, error) {
	captured := p.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}

	var result idea.Idea
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := allocate(ctx, tx)
		if err != nil {
			return err
		}

		now := captured.UnixNano()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ideas (id, quote, source, status, captured_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, p.Quote, string(p.Source), string(idea.StatusNew), now, now)
		if err != nil {
			return fmt.Errorf("insert idea: %w", err)
		}

		for _, tag := range p.Tags {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO idea_tags (idea_id, tag) VALUES (?, ?)`, id, tag); err != nil {
				return fmt.Errorf("insert tag %q: %w", tag, err)
			}
		}

		if p.IdempotencyKey != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO idempotency_keys (key, idea_id) VALUES (?, ?)`, p.IdempotencyKey, id); err != nil {
				return fmt.Errorf("insert idempotency key: %w", err)
			}
		}

		if err := appendAudit(ctx, tx, id, idea.AuditCaptured, string(p.Source)); err != nil {
			return err
		}

		result = idea.Idea{
			ID:         id,
			Quote:      p.Quote,
			Source:     p.Source,
			Status:     idea.StatusNew,
			Tags:       append([]string(nil), p.Tags...),
			CapturedAt: captured,
			UpdatedAt:  captured,
		}
		return nil
	})
	if err != nil {
		return idea.Idea{}, err
	}

	return result, nil
}

// Get returns an idea with its tags and cross-references. Returns
// idea.ErrNotFound if the ID does not exist.
func (s *IdeaStore) Get(ctx context.Context, id int64) (idea.Idea, error) {
	row := s.db.Conn().QueryRowContext(ctx,
		`SELECT id, quote, refined, source, status, chapter, captured_at, updated_at FROM ideas WHERE id = ?`, id)

	item, err := scanIdea(row)
	if IsNotFoundError(err) {
		return idea.Idea{}, idea.ErrNotFound
	}
	if err != nil {
		return idea.Idea{}, fmt.Errorf("get idea %d: %w", id, err)
	}

	if item.Tags, err = s.tagsFor(ctx, id); err != nil {
		return idea.Idea{}, err
	}
	if item.CrossRefs, err = s.Related(ctx, id); err != nil {
		return idea.Idea{}, err
	}

	return item, nil
}

// Exists reports whether an idea ID has been allocated.
func (s *IdeaStore) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM ideas WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check idea %d: %w", id, err)
	}
	return count > 0, nil
}

// Filter narrows List results. Zero-value fields match everything. Tag
// supports doublestar glob patterns ("book/*").
type Filter struct {
	Status  idea.Status
	Chapter string
	Tag     string
}

// List returns ideas matching the filter, ordered by ID.
func (s *IdeaStore) List(ctx context.Context, f Filter) ([]idea.Idea, error) {
	query := `SELECT id, quote, refined, source, status, chapter, captured_at, updated_at FROM ideas`
	var args []any
	var where []string

	if f.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(f.Status))
	}
	if f.Chapter != "" {
		where = append(where, `chapter = ?`)
		args = append(args, f.Chapter)
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()

	var ideas []idea.Idea
	for rows.Next() {
		item, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		ideas = append(ideas, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}

	for i := range ideas {
		if ideas[i].Tags, err = s.tagsFor(ctx, ideas[i].ID); err != nil {
			return nil, err
		}
	}

	if f.Tag != "" {
		ideas, err = filterByTagGlob(ideas, f.Tag)
		if err != nil {
			return nil, err
		}
	}

	return ideas, nil
}

// filterByTagGlob keeps ideas with at least one tag matching the pattern.
func filterByTagGlob(ideas []idea.Idea, pattern string) ([]idea.Idea, error) {
	matched := make([]idea.Idea, 0, len(ideas))
	for _, item := range ideas {
		for _, tag := range item.Tags {
			ok, err := doublestar.Match(pattern, tag)
			if err != nil {
				return nil, &idea.ValidationError{Reason: fmt.Sprintf("invalid tag pattern %q", pattern)}
			}
			if ok {
				matched = append(matched, item)
				break
			}
		}
	}
	return matched, nil
}

// AttachTags unions tags into the idea's tag set. Idempotent.
func (s *IdeaStore) AttachTags(ctx context.Context, id int64, tags []string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, tag := range tags {
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO idea_tags (idea_id, tag) VALUES (?, ?)`, id, tag)
			if err != nil {
				return fmt.Errorf("attach tag %q: %w", tag, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				if err := appendAudit(ctx, tx, id, idea.AuditTagged, tag); err != nil {
					return err
				}
			}
		}
		return touch(ctx, tx, id)
	})
}

// SetRefined stores the refined variant of the quote. The original quote
// is never overwritten.
func (s *IdeaStore) SetRefined(ctx context.Context, id int64, text string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE ideas SET refined = ? WHERE id = ?`, text, id)
		if err != nil {
			return fmt.Errorf("set refined: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return idea.ErrNotFound
		}
		if err := appendAudit(ctx, tx, id, idea.AuditRefined, ""); err != nil {
			return err
		}
		return touch(ctx, tx, id)
	})
}

// Link records a symmetric cross-reference between two ideas. Both sides
// succeed or neither does. Linking the same pair twice, in either order,
// yields the same single edge.
func (s *IdeaStore) Link(ctx context.Context, a, b int64) error {
	low, high := a, b
	if low > high {
		low, high = high, low
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []int64{a, b} {
			var count int64
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ideas WHERE id = ?`, id).Scan(&count); err != nil {
				return fmt.Errorf("check link target %d: %w", id, err)
			}
			if count == 0 {
				return &idea.CrossReferenceError{ID: id}
			}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO cross_refs (low, high, created_at) VALUES (?, ?, ?)`,
			low, high, time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("insert cross-ref: %w", err)
		}

		if n, _ := res.RowsAffected(); n > 0 {
			detail := fmt.Sprintf("%d<->%d", low, high)
			if err := appendAudit(ctx, tx, a, idea.AuditLinked, detail); err != nil {
				return err
			}
			if err := appendAudit(ctx, tx, b, idea.AuditLinked, detail); err != nil {
				return err
			}
		}
		return nil
	})
}

// Related returns the IDs cross-referenced with the given idea, sorted.
func (s *IdeaStore) Related(ctx context.Context, id int64) ([]int64, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT CASE WHEN low = ? THEN high ELSE low END AS other
		 FROM cross_refs WHERE low = ? OR high = ? ORDER BY other`, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("query related: %w", err)
	}
	defer rows.Close()

	var related []int64
	for rows.Next() {
		var other int64
		if err := rows.Scan(&other); err != nil {
			return nil, fmt.Errorf("scan related: %w", err)
		}
		related = append(related, other)
	}
	return related, rows.Err()
}

// AssignChapter sets the idea's chapter and appends the assignment to the
// retained reassignment history.
func (s *IdeaStore) AssignChapter(ctx context.Context, id int64, chapter string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE ideas SET chapter = ? WHERE id = ?`, chapter, id)
		if err != nil {
			return fmt.Errorf("assign chapter: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return idea.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chapter_history (idea_id, chapter, assigned_at) VALUES (?, ?, ?)`,
			id, chapter, time.Now().UnixNano()); err != nil {
			return fmt.Errorf("append chapter history: %w", err)
		}

		if err := appendAudit(ctx, tx, id, idea.AuditChapter, chapter); err != nil {
			return err
		}
		return touch(ctx, tx, id)
	})
}

// ChapterHistory returns every chapter the idea was ever assigned to, in
// assignment order. History is never discarded.
func (s *IdeaStore) ChapterHistory(ctx context.Context, id int64) ([]idea.ChapterChange, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT chapter, assigned_at FROM chapter_history WHERE idea_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query chapter history: %w", err)
	}
	defer rows.Close()

	var history []idea.ChapterChange
	for rows.Next() {
		var c idea.ChapterChange
		var at int64
		if err := rows.Scan(&c.Chapter, &at); err != nil {
			return nil, fmt.Errorf("scan chapter history: %w", err)
		}
		c.AssignedAt = time.Unix(0, at)
		history = append(history, c)
	}
	return history, rows.Err()
}

// SetStatus moves an idea between statuses with an optimistic check on the
// previous value. Appends the transition to the audit log. Returns
// idea.ErrNotFound if the idea is missing or no longer in "from".
func (s *IdeaStore) SetStatus(ctx context.Context, id int64, from, to idea.Status) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE ideas SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(to), time.Now().UnixNano(), id, string(from))
		if err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return idea.ErrNotFound
		}
		return appendAudit(ctx, tx, id, idea.AuditTransition, fmt.Sprintf("%s -> %s", from, to))
	})
}

// Audit returns the idea's audit log, oldest first.
func (s *IdeaStore) Audit(ctx context.Context, id int64) ([]idea.AuditEntry, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, idea_id, kind, detail, created_at FROM audit_log WHERE idea_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []idea.AuditEntry
	for rows.Next() {
		var e idea.AuditEntry
		var at int64
		if err := rows.Scan(&e.ID, &e.IdeaID, (*string)(&e.Kind), &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AppendAudit records an audit entry outside any other transaction. Used
// by the scheduler for publish attempts.
func (s *IdeaStore) AppendAudit(ctx context.Context, id int64, kind idea.AuditKind, detail string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return appendAudit(ctx, tx, id, kind, detail)
	})
}

func (s *IdeaStore) tagsFor(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT tag FROM idea_tags WHERE idea_id = ? ORDER BY tag`, id)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func appendAudit(ctx context.Context, tx *sql.Tx, id int64, kind idea.AuditKind, detail string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (idea_id, kind, detail, created_at) VALUES (?, ?, ?, ?)`,
		id, string(kind), detail, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func touch(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE ideas SET updated_at = ? WHERE id = ?`, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("touch idea: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanIdea.
type scanner interface {
	Scan(dest ...any) error
}

func scanIdea(row scanner) (idea.Idea, error) {
	var item idea.Idea
	var refined, chapter sql.NullString
	var captured, updated int64

	err := row.Scan(&item.ID, &item.Quote, &refined, (*string)(&item.Source), (*string)(&item.Status), &chapter, &captured, &updated)
	if err != nil {
		return idea.Idea{}, err
	}

	item.Refined = refined.String
	item.Chapter = chapter.String
	item.CapturedAt = time.Unix(0, captured)
	item.UpdatedAt = time.Unix(0, updated)
	return item, nil
}
