package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/colonyops/inkwell/internal/core/alert"
	"github.com/colonyops/inkwell/internal/data/db"
)

// AlertStore implements alert.Store using SQLite.
type AlertStore struct {
	db *db.DB
}

var _ alert.Store = (*AlertStore)(nil)

// NewAlertStore creates a new SQLite-backed alert store.
func NewAlertStore(db *db.DB) *AlertStore {
	return &AlertStore{db: db}
}

// Save persists an alert and returns its auto-generated ID.
func (s *AlertStore) Save(ctx context.Context, a alert.Alert) (int64, error) {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var contentID sql.NullString
	if a.ContentID != "" {
		contentID = sql.NullString{String: a.ContentID, Valid: true}
	}

	res, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO alerts (level, message, content_id, created_at) VALUES (?, ?, ?, ?)`,
		string(a.Level), a.Message, contentID, createdAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("alert insert id: %w", err)
	}
	return id, nil
}

// List returns all alerts ordered by newest first.
func (s *AlertStore) List(ctx context.Context) ([]alert.Alert, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, level, message, content_id, created_at FROM alerts ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		var a alert.Alert
		var contentID sql.NullString
		var at int64
		if err := rows.Scan(&a.ID, (*string)(&a.Level), &a.Message, &contentID, &at); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.ContentID = contentID.String
		a.CreatedAt = time.Unix(0, at)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Clear deletes all alerts.
func (s *AlertStore) Clear(ctx context.Context) error {
	if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM alerts`); err != nil {
		return fmt.Errorf("clear alerts: %w", err)
	}
	return nil
}

// Count returns the total number of alerts.
func (s *AlertStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return count, nil
}
