// Package alert defines operator-visible alerts raised by the pipeline.
package alert

import (
	"context"
	"time"
)

// Level represents the severity of an alert.
type Level string

const (
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Alert is a single operator-visible event, typically a publish that
// exhausted its retries. Alerts are surfaced by the alerts command rather
// than silently logged.
type Alert struct {
	ID        int64     `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	ContentID string    `json:"content_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists alerts to durable storage.
type Store interface {
	Save(ctx context.Context, a Alert) (int64, error)
	List(ctx context.Context) ([]Alert, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}
