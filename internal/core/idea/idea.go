// Package idea defines the captured-idea domain model and its lifecycle.
package idea

import (
	"strings"
	"time"
)

// Source classifies how an idea entered the pipeline.
type Source string

const (
	SourceHuman      Source = "human"
	SourceImport     Source = "import"
	SourceTranscript Source = "automated-transcript"
)

// IsValid checks if the source is a supported capture source.
func (s Source) IsValid() bool {
	switch s {
	case SourceHuman, SourceImport, SourceTranscript:
		return true
	default:
		return false
	}
}

// Idea represents a captured thought moving through the pipeline.
//
// The quote is immutable after capture; corrections are recorded in the
// Refined field so the original text is never lost. IDs are allocated
// once, strictly increasing, and never reused.
type Idea struct {
	ID         int64     `json:"id"`
	Quote      string    `json:"quote"`
	Refined    string    `json:"refined,omitempty"`
	Source     Source    `json:"source"`
	Status     Status    `json:"status"`
	Chapter    string    `json:"chapter,omitempty"` // empty = unassigned
	Tags       []string  `json:"tags,omitempty"`
	CrossRefs  []int64   `json:"cross_refs,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Sealed reports whether the idea has reached its terminal state and is
// therefore immutable (tags, chapter, cross-refs frozen).
func (i *Idea) Sealed() bool {
	return i.Status == StatusArchived
}

// HasTag reports whether the idea carries the given tag.
func (i *Idea) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ValidateQuote checks a raw capture payload before allocation.
func ValidateQuote(quote string) error {
	if strings.TrimSpace(quote) == "" {
		return &ValidationError{Reason: "quote is empty"}
	}
	return nil
}

// ChapterChange is one entry in an idea's chapter reassignment history.
// Chapter is empty for the initial "unassigned" record.
type ChapterChange struct {
	Chapter    string    `json:"chapter"`
	AssignedAt time.Time `json:"assigned_at"`
}

// AuditKind classifies an audit log entry.
type AuditKind string

const (
	AuditCaptured       AuditKind = "captured"
	AuditRefined        AuditKind = "refined"
	AuditTagged         AuditKind = "tagged"
	AuditLinked         AuditKind = "linked"
	AuditChapter        AuditKind = "chapter"
	AuditTransition     AuditKind = "transition"
	AuditDrafted        AuditKind = "drafted"
	AuditPublishAttempt AuditKind = "publish_attempt"
	AuditWaived         AuditKind = "waived"
)

// AuditEntry is one append-only record of a mutation or publish attempt.
// Entries are retained indefinitely.
type AuditEntry struct {
	ID        int64     `json:"id"`
	IdeaID    int64     `json:"idea_id"`
	Kind      AuditKind `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
