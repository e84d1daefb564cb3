// Package pipeline orchestrates the idea lifecycle. The Service is the
// single write authority: every mutation of an idea's tags, cross-refs,
// chapter, status, or derived content goes through it, serialized behind
// one lock, so channel workers and CLI commands can never race each other
// into a lost update.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/colonyops/inkwell/internal/core/alert"
	"github.com/colonyops/inkwell/internal/core/config"
	"github.com/colonyops/inkwell/internal/core/content"
	"github.com/colonyops/inkwell/internal/core/idea"
	"github.com/colonyops/inkwell/internal/data/stores"
)

// Service coordinates all idea and content mutations.
type Service struct {
	mu       sync.Mutex
	ideas    *stores.IdeaStore
	contents *stores.ContentStore
	alerts   alert.Store
	cfg      *config.Config
	log      zerolog.Logger
}

// NewService constructs the coordinator from explicit dependencies.
func NewService(ideas *stores.IdeaStore, contents *stores.ContentStore, alerts alert.Store, cfg *config.Config, logger zerolog.Logger) *Service {
	return &Service{
		ideas:    ideas,
		contents: contents,
		alerts:   alerts,
		cfg:      cfg,
		log:      logger,
	}
}

// CaptureRequest is an append-only capture submission.
type CaptureRequest struct {
	Quote          string
	Source         idea.Source
	Tags           []string
	IdempotencyKey string
}

// Capture allocates an ID for a raw thought and records it. Replaying a
// capture with a previously-seen idempotency key is a no-op that returns
// the existing idea; the bool result reports whether the idea already
// existed.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (idea.Idea, bool, error) {
	if err := idea.ValidateQuote(req.Quote); err != nil {
		return idea.Idea{}, false, err
	}
	if req.Source == "" {
		req.Source = idea.SourceHuman
	}
	if !req.Source.IsValid() {
		return idea.Idea{}, false, &idea.ValidationError{Reason: fmt.Sprintf("unknown source %q", req.Source)}
	}
	for _, tag := range req.Tags {
		if strings.TrimSpace(tag) == "" {
			return idea.Idea{}, false, &idea.ValidationError{Reason: "tag is empty"}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.IdempotencyKey != "" {
		id, found, err := s.ideas.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return idea.Idea{}, false, err
		}
		if found {
			existing, err := s.ideas.Get(ctx, id)
			if err != nil {
				return idea.Idea{}, false, err
			}
			return existing, true, nil
		}
	}

	created, err := s.ideas.Capture(ctx, stores.CaptureParams{
		Quote:          req.Quote,
		Source:         req.Source,
		Tags:           req.Tags,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return idea.Idea{}, false, err
	}

	s.log.Info().Int64("id", created.ID).Str("source", string(created.Source)).Msg("idea captured")
	return created, false, nil
}

// Refine stores the refined variant of an idea's quote. The original
// capture is never overwritten.
func (s *Service) Refine(ctx context.Context, id int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return &idea.ValidationError{Reason: "refined text is empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardMutable(ctx, id); err != nil {
		return err
	}
	return s.ideas.SetRefined(ctx, id, text)
}

// AttachTags unions tags into the idea's tag set. Idempotent.
func (s *Service) AttachTags(ctx context.Context, id int64, tags []string) error {
	if len(tags) == 0 {
		return &idea.ValidationError{Reason: "no tags given"}
	}
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return &idea.ValidationError{Reason: "tag is empty"}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.ideas.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Sealed() {
		return idea.ErrSealed
	}

	fresh := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !item.HasTag(tag) {
			fresh = append(fresh, tag)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	return s.ideas.AttachTags(ctx, id, fresh)
}

// Link records a symmetric cross-reference between two ideas. Both sides
// gain the edge or neither does.
func (s *Service) Link(ctx context.Context, a, b int64) error {
	if a == b {
		return &idea.ValidationError{Reason: "an idea cannot reference itself"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []int64{a, b} {
		item, err := s.ideas.Get(ctx, id)
		if errors.Is(err, idea.ErrNotFound) {
			return &idea.CrossReferenceError{ID: id}
		}
		if err != nil {
			return err
		}
		if item.Sealed() {
			return idea.ErrSealed
		}
	}

	return s.ideas.Link(ctx, a, b)
}

// Organize assigns a chapter and moves the idea into organizing. Already
// organizing ideas are just reassigned.
func (s *Service) Organize(ctx context.Context, id int64, chapter string) error {
	if strings.TrimSpace(chapter) == "" {
		return &idea.ValidationError{Reason: "chapter is empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.ideas.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Sealed() {
		return idea.ErrSealed
	}

	if item.Status != idea.StatusOrganizing {
		if err := item.Status.CheckTransition(idea.StatusOrganizing); err != nil {
			return err
		}
	}

	if err := s.ideas.AssignChapter(ctx, id, chapter); err != nil {
		return err
	}

	if item.Status != idea.StatusOrganizing {
		if err := s.ideas.SetStatus(ctx, id, item.Status, idea.StatusOrganizing); err != nil {
			return err
		}
	}

	s.log.Info().Int64("id", id).Str("chapter", chapter).Msg("idea organized")
	return nil
}

// AssignChapter reassigns an idea's chapter without touching its status.
// The previous assignment is retained in the history.
func (s *Service) AssignChapter(ctx context.Context, id int64, chapter string) error {
	if strings.TrimSpace(chapter) == "" {
		return &idea.ValidationError{Reason: "chapter is empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardMutable(ctx, id); err != nil {
		return err
	}
	return s.ideas.AssignChapter(ctx, id, chapter)
}

// Hold parks an idea that needs human clarification.
func (s *Service) Hold(ctx context.Context, id int64) error {
	return s.Transition(ctx, id, idea.StatusOnHold)
}

// Resume returns a held idea to the pipeline: to organizing when a chapter
// is already assigned, otherwise back to new.
func (s *Service) Resume(ctx context.Context, id int64) error {
	s.mu.Lock()
	item, err := s.ideas.Get(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	next := idea.StatusNew
	if item.Chapter != "" {
		next = idea.StatusOrganizing
	}
	return s.Transition(ctx, id, next)
}

// Transition moves an idea along the lifecycle graph, enforcing both the
// transition table and the per-state entry guards. Illegal moves are
// rejected with no mutation.
func (s *Service) Transition(ctx context.Context, id int64, to idea.Status) error {
	if !to.IsValid() {
		return &idea.ValidationError{Reason: fmt.Sprintf("unknown status %q", to)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transitionLocked(ctx, id, to)
}

func (s *Service) transitionLocked(ctx context.Context, id int64, to idea.Status) error {
	item, err := s.ideas.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := item.Status.CheckTransition(to); err != nil {
		return err
	}

	switch to {
	case idea.StatusOrganizing:
		if item.Chapter == "" {
			return &idea.ValidationError{Reason: "organizing requires a chapter assignment"}
		}
	case idea.StatusInCreation:
		drafted, err := s.contents.CountDrafted(ctx, id)
		if err != nil {
			return err
		}
		if drafted == 0 {
			return &idea.ValidationError{Reason: "in-creation requires at least one drafted content"}
		}
	case idea.StatusUsed:
		unsettled, err := s.contents.CountUnsettled(ctx, id)
		if err != nil {
			return err
		}
		if unsettled > 0 {
			return &idea.ValidationError{Reason: fmt.Sprintf("%d derived content item(s) not yet posted or waived", unsettled)}
		}
	}

	if err := s.ideas.SetStatus(ctx, id, item.Status, to); err != nil {
		return err
	}

	s.log.Info().Int64("id", id).Str("from", string(item.Status)).Str("to", string(to)).Msg("status transition")
	return nil
}

// Draft records a derived draft produced by the external derivation
// engine. The first draft moves an organizing idea into creation.
func (s *Service) Draft(ctx context.Context, ideaID int64, channel, body string) (content.Content, error) {
	if _, ok := s.cfg.Channel(channel); !ok {
		return content.Content{}, &idea.ValidationError{Reason: fmt.Sprintf("unknown channel %q", channel)}
	}

	c := content.Content{
		ID:        uuid.NewString(),
		IdeaID:    ideaID,
		Channel:   channel,
		Body:      body,
		Lifecycle: content.LifecycleDrafted,
		CreatedAt: time.Now(),
	}
	if err := c.Validate(); err != nil {
		return content.Content{}, &idea.ValidationError{Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.ideas.Get(ctx, ideaID)
	if err != nil {
		return content.Content{}, err
	}
	if item.Sealed() {
		return content.Content{}, idea.ErrSealed
	}
	if item.Status != idea.StatusOrganizing && item.Status != idea.StatusInCreation {
		return content.Content{}, &idea.ValidationError{
			Reason: fmt.Sprintf("idea %d is %s; drafts require organizing or in-creation", ideaID, item.Status),
		}
	}

	if err := s.contents.Create(ctx, c); err != nil {
		return content.Content{}, err
	}
	if err := s.ideas.AppendAudit(ctx, ideaID, idea.AuditDrafted, channel); err != nil {
		return content.Content{}, err
	}

	if item.Status == idea.StatusOrganizing {
		if err := s.ideas.SetStatus(ctx, ideaID, idea.StatusOrganizing, idea.StatusInCreation); err != nil {
			return content.Content{}, err
		}
	}

	s.log.Info().Int64("idea", ideaID).Str("channel", channel).Str("content", c.ID).Msg("draft recorded")
	return c, nil
}

// Queue places a drafted content item on its channel's publish queue,
// optionally delayed until the given time.
func (s *Service) Queue(ctx context.Context, contentID string, at *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.contents.Get(ctx, contentID)
	if err != nil {
		return err
	}

	ch, ok := s.cfg.Channel(c.Channel)
	if !ok {
		return &idea.ValidationError{Reason: fmt.Sprintf("unknown channel %q", c.Channel)}
	}
	if !ch.Publishable() {
		return &idea.ValidationError{Reason: fmt.Sprintf("channel %q is not publishable", c.Channel)}
	}

	return s.contents.Queue(ctx, contentID, at)
}

// Cancel removes a queued item before its publish call begins. Once a
// worker has claimed the item the operation fails with ErrNotCancelable.
func (s *Service) Cancel(ctx context.Context, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.contents.Cancel(ctx, contentID)
}

// Waive marks a content item as explicitly waived so its idea can reach
// used without a successful post on that channel.
func (s *Service) Waive(ctx context.Context, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.contents.Get(ctx, contentID)
	if err != nil {
		return err
	}
	if err := s.contents.Waive(ctx, contentID); err != nil {
		return err
	}
	if err := s.ideas.AppendAudit(ctx, c.IdeaID, idea.AuditWaived, c.Channel); err != nil {
		return err
	}

	return s.completeIfDone(ctx, c.IdeaID)
}

// Seal archives a used idea, making the record immutable.
func (s *Service) Seal(ctx context.Context, id int64) error {
	return s.Transition(ctx, id, idea.StatusArchived)
}

// ReportPosted is called by a channel worker after a successful publish.
func (s *Service) ReportPosted(ctx context.Context, c content.Content, postedAt time.Time, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.contents.MarkPosted(ctx, c.ID, postedAt, attempts); err != nil {
		return err
	}
	detail := fmt.Sprintf("%s posted (attempt %d)", c.Channel, attempts)
	if err := s.ideas.AppendAudit(ctx, c.IdeaID, idea.AuditPublishAttempt, detail); err != nil {
		return err
	}

	return s.completeIfDone(ctx, c.IdeaID)
}

// ReportFailed is called by a channel worker once retries are exhausted.
// The failure is recorded and surfaced as an operator alert; the idea stays
// in creation.
func (s *Service) ReportFailed(ctx context.Context, c content.Content, attempts int, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.contents.MarkFailed(ctx, c.ID, attempts, cause.Error()); err != nil {
		return err
	}
	detail := fmt.Sprintf("%s failed after %d attempt(s): %v", c.Channel, attempts, cause)
	if err := s.ideas.AppendAudit(ctx, c.IdeaID, idea.AuditPublishAttempt, detail); err != nil {
		return err
	}

	if _, err := s.alerts.Save(ctx, alert.Alert{
		Level:     alert.LevelError,
		Message:   fmt.Sprintf("publish to %s failed for idea %d: %v", c.Channel, c.IdeaID, cause),
		ContentID: c.ID,
	}); err != nil {
		return err
	}

	s.log.Error().Int64("idea", c.IdeaID).Str("channel", c.Channel).Int("attempts", attempts).
		Err(cause).Msg("publish failed, alert raised")
	return nil
}

// RecordAttempt is called by a channel worker after a failed attempt that
// will be retried.
func (s *Service) RecordAttempt(ctx context.Context, c content.Content, attempts int, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.contents.RecordAttempt(ctx, c.ID, attempts, cause.Error()); err != nil {
		return err
	}
	detail := fmt.Sprintf("%s attempt %d failed: %v", c.Channel, attempts, cause)
	return s.ideas.AppendAudit(ctx, c.IdeaID, idea.AuditPublishAttempt, detail)
}

// SweepArchive finds used ideas whose derived content is all settled and
// seals them. Idempotent: a second run changes nothing. Returns the number
// of ideas archived.
func (s *Service) SweepArchive(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used, err := s.ideas.List(ctx, stores.Filter{Status: idea.StatusUsed})
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, item := range used {
		unsettled, err := s.contents.CountUnsettled(ctx, item.ID)
		if err != nil {
			return archived, err
		}
		if unsettled > 0 {
			continue
		}
		if err := s.ideas.SetStatus(ctx, item.ID, idea.StatusUsed, idea.StatusArchived); err != nil {
			return archived, err
		}
		archived++
	}

	if archived > 0 {
		s.log.Info().Int("count", archived).Msg("archive sweep sealed ideas")
	}
	return archived, nil
}

// completeIfDone advances an in-creation idea to used once every derived
// content item is posted or waived.
func (s *Service) completeIfDone(ctx context.Context, ideaID int64) error {
	item, err := s.ideas.Get(ctx, ideaID)
	if err != nil {
		return err
	}
	if item.Status != idea.StatusInCreation {
		return nil
	}

	unsettled, err := s.contents.CountUnsettled(ctx, ideaID)
	if err != nil {
		return err
	}
	if unsettled > 0 {
		return nil
	}

	return s.ideas.SetStatus(ctx, ideaID, idea.StatusInCreation, idea.StatusUsed)
}

// guardMutable rejects mutations of archived ideas.
func (s *Service) guardMutable(ctx context.Context, id int64) error {
	item, err := s.ideas.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Sealed() {
		return idea.ErrSealed
	}
	return nil
}

// Read-side passthroughs. Queries need no coordinator lock beyond the
// snapshot consistency SQLite already provides.

// GetIdea returns an idea with tags and cross-references.
func (s *Service) GetIdea(ctx context.Context, id int64) (idea.Idea, error) {
	return s.ideas.Get(ctx, id)
}

// ListIdeas returns ideas matching the filter.
func (s *Service) ListIdeas(ctx context.Context, f stores.Filter) ([]idea.Idea, error) {
	return s.ideas.List(ctx, f)
}

// Related returns the ideas cross-referenced with the given one.
func (s *Service) Related(ctx context.Context, id int64) ([]int64, error) {
	return s.ideas.Related(ctx, id)
}

// ChapterHistory returns every chapter an idea was ever assigned to.
func (s *Service) ChapterHistory(ctx context.Context, id int64) ([]idea.ChapterChange, error) {
	return s.ideas.ChapterHistory(ctx, id)
}

// AuditLog returns the idea's append-only audit trail.
func (s *Service) AuditLog(ctx context.Context, id int64) ([]idea.AuditEntry, error) {
	return s.ideas.Audit(ctx, id)
}

// ContentForIdea returns all derived content for an idea.
func (s *Service) ContentForIdea(ctx context.Context, id int64) ([]content.Content, error) {
	return s.contents.ListByIdea(ctx, id)
}

// GetContent returns a derived content item by ID.
func (s *Service) GetContent(ctx context.Context, id string) (content.Content, error) {
	return s.contents.Get(ctx, id)
}
