// Package scheduler runs one worker per publish channel. Workers own the
// blocking publish I/O so the coordinator never waits on a channel API;
// results flow back through coordinator methods.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/inkwell/internal/core/config"
	"github.com/colonyops/inkwell/internal/core/content"
	"github.com/colonyops/inkwell/internal/data/stores"
	"github.com/colonyops/inkwell/internal/pipeline"
)

const (
	defaultPollInterval   = time.Second
	defaultInitialBackoff = time.Second
)

// Options tune worker timing. Zero values use defaults.
type Options struct {
	// PollInterval is how often an idle worker checks its queue.
	PollInterval time.Duration
	// InitialBackoff is the wait after the first failed attempt; it
	// doubles on every further failure.
	InitialBackoff time.Duration
}

// Scheduler dequeues derived content per channel, respecting each
// channel's rate-limit window, and publishes with bounded retry.
type Scheduler struct {
	svc      *pipeline.Service
	contents *stores.ContentStore
	cfg      *config.Config
	pub      Publisher
	log      zerolog.Logger

	poll    time.Duration
	backoff time.Duration
}

// New constructs a scheduler over the configured channels.
func New(svc *pipeline.Service, contents *stores.ContentStore, cfg *config.Config, pub Publisher, logger zerolog.Logger, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	return &Scheduler{
		svc:      svc,
		contents: contents,
		cfg:      cfg,
		pub:      pub,
		log:      logger,
		poll:     opts.PollInterval,
		backoff:  opts.InitialBackoff,
	}
}

// Start launches one worker goroutine per publishable channel and blocks
// until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	// Claims left by a previous process that died mid-publish go back on
	// the queue.
	if released, err := s.contents.ReleaseClaims(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to release stale claims")
	} else if released > 0 {
		s.log.Warn().Int64("count", released).Msg("requeued items claimed by a previous run")
	}

	var wg sync.WaitGroup
	for name, ch := range s.cfg.Channels {
		if !ch.Publishable() {
			continue
		}
		wg.Add(1)
		go func(name string, ch config.ChannelConfig) {
			defer wg.Done()
			s.worker(ctx, name, ch)
		}(name, ch)
	}
	wg.Wait()
}

// RunOnce drains every channel's due work a single time, respecting rate
// windows, then returns. Used by `inkwell run --once` and tests.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	for name, ch := range s.cfg.Channels {
		if !ch.Publishable() {
			continue
		}
		for {
			processed, err := s.processNext(ctx, name, ch)
			if err != nil {
				return err
			}
			if !processed {
				break
			}
		}
	}
	return nil
}

// worker is a channel's publish loop: FIFO by enqueue time, one item at a
// time, never two within the rate window.
func (s *Scheduler) worker(ctx context.Context, name string, ch config.ChannelConfig) {
	log := s.log.With().Str("channel", name).Logger()
	log.Debug().Msg("channel worker started")

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("channel worker stopped")
			return
		case <-ticker.C:
			if _, err := s.processNext(ctx, name, ch); err != nil {
				log.Error().Err(err).Msg("queue processing error")
			}
		}
	}
}

// processNext publishes the channel's next due item, if the rate window
// allows one. Returns true if an item was taken off the queue.
func (s *Scheduler) processNext(ctx context.Context, name string, ch config.ChannelConfig) (bool, error) {
	now := time.Now()

	if ch.Window > 0 {
		last, err := s.contents.LastPostedAt(ctx, name)
		if err != nil {
			return false, err
		}
		if last != nil && now.Sub(*last) < ch.Window.Std() {
			return false, nil
		}
	}

	c, ok, err := s.contents.NextDue(ctx, name, now)
	if err != nil || !ok {
		return false, err
	}

	// The claim is the point of no return: from here the publish call is
	// considered issued and cancellation is refused.
	claimed, err := s.contents.Claim(ctx, c.ID, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		// Canceled between NextDue and Claim.
		return false, nil
	}

	s.publishWithRetry(ctx, name, ch, c)
	return true, nil
}

// publishWithRetry attempts the publish up to the channel's attempt limit
// with exponential backoff. A timed-out attempt counts as a failure.
func (s *Scheduler) publishWithRetry(ctx context.Context, name string, ch config.ChannelConfig, c content.Content) {
	wait := s.backoff

	for attempt := 1; attempt <= ch.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, ch.Timeout.Std())
		err := s.pub.Publish(attemptCtx, name, c)
		cancel()

		if err == nil {
			if repErr := s.svc.ReportPosted(ctx, c, time.Now(), attempt); repErr != nil {
				s.log.Error().Err(repErr).Str("content", c.ID).Msg("failed to record posted result")
			}
			return
		}

		if attempt == ch.MaxAttempts {
			failure := &content.ChannelPublishError{Channel: name, Attempts: attempt, Err: err}
			if repErr := s.svc.ReportFailed(ctx, c, attempt, failure); repErr != nil {
				s.log.Error().Err(repErr).Str("content", c.ID).Msg("failed to record failed result")
			}
			return
		}

		if repErr := s.svc.RecordAttempt(ctx, c, attempt, err); repErr != nil {
			s.log.Error().Err(repErr).Str("content", c.ID).Msg("failed to record attempt")
		}

		select {
		case <-ctx.Done():
			// Shutdown mid-retry: the claim stands, the item is retried
			// as a failure on the next run.
			return
		case <-time.After(wait):
		}
		wait *= 2
	}
}
