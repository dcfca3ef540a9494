// Package scheduler orchestrates one batch run: prune stale state, pull the
// airing schedule, check announcement feeds, and dispatch every episode that
// has aired.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/wjs018/rikka/internal/store"
	"github.com/wjs018/rikka/pkg/dispatch"
	"github.com/wjs018/rikka/pkg/feeds"
)

// Dispatcher routes aired episodes to posts or megathreads.
type Dispatcher interface {
	Dispatch(ctx context.Context, ep store.UpcomingEpisode, manual bool) (dispatch.Outcome, error)
	RefreshLinks(ctx context.Context, showID int) error
}

// Discoverer pulls upcoming episodes from the catalog.
type Discoverer interface {
	DiscoverUpcoming(ctx context.Context) (int, error)
}

// FeedChecker queues episodes found in announcement feeds.
type FeedChecker interface {
	Check(ctx context.Context) ([]feeds.Match, error)
}

// Result summarizes one batch run.
type Result struct {
	Pruned      int64
	Discovered  int
	FeedMatches int
	Posted      int
	Ignored     int
	Skipped     int
	Failed      int
}

// Scheduler runs the episode batch.
type Scheduler struct {
	store      store.Store
	discoverer Discoverer
	feeds      FeedChecker
	dispatcher Dispatcher
	retention  time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a scheduler. feeds may be nil when no feeds are configured.
func New(st store.Store, disc Discoverer, fc FeedChecker, d Dispatcher, retention time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:      st,
		discoverer: disc,
		feeds:      fc,
		dispatcher: d,
		retention:  retention,
		logger:     logger,
		now:        time.Now,
	}
}

// SetNow overrides the scheduler's clock. Intended for tests.
func (s *Scheduler) SetNow(now func() time.Time) { s.now = now }

// Run executes one batch. A failed episode is logged and left pending so the
// next run retries it; the rest of the batch continues. Discovery and feed
// errors degrade the run rather than aborting it, since already-queued
// episodes can still dispatch.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	var res Result

	if s.retention > 0 {
		cutoff := s.now().Add(-s.retention).Unix()
		pruned, err := s.store.PruneIgnoredEpisodes(ctx, cutoff)
		if err != nil {
			return res, err
		}
		res.Pruned = pruned
		if pruned > 0 {
			s.logger.Info("pruned ignored episodes", "count", pruned)
		}
	}

	if s.discoverer != nil {
		discovered, err := s.discoverer.DiscoverUpcoming(ctx)
		if err != nil {
			s.logger.Error("airing schedule discovery failed", "error", err)
		}
		res.Discovered = discovered
	}

	if s.feeds != nil {
		matches, err := s.feeds.Check(ctx)
		if err != nil {
			s.logger.Error("feed check failed", "error", err)
		}
		res.FeedMatches = len(matches)
	}

	aired, err := s.store.GetAiredEpisodes(ctx, s.now().Unix())
	if err != nil {
		return res, err
	}

	for _, ep := range aired {
		show, err := s.store.GetShow(ctx, ep.ShowID)
		if err != nil {
			return res, err
		}

		if show == nil || !show.Enabled {
			// Aired while untracked: remember it so re-enabling the show
			// does not flood the community with stale discussions.
			s.logger.Info("ignoring episode of disabled show", "show", ep.ShowID, "episode", ep.Number)
			if err := s.store.AddIgnoredEpisode(ctx, &ep); err != nil {
				return res, err
			}
			if err := s.store.RemoveUpcomingEpisode(ctx, ep.ShowID, ep.Number); err != nil {
				return res, err
			}
			res.Ignored++
			continue
		}

		outcome, err := s.dispatcher.Dispatch(ctx, ep, false)
		if err != nil {
			s.logger.Error("dispatch failed, episode stays pending",
				"show", ep.ShowID, "episode", ep.Number, "error", err)
			res.Failed++
			continue
		}

		switch outcome {
		case dispatch.OutcomePosted:
			if err := s.dispatcher.RefreshLinks(ctx, ep.ShowID); err != nil {
				s.logger.Warn("link refresh failed", "show", ep.ShowID, "error", err)
			}
			res.Posted++
		case dispatch.OutcomeIgnored:
			res.Ignored++
		case dispatch.OutcomeSkipped:
			res.Skipped++
		}
	}

	s.logger.Info("batch complete",
		"discovered", res.Discovered, "feed_matches", res.FeedMatches,
		"posted", res.Posted, "ignored", res.Ignored, "skipped", res.Skipped,
		"failed", res.Failed, "pruned", res.Pruned)
	return res, nil
}
