// Package dispatch decides, per aired episode, whether the discussion lands
// in a fresh standalone post or a rollup megathread, and carries that
// decision out against the posting platform and the database.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wjs018/rikka/internal/store"
	"github.com/wjs018/rikka/pkg/lemmy"
	"github.com/wjs018/rikka/pkg/render"
)

// editHistoryLen is how many prior standalone posts get their discussion
// tables refreshed after a dispatch (half the table's 4x13 capacity).
const editHistoryLen = 26

// Platform is the posting-platform surface the dispatcher needs.
type Platform interface {
	CreatePost(ctx context.Context, community, title, body string, nsfw bool, imageURL string) (string, error)
	EditPost(ctx context.Context, postURL, body, imageURL string, overwriteImage bool) error
	CreateComment(ctx context.Context, community, postURL, body string) (string, error)
	GetEngagement(ctx context.Context, url string) (lemmy.Engagement, error)
	GetPublishTime(ctx context.Context, url string) (time.Time, error)
}

// Outcome reports what a dispatch did with an episode.
type Outcome int

const (
	// OutcomePosted means a discussion was created, as a standalone post or
	// a megathread comment.
	OutcomePosted Outcome = iota
	// OutcomeIgnored means the show was disabled for inactivity and the
	// episode moved to the ignored table.
	OutcomeIgnored
	// OutcomeSkipped means submission is disabled and nothing was sent or
	// recorded; the episode stays pending.
	OutcomeSkipped
)

// Options are the configured thresholds the policy consults.
type Options struct {
	Community          string
	MinUpvotes         int
	MinComments        int
	EngagementLag      time.Duration
	MegathreadEpisodes int
	DisableInactive    bool
	AttachImages       bool
	Submit             bool
}

// Dispatcher runs the routing policy for aired episodes.
type Dispatcher struct {
	store    store.Store
	platform Platform
	renderer *render.Renderer
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a dispatcher.
func New(st store.Store, platform Platform, renderer *render.Renderer, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    st,
		platform: platform,
		renderer: renderer,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNow overrides the dispatcher's clock. Intended for tests.
func (d *Dispatcher) SetNow(now func() time.Time) { d.now = now }

// Dispatch routes one aired episode and reports what it did. On success the
// upcoming row is removed and a new episode row recorded; on failure the
// episode stays pending and is retried on the next run. manual bypasses
// every engagement check.
//
// Precedence: manual override, then no history, then too-soon mirroring, then
// the engagement decision. The state consulted is always read fresh, so an
// earlier episode of the same batch can influence a later one.
func (d *Dispatcher) Dispatch(ctx context.Context, ep store.UpcomingEpisode, manual bool) (Outcome, error) {
	show, err := d.store.GetShow(ctx, ep.ShowID)
	if err != nil {
		return OutcomeSkipped, err
	}
	if show == nil {
		return OutcomeSkipped, fmt.Errorf("dispatch episode %d/%d: show not in database", ep.ShowID, ep.Number)
	}

	if manual {
		d.logger.Info("manual override, creating standalone post", "show", show.ID, "episode", ep.Number)
		return d.createStandalonePost(ctx, show, ep)
	}

	mostRecent, err := d.store.GetLatestEpisode(ctx, show.ID)
	if err != nil {
		return OutcomeSkipped, err
	}
	if mostRecent == nil {
		d.logger.Info("no previous episode, creating standalone post", "show", show.ID, "episode", ep.Number)
		return d.createStandalonePost(ctx, show, ep)
	}

	published, err := d.platform.GetPublishTime(ctx, mostRecent.Link)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("publish time for %s: %w", mostRecent.Link, err)
	}

	if d.now().Sub(published) <= d.opts.EngagementLag {
		// Engagement has not had time to stabilize; mirror the previous
		// episode's routing instead of measuring.
		if lemmy.IsCommentURL(mostRecent.Link) {
			d.logger.Info("previous post too recent, mirroring into megathread", "show", show.ID, "episode", ep.Number)
			return d.handleMegathread(ctx, show, ep)
		}
		d.logger.Info("previous post too recent, mirroring standalone post", "show", show.ID, "episode", ep.Number)
		return d.createStandalonePost(ctx, show, ep)
	}

	engagement, err := d.platform.GetEngagement(ctx, mostRecent.Link)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("engagement for %s: %w", mostRecent.Link, err)
	}

	met := engagement.Upvotes >= d.opts.MinUpvotes && engagement.Comments >= d.opts.MinComments
	if met {
		d.logger.Info("engagement thresholds met, creating standalone post",
			"show", show.ID, "episode", ep.Number,
			"upvotes", engagement.Upvotes, "comments", engagement.Comments)
		if err := d.store.SetMegathreadStatus(ctx, show.ID, false); err != nil {
			return OutcomeSkipped, err
		}
		return d.createStandalonePost(ctx, show, ep)
	}

	if d.opts.DisableInactive {
		d.logger.Info("engagement thresholds not met, disabling show",
			"show", show.ID, "episode", ep.Number)
		if err := d.store.SetShowEnabled(ctx, show.ID, false, false); err != nil {
			return OutcomeSkipped, err
		}
		if err := d.store.AddIgnoredEpisode(ctx, &ep); err != nil {
			return OutcomeSkipped, err
		}
		if err := d.store.RemoveUpcomingEpisode(ctx, ep.ShowID, ep.Number); err != nil {
			return OutcomeSkipped, err
		}
		return OutcomeIgnored, nil
	}

	d.logger.Info("engagement thresholds not met, routing to megathread",
		"show", show.ID, "episode", ep.Number,
		"upvotes", engagement.Upvotes, "comments", engagement.Comments)
	if err := d.store.SetMegathreadStatus(ctx, show.ID, true); err != nil {
		return OutcomeSkipped, err
	}
	return d.handleMegathread(ctx, show, ep)
}

// createStandalonePost submits a dedicated discussion post and commits the
// episode on success.
func (d *Dispatcher) createStandalonePost(ctx context.Context, show *store.Show, ep store.UpcomingEpisode) (Outcome, error) {
	rc, err := d.renderContext(ctx, show, ep.Number)
	if err != nil {
		return OutcomeSkipped, err
	}

	title := d.renderer.PostTitle(rc, lemmy.MaxTitleLen)
	body := d.renderer.PostBody(rc)

	if !d.opts.Submit {
		d.logger.Info("submit disabled, skipping standalone post", "show", show.ID, "episode", ep.Number)
		return OutcomeSkipped, nil
	}

	imageURL, err := d.postImage(ctx, show.ID)
	if err != nil {
		return OutcomeSkipped, err
	}

	postURL, err := d.platform.CreatePost(ctx, d.opts.Community, title, body, show.IsNSFW, imageURL)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("standalone post for %d/%d: %w", show.ID, ep.Number, err)
	}

	if err := d.store.AddEpisode(ctx, &store.Episode{
		ShowID:  show.ID,
		Number:  ep.Number,
		Link:    postURL,
		CanEdit: true,
	}); err != nil {
		return OutcomeSkipped, err
	}
	if err := d.store.RemoveUpcomingEpisode(ctx, ep.ShowID, ep.Number); err != nil {
		return OutcomeSkipped, err
	}
	return OutcomePosted, nil
}

// handleMegathread folds the episode into the show's current megathread,
// rolling over to a fresh thread when the current one is at capacity.
func (d *Dispatcher) handleMegathread(ctx context.Context, show *store.Show, ep store.UpcomingEpisode) (Outcome, error) {
	if !d.opts.Submit {
		d.logger.Info("submit disabled, skipping megathread entry", "show", show.ID, "episode", ep.Number)
		return OutcomeSkipped, nil
	}

	mt, err := d.store.GetLatestMegathread(ctx, show.ID)
	if err != nil {
		return OutcomeSkipped, err
	}

	if mt == nil || mt.NumEpisodes >= d.opts.MegathreadEpisodes {
		next := 1
		if mt != nil {
			next = mt.ThreadNum + 1
		}
		mt, err = d.createMegathread(ctx, show, ep, next)
		if err != nil {
			return OutcomeSkipped, err
		}
	}

	rc, err := d.renderContext(ctx, show, ep.Number)
	if err != nil {
		return OutcomeSkipped, err
	}
	comment := d.renderer.MegathreadComment(rc)

	commentURL, err := d.platform.CreateComment(ctx, d.opts.Community, mt.PostURL, comment)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("megathread comment for %d/%d: %w", show.ID, ep.Number, err)
	}

	if err := d.store.AddEpisode(ctx, &store.Episode{
		ShowID:  show.ID,
		Number:  ep.Number,
		Link:    commentURL,
		CanEdit: true,
	}); err != nil {
		return OutcomeSkipped, err
	}
	if err := d.store.IncrementMegathreadEpisodes(ctx, mt); err != nil {
		return OutcomeSkipped, err
	}
	if err := d.store.RemoveUpcomingEpisode(ctx, ep.ShowID, ep.Number); err != nil {
		return OutcomeSkipped, err
	}
	return OutcomePosted, nil
}

func (d *Dispatcher) createMegathread(ctx context.Context, show *store.Show, ep store.UpcomingEpisode, threadNum int) (*store.Megathread, error) {
	rc, err := d.renderContext(ctx, show, ep.Number)
	if err != nil {
		return nil, err
	}

	title := d.renderer.MegathreadTitle(rc, lemmy.MaxTitleLen)
	body := d.renderer.MegathreadBody(rc)

	postURL, err := d.platform.CreatePost(ctx, d.opts.Community, title, body, show.IsNSFW, "")
	if err != nil {
		return nil, fmt.Errorf("megathread post for show %d: %w", show.ID, err)
	}
	d.logger.Info("megathread created", "show", show.ID, "thread", threadNum, "url", postURL)

	mt := &store.Megathread{
		ShowID:      show.ID,
		ThreadNum:   threadNum,
		PostURL:     postURL,
		NumEpisodes: 0,
	}
	if err := d.store.AddMegathread(ctx, mt); err != nil {
		return nil, err
	}
	return mt, nil
}

// RefreshLinks re-renders the discussion-link tables embedded in the show's
// recent standalone posts, plus the active megathread body. Edit failures
// are logged and skipped; the refresh is best-effort.
func (d *Dispatcher) RefreshLinks(ctx context.Context, showID int) error {
	if !d.opts.Submit {
		return nil
	}

	show, err := d.store.GetShow(ctx, showID)
	if err != nil {
		return err
	}
	if show == nil {
		return fmt.Errorf("refresh links: show %d not in database", showID)
	}

	episodes, err := d.store.ListEpisodes(ctx, showID)
	if err != nil {
		return err
	}

	recent := episodes
	if len(recent) > editHistoryLen {
		recent = recent[len(recent)-editHistoryLen:]
	}

	for _, ep := range recent {
		if !ep.CanEdit || lemmy.IsCommentURL(ep.Link) {
			continue
		}

		rc, err := d.renderContext(ctx, show, ep.Number)
		if err != nil {
			return err
		}
		body := d.renderer.PostBody(rc)

		if err := d.platform.EditPost(ctx, ep.Link, body, "", false); err != nil {
			d.logger.Warn("failed to refresh post", "url", ep.Link, "error", err)
		}
	}

	mt, err := d.store.GetLatestMegathread(ctx, showID)
	if err != nil {
		return err
	}
	if mt != nil {
		latest, err := d.store.GetLatestEpisode(ctx, showID)
		if err != nil {
			return err
		}
		number := 0
		if latest != nil {
			number = latest.Number
		}

		rc, err := d.renderContext(ctx, show, number)
		if err != nil {
			return err
		}
		body := d.renderer.MegathreadBody(rc)
		if err := d.platform.EditPost(ctx, mt.PostURL, body, "", false); err != nil {
			d.logger.Warn("failed to refresh megathread", "url", mt.PostURL, "error", err)
		}
	}

	return nil
}

func (d *Dispatcher) renderContext(ctx context.Context, show *store.Show, number int) (render.Context, error) {
	episodes, err := d.store.ListEpisodes(ctx, show.ID)
	if err != nil {
		return render.Context{}, err
	}
	aliases, err := d.store.GetAliases(ctx, show.ID)
	if err != nil {
		return render.Context{}, err
	}
	return render.Context{
		Show:     show,
		Episode:  number,
		Episodes: episodes,
		Aliases:  aliases,
	}, nil
}

// postImage picks the image url to attach to a standalone post: the banner
// when one exists, otherwise the cover.
func (d *Dispatcher) postImage(ctx context.Context, showID int) (string, error) {
	if !d.opts.AttachImages {
		return "", nil
	}

	banner, err := d.store.GetImage(ctx, showID, "banner")
	if err != nil {
		return "", err
	}
	if banner != nil && banner.Link != "" {
		return banner.Link, nil
	}

	cover, err := d.store.GetImage(ctx, showID, "cover")
	if err != nil {
		return "", err
	}
	if cover != nil {
		return cover.Link, nil
	}
	return "", nil
}
