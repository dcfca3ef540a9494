// Package feeds watches release-announcement RSS/Atom feeds as a fallback
// source of aired episodes. When a feed item names a tracked show and an
// episode number that the catalog schedule missed, the episode is queued for
// dispatch.
package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/wjs018/rikka/internal/store"
)

// episodePattern matches "Episode 12", "Ep. 12", "Ep 12", or a trailing
// "- 12" in a feed item title.
var episodePattern = regexp.MustCompile(`(?i)(?:episode|ep\.?)\s*(\d+)|-\s*(\d+)\s*$`)

// Feed is a named RSS/Atom feed URL.
type Feed struct {
	Name string
	URL  string
}

// Match is one episode a feed item resolved to.
type Match struct {
	ShowID    int
	Episode   int
	Feed      string
	Title     string
	Published time.Time
}

// Watcher polls announcement feeds and matches items against tracked shows.
type Watcher struct {
	client *http.Client
	parser *gofeed.Parser
	feeds  []Feed
	store  store.Store
	logger *slog.Logger
	window time.Duration
}

// New creates a feed watcher. Items older than window are ignored.
func New(feeds []Feed, st store.Store, window time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Watcher{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		feeds:  feeds,
		store:  st,
		logger: logger,
		window: window,
	}
}

// Check polls every configured feed and queues episodes for enabled shows
// whose name or alias appears in a recent item title. Episodes already
// posted, queued, or ignored are skipped. Feed errors are logged and the
// remaining feeds still run.
func (w *Watcher) Check(ctx context.Context) ([]Match, error) {
	shows, err := w.store.ListShows(ctx, store.ShowsEnabled)
	if err != nil {
		return nil, err
	}
	if len(shows) == 0 {
		return nil, nil
	}

	names := make(map[int][]string, len(shows))
	for _, show := range shows {
		names[show.ID] = append(names[show.ID], show.Name)
		if show.NameEn != "" {
			names[show.ID] = append(names[show.ID], show.NameEn)
		}
		aliases, err := w.store.GetAliases(ctx, show.ID)
		if err != nil {
			return nil, err
		}
		names[show.ID] = append(names[show.ID], aliases...)
	}

	var matches []Match
	for _, feed := range w.feeds {
		found, err := w.checkFeed(ctx, feed, names)
		if err != nil {
			w.logger.Warn("feed check failed", "feed", feed.Name, "error", err)
			continue
		}
		matches = append(matches, found...)
	}

	var queued []Match
	for _, m := range matches {
		ok, err := w.queue(ctx, m)
		if err != nil {
			return queued, err
		}
		if ok {
			queued = append(queued, m)
		}
	}
	return queued, nil
}

func (w *Watcher) checkFeed(ctx context.Context, feed Feed, names map[int][]string) ([]Match, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", "rikka/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := w.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed.Name, err)
	}

	cutoff := time.Now().Add(-w.window)

	var matches []Match
	for _, entry := range parsed.Items {
		if entry.PublishedParsed != nil && entry.PublishedParsed.Before(cutoff) {
			continue
		}

		episode, ok := parseEpisode(entry.Title)
		if !ok {
			continue
		}

		published := time.Now()
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		}

		title := strings.ToLower(entry.Title)
		for showID, candidates := range names {
			if !titleMatches(title, candidates) {
				continue
			}
			matches = append(matches, Match{
				ShowID:    showID,
				Episode:   episode,
				Feed:      feed.Name,
				Title:     entry.Title,
				Published: published,
			})
			break
		}
	}
	return matches, nil
}

// queue records the match as an upcoming episode with the item's publish
// time as its air instant, unless the episode is already known in any table.
func (w *Watcher) queue(ctx context.Context, m Match) (bool, error) {
	posted, err := w.store.GetEpisode(ctx, m.ShowID, m.Episode)
	if err != nil {
		return false, err
	}
	if posted != nil {
		return false, nil
	}

	ignored, err := w.store.GetIgnoredEpisode(ctx, m.ShowID, m.Episode)
	if err != nil {
		return false, err
	}
	if ignored != nil {
		return false, nil
	}

	// The catalog schedule is authoritative. A feed item for an episode that
	// is already queued must not overwrite its air instant.
	queued, err := w.store.GetUpcomingEpisode(ctx, m.ShowID, m.Episode)
	if err != nil {
		return false, err
	}
	if queued != nil {
		return false, nil
	}

	w.logger.Info("feed matched episode",
		"feed", m.Feed, "show", m.ShowID, "episode", m.Episode, "title", m.Title)

	err = w.store.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{
		ShowID:     m.ShowID,
		Number:     m.Episode,
		AiringTime: m.Published.Unix(),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// parseEpisode extracts an episode number from a feed item title.
func parseEpisode(title string) (int, bool) {
	groups := episodePattern.FindStringSubmatch(title)
	if groups == nil {
		return 0, false
	}
	raw := groups[1]
	if raw == "" {
		raw = groups[2]
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// titleMatches reports whether any candidate show name appears in the
// lowercased item title.
func titleMatches(title string, candidates []string) bool {
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if strings.Contains(title, strings.ToLower(name)) {
			return true
		}
	}
	return false
}
