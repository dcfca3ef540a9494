// Package sync reconciles catalog metadata and airing schedules into the
// local database.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/wjs018/rikka/internal/store"
	"github.com/wjs018/rikka/pkg/catalog"
)

// Catalog is the slice of the catalog client the syncer needs.
type Catalog interface {
	FetchAiringSchedule(ctx context.Context, start, end int64) ([]catalog.ScheduleEntry, error)
	FetchShowsByIDs(ctx context.Context, ids []int) ([]catalog.Media, error)
}

// Options control discovery of shows not yet tracked.
type Options struct {
	Days          int
	ShowDiscovery bool
	NewShowTypes  []string
	Countries     []string
}

// Syncer pulls from the catalog and writes through to the store.
type Syncer struct {
	store   store.Store
	catalog Catalog
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a syncer.
func New(st store.Store, cat Catalog, opts Options, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:   st,
		catalog: cat,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// SetNow overrides the syncer's clock. Intended for tests.
func (s *Syncer) SetNow(now func() time.Time) { s.now = now }

// SyncShows refreshes metadata for the given show ids from the catalog. An
// empty id list refreshes every show in the database. Returns how many shows
// were updated.
func (s *Syncer) SyncShows(ctx context.Context, ids []int) (int, error) {
	if len(ids) == 0 {
		shows, err := s.store.ListShows(ctx, store.ShowsAll)
		if err != nil {
			return 0, err
		}
		for _, show := range shows {
			ids = append(ids, show.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	media, err := s.catalog.FetchShowsByIDs(ctx, ids)
	if err != nil && len(media) == 0 {
		return 0, err
	}
	if err != nil {
		s.logger.Warn("partial show sync", "fetched", len(media), "requested", len(ids), "error", err)
	}

	count := 0
	for _, m := range media {
		if upErr := s.upsertMedia(ctx, m, m.Airing()); upErr != nil {
			return count, upErr
		}
		count++
	}
	return count, nil
}

// DiscoverUpcoming fetches the airing schedule for the configured horizon and
// records upcoming episodes for tracked shows. When show discovery is on,
// untracked shows matching the type and country filters are added and enabled.
// Returns how many upcoming episodes were recorded.
func (s *Syncer) DiscoverUpcoming(ctx context.Context) (int, error) {
	start := s.now().Unix()
	end := start + int64(s.opts.Days)*24*60*60

	entries, err := s.catalog.FetchAiringSchedule(ctx, start, end)
	if err != nil && len(entries) == 0 {
		return 0, err
	}
	if err != nil {
		s.logger.Warn("partial airing schedule", "entries", len(entries), "error", err)
	}

	count := 0
	for _, entry := range entries {
		show, err := s.store.GetShow(ctx, entry.MediaID)
		if err != nil {
			return count, err
		}

		if show == nil {
			if !s.opts.ShowDiscovery || !s.discoverable(entry.Media) {
				continue
			}
			s.logger.Info("discovered new show",
				"show", entry.MediaID, "name", entry.Media.Title.Romaji)
			if err := s.upsertMedia(ctx, entry.Media, true); err != nil {
				return count, err
			}
			show, err = s.store.GetShow(ctx, entry.MediaID)
			if err != nil {
				return count, err
			}
			if show == nil {
				return count, fmt.Errorf("show %d missing after upsert", entry.MediaID)
			}
		}

		posted, err := s.store.GetEpisode(ctx, show.ID, entry.Episode)
		if err != nil {
			return count, err
		}
		if posted != nil {
			continue
		}

		ignored, err := s.store.GetIgnoredEpisode(ctx, show.ID, entry.Episode)
		if err != nil {
			return count, err
		}
		if ignored != nil {
			continue
		}

		if err := s.store.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{
			ShowID:     show.ID,
			Number:     entry.Episode,
			AiringTime: entry.AirsAt(),
		}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// discoverable applies the configured type and country filters to a show the
// database has never seen.
func (s *Syncer) discoverable(m catalog.Media) bool {
	if m.IsAdult {
		return false
	}
	if len(s.opts.NewShowTypes) > 0 && !slices.Contains(s.opts.NewShowTypes, m.Format) {
		return false
	}
	if len(s.opts.Countries) > 0 && !slices.Contains(s.opts.Countries, m.CountryOfOrigin) {
		return false
	}
	return true
}

// upsertMedia writes one catalog record through to the store: the show row
// plus its aliases, images, and external links.
func (s *Syncer) upsertMedia(ctx context.Context, m catalog.Media, enabled bool) error {
	show := &store.Show{
		ID:        m.ID,
		IDMal:     m.IDMal,
		Name:      m.Title.Romaji,
		NameEn:    m.Title.English,
		Type:      store.ParseShowType(m.Format),
		HasSource: m.HasSource(),
		IsNSFW:    m.IsAdult,
		Enabled:   enabled,
	}
	if err := s.store.UpsertShow(ctx, show); err != nil {
		return err
	}

	for _, alias := range m.Synonyms {
		alias = store.SanitizeName(alias)
		if alias == "" || alias == show.Name {
			continue
		}
		if err := s.store.AddAlias(ctx, show.ID, alias); err != nil {
			return err
		}
	}

	if m.BannerImage != "" {
		if err := s.store.UpsertImage(ctx, &store.Image{
			ShowID: show.ID, Type: "banner", Link: m.BannerImage,
		}); err != nil {
			return err
		}
	}
	if m.CoverImage.ExtraLarge != "" {
		if err := s.store.UpsertImage(ctx, &store.Image{
			ShowID: show.ID, Type: "cover", Link: m.CoverImage.ExtraLarge,
		}); err != nil {
			return err
		}
	}

	for _, link := range m.ExternalLinks {
		if link.URL == "" {
			continue
		}
		if err := s.store.UpsertExternalLink(ctx, &store.ExternalLink{
			ShowID:   show.ID,
			LinkType: link.Type,
			Site:     link.Site,
			Language: link.Language,
			URL:      link.URL,
		}); err != nil {
			return err
		}
	}
	return nil
}
