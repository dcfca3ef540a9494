package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/wjs018/rikka/internal/config"
	"github.com/wjs018/rikka/internal/logging"
	"github.com/wjs018/rikka/internal/scheduler"
	"github.com/wjs018/rikka/internal/store"
	episodesync "github.com/wjs018/rikka/internal/sync"
	"github.com/wjs018/rikka/pkg/catalog"
	"github.com/wjs018/rikka/pkg/dispatch"
	"github.com/wjs018/rikka/pkg/feeds"
	"github.com/wjs018/rikka/pkg/lemmy"
	"github.com/wjs018/rikka/pkg/ratelimit"
	"github.com/wjs018/rikka/pkg/render"
)

// app bundles everything a command handler needs.
type app struct {
	cfg    *config.Config
	db     store.Store
	logger *slog.Logger
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &app{cfg: cfg, db: db, logger: logger}, nil
}

func (a *app) close() {
	a.db.Close()
}

func (a *app) buildCatalog() *catalog.Client {
	limiter := ratelimit.New(a.cfg.Options.RateLimit)
	return catalog.NewClient(catalog.DefaultURL, limiter, a.logger)
}

func (a *app) buildSyncer() *episodesync.Syncer {
	return episodesync.New(a.db, a.buildCatalog(), episodesync.Options{
		Days:          a.cfg.Options.Days,
		ShowDiscovery: a.cfg.Options.ShowDiscovery,
		NewShowTypes:  a.cfg.Options.NewShowTypes,
		Countries:     a.cfg.Options.Countries,
	}, a.logger)
}

func (a *app) buildDispatcher() *dispatch.Dispatcher {
	platform := lemmy.New(a.cfg.Lemmy.Instance, a.cfg.Lemmy.Username, a.cfg.Lemmy.Password, a.logger)

	renderer := render.New(render.Templates{
		PostTitle:             a.cfg.Post.Title,
		PostTitleWithEn:       a.cfg.Post.TitleWithEn,
		PostBody:              a.cfg.Post.Body,
		MegathreadTitle:       a.cfg.Megathread.Title,
		MegathreadTitleWithEn: a.cfg.Megathread.TitleWithEn,
		MegathreadBody:        a.cfg.Megathread.Body,
		MegathreadComment:     a.cfg.Megathread.Comment,
		Formats:               a.cfg.Post.Formats,
	})

	return dispatch.New(a.db, platform, renderer, dispatch.Options{
		Community:          a.cfg.Lemmy.Community,
		MinUpvotes:         a.cfg.Options.MinUpvotes,
		MinComments:        a.cfg.Options.MinComments,
		EngagementLag:      a.cfg.Options.EngagementLag(),
		MegathreadEpisodes: a.cfg.Megathread.Episodes,
		DisableInactive:    a.cfg.Options.DisableInactive,
		AttachImages:       a.cfg.Options.AttachImages,
		Submit:             a.cfg.Options.Submit,
	}, a.logger)
}

func (a *app) buildWatcher() *feeds.Watcher {
	if len(a.cfg.Feeds) == 0 {
		return nil
	}
	items := make([]feeds.Feed, len(a.cfg.Feeds))
	for i, f := range a.cfg.Feeds {
		items[i] = feeds.Feed{Name: f.Name, URL: f.URL}
	}
	return feeds.New(items, a.db, 0, a.logger)
}

// runEpisode runs one full batch. A file lock next to the database keeps
// overlapping cron invocations from double-posting.
func runEpisode(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	lock := flock.New(a.cfg.Database.Path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another rikka run is in progress")
	}
	defer lock.Unlock()

	var fc scheduler.FeedChecker
	if w := a.buildWatcher(); w != nil {
		fc = w
	}

	sched := scheduler.New(a.db, a.buildSyncer(), fc, a.buildDispatcher(),
		a.cfg.Options.EpisodeRetention(), a.logger)

	_, err = sched.Run(ctx)
	return err
}

func runAdd(ctx context.Context, ids []int, enable bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	syncer := a.buildSyncer()
	count, err := syncer.SyncShows(ctx, ids)
	if err != nil {
		return fmt.Errorf("add shows: %w", err)
	}

	if !enable {
		for _, id := range ids {
			if err := a.db.SetShowEnabled(ctx, id, false, true); err != nil {
				return err
			}
		}
	}

	fmt.Printf("added %d shows\n", count)
	return nil
}

func runUpdate(ctx context.Context, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	var ids []int
	switch {
	case len(args) == 0 || (len(args) == 1 && args[0] == "all"):
		// SyncShows with no ids refreshes everything.
	case len(args) == 1 && (args[0] == "enabled" || args[0] == "disabled"):
		filter := store.ShowsEnabled
		if args[0] == "disabled" {
			filter = store.ShowsDisabled
		}
		shows, err := a.db.ListShows(ctx, filter)
		if err != nil {
			return err
		}
		for _, s := range shows {
			ids = append(ids, s.ID)
		}
		if len(ids) == 0 {
			fmt.Printf("no %s shows\n", args[0])
			return nil
		}
	default:
		if ids, err = parseIDs(args); err != nil {
			return err
		}
	}

	count, err := a.buildSyncer().SyncShows(ctx, ids)
	if err != nil {
		return fmt.Errorf("update shows: %w", err)
	}

	fmt.Printf("updated %d shows\n", count)
	return nil
}

func runSetEnabled(ctx context.Context, id int, enabled bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	show, err := a.db.GetShow(ctx, id)
	if err != nil {
		return err
	}
	if show == nil {
		return fmt.Errorf("show %d not found", id)
	}

	if err := a.db.SetShowEnabled(ctx, id, enabled, true); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("%s %s\n", state, show.Name)
	return nil
}

// runDisableNSFW disables every show flagged NSFW in one pass.
func runDisableNSFW(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	shows, err := a.db.ListShows(ctx, store.ShowsEnabled)
	if err != nil {
		return err
	}

	count := 0
	for _, s := range shows {
		if !s.IsNSFW {
			continue
		}
		if err := a.db.SetShowEnabled(ctx, s.ID, false, true); err != nil {
			return err
		}
		count++
	}

	fmt.Printf("disabled %d nsfw shows\n", count)
	return nil
}

// runRemoveGroup removes every NSFW or every disabled show.
func runRemoveGroup(ctx context.Context, group string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	filter := store.ShowsAll
	if group == "disabled" {
		filter = store.ShowsDisabled
	}
	shows, err := a.db.ListShows(ctx, filter)
	if err != nil {
		return err
	}

	count := 0
	for _, s := range shows {
		if group == "nsfw" && !s.IsNSFW {
			continue
		}
		if err := a.db.RemoveShow(ctx, s.ID); err != nil {
			return err
		}
		count++
	}

	fmt.Printf("removed %d %s shows\n", count, group)
	return nil
}

func runRemove(ctx context.Context, id int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	show, err := a.db.GetShow(ctx, id)
	if err != nil {
		return err
	}
	if show == nil {
		return fmt.Errorf("show %d not found", id)
	}

	if err := a.db.RemoveShow(ctx, id); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", show.Name)
	return nil
}

// runThread dispatches one episode as a standalone post regardless of
// engagement, re-enabling the show and clearing any ignored record so
// tracking resumes.
func runThread(ctx context.Context, id, episode int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	show, err := a.db.GetShow(ctx, id)
	if err != nil {
		return err
	}
	if show == nil {
		return fmt.Errorf("show %d not found", id)
	}

	ignored, err := a.db.GetIgnoredEpisode(ctx, id, episode)
	if err != nil {
		return err
	}

	ep := store.UpcomingEpisode{ShowID: id, Number: episode}
	if ignored != nil {
		ep = *ignored
	}

	d := a.buildDispatcher()
	if _, err := d.Dispatch(ctx, ep, true); err != nil {
		return err
	}

	if ignored != nil {
		if err := a.db.RemoveIgnoredEpisode(ctx, id, episode); err != nil {
			return err
		}
	}
	if !show.Enabled {
		if err := a.db.SetShowEnabled(ctx, id, true, true); err != nil {
			return err
		}
	}

	return d.RefreshLinks(ctx, id)
}

// runLoad bulk-imports upcoming episodes from a CSV of
// show_id,episode[,airing_time] rows. An omitted airing time means the
// episode has already aired. Shows not yet in the database are pulled from
// the catalog first.
func runLoad(ctx context.Context, path string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%s lists no episodes", path)
	}

	type row struct {
		showID   int
		episode  int
		airingAt int64
	}

	var rows []row
	var missing []int
	for i, rec := range records {
		if len(rec) < 2 {
			return fmt.Errorf("%s line %d: expected show_id,episode[,airing_time]", path, i+1)
		}
		showID, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return fmt.Errorf("%s line %d: invalid show id %q", path, i+1, rec[0])
		}
		episode, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return fmt.Errorf("%s line %d: invalid episode %q", path, i+1, rec[1])
		}

		airingAt := time.Now().Unix()
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			airingAt, err = strconv.ParseInt(strings.TrimSpace(rec[2]), 10, 64)
			if err != nil {
				return fmt.Errorf("%s line %d: invalid airing time %q", path, i+1, rec[2])
			}
		}
		rows = append(rows, row{showID: showID, episode: episode, airingAt: airingAt})

		show, err := a.db.GetShow(ctx, showID)
		if err != nil {
			return err
		}
		if show == nil {
			missing = append(missing, showID)
		}
	}

	if len(missing) > 0 {
		if _, err := a.buildSyncer().SyncShows(ctx, missing); err != nil {
			return fmt.Errorf("fetch shows for import: %w", err)
		}
	}

	for _, r := range rows {
		if err := a.db.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{
			ShowID:     r.showID,
			Number:     r.episode,
			AiringTime: r.airingAt,
		}); err != nil {
			return err
		}
	}

	fmt.Printf("queued %d episodes from %s\n", len(rows), path)
	return nil
}

func runFeeds(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	w := a.buildWatcher()
	if w == nil {
		return fmt.Errorf("no feeds configured")
	}

	matches, err := w.Check(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("queued %d episodes from feeds\n", len(matches))
	return nil
}

func runShows(ctx context.Context, all bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	filter := store.ShowsEnabled
	if all {
		filter = store.ShowsAll
	}

	shows, err := a.db.ListShows(ctx, filter)
	if err != nil {
		return err
	}
	if len(shows) == 0 {
		fmt.Println("no shows tracked")
		return nil
	}

	rows := make([][]string, 0, len(shows))
	for _, s := range shows {
		latest, err := a.db.GetLatestEpisode(ctx, s.ID)
		if err != nil {
			return err
		}
		lastEp := "-"
		if latest != nil {
			lastEp = strconv.Itoa(latest.Number)
		}

		rows = append(rows, []string{
			strconv.Itoa(s.ID),
			s.Name,
			string(s.Type),
			flag(s.Enabled),
			flag(s.Megathread),
			lastEp,
		})
	}

	fmt.Println(renderTable(
		[]string{"ID", "Name", "Type", "Enabled", "Megathread", "Last Ep"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
	return nil
}

func runSetup() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Printf("database ready at %s\n", a.cfg.Database.Path)
	return nil
}

func flag(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, len(args))
	for i, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid show id %q", arg)
		}
		ids[i] = id
	}
	return ids, nil
}
