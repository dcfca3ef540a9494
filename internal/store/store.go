package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store is the persistence interface.
type Store interface {
	UpsertShow(ctx context.Context, show *Show) error
	GetShow(ctx context.Context, id int) (*Show, error)
	ListShows(ctx context.Context, filter ShowFilter) ([]Show, error)
	SetShowEnabled(ctx context.Context, id int, enabled, pin bool) error
	SetMegathreadStatus(ctx context.Context, id int, enabled bool) error
	RemoveShow(ctx context.Context, id int) error

	AddAlias(ctx context.Context, showID int, alias string) error
	GetAliases(ctx context.Context, showID int) ([]string, error)

	AddEpisode(ctx context.Context, ep *Episode) error
	GetEpisode(ctx context.Context, showID, number int) (*Episode, error)
	GetLatestEpisode(ctx context.Context, showID int) (*Episode, error)
	ListEpisodes(ctx context.Context, showID int) ([]Episode, error)

	AddUpcomingEpisode(ctx context.Context, ep *UpcomingEpisode) error
	GetUpcomingEpisode(ctx context.Context, showID, number int) (*UpcomingEpisode, error)
	GetAiredEpisodes(ctx context.Context, now int64) ([]UpcomingEpisode, error)
	RemoveUpcomingEpisode(ctx context.Context, showID, number int) error
	RemoveUpcomingEpisodes(ctx context.Context, showID int) error

	AddIgnoredEpisode(ctx context.Context, ep *UpcomingEpisode) error
	GetIgnoredEpisode(ctx context.Context, showID, number int) (*UpcomingEpisode, error)
	RemoveIgnoredEpisode(ctx context.Context, showID, number int) error
	PruneIgnoredEpisodes(ctx context.Context, cutoff int64) (int64, error)

	GetLatestMegathread(ctx context.Context, showID int) (*Megathread, error)
	AddMegathread(ctx context.Context, mt *Megathread) error
	IncrementMegathreadEpisodes(ctx context.Context, mt *Megathread) error

	UpsertExternalLink(ctx context.Context, link *ExternalLink) error
	GetExternalLinks(ctx context.Context, showID int) ([]ExternalLink, error)
	UpsertImage(ctx context.Context, img *Image) error
	GetImage(ctx context.Context, showID int, imageType string) (*Image, error)

	Close() error
}

// ShowFilter selects shows by enabled state.
type ShowFilter string

const (
	ShowsAll      ShowFilter = "all"
	ShowsEnabled  ShowFilter = "enabled"
	ShowsDisabled ShowFilter = "disabled"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertShow inserts the show or refreshes an existing row's mutable fields.
// Names are sanitized, an english name matching the primary name is dropped,
// and the enabled flag is left alone for operator-pinned shows.
func (s *SQLiteStore) UpsertShow(ctx context.Context, show *Show) error {
	show.Name = SanitizeName(show.Name)
	show.NameEn = SanitizeName(show.NameEn)
	if strings.EqualFold(show.NameEn, show.Name) {
		show.NameEn = ""
	}

	existing, err := s.GetShow(ctx, show.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO shows (id, id_mal, name, name_en, type, has_source, is_nsfw, megathread, enabled, pinned)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, show.ID, show.IDMal, show.Name, show.NameEn, show.Type,
			show.HasSource, show.IsNSFW, show.Megathread, show.Enabled, show.Pinned)
		if err != nil {
			return fmt.Errorf("insert show %d: %w", show.ID, err)
		}
		return nil
	}

	enabled := show.Enabled
	if existing.Pinned {
		enabled = existing.Enabled
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE shows SET id_mal = ?, name = ?, name_en = ?, type = ?, has_source = ?, is_nsfw = ?, enabled = ?
		WHERE id = ?
	`, show.IDMal, show.Name, show.NameEn, show.Type, show.HasSource, show.IsNSFW, enabled, show.ID)
	if err != nil {
		return fmt.Errorf("update show %d: %w", show.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetShow(ctx context.Context, id int) (*Show, error) {
	var show Show
	err := s.db.GetContext(ctx, &show, "SELECT * FROM shows WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get show %d: %w", id, err)
	}
	return &show, nil
}

func (s *SQLiteStore) ListShows(ctx context.Context, filter ShowFilter) ([]Show, error) {
	query := "SELECT * FROM shows"
	var args []any

	switch filter {
	case ShowsEnabled:
		query += " WHERE enabled = 1"
	case ShowsDisabled:
		query += " WHERE enabled = 0"
	case ShowsAll, "":
	default:
		return nil, fmt.Errorf("unknown show filter %q", filter)
	}

	query += " ORDER BY id"

	var shows []Show
	if err := s.db.SelectContext(ctx, &shows, query, args...); err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	return shows, nil
}

// SetShowEnabled flips a show's tracking state. When pin is set the state is
// protected from being refreshed by catalog syncs.
func (s *SQLiteStore) SetShowEnabled(ctx context.Context, id int, enabled, pin bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE shows SET enabled = ?, pinned = ? WHERE id = ?", enabled, pin, id)
	if err != nil {
		return fmt.Errorf("set show %d enabled=%t: %w", id, enabled, err)
	}
	return nil
}

func (s *SQLiteStore) SetMegathreadStatus(ctx context.Context, id int, enabled bool) error {
	_, err := s.db.ExecContext(ctx, "UPDATE shows SET megathread = ? WHERE id = ?", enabled, id)
	if err != nil {
		return fmt.Errorf("set show %d megathread=%t: %w", id, enabled, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveShow(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM shows WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove show %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) AddAlias(ctx context.Context, showID int, alias string) error {
	if alias == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO aliases (show_id, alias) VALUES (?, ?)", showID, alias)
	if err != nil {
		return fmt.Errorf("add alias for show %d: %w", showID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAliases(ctx context.Context, showID int) ([]string, error) {
	var aliases []string
	err := s.db.SelectContext(ctx, &aliases,
		"SELECT alias FROM aliases WHERE show_id = ? ORDER BY alias", showID)
	if err != nil {
		return nil, fmt.Errorf("get aliases for show %d: %w", showID, err)
	}
	return aliases, nil
}

// AddEpisode records a posted episode. Re-insertion of the same
// (show, episode) pair replaces the previous row.
func (s *SQLiteStore) AddEpisode(ctx context.Context, ep *Episode) error {
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (show_id, episode, link, can_edit, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ep.ShowID, ep.Number, ep.Link, ep.CanEdit, ep.CreatedAt)
	if err != nil {
		return fmt.Errorf("add episode %d/%d: %w", ep.ShowID, ep.Number, err)
	}
	return nil
}

func (s *SQLiteStore) GetEpisode(ctx context.Context, showID, number int) (*Episode, error) {
	var ep Episode
	err := s.db.GetContext(ctx, &ep,
		"SELECT * FROM episodes WHERE show_id = ? AND episode = ?", showID, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %d/%d: %w", showID, number, err)
	}
	return &ep, nil
}

func (s *SQLiteStore) GetLatestEpisode(ctx context.Context, showID int) (*Episode, error) {
	var ep Episode
	err := s.db.GetContext(ctx, &ep,
		"SELECT * FROM episodes WHERE show_id = ? ORDER BY episode DESC LIMIT 1", showID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest episode for show %d: %w", showID, err)
	}
	return &ep, nil
}

func (s *SQLiteStore) ListEpisodes(ctx context.Context, showID int) ([]Episode, error) {
	var eps []Episode
	err := s.db.SelectContext(ctx, &eps,
		"SELECT * FROM episodes WHERE show_id = ? ORDER BY episode", showID)
	if err != nil {
		return nil, fmt.Errorf("list episodes for show %d: %w", showID, err)
	}
	return eps, nil
}

// AddUpcomingEpisode records a scheduled episode. The latest catalog report
// for a (show, episode) pair wins.
func (s *SQLiteStore) AddUpcomingEpisode(ctx context.Context, ep *UpcomingEpisode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upcoming_episodes (show_id, episode, airing_time)
		VALUES (?, ?, ?)
	`, ep.ShowID, ep.Number, ep.AiringTime)
	if err != nil {
		return fmt.Errorf("add upcoming episode %d/%d: %w", ep.ShowID, ep.Number, err)
	}
	return nil
}

func (s *SQLiteStore) GetUpcomingEpisode(ctx context.Context, showID, number int) (*UpcomingEpisode, error) {
	var ep UpcomingEpisode
	err := s.db.GetContext(ctx, &ep,
		"SELECT * FROM upcoming_episodes WHERE show_id = ? AND episode = ?", showID, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upcoming episode %d/%d: %w", showID, number, err)
	}
	return &ep, nil
}

// GetAiredEpisodes returns upcoming episodes whose air instant has passed,
// oldest first. The ordering matters: later episodes in a batch read per-show
// state that earlier ones just wrote.
func (s *SQLiteStore) GetAiredEpisodes(ctx context.Context, now int64) ([]UpcomingEpisode, error) {
	var eps []UpcomingEpisode
	err := s.db.SelectContext(ctx, &eps, `
		SELECT * FROM upcoming_episodes WHERE airing_time <= ? ORDER BY airing_time ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("get aired episodes: %w", err)
	}
	return eps, nil
}

func (s *SQLiteStore) RemoveUpcomingEpisode(ctx context.Context, showID, number int) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM upcoming_episodes WHERE show_id = ? AND episode = ?", showID, number)
	if err != nil {
		return fmt.Errorf("remove upcoming episode %d/%d: %w", showID, number, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveUpcomingEpisodes(ctx context.Context, showID int) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM upcoming_episodes WHERE show_id = ?", showID)
	if err != nil {
		return fmt.Errorf("remove upcoming episodes for show %d: %w", showID, err)
	}
	return nil
}

func (s *SQLiteStore) AddIgnoredEpisode(ctx context.Context, ep *UpcomingEpisode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ignored_episodes (show_id, episode, airing_time)
		VALUES (?, ?, ?)
	`, ep.ShowID, ep.Number, ep.AiringTime)
	if err != nil {
		return fmt.Errorf("add ignored episode %d/%d: %w", ep.ShowID, ep.Number, err)
	}
	return nil
}

func (s *SQLiteStore) GetIgnoredEpisode(ctx context.Context, showID, number int) (*UpcomingEpisode, error) {
	var ep UpcomingEpisode
	err := s.db.GetContext(ctx, &ep,
		"SELECT * FROM ignored_episodes WHERE show_id = ? AND episode = ?", showID, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ignored episode %d/%d: %w", showID, number, err)
	}
	return &ep, nil
}

func (s *SQLiteStore) RemoveIgnoredEpisode(ctx context.Context, showID, number int) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM ignored_episodes WHERE show_id = ? AND episode = ?", showID, number)
	if err != nil {
		return fmt.Errorf("remove ignored episode %d/%d: %w", showID, number, err)
	}
	return nil
}

// PruneIgnoredEpisodes deletes ignored episodes that aired before cutoff and
// reports how many were removed.
func (s *SQLiteStore) PruneIgnoredEpisodes(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM ignored_episodes WHERE airing_time < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune ignored episodes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) GetLatestMegathread(ctx context.Context, showID int) (*Megathread, error) {
	var mt Megathread
	err := s.db.GetContext(ctx, &mt,
		"SELECT * FROM megathreads WHERE show_id = ? ORDER BY thread_num DESC LIMIT 1", showID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest megathread for show %d: %w", showID, err)
	}
	return &mt, nil
}

func (s *SQLiteStore) AddMegathread(ctx context.Context, mt *Megathread) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO megathreads (show_id, thread_num, post_url, num_episodes)
		VALUES (?, ?, ?, ?)
	`, mt.ShowID, mt.ThreadNum, mt.PostURL, mt.NumEpisodes)
	if err != nil {
		return fmt.Errorf("add megathread %d/%d: %w", mt.ShowID, mt.ThreadNum, err)
	}
	return nil
}

// IncrementMegathreadEpisodes bumps the thread's episode count by one, in the
// database and on the passed record.
func (s *SQLiteStore) IncrementMegathreadEpisodes(ctx context.Context, mt *Megathread) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE megathreads SET num_episodes = num_episodes + 1
		WHERE show_id = ? AND thread_num = ?
	`, mt.ShowID, mt.ThreadNum)
	if err != nil {
		return fmt.Errorf("increment megathread %d/%d: %w", mt.ShowID, mt.ThreadNum, err)
	}
	mt.NumEpisodes++
	return nil
}

func (s *SQLiteStore) UpsertExternalLink(ctx context.Context, link *ExternalLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO external_links (show_id, link_type, site, language, url)
		VALUES (?, ?, ?, ?, ?)
	`, link.ShowID, link.LinkType, link.Site, link.Language, link.URL)
	if err != nil {
		return fmt.Errorf("upsert external link for show %d: %w", link.ShowID, err)
	}
	return nil
}

func (s *SQLiteStore) GetExternalLinks(ctx context.Context, showID int) ([]ExternalLink, error) {
	var links []ExternalLink
	err := s.db.SelectContext(ctx, &links,
		"SELECT * FROM external_links WHERE show_id = ? ORDER BY link_type, site", showID)
	if err != nil {
		return nil, fmt.Errorf("get external links for show %d: %w", showID, err)
	}
	return links, nil
}

func (s *SQLiteStore) UpsertImage(ctx context.Context, img *Image) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO images (show_id, image_type, image_link) VALUES (?, ?, ?)
	`, img.ShowID, img.Type, img.Link)
	if err != nil {
		return fmt.Errorf("upsert image for show %d: %w", img.ShowID, err)
	}
	return nil
}

func (s *SQLiteStore) GetImage(ctx context.Context, showID int, imageType string) (*Image, error) {
	var img Image
	err := s.db.GetContext(ctx, &img,
		"SELECT * FROM images WHERE show_id = ? AND image_type = ? LIMIT 1", showID, imageType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s image for show %d: %w", imageType, showID, err)
	}
	return &img, nil
}
