package store

import (
	"regexp"
	"strings"
	"time"
)

// ShowType is the catalog's content classification for a show.
type ShowType string

const (
	TypeTV      ShowType = "TV"
	TypeTVShort ShowType = "TV_SHORT"
	TypeMovie   ShowType = "MOVIE"
	TypeSpecial ShowType = "SPECIAL"
	TypeOVA     ShowType = "OVA"
	TypeONA     ShowType = "ONA"
	TypeMusic   ShowType = "MUSIC"
	TypeUnknown ShowType = "UNKNOWN"
)

// ParseShowType maps a raw format string onto a known ShowType.
func ParseShowType(s string) ShowType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TV":
		return TypeTV
	case "TV_SHORT":
		return TypeTVShort
	case "MOVIE":
		return TypeMovie
	case "SPECIAL":
		return TypeSpecial
	case "OVA":
		return TypeOVA
	case "ONA":
		return TypeONA
	case "MUSIC":
		return TypeMusic
	}
	return TypeUnknown
}

// Show is a tracked series.
type Show struct {
	ID         int      `db:"id"`
	IDMal      int      `db:"id_mal"`
	Name       string   `db:"name"`
	NameEn     string   `db:"name_en"`
	Type       ShowType `db:"type"`
	HasSource  bool     `db:"has_source"`
	IsNSFW     bool     `db:"is_nsfw"`
	Megathread bool     `db:"megathread"`
	Enabled    bool     `db:"enabled"`
	Pinned     bool     `db:"pinned"`
}

// Episode is a discussion unit that exists on the platform. Its link is a
// post url for standalone threads or a comment url for megathread entries.
// CanEdit=false marks externally created threads the bot must not overwrite.
type Episode struct {
	ShowID    int       `db:"show_id"`
	Number    int       `db:"episode"`
	Link      string    `db:"link"`
	CanEdit   bool      `db:"can_edit"`
	CreatedAt time.Time `db:"created_at"`
}

// UpcomingEpisode is a scheduled-but-not-yet-aired episode. The same shape
// backs ignored episodes (aired while the show was disabled).
type UpcomingEpisode struct {
	ShowID     int   `db:"show_id"`
	Number     int   `db:"episode"`
	AiringTime int64 `db:"airing_time"`
}

// Megathread is a rollup thread collecting episodes as comments. The highest
// thread number for a show is its current megathread.
type Megathread struct {
	ShowID      int    `db:"show_id"`
	ThreadNum   int    `db:"thread_num"`
	PostURL     string `db:"post_url"`
	NumEpisodes int    `db:"num_episodes"`
}

// ExternalLink is a streaming or informational link for a show.
type ExternalLink struct {
	ShowID   int    `db:"show_id"`
	LinkType string `db:"link_type"`
	Site     string `db:"site"`
	Language string `db:"language"`
	URL      string `db:"url"`
}

// Image is a banner or cover image url for a show.
type Image struct {
	ShowID int    `db:"show_id"`
	Type   string `db:"image_type"`
	Link   string `db:"image_link"`
}

var whitespaceRuns = regexp.MustCompile(`\s+`)

// SanitizeName rewrites ampersands as "and" and collapses whitespace runs,
// avoiding title corruption when the platform sanitizes post titles.
func SanitizeName(s string) string {
	s = strings.ReplaceAll(s, "&", " and ")
	return strings.TrimSpace(whitespaceRuns.ReplaceAllString(s, " "))
}
