package catalog

// Media is the raw show record returned by the AniList API.
type Media struct {
	ID              int            `json:"id"`
	IDMal           int            `json:"idMal"`
	Title           MediaTitle     `json:"title"`
	Format          string         `json:"format"`
	CountryOfOrigin string         `json:"countryOfOrigin"`
	Source          string         `json:"source"`
	Synonyms        []string       `json:"synonyms"`
	IsAdult         bool           `json:"isAdult"`
	Status          string         `json:"status"`
	Duration        int            `json:"duration"`
	BannerImage     string         `json:"bannerImage"`
	CoverImage      MediaCover     `json:"coverImage"`
	ExternalLinks   []ExternalLink `json:"externalLinks"`
}

// MediaTitle holds the romaji and english display names.
type MediaTitle struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
}

// MediaCover holds the cover image variants.
type MediaCover struct {
	ExtraLarge string `json:"extraLarge"`
}

// ExternalLink is a streaming/info link attached to a show.
type ExternalLink struct {
	Site     string `json:"site"`
	URL      string `json:"url"`
	Language string `json:"language"`
	Type     string `json:"type"`
}

// HasSource reports whether the show adapts existing source material.
func (m Media) HasSource() bool {
	return m.Source != "" && m.Source != "ORIGINAL"
}

// Airing reports whether the show is still running on the catalog.
func (m Media) Airing() bool {
	return m.Status != "FINISHED" && m.Status != "CANCELLED"
}

// ScheduleEntry is one airing-schedule record: an upcoming episode plus the
// show metadata the API returns alongside it.
type ScheduleEntry struct {
	MediaID  int
	Episode  int
	AiringAt int64
	Media    Media
}

// AirsAt returns the effective air instant: the scheduled start plus the
// episode duration when one is known, so episodes count as aired only once
// they have presumably finished.
func (e ScheduleEntry) AirsAt() int64 {
	if e.Media.Duration > 0 {
		return e.AiringAt + int64(e.Media.Duration)*60
	}
	return e.AiringAt
}
