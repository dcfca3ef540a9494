package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Options    OptionsConfig    `yaml:"options"`
	Lemmy      LemmyConfig      `yaml:"lemmy"`
	Post       PostConfig       `yaml:"post"`
	Megathread MegathreadConfig `yaml:"megathread"`
	Feeds      []FeedItem       `yaml:"feeds"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OptionsConfig holds the thresholds and switches driving the bot.
type OptionsConfig struct {
	RateLimit            int      `yaml:"ratelimit"`
	Days                 int      `yaml:"days"`
	Submit               bool     `yaml:"submit"`
	ShowDiscovery        bool     `yaml:"show_discovery"`
	NewShowTypes         []string `yaml:"new_show_types"`
	Countries            []string `yaml:"countries"`
	MinUpvotes           int      `yaml:"min_upvotes"`
	MinComments          int      `yaml:"min_comments"`
	EngagementLagHours   int      `yaml:"engagement_lag"`
	DisableInactive      bool     `yaml:"disable_inactive"`
	EpisodeRetentionDays int      `yaml:"episode_retention"`
	AttachImages         bool     `yaml:"attach_images"`
}

// EngagementLag returns how long engagement needs to stabilize before it is
// trusted.
func (o OptionsConfig) EngagementLag() time.Duration {
	return time.Duration(o.EngagementLagHours) * time.Hour
}

// EpisodeRetention returns how long ignored episodes are kept around.
func (o OptionsConfig) EpisodeRetention() time.Duration {
	return time.Duration(o.EpisodeRetentionDays) * 24 * time.Hour
}

// LemmyConfig identifies the instance, community, and account to post with.
type LemmyConfig struct {
	Instance  string `yaml:"instance"`
	Community string `yaml:"community"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// PostConfig holds standalone-post templates.
type PostConfig struct {
	Title       string            `yaml:"title"`
	TitleWithEn string            `yaml:"title_with_en"`
	Body        string            `yaml:"body"`
	Formats     map[string]string `yaml:"formats"`
}

// MegathreadConfig holds megathread templates and the rollover capacity.
type MegathreadConfig struct {
	Episodes    int    `yaml:"episodes"`
	Title       string `yaml:"title"`
	TitleWithEn string `yaml:"title_with_en"`
	Body        string `yaml:"body"`
	Comment     string `yaml:"comment"`
}

// FeedItem is a single announcement feed entry.
type FeedItem struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./rikka.db"},
		Options: OptionsConfig{
			RateLimit:            60,
			Days:                 7,
			Submit:               true,
			ShowDiscovery:        false,
			NewShowTypes:         []string{"TV", "MOVIE", "OVA", "ONA"},
			Countries:            []string{"JP"},
			MinUpvotes:           1,
			MinComments:          0,
			EngagementLagHours:   24,
			DisableInactive:      false,
			EpisodeRetentionDays: 30,
		},
		Post: PostConfig{
			Title:       "{show_name} - Episode {episode} discussion",
			TitleWithEn: "{show_name} • {show_name_en} - Episode {episode} discussion",
			Body:        "*Episode {episode}*\n\n{aliases}\n\n{spoiler}\n\n---\n\n{discussions}",
			Formats: map[string]string{
				"spoiler":           "**Reminder:** Please do not discuss plot points not yet seen in the show. Encourage others to read the source material rather than confirming or denying theories.",
				"discussion":        "[Episode {episode}]({link})",
				"discussion_header": "Episode Discussions",
				"discussion_align":  ":-:",
				"discussion_none":   "*No discussions yet*",
				"aliases":           "*This show is also known as: {aliases}*",
			},
		},
		Megathread: MegathreadConfig{
			Episodes:    12,
			Title:       "{show_name} - Episode discussion megathread",
			TitleWithEn: "{show_name} • {show_name_en} - Episode discussion megathread",
			Body:        "Rolling discussion thread for episodes of *{show_name}*. Discussion of each episode can be found in the comments below.\n\n{aliases}\n\n{spoiler}",
			Comment:     "**Episode {episode} discussion**\n\n{spoiler}",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

type envOverrides struct {
	DBPath        string `env:"RIKKA_DB_PATH"`
	LemmyInstance string `env:"RIKKA_LEMMY_INSTANCE"`
	LemmyUsername string `env:"RIKKA_LEMMY_USERNAME"`
	LemmyPassword string `env:"RIKKA_LEMMY_PASSWORD"`
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env overrides: %w", err)
	}

	if o.DBPath != "" {
		cfg.Database.Path = o.DBPath
	}
	if o.LemmyInstance != "" {
		cfg.Lemmy.Instance = o.LemmyInstance
	}
	if o.LemmyUsername != "" {
		cfg.Lemmy.Username = o.LemmyUsername
	}
	if o.LemmyPassword != "" {
		cfg.Lemmy.Password = o.LemmyPassword
	}
	return nil
}

// Validate reports the first problem that would keep the bot from running.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("database path missing")
	case c.Lemmy.Instance == "":
		return fmt.Errorf("lemmy instance missing")
	case c.Lemmy.Community == "":
		return fmt.Errorf("lemmy community missing")
	case c.Lemmy.Username == "":
		return fmt.Errorf("lemmy username missing")
	case c.Lemmy.Password == "":
		return fmt.Errorf("lemmy password missing")
	case c.Post.Title == "" || c.Post.Body == "":
		return fmt.Errorf("post templates missing")
	case c.Megathread.Title == "" || c.Megathread.Body == "" || c.Megathread.Comment == "":
		return fmt.Errorf("megathread templates missing")
	}

	if c.Options.RateLimit < 0 {
		return fmt.Errorf("ratelimit cannot be negative")
	}
	if c.Megathread.Episodes <= 0 {
		return fmt.Errorf("megathread episode capacity must be positive")
	}
	return nil
}
