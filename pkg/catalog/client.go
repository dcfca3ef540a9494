package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wjs018/rikka/pkg/ratelimit"
)

// DefaultURL is the AniList GraphQL endpoint.
const DefaultURL = "https://graphql.anilist.co"

const perPage = 25

// ErrMalformed marks a response body that could not be decoded. Unlike
// transient failures it aborts a paged fetch instead of skipping forward.
var ErrMalformed = errors.New("malformed catalog response")

const airingQuery = `
query ($page: Int, $start: Int, $end: Int) {
  Page(page: $page, perPage: 25) {
    pageInfo {
      hasNextPage
    }
    airingSchedules(airingAt_greater: $start, airingAt_lesser: $end, sort: TIME) {
      airingAt
      episode
      media {
        id
        idMal
        title {
          romaji
          english
        }
        format
        countryOfOrigin
        source
        synonyms
        isAdult
        status
        duration
        bannerImage
        coverImage {
          extraLarge
        }
        externalLinks {
          site
          url
          language
          type
        }
      }
    }
  }
}
`

const showsQuery = `
query ($page: Int, $ids: [Int]) {
  Page(page: $page, perPage: 25) {
    pageInfo {
      hasNextPage
    }
    media(id_in: $ids) {
      id
      idMal
      title {
        romaji
        english
      }
      format
      countryOfOrigin
      source
      synonyms
      isAdult
      status
      duration
      bannerImage
      coverImage {
        extraLarge
      }
      externalLinks {
        site
        url
        language
        type
      }
    }
  }
}
`

// Client fetches show and airing-schedule records from the catalog API.
// All outbound calls are gated through the rate limiter.
type Client struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	url     string
	logger  *slog.Logger
}

// NewClient creates a catalog client. An empty url selects the public
// endpoint.
func NewClient(url string, limiter *ratelimit.Limiter, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	if limiter == nil {
		limiter = ratelimit.New(60)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:  &http.Client{Timeout: 5 * time.Second},
		limiter: limiter,
		url:     url,
		logger:  logger,
	}
}

type pageEnvelope struct {
	Data struct {
		Page struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
			AiringSchedules []scheduleRecord `json:"airingSchedules"`
			Media           []Media          `json:"media"`
		} `json:"Page"`
	} `json:"data"`
}

type scheduleRecord struct {
	AiringAt int64 `json:"airingAt"`
	Episode  int   `json:"episode"`
	Media    Media `json:"media"`
}

// FetchAiringSchedule fetches all schedule entries with an airing time inside
// (start, end). Pages that keep failing transiently are skipped so the fetch
// always moves forward; a persistently malformed payload aborts the loop and
// returns whatever was accumulated.
func (c *Client) FetchAiringSchedule(ctx context.Context, start, end int64) ([]ScheduleEntry, error) {
	var entries []ScheduleEntry
	page := 1
	skipped := 0

	for {
		vars := map[string]any{"page": page, "start": start, "end": end}

		var resp pageEnvelope
		err := withRetry(maxAttempts, func() error {
			return c.query(ctx, airingQuery, vars, &resp)
		})
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				c.logger.Error("catalog payload malformed, aborting fetch", "page", page, "error", err)
				return entries, err
			}

			c.logger.Warn("skipping airing-schedule page after retries", "page", page, "error", err)
			page++
			skipped++
			if skipped >= maxAttempts {
				return entries, fmt.Errorf("aborting after %d consecutive skipped pages: %w", skipped, err)
			}
			continue
		}
		skipped = 0

		for _, rec := range resp.Data.Page.AiringSchedules {
			entries = append(entries, ScheduleEntry{
				MediaID:  rec.Media.ID,
				Episode:  rec.Episode,
				AiringAt: rec.AiringAt,
				Media:    rec.Media,
			})
		}

		if !resp.Data.Page.PageInfo.HasNextPage {
			break
		}
		page++
	}

	return entries, nil
}

// FetchShowsByIDs fetches the raw show records for the given catalog ids,
// with the same paging and retry discipline as the airing schedule.
func (c *Client) FetchShowsByIDs(ctx context.Context, ids []int) ([]Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var shows []Media
	page := 1
	skipped := 0

	for {
		vars := map[string]any{"page": page, "ids": ids}

		var resp pageEnvelope
		err := withRetry(maxAttempts, func() error {
			return c.query(ctx, showsQuery, vars, &resp)
		})
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				c.logger.Error("catalog payload malformed, aborting fetch", "page", page, "error", err)
				return shows, err
			}

			c.logger.Warn("skipping shows page after retries", "page", page, "error", err)
			page++
			skipped++
			if skipped >= maxAttempts {
				return shows, fmt.Errorf("aborting after %d consecutive skipped pages: %w", skipped, err)
			}
			continue
		}
		skipped = 0

		shows = append(shows, resp.Data.Page.Media...)

		if !resp.Data.Page.PageInfo.HasNextPage {
			break
		}
		page++
	}

	return shows, nil
}

func (c *Client) query(ctx context.Context, query string, vars map[string]any, out *pageEnvelope) error {
	c.limiter.Wait()

	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return fmt.Errorf("marshal catalog query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create catalog request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog status %d", resp.StatusCode)
	}

	*out = pageEnvelope{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode catalog response: %w", ErrMalformed)
	}
	return nil
}
