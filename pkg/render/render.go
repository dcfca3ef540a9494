// Package render formats the post titles and bodies submitted to the
// platform, substituting show and episode placeholders into configured
// templates.
package render

import (
	"fmt"
	"strings"

	"github.com/wjs018/rikka/internal/store"
)

// discussionLines is the row count of the discussion-link table; episodes
// beyond discussionLines*discussionCols are clipped to the most recent.
const (
	discussionLines = 13
	discussionCols  = 4
)

// Templates holds the configured template strings.
type Templates struct {
	PostTitle             string
	PostTitleWithEn       string
	PostBody              string
	MegathreadTitle       string
	MegathreadTitleWithEn string
	MegathreadBody        string
	MegathreadComment     string
	Formats               map[string]string
}

// Renderer produces platform-ready text from templates.
type Renderer struct {
	t Templates
}

// New creates a renderer over the given templates.
func New(t Templates) *Renderer {
	if t.Formats == nil {
		t.Formats = make(map[string]string)
	}
	return &Renderer{t: t}
}

// Context carries the data a render call may substitute.
type Context struct {
	Show     *store.Show
	Episode  int
	Episodes []store.Episode
	Aliases  []string
}

// PostTitle renders the standalone-post title, preferring the english-name
// variant and falling back to the plain variant (then hard truncation) to
// stay under maxLen.
func (r *Renderer) PostTitle(c Context, maxLen int) string {
	return r.title(c, r.t.PostTitle, r.t.PostTitleWithEn, maxLen)
}

// MegathreadTitle renders the megathread title with the same variant and
// truncation rules as PostTitle.
func (r *Renderer) MegathreadTitle(c Context, maxLen int) string {
	return r.title(c, r.t.MegathreadTitle, r.t.MegathreadTitleWithEn, maxLen)
}

func (r *Renderer) title(c Context, plain, withEn string, maxLen int) string {
	tpl := plain
	if c.Show.NameEn != "" && withEn != "" {
		tpl = withEn
	}

	title := r.Render(tpl, c)
	if maxLen <= 0 || len([]rune(title)) <= maxLen {
		return title
	}

	// Too long: drop the english variant first, then truncate outright.
	title = r.Render(plain, c)
	runes := []rune(title)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	return strings.TrimSpace(string(runes))
}

// PostBody renders the standalone-post body.
func (r *Renderer) PostBody(c Context) string {
	return r.Render(r.t.PostBody, c)
}

// MegathreadBody renders the megathread root-post body.
func (r *Renderer) MegathreadBody(c Context) string {
	return r.Render(r.t.MegathreadBody, c)
}

// MegathreadComment renders the per-episode comment placed in a megathread.
func (r *Renderer) MegathreadComment(c Context) string {
	return r.Render(r.t.MegathreadComment, c)
}

// Render substitutes placeholders into text. Unknown placeholders are left
// untouched rather than failing the render.
func (r *Renderer) Render(text string, c Context) string {
	if strings.Contains(text, "{spoiler}") {
		text = strings.ReplaceAll(text, "{spoiler}", r.spoiler(c.Show))
	}
	if strings.Contains(text, "{discussions}") {
		text = strings.ReplaceAll(text, "{discussions}", r.discussions(c.Episodes))
	}
	if strings.Contains(text, "{aliases}") {
		text = strings.ReplaceAll(text, "{aliases}", r.aliases(c.Aliases))
	}

	text = strings.NewReplacer(
		"{show_name}", c.Show.Name,
		"{show_name_en}", c.Show.NameEn,
		"{episode}", fmt.Sprintf("%d", c.Episode),
	).Replace(text)

	return strings.TrimSpace(text)
}

func (r *Renderer) spoiler(show *store.Show) string {
	if show.HasSource {
		return r.t.Formats["spoiler"]
	}
	return ""
}

func (r *Renderer) aliases(aliases []string) string {
	if len(aliases) == 0 {
		return ""
	}
	tpl := r.t.Formats["aliases"]
	return strings.ReplaceAll(tpl, "{aliases}", strings.Join(aliases, ", "))
}

// discussions builds the rolling link table: up to 4 columns of 13 rows,
// filled column-major with the most recent episodes.
func (r *Renderer) discussions(episodes []store.Episode) string {
	if len(episodes) == 0 {
		return r.t.Formats["discussion_none"]
	}

	if max := discussionLines * discussionCols; len(episodes) > max {
		episodes = episodes[len(episodes)-max:]
	}

	cells := make([]string, len(episodes))
	for i, ep := range episodes {
		link := ep.Link
		if link == "" {
			link = "http://localhost"
		}
		cell := strings.NewReplacer(
			"{episode}", fmt.Sprintf("%d", ep.Number),
			"{link}", link,
		).Replace(r.t.Formats["discussion"])
		cells[i] = cell
	}

	numCols := 1 + (len(cells)-1)/discussionLines
	head := strings.Repeat(r.t.Formats["discussion_header"]+"|", numCols)
	head = strings.TrimSuffix(head, "|")
	align := strings.Repeat(r.t.Formats["discussion_align"]+"|", numCols)
	align = strings.TrimSuffix(align, "|")

	var rows []string
	for i := 0; i < discussionLines; i++ {
		var row []string
		for j := i; j < len(cells); j += discussionLines {
			row = append(row, cells[j])
		}
		if len(row) > 0 {
			rows = append(rows, strings.Join(row, "|"))
		}
	}

	return head + "\n" + align + "\n" + strings.Join(rows, "\n")
}
