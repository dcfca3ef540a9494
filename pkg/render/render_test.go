package render

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjs018/rikka/internal/store"
)

func testTemplates() Templates {
	return Templates{
		PostTitle:             "{show_name} - Episode {episode} discussion",
		PostTitleWithEn:       "{show_name} • {show_name_en} - Episode {episode} discussion",
		PostBody:              "*Episode {episode}*\n\n{aliases}\n\n{spoiler}\n\n{discussions}",
		MegathreadTitle:       "{show_name} - Megathread",
		MegathreadTitleWithEn: "{show_name} • {show_name_en} - Megathread",
		MegathreadBody:        "Thread for {show_name}\n\n{spoiler}",
		MegathreadComment:     "**Episode {episode} discussion**",
		Formats: map[string]string{
			"spoiler":           "No source spoilers please.",
			"discussion":        "[Episode {episode}]({link})",
			"discussion_header": "Episode Discussions",
			"discussion_align":  ":-:",
			"discussion_none":   "*No discussions yet*",
			"aliases":           "*Also known as: {aliases}*",
		},
	}
}

func show(name, nameEn string) *store.Show {
	return &store.Show{ID: 1, Name: name, NameEn: nameEn, HasSource: true}
}

func TestPostTitleUsesEnglishVariant(t *testing.T) {
	r := New(testTemplates())

	got := r.PostTitle(Context{Show: show("Yuru Camp", "Laid-Back Camp"), Episode: 3}, 200)
	assert.Equal(t, "Yuru Camp • Laid-Back Camp - Episode 3 discussion", got)

	got = r.PostTitle(Context{Show: show("Yuru Camp", ""), Episode: 3}, 200)
	assert.Equal(t, "Yuru Camp - Episode 3 discussion", got)
}

func TestTitleDropsEnglishVariantWhenTooLong(t *testing.T) {
	r := New(testTemplates())
	long := strings.Repeat("x", 120)

	got := r.PostTitle(Context{Show: show("Short", long), Episode: 1}, 60)
	assert.NotContains(t, got, long)
	assert.Contains(t, got, "Short")
}

func TestTitleHardTruncation(t *testing.T) {
	r := New(testTemplates())
	long := strings.Repeat("y", 300)

	got := r.PostTitle(Context{Show: show(long, ""), Episode: 1}, 200)
	assert.Len(t, []rune(got), 200)
}

func TestPostBodyPlaceholders(t *testing.T) {
	r := New(testTemplates())
	c := Context{
		Show:    show("Yuru Camp", ""),
		Episode: 2,
		Aliases: []string{"Yurucamp", "Laid-Back Camp"},
	}

	body := r.PostBody(c)
	assert.Contains(t, body, "*Episode 2*")
	assert.Contains(t, body, "*Also known as: Yurucamp, Laid-Back Camp*")
	assert.Contains(t, body, "No source spoilers please.")
	assert.Contains(t, body, "*No discussions yet*")
}

func TestSpoilerOnlyForAdaptations(t *testing.T) {
	r := New(testTemplates())
	original := &store.Show{ID: 1, Name: "Anime Original", HasSource: false}

	body := r.PostBody(Context{Show: original, Episode: 1})
	assert.NotContains(t, body, "No source spoilers")
}

func TestDiscussionTableSingleColumn(t *testing.T) {
	r := New(testTemplates())
	c := Context{
		Show:    show("Foo", ""),
		Episode: 3,
		Episodes: []store.Episode{
			{ShowID: 1, Number: 1, Link: "https://l.example/post/1"},
			{ShowID: 1, Number: 2, Link: ""},
		},
	}

	body := r.PostBody(c)
	lines := strings.Split(body, "\n")

	i := indexOf(t, lines, "Episode Discussions")
	assert.Equal(t, ":-:", lines[i+1])
	assert.Equal(t, "[Episode 1](https://l.example/post/1)", lines[i+2])
	assert.Equal(t, "[Episode 2](http://localhost)", lines[i+3])
}

func TestDiscussionTableColumnMajor(t *testing.T) {
	// 14 episodes: 13 in the first column, 1 in the second.
	var eps []store.Episode
	for i := 1; i <= 14; i++ {
		eps = append(eps, store.Episode{ShowID: 1, Number: i, Link: fmt.Sprintf("https://l.example/post/%d", i)})
	}

	table := New(testTemplates()).Render("{discussions}", Context{Show: show("Foo", ""), Episodes: eps})
	lines := strings.Split(table, "\n")
	require.Greater(t, len(lines), 3)

	assert.Equal(t, "Episode Discussions|Episode Discussions", lines[0])
	assert.Equal(t, ":-:|:-:", lines[1])
	// First row holds episodes 1 and 14.
	assert.Equal(t, "[Episode 1](https://l.example/post/1)|[Episode 14](https://l.example/post/14)", lines[2])
	// Second row holds only episode 2.
	assert.Equal(t, "[Episode 2](https://l.example/post/2)", lines[3])
}

func TestDiscussionTableClipsToCapacity(t *testing.T) {
	var eps []store.Episode
	for i := 1; i <= 60; i++ {
		eps = append(eps, store.Episode{ShowID: 1, Number: i, Link: fmt.Sprintf("https://l.example/post/%d", i)})
	}

	table := New(testTemplates()).Render("{discussions}", Context{Show: show("Foo", ""), Episodes: eps})
	assert.NotContains(t, table, "[Episode 8]")
	assert.Contains(t, table, "[Episode 9]")
	assert.Contains(t, table, "[Episode 60]")
}

func TestMegathreadComment(t *testing.T) {
	r := New(testTemplates())
	got := r.MegathreadComment(Context{Show: show("Foo", ""), Episode: 7})
	assert.Equal(t, "**Episode 7 discussion**", got)
}

func indexOf(t *testing.T, lines []string, want string) int {
	t.Helper()
	for i, l := range lines {
		if l == want {
			return i
		}
	}
	t.Fatalf("line %q not found in %v", want, lines)
	return -1
}
