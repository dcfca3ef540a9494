package lemmy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLKinds(t *testing.T) {
	assert.True(t, IsPostURL("https://lemmy.example/post/123"))
	assert.False(t, IsCommentURL("https://lemmy.example/post/123"))
	assert.True(t, IsCommentURL("https://lemmy.example/comment/456"))
	assert.False(t, IsPostURL("https://lemmy.example/comment/456"))
	assert.False(t, IsPostURL("not-a-url"))
}

func TestShortlinkHostOverride(t *testing.T) {
	c := New("lemmy.example", "user", "pass", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "https://lemmy.example/post/5", c.ShortlinkFromID("anime", 5))
	assert.Equal(t, "https://other.example/post/5", c.ShortlinkFromID("anime@other.example", 5))
	assert.Equal(t, "https://other.example/comment/9", c.CommentlinkFromID("anime@other.example", 9))
}

func TestParsePublished(t *testing.T) {
	got, err := parsePublished("2026-01-15T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC), got)

	// Some instances omit the zone designator.
	got, err = parsePublished("2026-01-15T10:30:00.123456")
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())

	_, err = parsePublished("yesterday")
	require.Error(t, err)
}

func testServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL, "bot", "secret", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func loginHandler(mux *http.ServeMux) {
	mux.HandleFunc("/api/v3/user/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"jwt": "token123"})
	})
}

func TestCreatePost(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/api/v3/community", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anime", r.URL.Query().Get("name"))
		fmt.Fprint(w, `{"community_view":{"community":{"id":42}}}`)
	})
	mux.HandleFunc("/api/v3/post", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token123", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(42), payload["community_id"])
		assert.Equal(t, "My Title", payload["name"])
		assert.Equal(t, "https://img.example/banner.jpg", payload["url"])

		fmt.Fprint(w, `{"post_view":{"post":{"id":77}}}`)
	})

	c := testServer(t, mux)
	url, err := c.CreatePost(context.Background(), "anime", "My Title", "body", false, "https://img.example/banner.jpg")
	require.NoError(t, err)
	assert.Contains(t, url, "/post/77")
}

func TestEditPostKeepsImageByDefault(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/api/v3/post", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(31), payload["post_id"])
		_, hasURL := payload["url"]
		assert.False(t, hasURL)

		fmt.Fprint(w, `{"post_view":{"post":{"id":31}}}`)
	})

	c := testServer(t, mux)
	err := c.EditPost(context.Background(), "https://lemmy.example/post/31", "new body", "ignored.jpg", false)
	require.NoError(t, err)
}

func TestGetEngagement(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/api/v3/post", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"post_view":{"post":{"id":10},"counts":{"upvotes":15,"comments":4}}}`)
	})
	mux.HandleFunc("/api/v3/comment", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"comment_view":{"comment":{"id":11},"counts":{"upvotes":3,"child_count":2}}}`)
	})

	c := testServer(t, mux)

	eng, err := c.GetEngagement(context.Background(), "https://lemmy.example/post/10")
	require.NoError(t, err)
	assert.Equal(t, Engagement{Upvotes: 15, Comments: 4}, eng)

	eng, err = c.GetEngagement(context.Background(), "https://lemmy.example/comment/11")
	require.NoError(t, err)
	assert.Equal(t, Engagement{Upvotes: 3, Comments: 2}, eng)

	_, err = c.GetEngagement(context.Background(), "https://lemmy.example/user/11")
	require.Error(t, err)
}

func TestCreateCommentReturnsCommentURL(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/api/v3/comment", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(50), payload["post_id"])
		fmt.Fprint(w, `{"comment_view":{"comment":{"id":99}}}`)
	})

	c := testServer(t, mux)
	url, err := c.CreateComment(context.Background(), "anime", "https://lemmy.example/post/50", "episode comment")
	require.NoError(t, err)
	assert.Contains(t, url, "/comment/99")
}
