// Package lemmy is a minimal client for the Lemmy HTTP API covering the
// operations the bot needs: posting, editing, commenting, and reading
// engagement counts back off existing threads.
package lemmy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MaxTitleLen is the platform's post title length limit.
const MaxTitleLen = 200

// Engagement is the measured activity on a post or comment.
type Engagement struct {
	Upvotes  int
	Comments int
}

// Client talks to a single Lemmy instance as a single authenticated user.
type Client struct {
	client      *http.Client
	base        string
	username    string
	password    string
	token       string
	communities map[string]int
	logger      *slog.Logger
}

// New creates a client for the given instance. The instance may be a bare
// host; https is assumed.
func New(instance, username, password string, logger *slog.Logger) *Client {
	if !strings.Contains(instance, "://") {
		instance = "https://" + instance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:      &http.Client{Timeout: 5 * time.Second},
		base:        strings.TrimRight(instance, "/"),
		username:    username,
		password:    password,
		communities: make(map[string]int),
		logger:      logger,
	}
}

// IsPostURL reports whether the url points at a post rather than a comment.
func IsPostURL(u string) bool { return urlKind(u) == "post" }

// IsCommentURL reports whether the url points at a comment.
func IsCommentURL(u string) bool { return urlKind(u) == "comment" }

func urlKind(u string) string {
	parts := strings.Split(strings.TrimRight(u, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

func idFromURL(u string) (int, error) {
	parts := strings.Split(strings.TrimRight(u, "/"), "/")
	id, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, fmt.Errorf("parse id from url %s: %w", u, err)
	}
	return id, nil
}

// ShortlinkFromID builds the canonical post url for a post id. The host is
// the community's home instance when the community name carries one.
func (c *Client) ShortlinkFromID(community string, id int) string {
	return fmt.Sprintf("https://%s/post/%d", c.hostFor(community), id)
}

// CommentlinkFromID builds the canonical comment url for a comment id.
func (c *Client) CommentlinkFromID(community string, id int) string {
	return fmt.Sprintf("https://%s/comment/%d", c.hostFor(community), id)
}

func (c *Client) hostFor(community string) string {
	if i := strings.LastIndex(community, "@"); i >= 0 {
		return community[i+1:]
	}
	return strings.TrimPrefix(strings.TrimPrefix(c.base, "https://"), "http://")
}

func (c *Client) ensureLogin(ctx context.Context) error {
	if c.token != "" {
		return nil
	}

	payload := map[string]any{
		"username_or_email": c.username,
		"password":          c.password,
	}
	var resp struct {
		JWT string `json:"jwt"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v3/user/login", payload, &resp); err != nil {
		return fmt.Errorf("lemmy login: %w", err)
	}
	if resp.JWT == "" {
		return fmt.Errorf("lemmy login: empty token for %s", c.username)
	}
	c.token = resp.JWT
	return nil
}

func (c *Client) communityID(ctx context.Context, name string) (int, error) {
	if id, ok := c.communities[name]; ok {
		return id, nil
	}

	var resp struct {
		CommunityView struct {
			Community struct {
				ID int `json:"id"`
			} `json:"community"`
		} `json:"community_view"`
	}
	path := "/api/v3/community?name=" + url.QueryEscape(name)
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("resolve community %s: %w", name, err)
	}
	if resp.CommunityView.Community.ID == 0 {
		return 0, fmt.Errorf("community %s not found", name)
	}
	c.communities[name] = resp.CommunityView.Community.ID
	return resp.CommunityView.Community.ID, nil
}

// CreatePost submits a new post and returns its canonical url. imageURL, when
// non-empty, is attached as the post link.
func (c *Client) CreatePost(ctx context.Context, community, title, body string, nsfw bool, imageURL string) (string, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return "", err
	}
	id, err := c.communityID(ctx, community)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"community_id": id,
		"name":         title,
		"body":         body,
		"nsfw":         nsfw,
	}
	if imageURL != "" {
		payload["url"] = imageURL
	}

	var resp postResponse
	if err := c.call(ctx, http.MethodPost, "/api/v3/post", payload, &resp); err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	if resp.PostView.Post.ID == 0 {
		return "", fmt.Errorf("create post: empty response")
	}

	link := c.ShortlinkFromID(community, resp.PostView.Post.ID)
	c.logger.Info("post created", "url", link)
	return link, nil
}

// EditPost replaces the body of an existing post. When overwriteImage is set
// the post link is replaced with imageURL as well.
func (c *Client) EditPost(ctx context.Context, postURL, body, imageURL string, overwriteImage bool) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}
	id, err := idFromURL(postURL)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"post_id": id,
		"body":    body,
	}
	if overwriteImage && imageURL != "" {
		payload["url"] = imageURL
	}

	var resp postResponse
	if err := c.call(ctx, http.MethodPut, "/api/v3/post", payload, &resp); err != nil {
		return fmt.Errorf("edit post %s: %w", postURL, err)
	}
	return nil
}

// CreateComment submits a top-level comment under the given post and returns
// the comment's canonical url.
func (c *Client) CreateComment(ctx context.Context, community, postURL, body string) (string, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return "", err
	}
	id, err := idFromURL(postURL)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"post_id": id,
		"content": body,
	}

	var resp commentResponse
	if err := c.call(ctx, http.MethodPost, "/api/v3/comment", payload, &resp); err != nil {
		return "", fmt.Errorf("create comment under %s: %w", postURL, err)
	}
	if resp.CommentView.Comment.ID == 0 {
		return "", fmt.Errorf("create comment: empty response")
	}

	link := c.CommentlinkFromID(community, resp.CommentView.Comment.ID)
	c.logger.Info("comment created", "url", link)
	return link, nil
}

// GetEngagement reads (upvotes, comments) off the post or comment at url.
// For comments the reply count is the child count.
func (c *Client) GetEngagement(ctx context.Context, u string) (Engagement, error) {
	switch {
	case IsPostURL(u):
		resp, err := c.getPost(ctx, u)
		if err != nil {
			return Engagement{}, err
		}
		return Engagement{Upvotes: resp.PostView.Counts.Upvotes, Comments: resp.PostView.Counts.Comments}, nil
	case IsCommentURL(u):
		resp, err := c.getComment(ctx, u)
		if err != nil {
			return Engagement{}, err
		}
		return Engagement{Upvotes: resp.CommentView.Counts.Upvotes, Comments: resp.CommentView.Counts.ChildCount}, nil
	}
	return Engagement{}, fmt.Errorf("url %s is neither post nor comment", u)
}

// GetPublishTime returns when the post or comment at url was published.
func (c *Client) GetPublishTime(ctx context.Context, u string) (time.Time, error) {
	var published string
	switch {
	case IsPostURL(u):
		resp, err := c.getPost(ctx, u)
		if err != nil {
			return time.Time{}, err
		}
		published = resp.PostView.Post.Published
	case IsCommentURL(u):
		resp, err := c.getComment(ctx, u)
		if err != nil {
			return time.Time{}, err
		}
		published = resp.CommentView.Comment.Published
	default:
		return time.Time{}, fmt.Errorf("url %s is neither post nor comment", u)
	}

	return parsePublished(published)
}

func parsePublished(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// Older instances omit the zone designator.
	t, err := time.Parse("2006-01-02T15:04:05.999999", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse publish time %q: %w", s, err)
	}
	return t.UTC(), nil
}

type postResponse struct {
	PostView struct {
		Post struct {
			ID        int    `json:"id"`
			Name      string `json:"name"`
			Body      string `json:"body"`
			Published string `json:"published"`
		} `json:"post"`
		Counts struct {
			Upvotes  int `json:"upvotes"`
			Comments int `json:"comments"`
		} `json:"counts"`
	} `json:"post_view"`
}

type commentResponse struct {
	CommentView struct {
		Comment struct {
			ID        int    `json:"id"`
			Published string `json:"published"`
		} `json:"comment"`
		Counts struct {
			Upvotes    int `json:"upvotes"`
			ChildCount int `json:"child_count"`
		} `json:"counts"`
	} `json:"comment_view"`
}

func (c *Client) getPost(ctx context.Context, u string) (*postResponse, error) {
	id, err := idFromURL(u)
	if err != nil {
		return nil, err
	}
	var resp postResponse
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/v3/post?id=%d", id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get post %s: %w", u, err)
	}
	return &resp, nil
}

func (c *Client) getComment(ctx context.Context, u string) (*commentResponse, error) {
	id, err := idFromURL(u)
	if err != nil {
		return nil, err
	}
	var resp commentResponse
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/v3/comment?id=%d", id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get comment %s: %w", u, err)
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d from %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return nil
}
