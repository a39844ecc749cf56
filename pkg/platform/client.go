package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/duskmoth/replybot/pkg/mention"
)

const (
	DefaultBaseURL     = "https://api.twitter.com"
	DefaultTimeoutSecs = 15
	maxPageSize        = 100
)

// ThreadMessage is a single message inside a conversation thread.
type ThreadMessage struct {
	ID        string
	AuthorID  string
	Text      string
	CreatedAt time.Time
}

// Client talks to the social platform's REST API with a bearer token.
// Every call carries its own timeout so a hung upstream cannot stall a cycle.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	timeout time.Duration
	log     zerolog.Logger
}

// NewClient creates a platform client. An empty baseURL selects the default.
func NewClient(baseURL, token string, timeoutSecs int, log zerolog.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeoutSecs <= 0 {
		timeoutSecs = DefaultTimeoutSecs
	}
	timeout := time.Duration(timeoutSecs) * time.Second
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		log:     log.With().Str("component", "platform").Logger(),
	}
}

type apiTweet struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	AuthorID         string `json:"author_id"`
	ConversationID   string `json:"conversation_id"`
	CreatedAt        string `json:"created_at"`
	InReplyToUserID  string `json:"in_reply_to_user_id"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type apiUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Verified      bool   `json:"verified"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
	} `json:"public_metrics"`
}

type searchResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Users []apiUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		NewestID    string `json:"newest_id"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

// SearchRecent queries the recent-search endpoint for mentions of the bot,
// excluding retweets, paginated via a since-id cursor. It returns the
// normalized mentions plus the next cursor value.
func (c *Client) SearchRecent(ctx context.Context, query, sinceID string) ([]mention.Mention, string, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(maxPageSize))
	params.Set("tweet.fields", "author_id,conversation_id,created_at,in_reply_to_user_id,referenced_tweets")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "verified,public_metrics")
	if sinceID != "" {
		params.Set("since_id", sinceID)
	}

	data, err := c.get(ctx, "/2/tweets/search/recent?"+params.Encode())
	if err != nil {
		return nil, sinceID, err
	}

	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, sinceID, fmt.Errorf("parse search response: %w", err)
	}

	users := make(map[string]apiUser, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = u
	}

	mentions := make([]mention.Mention, 0, len(resp.Data))
	for _, t := range resp.Data {
		m := mention.Mention{
			ID:             t.ID,
			AuthorID:       t.AuthorID,
			ConversationID: t.ConversationID,
			Text:           t.Text,
		}
		if u, ok := users[t.AuthorID]; ok {
			m.AuthorHandle = u.Username
			m.AuthorVerified = u.Verified
			m.AuthorFollowerCount = u.PublicMetrics.FollowersCount
		}
		if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
			m.CreatedAt = ts
		}
		for _, ref := range t.ReferencedTweets {
			if ref.Type == "replied_to" {
				m.InReplyToID = ref.ID
			}
		}
		mentions = append(mentions, m)
	}

	cursor := sinceID
	if resp.Meta.NewestID != "" {
		cursor = resp.Meta.NewestID
	}
	return mentions, cursor, nil
}

// ConversationMessages fetches every message in a conversation, bounded by
// limit (capped at one page), sorted by creation time ascending.
func (c *Client) ConversationMessages(ctx context.Context, conversationID string, limit int) ([]ThreadMessage, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	params := url.Values{}
	params.Set("query", "conversation_id:"+conversationID)
	params.Set("max_results", strconv.Itoa(limit))
	params.Set("tweet.fields", "author_id,created_at")

	data, err := c.get(ctx, "/2/tweets/search/recent?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse conversation response: %w", err)
	}

	msgs := make([]ThreadMessage, 0, len(resp.Data))
	for _, t := range resp.Data {
		msg := ThreadMessage{ID: t.ID, AuthorID: t.AuthorID, Text: t.Text}
		if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
			msg.CreatedAt = ts
		}
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// CreateReply posts text as a reply to the given mention id and returns the
// platform-assigned identifier of the new post.
func (c *Client) CreateReply(ctx context.Context, text, inReplyToID string) (string, error) {
	payload := map[string]any{
		"text": text,
		"reply": map[string]any{
			"in_reply_to_tweet_id": inReplyToID,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	data, err := c.do(ctx, http.MethodPost, "/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse create response: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("create reply returned no id")
	}
	return resp.Data.ID, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform request failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	c.log.Debug().
		Str("method", method).
		Str("path", strings.SplitN(path, "?", 2)[0]).
		Int("status_code", resp.StatusCode).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Platform HTTP request")

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func parseRetryAfter(h http.Header) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After"))); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if reset, err := strconv.ParseInt(strings.TrimSpace(h.Get("x-rate-limit-reset")), 10, 64); err == nil && reset > 0 {
		if d := time.Until(time.Unix(reset, 0)); d > 0 {
			return d
		}
	}
	return 0
}
