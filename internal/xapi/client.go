package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/pauljones0/promo-reply-bot/internal/models"
	"github.com/pauljones0/promo-reply-bot/internal/observability"
	"github.com/pauljones0/promo-reply-bot/internal/util"
)

const (
	searchPath = "/2/tweets/search/recent"
	tweetsPath = "/2/tweets"
	mePath     = "/2/users/me"

	searchFields = "author_id,created_at,public_metrics"
)

// ErrRateLimited is returned when the platform answers 429.
var ErrRateLimited = errors.New("x api rate limit reached")

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
	// ResetAt is when the rate limit window reopens, if the platform said so.
	ResetAt time.Time
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api status: %s, body: %s", e.Status, e.Body)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Options struct {
	BaseURL         string
	BearerToken     string
	UserAccessToken string
	PostsPerSecond  float64
	MaxResults      int
	Timeout         time.Duration
}

// Client talks to the X API v2. Searches authenticate with the app bearer
// token; replies are posted with the user access token.
type Client struct {
	baseURL      string
	searchClient *http.Client
	postClient   *http.Client
	rateLimiter  *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	maxResults   int
	maxRetries   int
	retryBase    time.Duration
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perSecond := opts.PostsPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}

	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		searchClient: tokenClient(opts.BearerToken, timeout),
		postClient:   tokenClient(opts.UserAccessToken, timeout),
		rateLimiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "x-post-reply",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
			// Rejected content is not a sign the platform is down.
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return !apiErr.Temporary()
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
		maxResults: maxResults,
		maxRetries: 2,
		retryBase:  time.Second,
	}
}

func tokenClient(token string, timeout time.Duration) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	hc := oauth2.NewClient(context.Background(), src)
	hc.Timeout = timeout
	return hc
}

type publicMetrics struct {
	LikeCount    int `json:"like_count"`
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
}

type tweet struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	AuthorID      string        `json:"author_id"`
	CreatedAt     string        `json:"created_at"`
	PublicMetrics publicMetrics `json:"public_metrics"`
}

type searchResponse struct {
	Data []tweet `json:"data"`
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createTweetRequest struct {
	Text  string      `json:"text"`
	Reply *tweetReply `json:"reply,omitempty"`
}

// User is the account behind the user access token.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// SearchRecent returns original posts (no retweets) matching keyword between start and end.
func (c *Client) SearchRecent(ctx context.Context, keyword string, start, end time.Time) ([]models.CandidatePost, error) {
	q := url.Values{}
	q.Set("query", keyword+" -is:retweet")
	q.Set("max_results", strconv.Itoa(c.maxResults))
	q.Set("tweet.fields", searchFields)
	q.Set("start_time", start.UTC().Format(time.RFC3339))
	q.Set("end_time", end.UTC().Format(time.RFC3339))
	endpoint := c.baseURL + searchPath + "?" + q.Encode()

	var out searchResponse
	err := util.RetryWithBackoff(ctx, c.maxRetries, c.retryBase, func(attempt int) error {
		if attempt > 0 {
			slog.Info("Retrying search", "keyword", keyword, "attempt", attempt)
		}
		err := c.doJSON(ctx, c.searchClient, "search", http.MethodGet, endpoint, nil, &out)
		var apiErr *APIError
		// Waiting out a rate limit window is longer than a run is worth.
		if errors.As(err, &apiErr) && (!apiErr.Temporary() || apiErr.StatusCode == http.StatusTooManyRequests) {
			return util.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	posts := make([]models.CandidatePost, 0, len(out.Data))
	for _, t := range out.Data {
		posts = append(posts, models.CandidatePost{
			PostID:    t.ID,
			AuthorID:  t.AuthorID,
			Text:      t.Text,
			CreatedAt: t.CreatedAt,
			Keyword:   keyword,
			Likes:     t.PublicMetrics.LikeCount,
			Shares:    t.PublicMetrics.RetweetCount,
			Replies:   t.PublicMetrics.ReplyCount,
		})
	}
	return posts, nil
}

// PostReply publishes text as a reply to inReplyToID and returns the new post ID.
// Replies are never retried here; the pending queue retries on the next run.
func (c *Client) PostReply(ctx context.Context, text, inReplyToID string) (string, error) {
	return c.createTweet(ctx, createTweetRequest{Text: text, Reply: &tweetReply{InReplyToTweetID: inReplyToID}})
}

// PostTweet publishes a standalone post and returns its ID.
func (c *Client) PostTweet(ctx context.Context, text string) (string, error) {
	return c.createTweet(ctx, createTweetRequest{Text: text})
}

// Me returns the account the user access token acts for.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out struct {
		Data User `json:"data"`
	}
	if err := c.doJSON(ctx, c.postClient, "users_me", http.MethodGet, c.baseURL+mePath, nil, &out); err != nil {
		return User{}, err
	}
	if out.Data.ID == "" {
		return User{}, errors.New("users/me returned no account")
	}
	return out.Data, nil
}

func (c *Client) createTweet(ctx context.Context, body createTweetRequest) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		var out createTweetResponse
		if err := c.doJSON(ctx, c.postClient, "create_tweet", http.MethodPost, c.baseURL+tweetsPath, payload, &out); err != nil {
			return nil, err
		}
		return out.Data.ID, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %w", models.ErrDeliveryDeferred, err)
	}
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (c *Client) doJSON(ctx context.Context, hc *http.Client, endpoint, method, rawURL string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	observability.PlatformLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp, bodyBytes)
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
	if len(apiErr.Body) > 512 {
		apiErr.Body = apiErr.Body[:512]
	}
	if reset := util.SafeAtoi64(resp.Header.Get("x-rate-limit-reset")); reset > 0 {
		apiErr.ResetAt = time.Unix(reset, 0).UTC()
	}
	return apiErr
}
