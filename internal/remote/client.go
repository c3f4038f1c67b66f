// Package remote fetches answers from the 8-ball web API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public 8-ball API.
	DefaultBaseURL = "https://8ball.delegator.com"

	// DefaultQuestion is sent when no question is configured.
	DefaultQuestion = "Some question"

	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 64 << 10
)

// ErrEmptyAnswer is returned when the API responds without answer text.
var ErrEmptyAnswer = errors.New("remote: empty answer")

// StatusError reports a non-200 response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: unexpected status %d", e.Code)
}

// Client talks to the 8-ball API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	question   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithQuestion sets the question sent with every fetch.
func WithQuestion(q string) Option {
	return func(c *Client) {
		if q != "" {
			c.question = q
		}
	}
}

// New creates a Client for baseURL. An empty baseURL selects DefaultBaseURL
// and a non-positive timeout selects DefaultTimeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		question:   DefaultQuestion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type answerResponse struct {
	Magic struct {
		Answer string `json:"answer"`
	} `json:"magic"`
}

// Endpoint returns the URL Fetch requests.
func (c *Client) Endpoint() string {
	return c.baseURL + "/magic/JSON/" + url.PathEscape(c.question)
}

// Fetch requests one answer. The returned text is trimmed and non-empty.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch answer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode}
	}

	var body answerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode answer: %w", err)
	}

	answer := strings.TrimSpace(body.Magic.Answer)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}
