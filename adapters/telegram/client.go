package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jdelaire/hostctl/core/chat"
	"github.com/jdelaire/hostctl/core/retry"
	"github.com/jdelaire/hostctl/internal/metrics"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	httpTimeout    = 40 * time.Second
	updateLimit    = 100
	maxBodyBytes   = 4 << 20
	userAgent      = "hostctl/1"
)

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID int64    `json:"message_id"`
	From      *user    `json:"from"`
	Chat      *chatRef `json:"chat"`
	Date      int64    `json:"date"`
	Text      string   `json:"text"`
}

type user struct {
	ID       int64  `json:"id"`
	UserName string `json:"username"`
}

type chatRef struct {
	ID int64 `json:"id"`
}

// APIError is a non-successful Bot API response.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram %s: status %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}

// Is maps status codes onto the chat error taxonomy.
func (e *APIError) Is(target error) bool {
	switch target {
	case chat.ErrConflict:
		return e.StatusCode == http.StatusConflict
	case chat.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case chat.ErrInvalidCredential:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusNotFound
	}
	return false
}

// Client talks to the Telegram Bot API. It is the only component that
// performs network I/O.
type Client struct {
	token   string
	client  *http.Client
	baseURL string
	logger  *slog.Logger
	metrics *metrics.Metrics
	policy  retry.Policy
	now     func() time.Time
}

// New creates a Bot API client for the given token.
func New(token string, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		client:  &http.Client{Timeout: httpTimeout},
		baseURL: defaultBaseURL,
		logger:  logger,
		policy:  retry.Send(isRateLimited),
		now:     time.Now,
	}
}

// WithBaseURL overrides the Bot API base URL (for testing).
func (c *Client) WithBaseURL(url string) *Client {
	if url != "" {
		c.baseURL = strings.TrimRight(url, "/")
	}
	return c
}

// WithMetrics records send attempts and failures on m.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// WithSleeper replaces the wait used between send attempts (for testing).
func (c *Client) WithSleeper(s retry.Sleeper) *Client {
	c.policy.Sleep = s
	return c
}

// WithClock sets the clock used to name uploaded files.
func (c *Client) WithClock(now func() time.Time) *Client {
	if now != nil {
		c.now = now
	}
	return c
}

// ValidateCredential calls getMe. Any failure is logged and reported as false.
func (c *Client) ValidateCredential(ctx context.Context) bool {
	if c.token == "" {
		c.logger.Warn("validate credential failed", "reason", "empty token")
		return false
	}

	req, err := c.newRequest(ctx, http.MethodGet, "getMe", nil)
	if err != nil {
		c.logger.Warn("validate credential failed", "error", err)
		return false
	}

	resp, err := c.do(req, "getMe")
	if err != nil {
		c.logger.Warn("validate credential failed", "error", err)
		return false
	}

	var me user
	if err := json.Unmarshal(resp.Result, &me); err != nil {
		c.logger.Warn("validate credential failed", "error", fmt.Errorf("decode getMe: %w", err))
		return false
	}

	c.logger.Info("credential valid", "bot_id", me.ID, "username", me.UserName)
	return true
}

// FetchUpdates issues one getUpdates long-poll starting at offset.
// A 409 response yields an error matching chat.ErrConflict.
func (c *Client) FetchUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]chat.Update, error) {
	path := fmt.Sprintf("getUpdates?offset=%d&timeout=%d&limit=%d",
		offset, int(timeout/time.Second), updateLimit)

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, "getUpdates")
	if err != nil {
		return nil, err
	}

	var raw []update
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}

	updates := make([]chat.Update, 0, len(raw))
	for _, u := range raw {
		updates = append(updates, chat.Update{ID: u.UpdateID, Message: convertMessage(u.UpdateID, u.Message)})
	}
	return updates, nil
}

func convertMessage(updateID int64, m *message) *chat.Message {
	if m == nil || m.From == nil || m.Chat == nil || m.Text == "" {
		return nil
	}
	return &chat.Message{
		UpdateID: updateID,
		ChatID:   m.Chat.ID,
		UserID:   m.From.ID,
		Text:     m.Text,
		SentAt:   time.Unix(m.Date, 0),
	}
}

func (c *Client) newRequest(ctx context.Context, httpMethod, path string, body io.Reader) (*http.Request, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, path)
	req, err := http.NewRequestWithContext(ctx, httpMethod, url, body)
	if err != nil {
		return nil, c.scrub(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func (c *Client) do(req *http.Request, method string) (*apiResponse, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.scrub(fmt.Errorf("%s: %w", method, err))
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&apiResp)

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Method: method, StatusCode: resp.StatusCode, Description: apiResp.Description}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, decodeErr)
	}
	if !apiResp.OK {
		return nil, &APIError{Method: method, StatusCode: resp.StatusCode, Description: apiResp.Description}
	}
	return &apiResp, nil
}

// scrubbedError hides the bot token that net/http embeds in request URLs.
type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }

func (c *Client) scrub(err error) error {
	if err == nil || c.token == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, c.token) {
		return err
	}
	return &scrubbedError{msg: strings.ReplaceAll(msg, c.token, "<redacted>"), err: err}
}

func isRateLimited(err error) bool {
	return errors.Is(err, chat.ErrRateLimited)
}
