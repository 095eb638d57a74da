package botclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/prilive-com/vigil/dispatch"
	"github.com/prilive-com/vigil/internal/scrub"
	"github.com/prilive-com/vigil/tg"
)

const (
	defaultBaseURL  = "https://api.telegram.org/bot"
	maxResponseSize = 10 << 20 // 10MB
)

// Client is a long-polling Telegram Bot API client. It implements the
// supervisor's BotClient contract: Identify, blocking StartPolling and an
// idempotent Close.
type Client struct {
	token   tg.SecretToken
	baseURL string
	logger  *slog.Logger

	pollTimeout int
	pollLimit   int
	maxErrors   int
	retryDelay  time.Duration

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	limiter    *rate.Limiter

	offset  atomic.Int64
	polling atomic.Bool
	closed  atomic.Bool
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCircuitBreaker sets a custom circuit breaker.
func WithCircuitBreaker(breaker *gobreaker.CircuitBreaker[[]byte]) Option {
	return func(c *Client) {
		c.breaker = breaker
	}
}

// New creates a Client from cfg. The token is required; everything else
// falls back to DefaultConfig values.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Token.IsEmpty() {
		return nil, ErrTokenRequired
	}

	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = def.PollLimit
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.RequestRPS <= 0 {
		cfg.RequestRPS = def.RequestRPS
	}
	if cfg.RequestBurst <= 0 {
		cfg.RequestBurst = def.RequestBurst
	}
	if cfg.BreakerMaxRequests == 0 {
		cfg.BreakerMaxRequests = def.BreakerMaxRequests
	}
	if cfg.BreakerInterval <= 0 {
		cfg.BreakerInterval = def.BreakerInterval
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	c := &Client{
		token:       cfg.Token,
		baseURL:     cfg.BaseURL,
		logger:      slog.Default(),
		pollTimeout: cfg.PollTimeout,
		pollLimit:   cfg.PollLimit,
		maxErrors:   cfg.MaxErrors,
		retryDelay:  cfg.RetryDelay,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestRPS), cfg.RequestBurst),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = defaultHTTPClient(cfg.PollTimeout)
	}
	if c.breaker == nil {
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "botclient",
			MaxRequests: cfg.BreakerMaxRequests,
			Interval:    cfg.BreakerInterval,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < 3 {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Info("circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}

	return c, nil
}

func defaultHTTPClient(pollTimeoutSeconds int) *http.Client {
	// The HTTP timeout must outlast the long-poll hold.
	return &http.Client{
		Timeout: time.Duration(pollTimeoutSeconds+10) * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: time.Duration(pollTimeoutSeconds+5) * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// Identify performs the getMe identity check. No side effects on handlers or
// polling state.
func (c *Client) Identify(ctx context.Context) (tg.User, error) {
	if c.closed.Load() {
		return tg.User{}, ErrClosed
	}
	var user tg.User
	if err := c.call(ctx, "getMe", nil, nil, &user); err != nil {
		return tg.User{}, err
	}
	return user, nil
}

// SendMessage sends a text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*tg.Message, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	body := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	var msg tg.Message
	if err := c.call(ctx, "sendMessage", nil, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// StartPolling blocks, fetching updates and dispatching message updates
// through handler, until the context is cancelled (returns nil), the API
// rejects the credentials, or MaxErrors consecutive fetches fail (returns
// the last error). Handler errors are logged and do not stop the loop.
func (c *Client) StartPolling(ctx context.Context, handler dispatch.Handler) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.polling.CompareAndSwap(false, true) {
		return ErrAlreadyPolling
	}
	defer c.polling.Store(false)

	c.logger.Info("long polling started",
		"timeout", c.pollTimeout,
		"limit", c.pollLimit,
		"max_errors", c.maxErrors,
	)

	consecutive := 0
	for {
		if ctx.Err() != nil {
			c.logger.Info("long polling stopped: shutdown requested")
			return nil
		}

		updates, err := c.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("long polling stopped: shutdown requested")
				return nil
			}

			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.IsAuth() {
				// Retrying a credential rejection locally is pointless;
				// hand it to the supervisor immediately.
				return err
			}

			consecutive++
			delay := c.retryDelay * time.Duration(min(consecutive, 3))
			c.logger.Warn("fetch updates failed",
				"error", err,
				"consecutive_errors", consecutive,
				"retry_delay", delay,
			)
			if c.maxErrors > 0 && consecutive >= c.maxErrors {
				return fmt.Errorf("botclient: %d consecutive poll failures: %w", consecutive, err)
			}

			select {
			case <-ctx.Done():
				c.logger.Info("long polling stopped: shutdown requested")
				return nil
			case <-time.After(delay):
				continue
			}
		}
		consecutive = 0

		for _, update := range updates {
			if int64(update.UpdateID) >= c.offset.Load() {
				c.offset.Store(int64(update.UpdateID) + 1)
			}
			if update.Message == nil {
				continue
			}
			if err := handler.Dispatch(ctx, *update.Message); err != nil {
				c.logger.Error("handler failed",
					"error", err,
					"update_id", update.UpdateID,
					"chat_id", update.Message.Chat.ID,
				)
			}
		}
	}
}

// Close releases the client. Idempotent; safe to call even if the client
// never successfully connected. Polling is refused after Close.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.httpClient.CloseIdleConnections()
	c.logger.Info("bot client closed")
	return nil
}

// Offset returns the current update offset.
func (c *Client) Offset() int64 {
	return c.offset.Load()
}

// Polling returns true while StartPolling is active.
func (c *Client) Polling() bool {
	return c.polling.Load()
}

func (c *Client) fetchUpdates(ctx context.Context) ([]tg.Update, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(c.pollTimeout))
	params.Set("limit", strconv.Itoa(c.pollLimit))
	params.Set("offset", strconv.FormatInt(c.offset.Load(), 10))

	var updates []tg.Update
	if err := c.call(ctx, "getUpdates", params, nil, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// call performs one Bot API request through the rate limiter and circuit
// breaker, decoding the result into out when non-nil. Transport errors are
// scrubbed of the token before they leave the client.
func (c *Client) call(ctx context.Context, method string, params url.Values, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Method: method, Description: "request throttled", Err: err}
	}

	apiURL := c.baseURL + c.token.Value() + "/" + method
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	var req *http.Request
	var err error
	if body != nil {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return &APIError{Method: method, Description: "failed to encode request", Err: merr}
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	}
	if err != nil {
		return &APIError{Method: method, Description: "failed to create request", Err: err}
	}

	respBody, err := c.breaker.Execute(func() ([]byte, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, scrub.TokenFromError(err, c.token)
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		limited := io.LimitReader(resp.Body, maxResponseSize+1)
		data, err := io.ReadAll(limited)
		if err != nil {
			return nil, scrub.TokenFromError(err, c.token)
		}
		if int64(len(data)) > maxResponseSize {
			return nil, ErrResponseTooLarge
		}
		return data, nil
	})
	if err != nil {
		return &APIError{Method: method, Description: "request failed", Err: err}
	}

	var response apiResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return &APIError{Method: method, Description: "failed to parse response", Err: err}
	}
	if !response.OK {
		return &APIError{
			Method:      method,
			Code:        response.ErrorCode,
			Description: response.Description,
		}
	}

	if out != nil && len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, out); err != nil {
			return &APIError{Method: method, Description: "failed to parse result", Err: err}
		}
	}
	return nil
}
