// Package marketdata fetches, stores and serves daily closing prices and
// FX rates.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

// Provider is an external source of closing prices and FX rates. found is
// false when the provider has no point for the date.
type Provider interface {
	GetPrice(ctx context.Context, symbol string, date time.Time) (price float64, found bool, err error)
	GetFxRate(ctx context.Context, pair string, date time.Time) (rate float64, found bool, err error)
}

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRateLimit  = 5.0
	DefaultMaxRetries = 3
)

type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxRetries   uint64
	retryInitial time.Duration
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetries sets how often a transient failure is retried and the first
// backoff interval.
func WithRetries(n uint64, initial time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
		c.retryInitial = initial
	}
}

func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		limiter:      rate.NewLimiter(rate.Limit(DefaultRateLimit), int(DefaultRateLimit)),
		maxRetries:   DefaultMaxRetries,
		retryInitial: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Body       string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data provider: status %d on %s: %s", e.StatusCode, e.Path, e.Body)
}

type priceResponse struct {
	Symbol   string  `json:"symbol"`
	Date     string  `json:"date"`
	Close    float64 `json:"close"`
	Currency string  `json:"currency"`
}

type fxResponse struct {
	Pair string  `json:"pair"`
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

func (c *Client) GetPrice(ctx context.Context, symbol string, date time.Time) (float64, bool, error) {
	var out priceResponse
	found, err := c.get(ctx, "/v1/prices/"+url.PathEscape(symbol), date, &out)
	if err != nil {
		return 0, false, fmt.Errorf("GetPrice: %s: %w", symbol, err)
	}
	if !found {
		return 0, false, nil
	}
	return out.Close, true, nil
}

func (c *Client) GetFxRate(ctx context.Context, pair string, date time.Time) (float64, bool, error) {
	var out fxResponse
	found, err := c.get(ctx, "/v1/fx/"+url.PathEscape(pair), date, &out)
	if err != nil {
		return 0, false, fmt.Errorf("GetFxRate: %s: %w", pair, err)
	}
	if !found {
		return 0, false, nil
	}
	return out.Rate, true, nil
}

// get performs a rate-limited GET, retrying network errors, 429 and 5xx
// with exponential backoff. 404 means no data and is not an error.
func (c *Client) get(ctx context.Context, path string, date time.Time, result any) (bool, error) {
	log := logging.FromContext(ctx)
	params := url.Values{}
	params.Set("date", domain.FormatDate(date))
	reqURL := c.baseURL + path + "?" + params.Encode()

	found := false
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		defer resp.Body.Close()

		log.Debug("provider response received",
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &APIError{StatusCode: resp.StatusCode, Body: string(body), Path: path}
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: string(body), Path: path})
		}

		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return backoff.Permanent(fmt.Errorf("decode: %w", err))
		}
		found = true
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Warn("provider request failed, retrying", "path", path, "error", err, "wait_ms", wait.Milliseconds())
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
