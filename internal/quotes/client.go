package quotes

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonzyyyy/CS50-Finance/internal/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is a quote provider backed by an IEX-style REST API.
// It implements the Provider interface.
type Client struct {
	client  *resty.Client
	token   string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ Provider = (*Client)(nil)

// NewClient creates a new quote API client.
func NewClient(cfg *config.Quotes, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		token:   cfg.Token,
		logger:  logger,
		limiter: limiter,
	}
}

// quoteResponse is the provider's wire format for a single quote.
type quoteResponse struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	LatestPrice float64 `json:"latestPrice"`
}

// Lookup fetches the current quote for a symbol. Symbols are normalized to
// upper case before the request. A 404 from the API means the symbol is not
// listed and is reported as ErrUnknownSymbol.
func (c *Client) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrUnknownSymbol
	}

	req := c.client.R().
		SetContext(ctx).
		SetResult(&quoteResponse{}).
		SetQueryParam("token", c.token).
		SetHeader("Accept", "application/json")

	path := fmt.Sprintf("/stock/%s/quote", url.PathEscape(symbol))
	resp, err := c.doRequest(ctx, http.MethodGet, path, req)
	if err != nil {
		if resp != nil && resp.StatusCode() == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		c.logger.Error("Failed to fetch quote", zap.String("symbol", symbol), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}

	result := resp.Result().(*quoteResponse)
	if result.Symbol == "" || result.LatestPrice <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	return &Quote{
		Symbol: result.Symbol,
		Name:   result.CompanyName,
		Price:  decimal.NewFromFloat(result.LatestPrice),
	}, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// The last response is returned alongside the error so callers can inspect the status.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	var lastErr error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		lastErr = err
		if lastErr == nil && resp != nil {
			lastErr = fmt.Errorf("status %s", resp.Status())
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.StatusCode() != 0 {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return resp, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return resp, ctx.Err()
		}
	}

	return resp, fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}
