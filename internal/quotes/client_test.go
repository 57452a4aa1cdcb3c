package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	c := &Client{
		client:  client,
		token:   "test_token",
		logger:  logger,
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return c, server
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/stock/AAA/quote", r.URL.Path)
			assert.Equal(t, "test_token", r.URL.Query().Get("token"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol":"AAA","companyName":"Triple A Corp","latestPrice":50.25}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		// Act
		quote, err := c.Lookup(ctx, "aaa")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "AAA", quote.Symbol)
		assert.Equal(t, "Triple A Corp", quote.Name)
		assert.True(t, quote.Price.Equal(decimal.RequireFromString("50.25")), "price = %s", quote.Price)
	})

	t.Run("UnknownSymbol", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`Unknown symbol`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		quote, err := c.Lookup(ctx, "NOPE")
		assert.ErrorIs(t, err, ErrUnknownSymbol)
		assert.Nil(t, quote)
	})

	t.Run("BlankSymbol", func(t *testing.T) {
		c, server := setupTestServer(http.NotFoundHandler())
		defer server.Close()

		_, err := c.Lookup(ctx, "   ")
		assert.ErrorIs(t, err, ErrUnknownSymbol)
	})

	t.Run("RetriesServerErrors", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol":"AAA","companyName":"Triple A Corp","latestPrice":50}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		quote, err := c.Lookup(ctx, "AAA")
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
		assert.True(t, quote.Price.Equal(decimal.NewFromInt(50)))
	})

	t.Run("ZeroPriceTreatedAsMiss", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol":"AAA","companyName":"Triple A Corp","latestPrice":0}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.Lookup(ctx, "AAA")
		assert.ErrorIs(t, err, ErrUnknownSymbol)
	})
}
