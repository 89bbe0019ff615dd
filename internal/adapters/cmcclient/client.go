package cmcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/ports"
)

const (
	defaultBaseURL = "https://pro-api.coinmarketcap.com"
	quotesPath     = "/v1/cryptocurrency/quotes/latest"
	apiKeyHeader   = "X-CMC_PRO_API_KEY"
	defaultTimeout = 10 * time.Second
)

// Client implements ports.QuoteProvider against a CoinMarketCap-style
// quotes endpoint: one batched request per call, symbols comma-joined,
// prices returned per symbol in the requested convert currency.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     ports.Logger
}

// Config holds configuration for the quote client adapter.
type Config struct {
	APIKey  string
	BaseURL string        // defaults to the production CoinMarketCap API
	Timeout time.Duration // hard cap per request, defaults to 10s
	Logger  ports.Logger
}

// New creates a quote client. A missing API key is a configuration error:
// every endpoint this client talks to requires one, so failing at
// construction beats failing on the first fetch.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for quote client")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("quote client: %w", ports.ErrMissingCredentials)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     cfg.Logger,
	}, nil
}

// quotesResponse mirrors the relevant slice of the upstream payload.
type quotesResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Symbol string `json:"symbol"`
		Quote  map[string]struct {
			Price *decimal.Decimal `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

// GetQuotes fetches current prices for the given base-asset codes in a
// single batched request. Symbols the upstream does not price are absent
// from the result; a non-nil error means the whole request failed.
func (c *Client) GetQuotes(ctx context.Context, symbols []string, convert string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	params := url.Values{}
	params.Set("symbol", strings.Join(symbols, ","))
	params.Set("convert", convert)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+quotesPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w: %w", ports.ErrInvalidRequest, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(ctx, resp.StatusCode)
	}

	var payload quotesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Warn(ctx, "Quote response did not parse", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("quote fetch: %w: %w", ports.ErrMalformedResponse, err)
	}
	if payload.Status.ErrorCode != 0 {
		c.logger.Warn(ctx, "Quote provider reported an error", map[string]interface{}{
			"errorCode": payload.Status.ErrorCode, "errorMessage": payload.Status.ErrorMessage,
		})
		return nil, fmt.Errorf("quote fetch failed with provider error %d (%s): %w",
			payload.Status.ErrorCode, payload.Status.ErrorMessage, ports.ErrInvalidRequest)
	}

	prices := make(map[string]decimal.Decimal, len(payload.Data))
	for symbol, entry := range payload.Data {
		quote, ok := entry.Quote[convert]
		if !ok || quote.Price == nil {
			// Listed but unpriced symbols are a per-symbol miss, not a failure.
			continue
		}
		prices[strings.ToUpper(symbol)] = *quote.Price
	}
	c.logger.Debug(ctx, "Quotes fetched", map[string]interface{}{"requested": len(symbols), "priced": len(prices)})
	return prices, nil
}

func (c *Client) classifyTransportError(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("quote fetch: %w: %w", ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("quote fetch: %w: %w", ports.ErrContextCanceled, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("quote fetch: %w: %w", ports.ErrTimeout, err)
	default:
		return fmt.Errorf("quote fetch: %w: %w", ports.ErrProviderUnavailable, err)
	}
}

func (c *Client) classifyStatus(ctx context.Context, status int) error {
	fields := map[string]interface{}{"status": status}
	switch {
	case status == http.StatusTooManyRequests:
		c.logger.Warn(ctx, "Quote provider rate limited the request", fields)
		return fmt.Errorf("quote fetch returned status %d: %w", status, ports.ErrRateLimited)
	case status >= 500:
		c.logger.Warn(ctx, "Quote provider returned a server error", fields)
		return fmt.Errorf("quote fetch returned status %d: %w", status, ports.ErrProviderUnavailable)
	default:
		c.logger.Warn(ctx, "Quote provider rejected the request", fields)
		return fmt.Errorf("quote fetch returned status %d: %w", status, ports.ErrInvalidRequest)
	}
}
