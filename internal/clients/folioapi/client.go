// Package folioapi provides the client for the remote Folio data API,
// which owns all analytical work (pricing, portfolio aggregation,
// movers ranking) for the app.
package folioapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client communicates with the Folio API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new Folio API client
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With().Str("client", "folio-api").Logger(),
	}
}

// Quotes fetches the latest quotes for the given symbols
func (c *Client) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	endpoint := "/v1/quotes?symbols=" + url.QueryEscape(strings.Join(symbols, ","))

	var quotes []Quote
	if err := c.getJSON(ctx, endpoint, &quotes); err != nil {
		return nil, err
	}

	c.log.Debug().
		Int("requested", len(symbols)).
		Int("received", len(quotes)).
		Msg("Fetched quotes")

	return quotes, nil
}

// PortfolioSummary fetches the aggregate standing of one portfolio
func (c *Client) PortfolioSummary(ctx context.Context, portfolioID string) (*PortfolioSummary, error) {
	endpoint := fmt.Sprintf("/v1/portfolios/%s/summary", url.PathEscape(portfolioID))

	var summary PortfolioSummary
	if err := c.getJSON(ctx, endpoint, &summary); err != nil {
		return nil, err
	}

	return &summary, nil
}

// TopMovers fetches the day's biggest gainers and losers
func (c *Client) TopMovers(ctx context.Context, limit int) ([]Mover, error) {
	if limit <= 0 {
		limit = 10
	}

	endpoint := fmt.Sprintf("/v1/markets/movers?limit=%d", limit)

	var movers []Mover
	if err := c.getJSON(ctx, endpoint, &movers); err != nil {
		return nil, err
	}

	return movers, nil
}

// Health checks if the Folio API is reachable
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// getJSON performs a GET request and decodes the enveloped payload.
// Every Folio endpoint wraps its payload in {"data": ...}.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Debug().Str("endpoint", endpoint).Msg("Making Folio API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Folio API error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response payload: %w", err)
	}

	return nil
}
