// Package rainforest provides a client for the Rainforest Amazon product search API.
package rainforest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/offer-sourcing/internal/resilience"
)

const defaultBaseURL = "https://api.rainforestapi.com"

// Client performs Rainforest API operations.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest describes an Amazon search.
type SearchRequest struct {
	Term         string
	AmazonDomain string
	Page         int
}

// SearchResponse is the response of a type=search request.
type SearchResponse struct {
	RequestInfo   RequestInfo `json:"request_info"`
	SearchResults []Product   `json:"search_results"`
}

// RequestInfo reports request success and remaining credits.
type RequestInfo struct {
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	CreditsRemaining int    `json:"credits_remaining,omitempty"`
}

// Product is one search result.
type Product struct {
	Position     int       `json:"position"`
	Title        string    `json:"title"`
	ASIN         string    `json:"asin"`
	Link         string    `json:"link"`
	Image        string    `json:"image"`
	Rating       float64   `json:"rating"`
	RatingsTotal int       `json:"ratings_total"`
	IsPrime      bool      `json:"is_prime"`
	Price        *Price    `json:"price,omitempty"`
	Prices       []Price   `json:"prices,omitempty"`
	Delivery     *Delivery `json:"delivery,omitempty"`
}

// Price holds both the parsed value and the display string.
type Price struct {
	Value    float64 `json:"value"`
	Raw      string  `json:"raw"`
	Currency string  `json:"currency"`
	Symbol   string  `json:"symbol"`
}

// Delivery holds shipping details.
type Delivery struct {
	Tagline string `json:"tagline"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Rainforest API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, sr SearchRequest) (*SearchResponse, error) {
	domain := sr.AmazonDomain
	if domain == "" {
		domain = "amazon.com"
	}
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("type", "search")
	params.Set("amazon_domain", domain)
	params.Set("search_term", sr.Term)
	if sr.Page > 1 {
		params.Set("page", strconv.Itoa(sr.Page))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/request?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "rainforest: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "rainforest: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "rainforest: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("rainforest", resp.StatusCode, resp.Header, body)
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "rainforest: unmarshal response")
	}
	if !result.RequestInfo.Success && result.RequestInfo.Message != "" {
		return nil, eris.Errorf("rainforest: request failed: %s", result.RequestInfo.Message)
	}

	return &result, nil
}
