// Package searchapi provides a client for the SearchAPI.io Google Shopping engine.
package searchapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/offer-sourcing/internal/resilience"
)

const defaultBaseURL = "https://www.searchapi.io/api/v1"

// Client performs SearchAPI operations.
type Client interface {
	Shopping(ctx context.Context, req ShoppingRequest) (*ShoppingResponse, error)
}

// ShoppingRequest describes a Google Shopping search.
type ShoppingRequest struct {
	Query    string
	Country  string // gl
	Language string // hl
	MinPrice *float64
	MaxPrice *float64
}

// ShoppingResponse is the engine=google_shopping response.
type ShoppingResponse struct {
	ShoppingResults []ShoppingResult `json:"shopping_results"`
	Error           string           `json:"error,omitempty"`
}

// ShoppingResult is one product offer.
type ShoppingResult struct {
	Position       int     `json:"position"`
	ProductID      string  `json:"product_id"`
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	ExtractedPrice float64 `json:"extracted_price"`
	Seller         string  `json:"seller"`
	Source         string  `json:"source"`
	Link           string  `json:"link"`
	ProductLink    string  `json:"product_link"`
	OffersLink     string  `json:"offers_link"`
	Thumbnail      string  `json:"thumbnail"`
	Rating         float64 `json:"rating"`
	Reviews        int     `json:"reviews"`
	Delivery       string  `json:"delivery"`
	Condition      string  `json:"condition"`
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

// NewClient creates a SearchAPI client.
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

// priceFilter encodes a price range as the tbs value Google Shopping expects.
func priceFilter(minPrice, maxPrice *float64) string {
	if minPrice == nil && maxPrice == nil {
		return ""
	}
	parts := []string{"mr:1", "price:1"}
	if minPrice != nil {
		parts = append(parts, "ppr_min:"+strconv.FormatFloat(*minPrice, 'f', -1, 64))
	}
	if maxPrice != nil {
		parts = append(parts, "ppr_max:"+strconv.FormatFloat(*maxPrice, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

func (c *httpClient) Shopping(ctx context.Context, sr ShoppingRequest) (*ShoppingResponse, error) {
	gl, hl := sr.Country, sr.Language
	if gl == "" {
		gl = "us"
	}
	if hl == "" {
		hl = "en"
	}
	params := url.Values{}
	params.Set("engine", "google_shopping")
	params.Set("q", sr.Query)
	params.Set("gl", gl)
	params.Set("hl", hl)
	if tbs := priceFilter(sr.MinPrice, sr.MaxPrice); tbs != "" {
		params.Set("tbs", tbs)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "searchapi: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "searchapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "searchapi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("searchapi", resp.StatusCode, resp.Header, body)
	}

	var result ShoppingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "searchapi: unmarshal response")
	}
	if result.Error != "" {
		return nil, eris.Errorf("searchapi: %s", result.Error)
	}
	return &result, nil
}
