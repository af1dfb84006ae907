// Package ebay provides a client for the eBay Browse API item search.
package ebay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/offer-sourcing/internal/resilience"
)

const (
	defaultBaseURL = "https://api.ebay.com"
	defaultScope   = "https://api.ebay.com/oauth/api_scope"

	// tokenSkew refreshes the access token this long before it expires.
	tokenSkew = 60 * time.Second
)

// Client performs eBay Browse API operations.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest describes an item_summary search.
type SearchRequest struct {
	Query string
	Limit int
	// Filter is passed through verbatim, e.g. "price:[10..50],priceCurrency:USD".
	Filter string
}

// SearchResponse is the item_summary/search response.
type SearchResponse struct {
	Total         int           `json:"total"`
	ItemSummaries []ItemSummary `json:"itemSummaries"`
}

// ItemSummary is one listing.
type ItemSummary struct {
	ItemID          string           `json:"itemId"`
	Title           string           `json:"title"`
	Price           *Amount          `json:"price,omitempty"`
	ItemWebURL      string           `json:"itemWebUrl"`
	Image           *Image           `json:"image,omitempty"`
	Seller          *Seller          `json:"seller,omitempty"`
	Condition       string           `json:"condition,omitempty"`
	ShippingOptions []ShippingOption `json:"shippingOptions,omitempty"`
}

// Amount is a monetary value; eBay encodes the value as a string.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Image is a listing image.
type Image struct {
	ImageURL string `json:"imageUrl"`
}

// Seller identifies the listing's seller.
type Seller struct {
	Username           string `json:"username"`
	FeedbackPercentage string `json:"feedbackPercentage,omitempty"`
}

// ShippingOption is one shipping choice for a listing.
type ShippingOption struct {
	ShippingCostType string  `json:"shippingCostType"`
	ShippingCost     *Amount `json:"shippingCost,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL (both browse and identity endpoints).
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

// WithMarketplace sets the X-EBAY-C-MARKETPLACE-ID header. Default: EBAY_US.
func WithMarketplace(id string) Option {
	return func(c *httpClient) {
		c.marketplace = id
	}
}

type httpClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	marketplace  string
	http         *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	nowFunc   func() time.Time
}

// NewClient creates an eBay Browse API client using OAuth client credentials.
func NewClient(clientID, clientSecret string, opts ...Option) Client {
	c := &httpClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      defaultBaseURL,
		marketplace:  "EBAY_US",
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, sr SearchRequest) (*SearchResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	limit := sr.Limit
	if limit <= 0 {
		limit = 20
	}
	params := url.Values{}
	params.Set("q", sr.Query)
	params.Set("limit", strconv.Itoa(limit))
	if sr.Filter != "" {
		params.Set("filter", sr.Filter)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/buy/browse/v1/item_summary/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "ebay: create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.marketplace)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ebay: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ebay: read response")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("ebay", resp.StatusCode, resp.Header, body)
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "ebay: unmarshal response")
	}
	return &result, nil
}

// accessToken returns the cached token or mints a new one.
func (c *httpClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.nowFunc().Before(c.expiresAt.Add(-tokenSkew)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", defaultScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/identity/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "ebay: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "ebay: send token request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "ebay: read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", resilience.StatusError("ebay: token", resp.StatusCode, resp.Header, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", eris.Wrap(err, "ebay: unmarshal token response")
	}
	if tr.AccessToken == "" {
		return "", eris.New("ebay: token response missing access_token")
	}
	expiresIn := time.Duration(tr.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = 2 * time.Hour
	}

	c.token = tr.AccessToken
	c.expiresAt = c.nowFunc().Add(expiresIn)
	return c.token, nil
}

func (c *httpClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
