package ebay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/offer-sourcing/internal/resilience"
)

func newTestServer(t *testing.T, tokenCalls *atomic.Int32, search http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/identity/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":7200,"token_type":"Application Access Token"}`))
	})
	mux.HandleFunc("/buy/browse/v1/item_summary/search", search)
	return httptest.NewServer(mux)
}

func TestSearch_Success(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "EBAY_GB", r.Header.Get("X-EBAY-C-MARKETPLACE-ID"))
		assert.Equal(t, "oak desk", r.URL.Query().Get("q"))
		assert.Equal(t, "price:[..50],priceCurrency:USD", r.URL.Query().Get("filter"))

		_, _ = w.Write([]byte(`{"total":1,"itemSummaries":[{"itemId":"v1|123|0","title":"Oak Desk",
			"price":{"value":"45.00","currency":"USD"},"itemWebUrl":"https://www.ebay.com/itm/123?hash=abc",
			"seller":{"username":"deskdepot"},"condition":"New",
			"shippingOptions":[{"shippingCostType":"FIXED","shippingCost":{"value":"0.00","currency":"USD"}}]}]}`))
	})
	defer srv.Close()

	client := NewClient("id", "secret", WithBaseURL(srv.URL), WithMarketplace("EBAY_GB"))
	resp, err := client.Search(context.Background(), SearchRequest{Query: "oak desk", Filter: "price:[..50],priceCurrency:USD"})

	require.NoError(t, err)
	require.Len(t, resp.ItemSummaries, 1)
	item := resp.ItemSummaries[0]
	assert.Equal(t, "45.00", item.Price.Value)
	assert.Equal(t, "deskdepot", item.Seller.Username)
	assert.Equal(t, "New", item.Condition)
}

func TestSearch_CachesToken(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total":0}`))
	})
	defer srv.Close()

	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	client := NewClient("id", "secret", WithBaseURL(srv.URL)).(*httpClient)
	client.nowFunc = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := client.Search(context.Background(), SearchRequest{Query: "x"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), tokenCalls.Load())

	// Within the refresh skew of expiry.
	now = now.Add(2*time.Hour - 30*time.Second)
	_, err := client.Search(context.Background(), SearchRequest{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), tokenCalls.Load())
}

func TestSearch_UnauthorizedDropsToken(t *testing.T) {
	var tokenCalls atomic.Int32
	var searches atomic.Int32
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, _ *http.Request) {
		if searches.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"total":0}`))
	})
	defer srv.Close()

	client := NewClient("id", "secret", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), SearchRequest{Query: "x"})
	require.Error(t, err)

	_, err = client.Search(context.Background(), SearchRequest{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), tokenCalls.Load())
}

func TestSearch_RateLimited(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := NewClient("id", "secret", WithBaseURL(srv.URL)).Search(context.Background(), SearchRequest{Query: "x"})
	assert.True(t, resilience.IsRateLimited(err))
}

func TestSearch_TokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	_, err := NewClient("id", "bad", WithBaseURL(srv.URL)).Search(context.Background(), SearchRequest{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
