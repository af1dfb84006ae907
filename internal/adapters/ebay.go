package adapters

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/offer-sourcing/internal/fetcher"
	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/pkg/ebay"
)

// EbayName is the provider identifier for eBay listings.
const EbayName = "ebay"

// Ebay searches listings through the eBay Browse API.
type Ebay struct {
	client  ebay.Client
	limiter *fetcher.AdaptiveLimiter
	limit   int
}

// NewEbay creates the eBay adapter.
func NewEbay(client ebay.Client, limiter *fetcher.AdaptiveLimiter, limit int) *Ebay {
	return &Ebay{client: client, limiter: limiter, limit: limit}
}

// Name implements provider.Adapter.
func (e *Ebay) Name() string { return EbayName }

// Fetch implements provider.Adapter.
func (e *Ebay) Fetch(ctx context.Context, q model.CanonicalQuery, _ time.Duration) ([]model.RawResult, error) {
	text := q.SearchText()
	if text == "" {
		return nil, nil
	}

	req := ebay.SearchRequest{Query: text, Limit: e.limit, Filter: ebayFilter(q.Constraints)}
	resp, err := throttled(ctx, e.limiter, func(ctx context.Context) (*ebay.SearchResponse, error) {
		return e.client.Search(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "ebay: search")
	}
	if resp == nil {
		return nil, nil
	}

	out := make([]model.RawResult, 0, len(resp.ItemSummaries))
	for _, item := range resp.ItemSummaries {
		raw := model.RawResult{
			Provider:   EbayName,
			Title:      item.Title,
			URL:        ebayItemURL(item),
			Merchant:   "ebay.com",
			Attributes: make(map[string]string),
			Payload:    payload(item),
		}
		if item.Image != nil {
			raw.ImageURL = item.Image.ImageURL
		}
		if item.Price != nil {
			raw.Price.Text = item.Price.Value
			raw.Price.Currency = item.Price.Currency
			if v, err := strconv.ParseFloat(item.Price.Value, 64); err == nil {
				raw.Price.Amount = model.Float(v)
			}
		}
		setAttr(raw.Attributes, "condition", item.Condition)
		if item.Seller != nil {
			setAttr(raw.Attributes, "seller", item.Seller.Username)
			setAttr(raw.Attributes, "seller_feedback", item.Seller.FeedbackPercentage)
		}
		if len(item.ShippingOptions) > 0 {
			setAttr(raw.Attributes, "shipping", strings.ToLower(item.ShippingOptions[0].ShippingCostType))
		}
		out = append(out, raw)
	}
	return out, nil
}

// ebayFilter renders price constraints in Browse API filter syntax.
func ebayFilter(c model.Constraints) string {
	if c.MinPrice == nil && c.MaxPrice == nil {
		return ""
	}
	var lo, hi string
	if c.MinPrice != nil {
		lo = formatFloat(*c.MinPrice)
	}
	if c.MaxPrice != nil {
		hi = formatFloat(*c.MaxPrice)
	}
	f := fmt.Sprintf("price:[%s..%s]", lo, hi)
	if c.Currency != "" {
		f += ",priceCurrency:" + c.Currency
	}
	return f
}

// ebayItemURL prefers a stable /itm/ link over the tracking-laden web URL.
func ebayItemURL(item ebay.ItemSummary) string {
	parts := strings.Split(item.ItemID, "|")
	if len(parts) == 3 && parts[0] == "v1" && parts[1] != "" {
		return "https://www.ebay.com/itm/" + parts[1]
	}
	return item.ItemWebURL
}
