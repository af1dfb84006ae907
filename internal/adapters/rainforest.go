package adapters

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/offer-sourcing/internal/fetcher"
	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/pkg/rainforest"
)

// RainforestName is the provider identifier for Amazon results.
const RainforestName = "rainforest"

// Rainforest searches Amazon through the Rainforest API.
type Rainforest struct {
	client  rainforest.Client
	limiter *fetcher.AdaptiveLimiter
	domain  string
}

// NewRainforest creates the Amazon adapter. amazonDomain defaults to amazon.com.
func NewRainforest(client rainforest.Client, limiter *fetcher.AdaptiveLimiter, amazonDomain string) *Rainforest {
	if amazonDomain == "" {
		amazonDomain = "amazon.com"
	}
	return &Rainforest{client: client, limiter: limiter, domain: amazonDomain}
}

// Name implements provider.Adapter.
func (r *Rainforest) Name() string { return RainforestName }

// Fetch implements provider.Adapter.
func (r *Rainforest) Fetch(ctx context.Context, q model.CanonicalQuery, _ time.Duration) ([]model.RawResult, error) {
	term := q.SearchText()
	if term == "" {
		return nil, nil
	}

	resp, err := throttled(ctx, r.limiter, func(ctx context.Context) (*rainforest.SearchResponse, error) {
		return r.client.Search(ctx, rainforest.SearchRequest{Term: term, AmazonDomain: r.domain})
	})
	if err != nil {
		return nil, eris.Wrap(err, "rainforest: search")
	}
	if resp == nil {
		return nil, nil
	}

	out := make([]model.RawResult, 0, len(resp.SearchResults))
	for _, p := range resp.SearchResults {
		raw := model.RawResult{
			Provider:   RainforestName,
			Title:      p.Title,
			URL:        p.Link,
			ImageURL:   p.Image,
			Merchant:   r.domain,
			Attributes: make(map[string]string),
			Payload:    payload(p),
		}
		price := p.Price
		if price == nil && len(p.Prices) > 0 {
			price = &p.Prices[0]
		}
		if price != nil {
			raw.Price.Currency = price.Currency
			raw.Price.Text = price.Raw
			if price.Value > 0 {
				raw.Price.Amount = model.Float(price.Value)
			}
		}
		if p.Rating > 0 {
			setAttr(raw.Attributes, "rating", formatFloat(p.Rating))
		}
		if p.RatingsTotal > 0 {
			setAttr(raw.Attributes, "ratings_total", strconv.Itoa(p.RatingsTotal))
		}
		if p.IsPrime {
			raw.Attributes["prime"] = "true"
		}
		if p.Delivery != nil {
			setAttr(raw.Attributes, "delivery", p.Delivery.Tagline)
		}
		if p.ASIN != "" {
			raw.Attributes["asin"] = p.ASIN
		}
		out = append(out, raw)
	}
	return out, nil
}
