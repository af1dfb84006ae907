package adapters

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/offer-sourcing/internal/fetcher"
	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/pkg/searchapi"
)

// ShoppingName is the provider identifier for Google Shopping results.
const ShoppingName = "shopping"

// Shopping searches Google Shopping through SearchAPI.
type Shopping struct {
	client   searchapi.Client
	limiter  *fetcher.AdaptiveLimiter
	country  string
	language string
}

// NewShopping creates the Google Shopping adapter.
func NewShopping(client searchapi.Client, limiter *fetcher.AdaptiveLimiter, country, language string) *Shopping {
	return &Shopping{client: client, limiter: limiter, country: country, language: language}
}

// Name implements provider.Adapter.
func (s *Shopping) Name() string { return ShoppingName }

// Fetch implements provider.Adapter.
func (s *Shopping) Fetch(ctx context.Context, q model.CanonicalQuery, _ time.Duration) ([]model.RawResult, error) {
	text := q.SearchText()
	if text == "" {
		return nil, nil
	}

	req := searchapi.ShoppingRequest{
		Query:    text,
		Country:  s.country,
		Language: s.language,
		MinPrice: q.Constraints.MinPrice,
		MaxPrice: q.Constraints.MaxPrice,
	}
	resp, err := throttled(ctx, s.limiter, func(ctx context.Context) (*searchapi.ShoppingResponse, error) {
		return s.client.Shopping(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "shopping: search")
	}
	if resp == nil {
		return nil, nil
	}

	out := make([]model.RawResult, 0, len(resp.ShoppingResults))
	for _, r := range resp.ShoppingResults {
		raw := model.RawResult{
			Provider:   ShoppingName,
			Title:      r.Title,
			URL:        firstNonEmpty(r.Link, r.ProductLink, r.OffersLink),
			ImageURL:   r.Thumbnail,
			Merchant:   firstNonEmpty(r.Seller, r.Source),
			Price:      model.RawPrice{Text: r.Price},
			Attributes: make(map[string]string),
			Payload:    payload(r),
		}
		if r.ExtractedPrice > 0 {
			raw.Price.Amount = model.Float(r.ExtractedPrice)
		}
		setAttr(raw.Attributes, "condition", r.Condition)
		setAttr(raw.Attributes, "delivery", r.Delivery)
		if r.Rating > 0 {
			setAttr(raw.Attributes, "rating", formatFloat(r.Rating))
		}
		if r.Reviews > 0 {
			setAttr(raw.Attributes, "reviews", strconv.Itoa(r.Reviews))
		}
		out = append(out, raw)
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
