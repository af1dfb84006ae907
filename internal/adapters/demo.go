package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sells-group/offer-sourcing/internal/model"
)

// DemoName is the provider identifier for the offline demo source.
const DemoName = "demo"

var demoMerchants = []string{"shop.example.com", "outlet.example.net", "market.example.org"}

// Demo returns deterministic offers derived from the query. It performs no
// I/O and lets the CLI run without credentials.
type Demo struct {
	count   int
	latency time.Duration
}

// NewDemo creates the demo adapter. latency simulates a remote call.
func NewDemo(count int, latency time.Duration) *Demo {
	if count <= 0 {
		count = 5
	}
	return &Demo{count: count, latency: latency}
}

// Name implements provider.Adapter.
func (d *Demo) Name() string { return DemoName }

// Fetch implements provider.Adapter.
func (d *Demo) Fetch(ctx context.Context, q model.CanonicalQuery, _ time.Duration) ([]model.RawResult, error) {
	if d.latency > 0 {
		t := time.NewTimer(d.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	title := q.SearchText()
	if title == "" {
		title = "item"
	}
	cur := q.Constraints.Currency
	if cur == "" {
		cur = "USD"
	}
	lo, hi := 5.0, 200.0
	if q.Constraints.MinPrice != nil {
		lo = *q.Constraints.MinPrice
	}
	if q.Constraints.MaxPrice != nil {
		hi = *q.Constraints.MaxPrice
	}
	if hi < lo {
		hi = lo
	}

	key := q.CacheKey()
	out := make([]model.RawResult, 0, d.count)
	for i := 0; i < d.count; i++ {
		seed := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", key, i)))
		n := binary.BigEndian.Uint64(seed[:8])
		frac := float64(n%10000) / 10000
		price := float64(int64((lo+(hi-lo)*frac)*100)) / 100
		merchant := demoMerchants[i%len(demoMerchants)]

		attrs := map[string]string{}
		for k, v := range q.Constraints.Attributes {
			attrs[k] = v
		}
		out = append(out, model.RawResult{
			Provider:   DemoName,
			Title:      fmt.Sprintf("%s (%s #%d)", title, merchant, i+1),
			Price:      model.RawPrice{Amount: model.Float(price), Currency: cur},
			URL:        fmt.Sprintf("https://%s/p/%x-%d?utm_source=demo", merchant, seed[:4], i+1),
			Merchant:   merchant,
			Attributes: attrs,
		})
	}
	return out, nil
}
