package scorer

import (
	"math"
	"sort"
	"strings"

	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/internal/normalize"
)

// Scorer computes deterministic scores. It holds no mutable state.
type Scorer struct {
	cfg Config
}

// New returns a Scorer after validating cfg.
func New(cfg Config) (*Scorer, error) {
	if cfg.Currency == "" {
		cfg.Currency = DefaultConfig().Currency
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Score returns the offer's score in [0,1] and its weighted components.
func (s *Scorer) Score(offer model.NormalizedOffer, q model.CanonicalQuery) (float64, model.ScoreBreakdown) {
	w := s.cfg.Weights
	bd := model.ScoreBreakdown{
		Relevance:   w.Relevance * relevance(offer.Title, q.SearchText()),
		Constraints: w.Constraints * s.constraintCredit(offer, q.Constraints),
		Trust:       w.Trust * trustCredit(offer.TrustTier),
	}
	score := (bd.Relevance + bd.Constraints + bd.Trust) / w.Sum()
	return clamp01(score), bd
}

// Rank scores every offer and returns them sorted by score descending,
// then price ascending, then offer key.
func (s *Scorer) Rank(offers []model.NormalizedOffer, q model.CanonicalQuery) []model.NormalizedOffer {
	out := make([]model.NormalizedOffer, len(offers))
	copy(out, offers)
	for i := range out {
		out[i].Score, out[i].ScoreDetail = s.Score(out[i], q)
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Less is the total ranking order.
func Less(a, b model.NormalizedOffer) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.PriceMinor != b.PriceMinor {
		return a.PriceMinor < b.PriceMinor
	}
	return a.Key < b.Key
}

// relevance is the share of query tokens present in the title.
func relevance(title, text string) float64 {
	want := normalize.TokenSet(text)
	if len(want) == 0 {
		return 1
	}
	have := normalize.TokenSet(title)
	hit := 0
	for t := range want {
		if _, ok := have[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}

// constraintCredit averages per-constraint credit. With no constraints the
// offer is fully compliant.
func (s *Scorer) constraintCredit(offer model.NormalizedOffer, c model.Constraints) float64 {
	var total float64
	n := 0

	if c.MinPrice != nil || c.MaxPrice != nil {
		total += s.priceCredit(offer, c)
		n++
	}

	if len(c.Attributes) > 0 {
		keys := make([]string, 0, len(c.Attributes))
		for k := range c.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		titleTokens := normalize.TokenSet(offer.Title)
		for _, k := range keys {
			total += attributeCredit(offer.Attributes, titleTokens, k, c.Attributes[k])
			n++
		}
	}

	if n == 0 {
		return 1
	}
	return total / float64(n)
}

// priceCredit is 1 inside [min,max], falls linearly to 0 across the
// tolerance band outside it, and is 0 beyond. Offers priced in another
// currency than the constraint get neutral credit.
func (s *Scorer) priceCredit(offer model.NormalizedOffer, c model.Constraints) float64 {
	want := c.Currency
	if want == "" {
		want = s.cfg.Currency
	}
	if !strings.EqualFold(want, offer.Currency) {
		return 0.5
	}
	scale, err := normalize.Scale(offer.Currency)
	if err != nil {
		return 0.5
	}
	price := float64(offer.PriceMinor) / math.Pow10(scale)

	var dev float64
	switch {
	case c.MinPrice != nil && price < *c.MinPrice:
		dev = (*c.MinPrice - price) / *c.MinPrice
	case c.MaxPrice != nil && price > *c.MaxPrice:
		if *c.MaxPrice == 0 {
			return 0
		}
		dev = (price - *c.MaxPrice) / *c.MaxPrice
	default:
		return 1
	}

	tol := s.cfg.PriceTolerance
	if tol <= 0 || dev > tol {
		return 0
	}
	return 1 - dev/tol
}

func attributeCredit(attrs map[string]string, titleTokens map[string]struct{}, key, want string) float64 {
	if got, ok := attrs[key]; ok {
		if normalize.FoldTitle(got) == normalize.FoldTitle(want) {
			return 1
		}
		return 0
	}
	wantTokens := normalize.TokenSet(want)
	if len(wantTokens) == 0 {
		return 0.5
	}
	for t := range wantTokens {
		if _, ok := titleTokens[t]; !ok {
			return 0.5
		}
	}
	return 1
}

func trustCredit(tier int) float64 {
	return clamp01(float64(tier) / MaxTrustTier)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
