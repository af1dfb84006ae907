package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/offer-sourcing/internal/model"
)

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	return s
}

func query(t *testing.T, phrase string, c model.Constraints) model.CanonicalQuery {
	t.Helper()
	q, err := model.NewCanonicalQuery(phrase, "", c)
	require.NoError(t, err)
	return q
}

func offer(key, title string, priceMinor int64) model.NormalizedOffer {
	return model.NormalizedOffer{Key: key, Title: title, PriceMinor: priceMinor, Currency: "USD"}
}

func TestRank_OverBudgetIsDownRankedNotExcluded(t *testing.T) {
	s := newScorer(t)
	q := query(t, "wireless noise cancelling headphones", model.Constraints{MaxPrice: model.Float(50)})

	strong := offer("a", "Wireless Noise Cancelling Headphones, Black", 7500)
	weak := offer("b", "Wireless Headphones", 4500)

	ranked := s.Rank([]model.NormalizedOffer{strong, weak}, q)
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].Key)
	assert.Equal(t, "a", ranked[1].Key)
	assert.InDelta(t, 0.65, ranked[0].Score, 1e-9)
	assert.InDelta(t, 0.5, ranked[1].Score, 1e-9)
	assert.InDelta(t, 0.5, ranked[1].ScoreDetail.Relevance, 1e-9)
	assert.Zero(t, ranked[1].ScoreDetail.Constraints)
}

func TestPriceCredit(t *testing.T) {
	s := newScorer(t)
	c := model.Constraints{MinPrice: model.Float(20), MaxPrice: model.Float(50)}

	tests := []struct {
		name  string
		price int64
		want  float64
	}{
		{"inside", 3000, 1},
		{"at max", 5000, 1},
		{"5% over", 5250, 0.5},
		{"far over", 7500, 0},
		{"5% under", 1900, 0.5},
		{"far under", 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.priceCredit(offer("k", "x", tt.price), c), 1e-9)
		})
	}
}

func TestPriceCredit_OtherCurrencyIsNeutral(t *testing.T) {
	s := newScorer(t)
	o := offer("k", "x", 100)
	o.Currency = "SEK"
	assert.InDelta(t, 0.5, s.priceCredit(o, model.Constraints{MaxPrice: model.Float(50)}), 1e-9)
}

func TestAttributeCredit(t *testing.T) {
	title := map[string]struct{}{"black": {}, "cabl": {}}

	assert.Equal(t, 1.0, attributeCredit(map[string]string{"color": "Black"}, nil, "color", "black"))
	assert.Equal(t, 0.0, attributeCredit(map[string]string{"color": "white"}, nil, "color", "black"))
	assert.Equal(t, 1.0, attributeCredit(nil, title, "color", "black"))
	assert.Equal(t, 0.5, attributeCredit(nil, title, "color", "red"))
}

func TestScore_NoConstraintsFullCredit(t *testing.T) {
	s := newScorer(t)
	q := query(t, "oak desk", model.Constraints{})

	score, bd := s.Score(offer("k", "Oak Desk", 10000), q)
	assert.InDelta(t, 0.4, bd.Constraints, 1e-9)
	assert.InDelta(t, 0.9, score, 1e-9)
}

func TestScore_TrustTier(t *testing.T) {
	s := newScorer(t)
	q := query(t, "oak desk", model.Constraints{})

	o := offer("k", "Oak Desk", 10000)
	o.TrustTier = MaxTrustTier
	score, bd := s.Score(o, q)
	assert.InDelta(t, 0.1, bd.Trust, 1e-9)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestScore_Deterministic(t *testing.T) {
	s := newScorer(t)
	q := query(t, "usb c cable 2m", model.Constraints{
		MaxPrice:   model.Float(15),
		Attributes: map[string]string{"color": "black", "length": "2m"},
	})
	o := offer("k", "Anker USB-C to USB-C Cable 2m Black", 1299)

	first, _ := s.Score(o, q)
	for i := 0; i < 50; i++ {
		got, _ := s.Score(o, q)
		require.Equal(t, first, got)
	}
	assert.GreaterOrEqual(t, first, 0.0)
	assert.LessOrEqual(t, first, 1.0)
}

func TestRank_TieBreaks(t *testing.T) {
	s := newScorer(t)
	q := query(t, "lamp", model.Constraints{})

	ranked := s.Rank([]model.NormalizedOffer{
		offer("c", "Lamp", 2000),
		offer("b", "Lamp", 1000),
		offer("a", "Lamp", 2000),
	}, q)

	keys := []string{ranked[0].Key, ranked[1].Key, ranked[2].Key}
	assert.Equal(t, []string{"b", "a", "c"}, keys)
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	s := newScorer(t)
	in := []model.NormalizedOffer{offer("a", "Lamp", 1000)}
	_ = s.Rank(in, query(t, "lamp", model.Constraints{}))
	assert.Zero(t, in[0].Score)
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(DefaultConfig()))

	bad := DefaultConfig()
	bad.Weights.Trust = -0.1
	assert.Error(t, ValidateConfig(bad))

	bad = DefaultConfig()
	bad.Weights.Relevance = 0.9
	err := ValidateConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights should sum to 1")

	bad = DefaultConfig()
	bad.PriceTolerance = 2
	assert.Error(t, ValidateConfig(bad))

	_, err = New(Config{})
	assert.Error(t, err)
}
