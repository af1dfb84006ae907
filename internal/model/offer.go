package model

// RawPrice is a price as a provider reported it. Amount is set when the
// provider returned a number; Text holds string forms such as "$1,299.99".
type RawPrice struct {
	Amount   *float64 `json:"amount,omitempty"`
	Text     string   `json:"text,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

// RawResult is one item as returned by a provider adapter. It lives only for
// the duration of a session; Payload is written to the audit sink after
// redaction and never shown to users.
type RawResult struct {
	Provider   string            `json:"provider"`
	Title      string            `json:"title"`
	Price      RawPrice          `json:"price"`
	URL        string            `json:"url,omitempty"`
	ImageURL   string            `json:"image_url,omitempty"`
	Merchant   string            `json:"merchant,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Payload    map[string]any    `json:"payload,omitempty"`
}

// ScoreBreakdown records the weighted components behind an offer's score.
type ScoreBreakdown struct {
	Relevance   float64 `json:"relevance"`
	Constraints float64 `json:"constraints"`
	Trust       float64 `json:"trust"`
}

// NormalizedOffer is the comparable form of a raw result. Prices are integer
// minor units of Currency.
type NormalizedOffer struct {
	Key        string            `json:"offer_key"`
	Title      string            `json:"title"`
	Merchant   string            `json:"merchant_domain"`
	URL        string            `json:"canonical_url,omitempty"`
	ImageURL   string            `json:"image_url,omitempty"`
	PriceMinor int64             `json:"price_minor"`
	Currency   string            `json:"currency"`
	Attributes map[string]string `json:"attributes,omitempty"`

	// OriginalPriceMinor and OriginalCurrency are set when the price was
	// converted into the base currency.
	OriginalPriceMinor int64  `json:"original_price_minor,omitempty"`
	OriginalCurrency   string `json:"original_currency,omitempty"`

	// Provider is the adapter that produced this row; TrustTier is its
	// configured tier.
	Provider   string   `json:"provider"`
	TrustTier  int      `json:"trust_tier"`
	Provenance []string `json:"provenance"`

	Score       float64        `json:"score"`
	ScoreDetail ScoreBreakdown `json:"score_detail"`

	// GroupID links near-identical offers from different merchants.
	GroupID   string `json:"group_id,omitempty"`
	GroupSize int    `json:"group_size,omitempty"`
}
