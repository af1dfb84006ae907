// Package normalize turns raw provider results into comparable offers:
// canonical links, merchant identity, integer prices and stable offer keys.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/offer-sourcing/internal/model"
)

// DropReason names why a raw result was discarded.
type DropReason string

const (
	DropEmptyTitle       DropReason = "empty_title"
	DropMissingPrice     DropReason = "missing_price"
	DropUnparseablePrice DropReason = "unparseable_price"
	DropInvalidCurrency  DropReason = "invalid_currency"
)

// DropError reports a raw result that could not be normalized.
type DropError struct {
	Reason DropReason
	Err    error
}

func (e *DropError) Error() string {
	if e.Err == nil {
		return "normalize: dropped: " + string(e.Reason)
	}
	return "normalize: dropped: " + string(e.Reason) + ": " + e.Err.Error()
}

func (e *DropError) Unwrap() error { return e.Err }

// Config holds the static normalization tables.
type Config struct {
	BaseCurrency     string
	TrackingParams   []string
	TrackingPrefixes []string
	MerchantAliases  map[string]string
	FXRates          map[string]float64
	// TrustTiers maps provider name to its configured trust tier.
	TrustTiers map[string]int
}

// DefaultConfig returns the built-in tables with USD as base currency.
func DefaultConfig() Config {
	return Config{
		BaseCurrency:     "USD",
		TrackingParams:   DefaultTrackingParams,
		TrackingPrefixes: DefaultTrackingPrefixes,
		MerchantAliases:  DefaultMerchantAliases,
		FXRates:          DefaultFXRates,
	}
}

// Normalizer applies Config to raw results. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	base    string
	rules   URLRules
	aliases AliasTable
	fx      map[string]float64
	trust   map[string]int
}

// New builds a Normalizer from cfg, filling empty fields with defaults.
func New(cfg Config) *Normalizer {
	def := DefaultConfig()
	if cfg.BaseCurrency == "" {
		cfg.BaseCurrency = def.BaseCurrency
	}
	if cfg.TrackingParams == nil {
		cfg.TrackingParams = def.TrackingParams
	}
	if cfg.TrackingPrefixes == nil {
		cfg.TrackingPrefixes = def.TrackingPrefixes
	}
	if cfg.MerchantAliases == nil {
		cfg.MerchantAliases = def.MerchantAliases
	}
	if cfg.FXRates == nil {
		cfg.FXRates = def.FXRates
	}

	params := make([]string, len(cfg.TrackingParams))
	for i, p := range cfg.TrackingParams {
		params[i] = strings.ToLower(p)
	}
	prefixes := make([]string, len(cfg.TrackingPrefixes))
	for i, p := range cfg.TrackingPrefixes {
		prefixes[i] = strings.ToLower(p)
	}
	fx := make(map[string]float64, len(cfg.FXRates))
	for k, v := range cfg.FXRates {
		fx[strings.ToUpper(k)] = v
	}

	return &Normalizer{
		base:    strings.ToUpper(cfg.BaseCurrency),
		rules:   URLRules{Params: params, Prefixes: prefixes},
		aliases: MergeAliases(cfg.MerchantAliases),
		fx:      fx,
		trust:   cfg.TrustTiers,
	}
}

// BaseCurrency returns the currency offers are converted into when a rate exists.
func (n *Normalizer) BaseCurrency() string { return n.base }

// CanonicalURL applies the configured tracking rules to raw.
func (n *Normalizer) CanonicalURL(raw string) string {
	return CanonicalURL(raw, n.rules)
}

// Normalize converts one raw result. The returned offer has no score or
// group yet. A *DropError is returned when the result must be discarded.
func (n *Normalizer) Normalize(raw model.RawResult) (model.NormalizedOffer, error) {
	title := strings.Join(strings.Fields(raw.Title), " ")
	if title == "" {
		return model.NormalizedOffer{}, &DropError{Reason: DropEmptyTitle}
	}

	code := strings.ToUpper(strings.TrimSpace(raw.Price.Currency))
	if code == "" {
		code = DetectCurrency(raw.Price.Text)
	}
	if code == "" {
		code = n.base
	}
	scale, err := Scale(code)
	if err != nil {
		return model.NormalizedOffer{}, &DropError{Reason: DropInvalidCurrency, Err: err}
	}

	minor, err := ParseMinor(raw.Price.Amount, raw.Price.Text, scale)
	if err != nil {
		reason := DropUnparseablePrice
		if errors.Is(err, errNoPrice) {
			reason = DropMissingPrice
		}
		return model.NormalizedOffer{}, &DropError{Reason: reason, Err: err}
	}

	offer := model.NormalizedOffer{
		Title:      title,
		ImageURL:   strings.TrimSpace(raw.ImageURL),
		PriceMinor: minor,
		Currency:   code,
		Provider:   raw.Provider,
		TrustTier:  n.trust[raw.Provider],
		Provenance: []string{raw.Provider},
	}
	if len(raw.Attributes) > 0 {
		offer.Attributes = make(map[string]string, len(raw.Attributes))
		for k, v := range raw.Attributes {
			offer.Attributes[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}

	if code != n.base {
		if converted, ok := Convert(minor, code, n.base, n.fx); ok {
			offer.OriginalPriceMinor = minor
			offer.OriginalCurrency = code
			offer.PriceMinor = converted
			offer.Currency = n.base
		}
	}

	offer.URL = n.CanonicalURL(raw.URL)
	offer.Merchant = MerchantDomain(offer.URL, raw.Merchant, n.aliases)
	offer.Key = OfferKey(offer.URL, offer.Merchant, offer.Title, offer.PriceMinor, offer.Currency)
	return offer, nil
}

// NormalizeAll converts every raw result in order, counting drops by reason.
func (n *Normalizer) NormalizeAll(raws []model.RawResult) ([]model.NormalizedOffer, map[string]int) {
	offers := make([]model.NormalizedOffer, 0, len(raws))
	dropped := map[string]int{}
	for _, r := range raws {
		o, err := n.Normalize(r)
		if err != nil {
			var de *DropError
			if errors.As(err, &de) {
				dropped[string(de.Reason)]++
			} else {
				dropped[string(DropUnparseablePrice)]++
			}
			continue
		}
		offers = append(offers, o)
	}
	return offers, dropped
}

// OfferKey returns the stable identity of an offer: a hash of the canonical
// URL when there is one, otherwise a hash of merchant, folded title and the
// price rounded to whole major units.
func OfferKey(canonicalURL, merchant, title string, priceMinor int64, code string) string {
	var src string
	if canonicalURL != "" {
		src = "url\x00" + canonicalURL
	} else {
		src = "fallback\x00" + merchant + "\x00" + FoldTitle(title) + "\x00" +
			strconv.FormatInt(priceBucket(priceMinor, code), 10) + code
	}
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:16])
}

func priceBucket(minor int64, code string) int64 {
	scale, err := Scale(code)
	if err != nil || scale == 0 {
		return minor
	}
	pow := int64(math.Pow10(scale))
	return (minor + pow/2) / pow
}
