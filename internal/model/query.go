// Package model defines the shared data types of the sourcing engine.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/currency"
)

// ErrInvalidQuery is returned when a query cannot be dispatched. It is the
// only error a search surfaces to its caller.
var ErrInvalidQuery = eris.New("invalid query")

// Constraints are the structured filters attached to a query. Prices are in
// major currency units.
type Constraints struct {
	MinPrice   *float64          `json:"min_price,omitempty"`
	MaxPrice   *float64          `json:"max_price,omitempty"`
	Currency   string            `json:"currency,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Empty reports whether no constraint is set.
func (c Constraints) Empty() bool {
	return c.MinPrice == nil && c.MaxPrice == nil && len(c.Attributes) == 0
}

// CanonicalQuery is the provider-agnostic unit of work. Build it with
// NewCanonicalQuery; the engine only reads it.
type CanonicalQuery struct {
	Phrase      string      `json:"phrase"`
	Category    string      `json:"category,omitempty"`
	Constraints Constraints `json:"constraints"`
}

// NewCanonicalQuery normalizes whitespace, copies the attribute map and
// validates the result.
func NewCanonicalQuery(phrase, category string, c Constraints) (CanonicalQuery, error) {
	q := CanonicalQuery{
		Phrase:   collapseSpace(phrase),
		Category: collapseSpace(category),
		Constraints: Constraints{
			MinPrice: copyFloat(c.MinPrice),
			MaxPrice: copyFloat(c.MaxPrice),
			Currency: strings.ToUpper(strings.TrimSpace(c.Currency)),
		},
	}
	if len(c.Attributes) > 0 {
		q.Constraints.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			k = strings.ToLower(collapseSpace(k))
			if k == "" {
				continue
			}
			q.Constraints.Attributes[k] = collapseSpace(v)
		}
	}
	if err := q.Validate(); err != nil {
		return CanonicalQuery{}, err
	}
	return q, nil
}

// Validate checks that the query can be dispatched.
func (q CanonicalQuery) Validate() error {
	if collapseSpace(q.Phrase) == "" && collapseSpace(q.Category) == "" && q.Constraints.Empty() {
		return eris.Wrap(ErrInvalidQuery, "empty phrase and no constraints")
	}
	c := q.Constraints
	if c.MinPrice != nil && *c.MinPrice < 0 {
		return eris.Wrap(ErrInvalidQuery, "negative min price")
	}
	if c.MaxPrice != nil && *c.MaxPrice < 0 {
		return eris.Wrap(ErrInvalidQuery, "negative max price")
	}
	if c.MinPrice != nil && c.MaxPrice != nil && *c.MinPrice > *c.MaxPrice {
		return eris.Wrap(ErrInvalidQuery, "min price exceeds max price")
	}
	if c.Currency != "" {
		if _, err := currency.ParseISO(c.Currency); err != nil {
			return eris.Wrapf(ErrInvalidQuery, "unknown currency %q", c.Currency)
		}
	}
	return nil
}

// SearchText is the text adapters send upstream: the phrase, or the category
// hint when the phrase is empty.
func (q CanonicalQuery) SearchText() string {
	if p := collapseSpace(q.Phrase); p != "" {
		return p
	}
	return collapseSpace(q.Category)
}

// CacheKey returns a stable key for the query. Case and whitespace in the
// phrase and the order of attribute constraints do not affect it.
func (q CanonicalQuery) CacheKey() string {
	var b strings.Builder
	b.WriteString("v1")
	b.WriteString("|p=")
	b.WriteString(strings.ToLower(collapseSpace(q.Phrase)))
	b.WriteString("|c=")
	b.WriteString(strings.ToLower(collapseSpace(q.Category)))
	b.WriteString("|min=")
	b.WriteString(formatPrice(q.Constraints.MinPrice))
	b.WriteString("|max=")
	b.WriteString(formatPrice(q.Constraints.MaxPrice))
	b.WriteString("|cur=")
	b.WriteString(strings.ToUpper(strings.TrimSpace(q.Constraints.Currency)))

	keys := make([]string, 0, len(q.Constraints.Attributes))
	attrs := make(map[string]string, len(q.Constraints.Attributes))
	for k, v := range q.Constraints.Attributes {
		nk := strings.ToLower(collapseSpace(k))
		keys = append(keys, nk)
		attrs[nk] = strings.ToLower(collapseSpace(v))
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("|a:")
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(attrs[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v. Handy for building constraints.
func Float(v float64) *float64 {
	return &v
}
