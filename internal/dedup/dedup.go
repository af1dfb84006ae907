// Package dedup collapses offers that describe the same listing and links
// near-identical offers sold by different merchants.
package dedup

import (
	"sort"

	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/internal/normalize"
)

// Config holds the soft-dedup thresholds.
type Config struct {
	// TitleSimilarity is the minimum token-set Jaccard similarity.
	TitleSimilarity float64
	// PriceTolerance is the maximum relative price gap, measured against
	// the lower of the two prices.
	PriceTolerance float64
}

// DefaultConfig returns the starting thresholds: 0.9 similarity, ±3% price.
func DefaultConfig() Config {
	return Config{TitleSimilarity: 0.9, PriceTolerance: 0.03}
}

// Result is the outcome of Dedupe.
type Result struct {
	Offers []model.NormalizedOffer
	// Merged counts offers folded into another by exact key.
	Merged int
	// Groups counts soft duplicate groups with two or more members.
	Groups int
}

// Dedupe merges offers sharing a key and annotates soft duplicate groups.
// The output is sorted by offer key and does not depend on input order.
func Dedupe(offers []model.NormalizedOffer, cfg Config) Result {
	merged := mergeExact(offers)
	groups := linkSoft(merged, cfg)
	return Result{
		Offers: merged,
		Merged: len(offers) - len(merged),
		Groups: groups,
	}
}

func mergeExact(offers []model.NormalizedOffer) []model.NormalizedOffer {
	byKey := make(map[string][]model.NormalizedOffer, len(offers))
	keys := make([]string, 0, len(offers))
	for _, o := range offers {
		if _, ok := byKey[o.Key]; !ok {
			keys = append(keys, o.Key)
		}
		byKey[o.Key] = append(byKey[o.Key], o)
	}
	sort.Strings(keys)

	out := make([]model.NormalizedOffer, 0, len(keys))
	for _, k := range keys {
		out = append(out, merge(byKey[k]))
	}
	return out
}

// merge picks the representative of an exact-key group: lowest price, then
// higher trust tier, then provider and title for a stable choice. Provenance
// is the sorted union of all members.
func merge(members []model.NormalizedOffer) model.NormalizedOffer {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.PriceMinor != b.PriceMinor {
			return a.PriceMinor < b.PriceMinor
		}
		if a.TrustTier != b.TrustTier {
			return a.TrustTier > b.TrustTier
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ImageURL < b.ImageURL
	})

	rep := members[0]
	seen := map[string]bool{}
	var provenance []string
	attrs := map[string]string{}
	for _, m := range members {
		for _, p := range m.Provenance {
			if !seen[p] {
				seen[p] = true
				provenance = append(provenance, p)
			}
		}
		for k, v := range m.Attributes {
			if _, ok := attrs[k]; !ok {
				attrs[k] = v
			}
		}
	}
	for k, v := range rep.Attributes {
		attrs[k] = v
	}
	sort.Strings(provenance)
	rep.Provenance = provenance
	if len(attrs) > 0 {
		rep.Attributes = attrs
	}
	return rep
}

// linkSoft annotates offers in place and returns the number of groups.
// Linking is transitive: A~B and B~C put all three in one group.
func linkSoft(offers []model.NormalizedOffer, cfg Config) int {
	n := len(offers)
	tokens := make([]map[string]struct{}, n)
	for i := range offers {
		tokens[i] = normalize.TokenSet(offers[i].Title)
	}

	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if similar(offers[i], offers[j], tokens[i], tokens[j], cfg) {
				uf.union(i, j)
			}
		}
	}

	members := map[int][]int{}
	for i := 0; i < n; i++ {
		r := uf.find(i)
		members[r] = append(members[r], i)
	}

	groups := 0
	for _, idx := range members {
		if len(idx) < 2 {
			continue
		}
		groups++
		// offers is sorted by key, so the first member holds the smallest.
		id := "g_" + offers[idx[0]].Key[:min(16, len(offers[idx[0]].Key))]
		for _, i := range idx {
			offers[i].GroupID = id
			offers[i].GroupSize = len(idx)
		}
	}
	return groups
}

func similar(a, b model.NormalizedOffer, ta, tb map[string]struct{}, cfg Config) bool {
	if a.Merchant == b.Merchant || a.Currency != b.Currency {
		return false
	}
	lo, hi := a.PriceMinor, b.PriceMinor
	if lo > hi {
		lo, hi = hi, lo
	}
	if float64(hi-lo) > cfg.PriceTolerance*float64(lo) {
		return false
	}
	return normalize.Jaccard(ta, tb) >= cfg.TitleSimilarity
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
