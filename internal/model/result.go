package model

import "time"

// SessionStats summarizes the pipeline counts of one session.
type SessionStats struct {
	RawResults      int            `json:"raw_results"`
	Normalized      int            `json:"normalized"`
	Dropped         map[string]int `json:"dropped,omitempty"`
	UniqueOffers    int            `json:"unique_offers"`
	DuplicateGroups int            `json:"duplicate_groups"`
}

// SourcingResult is the output of a search. ServedFromCache is set per call
// and is never part of the cached payload.
type SourcingResult struct {
	SessionID      string                 `json:"session_id"`
	CacheKey       string                 `json:"cache_key"`
	Query          CanonicalQuery         `json:"query"`
	GeneratedAt    time.Time              `json:"generated_at"`
	Offers         []NormalizedOffer      `json:"offers"`
	ProviderStatus []ProviderStatusReport `json:"provider_status"`
	Stats          SessionStats           `json:"stats"`

	ServedFromCache bool `json:"served_from_cache"`
}

// Succeeded counts providers that completed successfully.
func (r *SourcingResult) Succeeded() int {
	n := 0
	for _, s := range r.ProviderStatus {
		if s.Status == StatusSucceeded {
			n++
		}
	}
	return n
}
