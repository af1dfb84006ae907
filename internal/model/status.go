package model

import "time"

// ProviderStatus is the outcome of one adapter within one session.
type ProviderStatus string

const (
	StatusSucceeded          ProviderStatus = "succeeded"
	StatusTimedOut           ProviderStatus = "timed_out"
	StatusRateLimited        ProviderStatus = "rate_limited"
	StatusErrored            ProviderStatus = "errored"
	StatusSkippedCircuitOpen ProviderStatus = "skipped_circuit_open"
)

// ProviderStatusReport explains one provider's contribution to a session.
type ProviderStatusReport struct {
	Provider    string         `json:"provider"`
	Status      ProviderStatus `json:"status"`
	Latency     time.Duration  `json:"latency"`
	ResultCount int            `json:"result_count"`
	Attempts    int            `json:"attempts,omitempty"`
	Message     string         `json:"message,omitempty"`
}
