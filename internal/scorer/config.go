// Package scorer ranks normalized offers against a query.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// MaxTrustTier is the highest configurable provider trust tier.
const MaxTrustTier = 3

// Weights are the fixed coefficients of the score's weighted sum.
type Weights struct {
	Relevance   float64 `mapstructure:"relevance_weight"`
	Constraints float64 `mapstructure:"constraint_weight"`
	Trust       float64 `mapstructure:"trust_weight"`
}

// Sum returns the sum of all component weights.
func (w Weights) Sum() float64 {
	return w.Relevance + w.Constraints + w.Trust
}

// Config controls scoring.
type Config struct {
	Weights Weights

	// PriceTolerance is the relative distance outside [min,max] that still
	// earns partial credit, e.g. 0.10 for 10%.
	PriceTolerance float64

	// Currency is assumed for price constraints that name none.
	Currency string
}

// DefaultConfig returns the documented defaults. Weights sum to 1.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Relevance:   0.5,
			Constraints: 0.4,
			Trust:       0.1,
		},
		PriceTolerance: 0.10,
		Currency:       "USD",
	}
}

// ValidateConfig checks that a Config is internally consistent.
func ValidateConfig(c Config) error {
	var errs []string

	weights := map[string]float64{
		"relevance_weight":  c.Weights.Relevance,
		"constraint_weight": c.Weights.Constraints,
		"trust_weight":      c.Weights.Trust,
	}
	for _, name := range []string{"relevance_weight", "constraint_weight", "trust_weight"} {
		if weights[name] < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := c.Weights.Sum()
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	} else if math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.3f", sum))
	}

	if c.PriceTolerance < 0 || c.PriceTolerance > 1 {
		errs = append(errs, "price_tolerance must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
