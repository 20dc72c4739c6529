package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation so bootstrap resamples
// are reproducible from a run's seed.
type RNGPort interface {
	// Stream creates a deterministic stream for one analysis of one site in a run.
	// The same (runID, analysis, siteKey, baseSeed) always yields the same draws.
	Stream(ctx context.Context, runID, analysis, siteKey string, baseSeed int64) (*rand.Rand, error)
}
