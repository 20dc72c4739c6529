package rng

import (
	"context"
	"math/rand"
)

// SeededAdapter implements ports.RNGPort with math/rand sources derived
// from a base seed and stream names.
type SeededAdapter struct{}

// NewSeededAdapter creates a seeded RNG adapter
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{}
}

// Stream derives a seed from runID, analysis and site so that two sites in
// the same run never share draws.
func (r *SeededAdapter) Stream(ctx context.Context, runID, analysis, siteKey string, baseSeed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := baseSeed
	if runID != "" {
		seed = int64(hashString(runID)) + seed
	}
	if analysis != "" {
		seed = int64(hashString(analysis)) + seed
	}
	if siteKey != "" {
		seed = int64(hashString(siteKey)) + seed
	}
	return rand.New(rand.NewSource(seed)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
