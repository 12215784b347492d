package services

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two embeddings of different
// lengths are compared. This is a hard failure, never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CosineSimilarity returns the cosine of the angle between two
// equal-length vectors, in [-1, 1]. Zero-magnitude inputs score
// exactly 0 rather than NaN so a degenerate embedding can never rank
// above a real match.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// FindMostSimilar linearly scans the index for the entry closest to
// query. An empty index yields ("", 0), as does one where nothing
// scores above zero. Ties are unspecified.
func FindMostSimilar(query []float64, index map[string][]float64) (string, float64, error) {
	bestKey := ""
	bestScore := 0.0

	for key, vector := range index {
		score, err := CosineSimilarity(query, vector)
		if err != nil {
			return "", 0, fmt.Errorf("comparing against %q: %w", key, err)
		}
		if score > bestScore {
			bestKey = key
			bestScore = score
		}
	}

	return bestKey, bestScore, nil
}

// DuplicateDetector flags candidates whose embedding sits too close to
// one already in the index.
type DuplicateDetector struct {
	threshold float64
}

// NewDuplicateDetector creates a detector with the given similarity
// threshold (0.85 by default in config).
func NewDuplicateDetector(threshold float64) *DuplicateDetector {
	return &DuplicateDetector{threshold: threshold}
}

// Check reports whether query is a duplicate of an indexed entry. The
// comparison is strict: a score exactly at the threshold is not a
// duplicate. The matched key and score come back either way so callers
// can build "duplicate of X" messages.
func (d *DuplicateDetector) Check(query []float64, index map[string][]float64) (bool, string, float64, error) {
	key, score, err := FindMostSimilar(query, index)
	if err != nil {
		return false, "", 0, err
	}
	if key == "" {
		return false, "", 0, nil
	}

	return score > d.threshold, key, score, nil
}
