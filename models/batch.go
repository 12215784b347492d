package models

// Candidate pairs an extracted recipe with the candidate image URLs
// found for it. Candidates are what the upload pipeline hands to the
// catalog writer.
type Candidate struct {
	Recipe    Recipe
	ImageRefs []string
}

// ItemError reports a per-candidate rejection by input position. These
// are collected alongside successes; they never abort a batch.
type ItemError struct {
	File   int    `json:"file"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of one catalog batch write. PositionToKey
// maps input positions to assigned catalog keys so callers can
// correlate per-candidate side data (embeddings) with committed
// recipes.
type BatchResult struct {
	Catalog       map[string]Recipe `json:"catalog"`
	CommittedKeys []string          `json:"committed_keys"`
	PositionToKey map[int]string    `json:"position_to_key"`
	Errors        []ItemError       `json:"errors"`
}
