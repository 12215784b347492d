package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// VersionedStore wraps one JSON document in an ObjectStore, pairing
// every read with the version token needed to write it back. It is the
// only way the catalog layer touches documents: load a snapshot,
// mutate a copy, save against the snapshot's version.
type VersionedStore[V any] struct {
	store ObjectStore
	key   string
}

// NewVersionedStore wraps the document at key.
func NewVersionedStore[V any](s ObjectStore, key string) *VersionedStore[V] {
	return &VersionedStore[V]{store: s, key: key}
}

// Key returns the document key, for log and error messages.
func (v *VersionedStore[V]) Key() string {
	return v.key
}

// Load returns the document and its version token. A missing object is
// an empty document with an empty version, not an error.
func (v *VersionedStore[V]) Load(ctx context.Context) (map[string]V, string, error) {
	body, version, err := v.store.Get(ctx, v.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return map[string]V{}, "", nil
		}
		return nil, "", err
	}

	var doc map[string]V
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", v.key, err)
	}
	if doc == nil {
		doc = map[string]V{}
	}

	return doc, version, nil
}

// Save writes the whole document conditionally. An empty version means
// first-write bootstrap, which still writes create-only so racing
// bootstrappers serialize instead of overwriting each other. Returns
// (false, nil) only on a version conflict; every other failure is an
// error.
func (v *VersionedStore[V]) Save(ctx context.Context, doc map[string]V, version string) (bool, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", v.key, err)
	}

	opts := PutOptions{ContentType: "application/json"}
	if version == "" {
		opts.IfNoneMatch = true
	} else {
		opts.IfMatch = version
	}

	if _, err := v.store.Put(ctx, v.key, body, opts); err != nil {
		if errors.Is(err, ErrConflict) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
