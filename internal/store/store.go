package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an object does not exist.
//
// Implementations must return an error that satisfies
// `errors.Is(err, ErrNotFound)` so callers can treat absence as an
// empty document rather than a failure.
var ErrNotFound = errors.New("object not found")

// ErrConflict is returned when a conditional write fails because the
// object's current version no longer matches the expected one, or the
// object already exists for a create-only write.
var ErrConflict = errors.New("conditional write conflict")

// PutOptions controls conditional writes.
type PutOptions struct {
	// IfMatch makes the write succeed only while the object's current
	// version token equals this value.
	IfMatch string
	// IfNoneMatch makes the write succeed only if the object does not
	// exist yet. Mutually exclusive with IfMatch.
	IfNoneMatch bool
	// ContentType is stored as object metadata.
	ContentType string
}

// ObjectStore is the minimal object-store contract the catalog layer
// needs: reads paired with an opaque version token and compare-and-swap
// writes keyed on that token. Nothing here locks; all concurrency
// control happens at write time.
type ObjectStore interface {
	// Get returns the object body and its current version token.
	Get(ctx context.Context, key string) ([]byte, string, error)

	// Put writes the whole object body and returns the new version
	// token. Conditional failures surface as ErrConflict.
	Put(ctx context.Context, key string, body []byte, opts PutOptions) (string, error)

	// Delete removes an object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, key string) error

	// List returns the keys under a prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
