package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocKey = "jsondata/doc.json"

func TestLoadMissingDocumentIsEmpty(t *testing.T) {
	vs := NewVersionedStore[string](NewMemoryStore(), testDocKey)

	doc, version, err := vs.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Empty(t, doc)
	assert.Equal(t, "", version)
}

func TestSaveBootstrapThenLoad(t *testing.T) {
	vs := NewVersionedStore[string](NewMemoryStore(), testDocKey)

	saved, err := vs.Save(context.Background(), map[string]string{"1": "a"}, "")
	require.NoError(t, err)
	require.True(t, saved)

	doc, version, err := vs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "a"}, doc)
	assert.NotEmpty(t, version)
}

func TestBootstrapRaceIsCreateOnly(t *testing.T) {
	objects := NewMemoryStore()
	first := NewVersionedStore[string](objects, testDocKey)
	second := NewVersionedStore[string](objects, testDocKey)

	saved, err := first.Save(context.Background(), map[string]string{"1": "winner"}, "")
	require.NoError(t, err)
	require.True(t, saved)

	// The losing bootstrapper must see a conflict, not overwrite.
	saved, err = second.Save(context.Background(), map[string]string{"1": "loser"}, "")
	require.NoError(t, err)
	assert.False(t, saved)

	doc, _, err := first.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "winner", doc["1"])
}

func TestSaveStaleVersionConflicts(t *testing.T) {
	objects := NewMemoryStore()
	vs := NewVersionedStore[string](objects, testDocKey)

	saved, err := vs.Save(context.Background(), map[string]string{"1": "a"}, "")
	require.NoError(t, err)
	require.True(t, saved)

	_, staleVersion, err := vs.Load(context.Background())
	require.NoError(t, err)

	// A competing write bumps the version.
	doc, version, err := vs.Load(context.Background())
	require.NoError(t, err)
	doc["2"] = "b"
	saved, err = vs.Save(context.Background(), doc, version)
	require.NoError(t, err)
	require.True(t, saved)

	// The stale writer gets (false, nil), never an error.
	saved, err = vs.Save(context.Background(), map[string]string{"1": "stale"}, staleVersion)
	require.NoError(t, err)
	assert.False(t, saved)

	doc, _, err = vs.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc, 2)
}

func TestSaveAgainstCurrentVersionSucceeds(t *testing.T) {
	vs := NewVersionedStore[int](NewMemoryStore(), testDocKey)

	saved, err := vs.Save(context.Background(), map[string]int{"1": 1}, "")
	require.NoError(t, err)
	require.True(t, saved)

	doc, version, err := vs.Load(context.Background())
	require.NoError(t, err)
	doc["2"] = 2
	saved, err = vs.Save(context.Background(), doc, version)
	require.NoError(t, err)
	assert.True(t, saved)
}

func TestMemoryStoreVersionsAdvance(t *testing.T) {
	m := NewMemoryStore()

	v1, err := m.Put(context.Background(), "k", []byte("a"), PutOptions{})
	require.NoError(t, err)
	v2, err := m.Put(context.Background(), "k", []byte("b"), PutOptions{IfMatch: v1})
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	_, err = m.Put(context.Background(), "k", []byte("c"), PutOptions{IfMatch: v1})
	require.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStoreDeleteMissingIsNoop(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.Delete(context.Background(), "never-existed"))
}

func TestMemoryStoreListByPrefix(t *testing.T) {
	m := NewMemoryStore()
	for _, key := range []string{"uploads/a/1", "uploads/a/2", "uploads/b/1", "jsondata/doc.json"} {
		_, err := m.Put(context.Background(), key, []byte("x"), PutOptions{})
		require.NoError(t, err)
	}

	keys, err := m.List(context.Background(), "uploads/a/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"uploads/a/1", "uploads/a/2"}, keys)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.Put(context.Background(), "k", []byte("abc"), PutOptions{})
	require.NoError(t, err)

	body, _, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	body[0] = 'z'

	again, _, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		factor := time.Duration(int64(1) << attempt)
		lower := 100 * time.Millisecond * factor
		upper := 500 * time.Millisecond * factor
		for i := 0; i < 50; i++ {
			d := Backoff(attempt)
			assert.GreaterOrEqual(t, d, lower, "attempt %d", attempt)
			assert.LessOrEqual(t, d, upper, "attempt %d", attempt)
		}
	}
}

func TestSleepHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
