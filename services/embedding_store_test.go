package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/models"
)

func newTestEmbeddingStore(objects store.ObjectStore) (*EmbeddingStore, *store.VersionedStore[[]float64]) {
	index := store.NewVersionedStore[[]float64](objects, testIndexKey)
	es := NewEmbeddingStore(index, 3)
	es.sleep = func(context.Context, time.Duration) error { return nil }
	return es, index
}

func TestAddEmbeddingsMergesIntoExistingIndex(t *testing.T) {
	objects := store.NewMemoryStore()
	es, index := newTestEmbeddingStore(objects)

	saved, err := index.Save(context.Background(), map[string][]float64{
		"1": {0.1, 0.2},
	}, "")
	require.NoError(t, err)
	require.True(t, saved)

	require.NoError(t, es.AddEmbeddings(context.Background(), map[string][]float64{
		"2": {0.3, 0.4},
	}))

	vectors, err := es.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, []float64{0.1, 0.2}, vectors["1"])
	assert.Equal(t, []float64{0.3, 0.4}, vectors["2"])
}

func TestAddEmbeddingsEmptyInputIsNoop(t *testing.T) {
	objects := &conflictingStore{MemoryStore: store.NewMemoryStore()}
	es, _ := newTestEmbeddingStore(objects)

	require.NoError(t, es.AddEmbeddings(context.Background(), nil))
	assert.Zero(t, objects.putCalls)
}

func TestAddEmbeddingsRetriesConflict(t *testing.T) {
	objects := &conflictingStore{MemoryStore: store.NewMemoryStore(), conflictsLeft: 2}
	es, _ := newTestEmbeddingStore(objects)

	require.NoError(t, es.AddEmbeddings(context.Background(), map[string][]float64{
		"1": {1.0},
	}))

	vectors, err := es.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, vectors, "1")
}

func TestAddEmbeddingsExhaustsRetryBudget(t *testing.T) {
	objects := &conflictingStore{MemoryStore: store.NewMemoryStore(), conflictsLeft: 100}
	es, _ := newTestEmbeddingStore(objects)

	err := es.AddEmbeddings(context.Background(), map[string][]float64{"1": {1.0}})
	require.ErrorIs(t, err, ErrRetryBudgetExhausted)
}

func TestOrphans(t *testing.T) {
	index := map[string][]float64{
		"1": {0.1},
		"2": {0.2},
		"9": {0.9},
	}
	catalog := map[string]models.Recipe{
		"1": {Key: "1"},
		"2": {Key: "2"},
	}

	orphans := Orphans(index, catalog)
	assert.ElementsMatch(t, []string{"9"}, orphans)

	assert.Empty(t, Orphans(map[string][]float64{}, catalog))
}

func TestSweepIndexRemovesOrphans(t *testing.T) {
	objects := store.NewMemoryStore()
	catalog := store.NewVersionedStore[models.Recipe](objects, testCatalogKey)
	index := store.NewVersionedStore[[]float64](objects, testIndexKey)

	seedCatalog(t, catalog, map[string]models.Recipe{
		"1": {Key: "1", Title: "Soup"},
	})
	saved, err := index.Save(context.Background(), map[string][]float64{
		"1": {0.1},
		"2": {0.2}, // deleted recipe, vector left behind
		"3": {0.3},
	}, "")
	require.NoError(t, err)
	require.True(t, saved)

	sweeper := NewSweeper(catalog, index, nil, 3, 0)
	sweeper.sleep = func(context.Context, time.Duration) error { return nil }

	removed, err := sweeper.SweepIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	vectors, _, err := index.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Contains(t, vectors, "1")
}

func TestSweepIndexCleanIndexWritesNothing(t *testing.T) {
	objects := &conflictingStore{MemoryStore: store.NewMemoryStore()}
	catalog := store.NewVersionedStore[models.Recipe](objects, testCatalogKey)
	index := store.NewVersionedStore[[]float64](objects, testIndexKey)

	seedCatalog(t, catalog, map[string]models.Recipe{
		"1": {Key: "1", Title: "Soup"},
	})
	saved, err := index.Save(context.Background(), map[string][]float64{"1": {0.1}}, "")
	require.NoError(t, err)
	require.True(t, saved)
	putsAfterSeed := objects.putCalls

	sweeper := NewSweeper(catalog, index, nil, 3, 0)
	removed, err := sweeper.SweepIndex(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, putsAfterSeed, objects.putCalls)
}

func TestPruneStatuses(t *testing.T) {
	objects := store.NewMemoryStore()
	status := NewStatusService(objects, "upload-status/")

	old, err := status.Create(context.Background(), "old-job", 1)
	require.NoError(t, err)
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -45)
	require.NoError(t, status.Update(context.Background(), old))

	_, err = status.Create(context.Background(), "fresh-job", 1)
	require.NoError(t, err)

	sweeper := NewSweeper(nil, nil, status, 3, 30)
	pruned, err := sweeper.PruneStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = status.Get(context.Background(), "old-job")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = status.Get(context.Background(), "fresh-job")
	require.NoError(t, err)
}
