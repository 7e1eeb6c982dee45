package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kioskolabs/kiosko-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kiosko.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosko.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kiosko.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, models.CollectionSales, "s-1", []byte(`{"id":"s-1"}`)))
	require.NoError(t, s1.Close())

	// Records written before a restart must still be there after it.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	rec, err := s2.Get(ctx, models.CollectionSales, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"s-1"}`), rec.Payload)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosko.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestPut_IdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	payload := []byte(`{"id":"p-1","sku":"A"}`)
	require.NoError(t, s.Put(ctx, models.CollectionProducts, "p-1", payload))
	require.NoError(t, s.Put(ctx, models.CollectionProducts, "p-1", payload))

	all, err := s.GetAll(ctx, models.CollectionProducts)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "p-1", all[0].ID)
	assert.Equal(t, payload, all[0].Payload)
}

func TestPut_UpsertReplacesPayload(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Put(ctx, models.CollectionProducts, "p-1", []byte(`{"stock":1}`)))
	require.NoError(t, s.Put(ctx, models.CollectionProducts, "p-1", []byte(`{"stock":5}`)))

	rec, err := s.Get(ctx, models.CollectionProducts, "p-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"stock":5}`), rec.Payload)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), models.CollectionSales, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_MissingIDIsNotAnError(t *testing.T) {
	s := openTestStore(t)

	err := s.Delete(context.Background(), models.CollectionSyncQueue, "never-existed")
	assert.NoError(t, err)
}

func TestGetAll_OrderedSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, models.CollectionSales, id, []byte(`{}`)))
	}

	all, err := s.GetAll(ctx, models.CollectionSales)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[2].ID)
}

func TestUpdate_TransactionSpansCollections(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.Put(ctx, models.CollectionSyncQueue, "s-1", []byte(`{}`)); err != nil {
			return err
		}
		return tx.Put(ctx, models.CollectionSales, "s-1", []byte(`{}`))
	})
	require.NoError(t, err)

	n, err := s.Count(ctx, models.CollectionSyncQueue)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Count(ctx, models.CollectionSales)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.Put(ctx, models.CollectionSyncQueue, "s-1", []byte(`{}`)); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	// The first write must not have leaked out of the failed transaction.
	n, err := s.Count(ctx, models.CollectionSyncQueue)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUnknownCollectionRejected(t *testing.T) {
	s := openTestStore(t)

	err := s.Put(context.Background(), models.Collection("receipts"), "x", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownCollection)
}
