package sales

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/kioskolabs/kiosko-sync/internal/models"
	"github.com/kioskolabs/kiosko-sync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecorder(t *testing.T) (*Recorder, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "kiosko.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewRecorder(s, slog.Default()), s
}

func TestCreateSale_CommitsToBothCollections(t *testing.T) {
	ctx := context.Background()
	r, s := testRecorder(t)

	cart := []models.LineItem{{SKU: "A", Qty: 2, UnitPrice: 5}}
	sale, err := r.CreateSale(ctx, cart, 10, "kiosk-1")
	require.NoError(t, err)

	assert.NotEmpty(t, sale.ID)
	assert.Equal(t, "kiosk-1", sale.TerminalID)
	assert.Equal(t, 10.0, sale.Total)
	assert.False(t, sale.Synced)
	assert.False(t, sale.CreatedAt.IsZero())

	// The record must land in sales and in the sync queue with the same id.
	rec, err := s.Get(ctx, models.CollectionSales, sale.ID)
	require.NoError(t, err)
	stored, err := models.UnmarshalSale(rec.Payload)
	require.NoError(t, err)
	assert.Equal(t, sale.ID, stored.ID)
	assert.False(t, stored.Synced)

	queued, err := s.Get(ctx, models.CollectionSyncQueue, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Payload, queued.Payload)
}

func TestCreateSale_EmptyCartRejectedBeforePersistence(t *testing.T) {
	ctx := context.Background()
	r, s := testRecorder(t)

	_, err := r.CreateSale(ctx, nil, 0, "kiosk-1")
	assert.ErrorIs(t, err, ErrEmptyCart)

	for _, c := range []models.Collection{models.CollectionSales, models.CollectionSyncQueue} {
		n, err := s.Count(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, 0, n, "collection %s must stay empty", c)
	}
}

func TestCreateSale_InputValidation(t *testing.T) {
	ctx := context.Background()
	r, _ := testRecorder(t)

	cart := []models.LineItem{{SKU: "A", Qty: 1, UnitPrice: 5}}

	_, err := r.CreateSale(ctx, cart, -1, "kiosk-1")
	assert.ErrorIs(t, err, ErrInvalidTotal)

	_, err = r.CreateSale(ctx, cart, 5, "")
	assert.ErrorIs(t, err, ErrMissingTerminal)

	_, err = r.CreateSale(ctx, []models.LineItem{{SKU: "A", Qty: 0, UnitPrice: 5}}, 0, "kiosk-1")
	assert.ErrorIs(t, err, ErrInvalidLineItem)

	_, err = r.CreateSale(ctx, []models.LineItem{{SKU: "A", Qty: 1, UnitPrice: -5}}, 0, "kiosk-1")
	assert.ErrorIs(t, err, ErrInvalidLineItem)
}

func TestCreateSale_UniqueIDs(t *testing.T) {
	ctx := context.Background()
	r, _ := testRecorder(t)

	cart := []models.LineItem{{SKU: "A", Qty: 1, UnitPrice: 5}}
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		sale, err := r.CreateSale(ctx, cart, 5, "kiosk-1")
		require.NoError(t, err)
		assert.False(t, seen[sale.ID], "sale id reused: %s", sale.ID)
		seen[sale.ID] = true
	}
}

func TestCreateSale_StoreFailurePropagates(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "kiosko.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	r := NewRecorder(s, slog.Default())
	_, err = r.CreateSale(context.Background(), []models.LineItem{{SKU: "A", Qty: 1, UnitPrice: 1}}, 1, "kiosk-1")
	assert.Error(t, err)
}
