package remote

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/kioskolabs/kiosko-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	inserts  int
	healthy  bool
	closed   bool
	insertFn func() error
}

func (s *stubClient) Insert(ctx context.Context, sale models.SaleRecord) error {
	s.inserts++
	if s.insertFn != nil {
		return s.insertFn()
	}
	return nil
}

func (s *stubClient) IsHealthy() bool { return s.healthy }
func (s *stubClient) Close()          { s.closed = true }

func sale() models.SaleRecord {
	return models.SaleRecord{ID: "s-1", TerminalID: "kiosk-1", CreatedAt: time.Now().UTC()}
}

func TestReconnecting_DialFailureSurfacesAsInsertError(t *testing.T) {
	dialErr := errors.New("connection refused")
	r := NewReconnecting(func(ctx context.Context) (Store, error) {
		return nil, dialErr
	}, slog.Default())

	err := r.Insert(context.Background(), sale())
	assert.ErrorIs(t, err, dialErr)
}

func TestReconnecting_DialsOnceWhileHealthy(t *testing.T) {
	client := &stubClient{healthy: true}
	dials := 0
	r := NewReconnecting(func(ctx context.Context) (Store, error) {
		dials++
		return client, nil
	}, slog.Default())

	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, sale()))
	require.NoError(t, r.Insert(ctx, sale()))

	assert.Equal(t, 1, dials)
	assert.Equal(t, 2, client.inserts)
}

func TestReconnecting_RedialsAfterUnhealthyFailure(t *testing.T) {
	dead := &stubClient{healthy: false, insertFn: func() error { return errors.New("broken pipe") }}
	alive := &stubClient{healthy: true}

	clients := []*stubClient{dead, alive}
	dials := 0
	r := NewReconnecting(func(ctx context.Context) (Store, error) {
		c := clients[dials]
		dials++
		return c, nil
	}, slog.Default())

	ctx := context.Background()
	assert.Error(t, r.Insert(ctx, sale()))
	assert.True(t, dead.closed, "unhealthy client must be closed when dropped")

	require.NoError(t, r.Insert(ctx, sale()))
	assert.Equal(t, 2, dials)
	assert.Equal(t, 1, alive.inserts)
}

func TestReconnecting_HealthyFailureKeepsClient(t *testing.T) {
	client := &stubClient{healthy: true, insertFn: func() error { return errors.New("duplicate key") }}
	dials := 0
	r := NewReconnecting(func(ctx context.Context) (Store, error) {
		dials++
		return client, nil
	}, slog.Default())

	ctx := context.Background()
	assert.Error(t, r.Insert(ctx, sale()))
	assert.Error(t, r.Insert(ctx, sale()))
	assert.Equal(t, 1, dials, "a healthy client must not be redialed on per-record errors")
}
