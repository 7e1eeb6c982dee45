package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_StartsOffline(t *testing.T) {
	m := NewMonitor("localhost:1", time.Second, slog.Default())
	assert.False(t, m.IsOnline())
}

func TestMonitor_TransitionFiresEvent(t *testing.T) {
	m := NewMonitor("unused", time.Second, slog.Default())

	probeErr := errors.New("unreachable")
	m.probe = func(ctx context.Context) error { return probeErr }

	ctx := context.Background()
	m.check(ctx)
	assert.False(t, m.IsOnline())

	probeErr = nil
	m.check(ctx)
	assert.True(t, m.IsOnline())

	select {
	case <-m.Events():
	default:
		t.Fatal("expected a transition event after coming online")
	}
}

func TestMonitor_SteadyStateDoesNotRefire(t *testing.T) {
	m := NewMonitor("unused", time.Second, slog.Default())
	m.probe = func(ctx context.Context) error { return nil }

	ctx := context.Background()
	m.check(ctx)
	<-m.Events()

	// Still online: no new event.
	m.check(ctx)
	select {
	case <-m.Events():
		t.Fatal("steady online state must not fire events")
	default:
	}
}

func TestMonitor_UnconsumedEventsCoalesce(t *testing.T) {
	m := NewMonitor("unused", time.Second, slog.Default())

	up := true
	m.probe = func(ctx context.Context) error {
		if up {
			return nil
		}
		return errors.New("down")
	}

	ctx := context.Background()
	// Flap twice without consuming.
	m.check(ctx)
	up = false
	m.check(ctx)
	up = true
	m.check(ctx)

	<-m.Events()
	select {
	case <-m.Events():
		t.Fatal("flaps must coalesce into a single buffered event")
	default:
	}
}

func TestMonitor_DialProbeAgainstListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	m := NewMonitor(ln.Addr().String(), time.Second, slog.Default())
	m.check(context.Background())
	assert.True(t, m.IsOnline())
}
