package connectivity

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/kioskolabs/kiosko-sync/pkg/metrics"
)

const dialTimeout = 3 * time.Second

// Monitor tracks reachability of the remote endpoint by dialing it
// periodically. It exposes the current state and fires an event on each
// offline-to-online transition, which is the sync engine's primary
// trigger.
type Monitor struct {
	addr     string
	interval time.Duration
	logger   *slog.Logger
	online   atomic.Bool
	events   chan struct{}
	probe    func(ctx context.Context) error
}

func NewMonitor(addr string, interval time.Duration, l *slog.Logger) *Monitor {
	m := &Monitor{
		addr:     addr,
		interval: interval,
		logger:   l,
		events:   make(chan struct{}, 1),
	}
	m.probe = m.dialProbe
	return m
}

// IsOnline reports the result of the most recent probe. The monitor
// starts offline until the first probe succeeds.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// Events delivers one signal per offline-to-online transition. The
// channel is buffered; an unconsumed signal is coalesced with the next.
func (m *Monitor) Events() <-chan struct{} {
	return m.events
}

// Run blocks, probing immediately and then on every interval tick.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("Connectivity monitor started", "probe_addr", m.addr, "interval", m.interval)

	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Connectivity monitor shutting down")
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	err := m.probe(ctx)
	nowOnline := err == nil

	wasOnline := m.online.Swap(nowOnline)
	switch {
	case nowOnline && !wasOnline:
		metrics.ConnectivityStatus.Set(1)
		m.logger.Info("Connectivity restored", "probe_addr", m.addr)
		select {
		case m.events <- struct{}{}:
		default:
		}
	case !nowOnline && wasOnline:
		metrics.ConnectivityStatus.Set(0)
		m.logger.Warn("Connectivity lost, terminal operating offline", "probe_addr", m.addr, "error", err)
	}
}

func (m *Monitor) dialProbe(ctx context.Context) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
