// Package connectivity tracks whether the authoritative backend is
// reachable and fans out offline/online transition events.
package connectivity

import (
	"context"
	"sync"
	"time"
)

// Probe reports backend reachability; any error means offline.
type Probe func(ctx context.Context) error

type Monitor struct {
	mu          sync.RWMutex
	online      bool
	probe       Probe
	interval    time.Duration
	settleDelay time.Duration
	subscribers []func(online bool)
}

// New starts in the offline state; the first successful probe (or an
// explicit SetOnline) flips it.
func New(probe Probe, interval, settleDelay time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		probe:       probe,
		interval:    interval,
		settleDelay: settleDelay,
	}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers a transition callback. Callbacks run on the
// monitor's goroutine after the settle delay for offline->online flips, so
// a flapping link does not trigger a sync storm.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// SetOnline forces the state, firing transition callbacks on change. Used
// by tests and by the manual online/offline toggle.
func (m *Monitor) SetOnline(online bool) {
	m.transition(context.Background(), online, false)
}

func (m *Monitor) transition(ctx context.Context, online bool, settle bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	if online && settle && m.settleDelay > 0 {
		select {
		case <-time.After(m.settleDelay):
		case <-ctx.Done():
			return
		}
	}
	for _, fn := range subs {
		fn(online)
	}
}

// Run probes on a fixed interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if m.probe == nil {
		return
	}

	m.check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	err := m.probe(probeCtx)
	m.transition(ctx, err == nil, true)
}
