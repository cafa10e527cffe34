package services

import "sync"

// ConnectivityMonitor tracks the device's online/offline state. It is
// fed by whatever notification source the host app has (platform
// events, a ping probe) and fans transitions out to subscribers.
type ConnectivityMonitor struct {
	mu     sync.RWMutex
	online bool
	subs   []chan bool
}

func NewConnectivityMonitor(initial bool) *ConnectivityMonitor {
	return &ConnectivityMonitor{online: initial}
}

func (m *ConnectivityMonitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a connectivity change. Subscribers are only
// notified on actual transitions; repeated same-state reports are
// absorbed here.
func (m *ConnectivityMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Slow subscriber; drop rather than block the notifier.
		}
	}
}

// Subscribe returns a channel receiving each online/offline transition.
func (m *ConnectivityMonitor) Subscribe() <-chan bool {
	ch := make(chan bool, 4)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}
