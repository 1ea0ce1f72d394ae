package obs

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects lightweight counters for the rate pipeline.
type Metrics struct {
	rawRates      uint64
	derivedRates  uint64
	queueDrops    uint64
	broadcasts    uint64
	broadcastErrs uint64

	mu       sync.RWMutex
	adapters map[string]*AdapterMetrics
}

// AdapterMetrics tracks one subscriber adapter.
type AdapterMetrics struct {
	Platform  string
	connected uint32
	received  uint64
}

// Snapshot is a point-in-time view of the metrics.
type Snapshot struct {
	RawRates      uint64
	DerivedRates  uint64
	QueueDrops    uint64
	Broadcasts    uint64
	BroadcastErrs uint64
	Adapters      []AdapterSnapshot
}

// AdapterSnapshot is a point-in-time view of one adapter.
type AdapterSnapshot struct {
	Platform  string
	Connected bool
	Received  uint64
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{adapters: make(map[string]*AdapterMetrics)}
}

// Adapter returns the metrics handle for a platform, creating it when absent.
func (m *Metrics) Adapter(platform string) *AdapterMetrics {
	if m == nil {
		return &AdapterMetrics{Platform: platform}
	}
	m.mu.RLock()
	a := m.adapters[platform]
	m.mu.RUnlock()
	if a != nil {
		return a
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a = m.adapters[platform]; a == nil {
		a = &AdapterMetrics{Platform: platform}
		m.adapters[platform] = a
	}
	return a
}

// IncRate counts one forwarded rate.
func (m *Metrics) IncRate(derived bool) {
	if m == nil {
		return
	}
	if derived {
		atomic.AddUint64(&m.derivedRates, 1)
		return
	}
	atomic.AddUint64(&m.rawRates, 1)
}

// IncQueueDrop records a dropped publisher event.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncBroadcast records one session delivery attempt.
func (m *Metrics) IncBroadcast(failed bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.broadcasts, 1)
	if failed {
		atomic.AddUint64(&m.broadcastErrs, 1)
	}
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		RawRates:      atomic.LoadUint64(&m.rawRates),
		DerivedRates:  atomic.LoadUint64(&m.derivedRates),
		QueueDrops:    atomic.LoadUint64(&m.queueDrops),
		Broadcasts:    atomic.LoadUint64(&m.broadcasts),
		BroadcastErrs: atomic.LoadUint64(&m.broadcastErrs),
	}
	m.mu.RLock()
	for _, a := range m.adapters {
		snap.Adapters = append(snap.Adapters, AdapterSnapshot{
			Platform:  a.Platform,
			Connected: a.Connected(),
			Received:  atomic.LoadUint64(&a.received),
		})
	}
	m.mu.RUnlock()
	return snap
}

// SetConnected flips the adapter's connected gauge.
func (a *AdapterMetrics) SetConnected(connected bool) {
	if a == nil {
		return
	}
	var v uint32
	if connected {
		v = 1
	}
	atomic.StoreUint32(&a.connected, v)
}

// Connected reports the adapter's connected gauge.
func (a *AdapterMetrics) Connected() bool {
	return a != nil && atomic.LoadUint32(&a.connected) == 1
}

// IncReceived counts one inbound tick.
func (a *AdapterMetrics) IncReceived() {
	if a == nil {
		return
	}
	atomic.AddUint64(&a.received, 1)
}

// Received returns the inbound tick counter.
func (a *AdapterMetrics) Received() uint64 {
	if a == nil {
		return 0
	}
	return atomic.LoadUint64(&a.received)
}

// LogLoop logs a metrics snapshot on the given interval until stop closes.
func (m *Metrics) LogLoop(stop <-chan struct{}, interval time.Duration, log func(Snapshot)) {
	if m == nil || interval <= 0 || log == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			log(m.Snapshot())
		}
	}
}
