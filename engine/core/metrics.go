package core

import (
	"sync"
	"time"

	"github.com/spaghettifunk/anima-scan/engine/containers"
)

const AVG_COUNT int = 30

// Metrics keeps a rolling window of aggregation cycle durations.
type Metrics struct {
	mu         sync.Mutex
	samples    *containers.RingQueue[time.Duration]
	cycles     uint64
	last       time.Duration
	windowFrom time.Time
	windowN    int
	perSecond  float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		samples: containers.NewRingQueue[time.Duration](AVG_COUNT),
	}
}

// Update records one cycle that took elapsed and finished at now.
func (m *Metrics) Update(elapsed time.Duration, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples.Push(elapsed)
	m.last = elapsed
	m.cycles++

	if m.windowFrom.IsZero() {
		m.windowFrom = now
	}
	m.windowN++
	if span := now.Sub(m.windowFrom); span >= time.Second {
		m.perSecond = float64(m.windowN) / span.Seconds()
		m.windowFrom = now
		m.windowN = 0
	}
}

// AverageCycleMS is the mean duration of the last AVG_COUNT cycles in milliseconds.
func (m *Metrics) AverageCycleMS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.samples.IsEmpty() {
		return 0
	}
	var total time.Duration
	m.samples.Each(func(d time.Duration) { total += d })
	return float64(total) / float64(m.samples.Len()) / float64(time.Millisecond)
}

func (m *Metrics) CyclesPerSecond() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perSecond
}

func (m *Metrics) Cycles() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}

func (m *Metrics) LastCycle() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
