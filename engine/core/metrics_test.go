package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_RollingAverage(t *testing.T) {
	m := NewMetrics()
	assert.Zero(t, m.AverageCycleMS())

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < AVG_COUNT; i++ {
		m.Update(2*time.Millisecond, base.Add(time.Duration(i)*time.Millisecond))
	}
	assert.InDelta(t, 2.0, m.AverageCycleMS(), 1e-9)

	// a full window of 4ms samples pushes the 2ms ones out
	for i := 0; i < AVG_COUNT; i++ {
		m.Update(4*time.Millisecond, base.Add(time.Duration(100+i)*time.Millisecond))
	}
	assert.InDelta(t, 4.0, m.AverageCycleMS(), 1e-9)
	assert.Equal(t, uint64(2*AVG_COUNT), m.Cycles())
	assert.Equal(t, 4*time.Millisecond, m.LastCycle())
}

func TestMetrics_CyclesPerSecond(t *testing.T) {
	m := NewMetrics()
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i <= 10; i++ {
		m.Update(time.Millisecond, base.Add(time.Duration(i)*100*time.Millisecond))
	}
	assert.InDelta(t, 11.0, m.CyclesPerSecond(), 1e-9)
}

func TestClock_Elapsed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewClockWithSource(func() time.Time { return now })

	c.Update()
	assert.Zero(t, c.Elapsed(), "not started")

	c.Start()
	now = now.Add(250 * time.Millisecond)
	c.Update()
	assert.Equal(t, 250*time.Millisecond, c.Elapsed())

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	assert.Equal(t, 250*time.Millisecond, c.Elapsed())
}
