package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.RecordDispatch(10*time.Millisecond, false)
	c.RecordDispatch(30*time.Millisecond, true)
	c.RecordNotFound()
	c.RecordRemoteCall(false)
	c.RecordRemoteCall(true)
	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.RecordProtocolError()
	c.RecordRegeneration()

	s := c.Collect()
	assert.Equal(t, int64(2), s.Dispatches)
	assert.Equal(t, int64(1), s.Failures)
	assert.Equal(t, int64(1), s.NotFound)
	assert.InDelta(t, 20.0, s.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(2), s.RemoteCalls)
	assert.Equal(t, int64(1), s.RemoteTimeouts)
	assert.Equal(t, int64(2), s.ConnectionsTotal)
	assert.Equal(t, int64(1), s.ConnectionsActive)
	assert.Equal(t, int64(1), s.ProtocolErrors)
	assert.Equal(t, int64(1), s.Regenerations)
}

func TestNilCollectorIsInert(t *testing.T) {
	var c *Collector
	c.RecordDispatch(time.Second, true)
	c.RecordNotFound()
	c.ConnectionOpened()

	s := c.Collect()
	assert.Zero(t, s.Dispatches)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordDispatch(time.Millisecond, false)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), c.Collect().Dispatches)
}
