package metrics

import (
	"sync"
	"sync/atomic"
)

// Process-local counters, thread-safe for use from services, middleware and
// the metrics endpoint.
type counterSet struct {
	total uint64
	mu    sync.Mutex
	byKey map[string]uint64
}

func (c *counterSet) inc(key string) {
	atomic.AddUint64(&c.total, 1)
	c.mu.Lock()
	if c.byKey == nil {
		c.byKey = make(map[string]uint64)
	}
	c.byKey[key]++
	c.mu.Unlock()
}

func (c *counterSet) snapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&c.total)
	c.mu.Lock()
	defer c.mu.Unlock()
	by = make(map[string]uint64, len(c.byKey))
	for k, v := range c.byKey {
		by[k] = v
	}
	return total, by
}

var (
	executions counterSet
	deliveries counterSet
	rateLimit  counterSet
)

// IncExecution counts one terminal execution by final status.
func IncExecution(status string) { executions.inc(status) }

// IncDelivery counts one notification delivery outcome by status.
func IncDelivery(status string) { deliveries.inc(status) }

// IncRateLimitDrop counts an HTTP 429 for the given key prefix.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	rateLimit.inc(prefix)
}

func ExecutionsSnapshot() (uint64, map[string]uint64) { return executions.snapshot() }
func DeliveriesSnapshot() (uint64, map[string]uint64) { return deliveries.snapshot() }
func RateLimitSnapshot() (uint64, map[string]uint64)  { return rateLimit.snapshot() }
