package state

import (
	"strconv"
	"sync/atomic"
	"time"
)

// IDGenerator hands out timestamp-derived ids. Two calls within the same
// millisecond still get distinct values: the counter never goes backwards.
type IDGenerator struct {
	now  func() time.Time
	last atomic.Int64
}

// NewIDGenerator returns a generator reading the given clock.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns prefix followed by a unique millisecond stamp.
func (g *IDGenerator) Next(prefix string) string {
	ms := g.now().UnixMilli()
	for {
		last := g.last.Load()
		next := ms
		if next <= last {
			next = last + 1
		}
		if g.last.CompareAndSwap(last, next) {
			return prefix + strconv.FormatInt(next, 10)
		}
	}
}
