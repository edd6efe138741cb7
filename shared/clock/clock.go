package clock

import (
	"sync"
	"time"
)

// Clock returns the current time. Components that compare against "now"
// take a Clock so tests can move time explicitly.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func NewRealClock() Clock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

// ManualClock only moves when Set or Add is called. Safe for concurrent use.
type ManualClock struct {
	mu          sync.Mutex
	currentTime time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{currentTime: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}

func (c *ManualClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = c.currentTime.Add(d)
}
