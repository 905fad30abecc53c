package host

import (
	"sync"
	"sync/atomic"
)

// Stats is a snapshot of the pool's resource accounting.
type Stats struct {
	Templates     int    // compiled components
	Live          int64  // open execution contexts
	ReservedBytes int64  // memory ceiling summed over open contexts
	Total         uint64 // execution contexts created since start
}

// Accounting tracks the resources held by open execution contexts.
type Accounting struct {
	live     atomic.Int64
	reserved atomic.Int64
	total    atomic.Uint64
}

// acquire records one context reserving memBytes and returns its release
// function. Calling release more than once has no further effect.
func (a *Accounting) acquire(memBytes int64) func() {
	a.live.Add(1)
	a.reserved.Add(memBytes)
	a.total.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.live.Add(-1)
			a.reserved.Add(-memBytes)
		})
	}
}

// Live returns the number of open execution contexts.
func (a *Accounting) Live() int64 {
	return a.live.Load()
}

// ReservedBytes returns the memory reserved by open contexts.
func (a *Accounting) ReservedBytes() int64 {
	return a.reserved.Load()
}

// Total returns how many contexts were ever created.
func (a *Accounting) Total() uint64 {
	return a.total.Load()
}
