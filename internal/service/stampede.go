package service

import (
	"sync"
)

// missTracker counts in-flight misses per cache key. The gate does not coordinate
// concurrent misses, so a count above 1 means a duplicate upstream fetch.
type missTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newMissTracker() *missTracker {
	return &missTracker{
		active: make(map[string]int),
	}
}

// Begin records a miss for key and returns the number of misses now in flight for it.
// Callers must call Done(key) when the fetch completes.
func (mt *missTracker) Begin(key string) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.active[key]++
	return mt.active[key]
}

// Done records completion of a miss for key.
func (mt *missTracker) Done(key string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if count, ok := mt.active[key]; ok && count > 0 {
		mt.active[key]--
		if mt.active[key] == 0 {
			delete(mt.active, key)
		}
	}
}

// InFlight returns the number of keys with at least one miss in progress.
func (mt *missTracker) InFlight() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return len(mt.active)
}
