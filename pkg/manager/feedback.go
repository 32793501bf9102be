package manager

import (
	"slices"
	"sync"
)

// Feedback is the process local overlay of caller reported outcomes.
// It is never persisted and never filters the ranked set.
type Feedback struct {
	mu   sync.RWMutex
	good map[string]struct{}
	dead map[string]struct{}
}

// NewFeedback returns empty good and dead sets
func NewFeedback() *Feedback {
	return &Feedback{
		good: make(map[string]struct{}),
		dead: make(map[string]struct{}),
	}
}

// MarkGood adds key to the good set. A dead mark is left as is.
func (f *Feedback) MarkGood(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.good[key] = struct{}{}
}

// MarkDead moves key out of the good set into the dead set.
// It reports whether the key was good before.
func (f *Feedback) MarkDead(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, wasGood := f.good[key]
	delete(f.good, key)
	f.dead[key] = struct{}{}
	return wasGood
}

// IsGood reports whether key was ever reported working
func (f *Feedback) IsGood(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.good[key]
	return ok
}

// IsDead reports whether key was reported failing
func (f *Feedback) IsDead(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.dead[key]
	return ok
}

// Counts returns the sizes of the good and dead sets
func (f *Feedback) Counts() (good, dead int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.good), len(f.dead)
}

// GoodKeys returns the good set, sorted
func (f *Feedback) GoodKeys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.good)
}

// DeadKeys returns the dead set, sorted
func (f *Feedback) DeadKeys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.dead)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
