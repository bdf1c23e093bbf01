// Package state tracks which URLs a run has seen and records mirrored pages.
package state

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// SeenSet is the per-run set of dedup keys. A Bloom filter answers most
// negative lookups; the exact map resolves its false positives.
type SeenSet struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
	fpRate float64
}

// NewSeenSet creates a seen set sized for estimatedItems keys.
func NewSeenSet(estimatedItems int) *SeenSet {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	fpRate := 0.001

	return &SeenSet{
		filter: bloom.NewWithEstimates(uint(estimatedItems), fpRate),
		exact:  make(map[string]struct{}),
		fpRate: fpRate,
	}
}

// Add inserts key and reports whether it was new. Test and insert happen
// under one lock, so concurrent callers never both see true.
func (s *SeenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filter.TestString(key) {
		if _, exists := s.exact[key]; exists {
			return false
		}
	}
	s.filter.AddString(key)
	s.exact[key] = struct{}{}
	return true
}

// Contains reports whether key was added.
func (s *SeenSet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.filter.TestString(key) {
		return false
	}
	_, exists := s.exact[key]
	return exists
}

// Len returns the number of keys.
func (s *SeenSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exact)
}

// Reset empties the set.
func (s *SeenSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filter.ClearAll()
	s.exact = make(map[string]struct{})
}

// FalsePositiveRate returns the configured Bloom filter error rate.
func (s *SeenSet) FalsePositiveRate() float64 {
	return s.fpRate
}
