package realtime

import "sync"

// SeenSet tracks notification IDs already pushed down one session so
// redeliveries are suppressed. Memory is bounded: when the set reaches
// capacity it is cleared, trading a possible duplicate for a fixed
// footprint. Safe for concurrent use; the hub delivers to one session
// from many publisher goroutines at once.
type SeenSet struct {
	mu       sync.Mutex
	capacity int
	ids      map[string]struct{}
}

const defaultSeenCapacity = 1000

// NewSeenSet creates a seen-set. capacity <= 0 selects the default.
func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = defaultSeenCapacity
	}
	return &SeenSet{
		capacity: capacity,
		ids:      make(map[string]struct{}),
	}
}

// Observe records an ID and reports whether it was already seen
func (s *SeenSet) Observe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return true
	}
	if len(s.ids) >= s.capacity {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
	return false
}

// Len returns the number of tracked IDs
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
