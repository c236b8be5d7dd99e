package bot

import "sync"

// seenSet is the bounded deduplication set of upstream transaction hashes
// already converted into trade-open attempts or explicitly skipped. When
// the cap is exceeded the oldest half is dropped; eviction order is an
// implementation detail, only "roughly the newest half survives" is
// guaranteed.
type seenSet struct {
	mu    sync.Mutex
	cap   int
	ids   map[string]struct{}
	order []string
}

func newSeenSet(cap int) *seenSet {
	if cap < 2 {
		cap = 2
	}
	return &seenSet{
		cap: cap,
		ids: make(map[string]struct{}, cap),
	}
}

// Seen reports whether the hash has already been processed.
func (s *seenSet) Seen(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[hash]
	return ok
}

// Add marks a hash as processed, evicting the oldest half on overflow.
func (s *seenSet) Add(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[hash]; ok {
		return
	}
	s.ids[hash] = struct{}{}
	s.order = append(s.order, hash)

	if len(s.order) > s.cap {
		drop := len(s.order) / 2
		for _, old := range s.order[:drop] {
			delete(s.ids, old)
		}
		s.order = append(s.order[:0], s.order[drop:]...)
	}
}

// Len returns the number of tracked hashes.
func (s *seenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
