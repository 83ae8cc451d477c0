package correlate

import "sync"

// resolvedSet remembers recently resolved transaction IDs so duplicate
// resolve calls stay no-ops across requests. Bounded: the oldest entry is
// evicted once capacity is reached, map + doubly linked list for O(1) ops.
type resolvedSet struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*setNode
	head     *setNode // newest
	tail     *setNode // oldest
}

type setNode struct {
	key  string
	prev *setNode
	next *setNode
}

func newResolvedSet(capacity int) *resolvedSet {
	if capacity < 1 {
		capacity = 1
	}
	head := &setNode{}
	tail := &setNode{}
	head.next = tail
	tail.prev = head
	return &resolvedSet{
		capacity: capacity,
		items:    make(map[string]*setNode, capacity),
		head:     head,
		tail:     tail,
	}
}

// Add records an ID, evicting the oldest entry at capacity.
func (s *resolvedSet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		return
	}
	if len(s.items) >= s.capacity {
		victim := s.tail.prev
		victim.prev.next = s.tail
		s.tail.prev = victim.prev
		delete(s.items, victim.key)
	}

	n := &setNode{key: key, prev: s.head, next: s.head.next}
	s.head.next.prev = n
	s.head.next = n
	s.items[key] = n
}

// Contains reports whether the ID was resolved recently.
func (s *resolvedSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Len returns the number of remembered IDs.
func (s *resolvedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
