package engine

import (
	"fmt"
	"sync"
)

// portAllocator hands out one listen port per transport from a fixed range.
type portAllocator struct {
	mu   sync.Mutex
	min  uint16
	max  uint16
	next uint16
	used map[uint16]bool
}

func newPortAllocator(min, max uint16) *portAllocator {
	return &portAllocator{
		min:  min,
		max:  max,
		next: min,
		used: make(map[uint16]bool),
	}
}

func (a *portAllocator) Alloc() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := int(a.max) - int(a.min) + 1
	for i := 0; i < size; i++ {
		p := a.next
		a.next++
		if a.next > a.max {
			a.next = a.min
		}
		if !a.used[p] {
			a.used[p] = true
			return p, nil
		}
	}
	return 0, fmt.Errorf("port range %d-%d exhausted", a.min, a.max)
}

func (a *portAllocator) Release(p uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.used, p)
}
