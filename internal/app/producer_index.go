package app

import (
	"sync"

	"github.com/dkeye/Signal/internal/core"
)

// ProducerIndex is the process-wide lookup used to resolve which producer a
// consume request targets, across sessions. Insertion order is kept so an
// unqualified consume picks the newest live producer.
type ProducerIndex struct {
	mu    sync.Mutex
	order []*Producer
	byId  map[core.ProducerID]*Producer
}

func NewProducerIndex() *ProducerIndex {
	return &ProducerIndex{byId: make(map[core.ProducerID]*Producer)}
}

func (x *ProducerIndex) Add(p *Producer) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.byId[p.Id] = p
	x.order = append(x.order, p)
}

func (x *ProducerIndex) Remove(id core.ProducerID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.byId, id)
	for i, p := range x.order {
		if p.Id == id {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
}

func (x *ProducerIndex) Get(id core.ProducerID) (*Producer, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	p, ok := x.byId[id]
	return p, ok
}

func (x *ProducerIndex) Latest() (*Producer, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.order) == 0 {
		return nil, false
	}
	return x.order[len(x.order)-1], true
}

func (x *ProducerIndex) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.byId)
}
