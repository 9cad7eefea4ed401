package app

import (
	"sync"

	"github.com/dkeye/Signal/internal/core"
)

// Producer is one media track sent by a peer into the system. It is owned by
// the producing session; consumers reference it weakly, possibly from other
// sessions.
type Producer struct {
	Id   core.ProducerID
	Kind core.MediaKind

	handle    core.ProducerHandle
	owner     *Session
	transport *Transport

	// depMu is a leaf lock guarding the dependent set. It is never held while
	// taking a session lock, which keeps cross-session cascades deadlock free.
	depMu      sync.Mutex
	depsClosed bool
	dependents []*Consumer
}

func (p *Producer) Owner() *Session { return p.owner }

func (p *Producer) Handle() core.ProducerHandle { return p.handle }

func (p *Producer) isClosed() bool {
	p.depMu.Lock()
	defer p.depMu.Unlock()
	return p.depsClosed
}

// addDependent registers a consumer that must be closed when this producer
// closes. Fails once the producer started closing, which resolves the race
// between consume and an in-flight producer close.
func (p *Producer) addDependent(c *Consumer) error {
	p.depMu.Lock()
	defer p.depMu.Unlock()
	if p.depsClosed {
		return core.NewError(core.KindProducerNotFound, "producer %s closed", p.Id)
	}
	p.dependents = append(p.dependents, c)
	return nil
}

func (p *Producer) removeDependent(c *Consumer) {
	p.depMu.Lock()
	defer p.depMu.Unlock()
	for i, d := range p.dependents {
		if d == c {
			p.dependents = append(p.dependents[:i], p.dependents[i+1:]...)
			return
		}
	}
}

// takeDependents marks the producer closed and hands the dependent set to the
// caller for cascading.
func (p *Producer) takeDependents() []*Consumer {
	p.depMu.Lock()
	defer p.depMu.Unlock()
	if p.depsClosed {
		return nil
	}
	p.depsClosed = true
	deps := p.dependents
	p.dependents = nil
	return deps
}
