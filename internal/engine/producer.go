package engine

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signal/internal/core"
)

type producer struct {
	t      *transport
	id     core.ProducerID
	kind   core.MediaKind
	params core.RtpParameters

	mu        sync.Mutex
	closed    bool
	listeners []func()
}

func (p *producer) Id() core.ProducerID  { return p.id }
func (p *producer) Kind() core.MediaKind { return p.kind }

func (p *producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *producer) OnClose(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		fn()
		return
	}
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	listeners := p.listeners
	p.listeners = nil
	p.mu.Unlock()

	// Listeners run outside the lock; they may close consumers which call
	// back into transport maps.
	for _, fn := range listeners {
		fn()
	}
	p.t.removeProducer(p.id)
	log.Info().Str("module", "engine").Str("producer", string(p.id)).Msg("producer closed")
}
