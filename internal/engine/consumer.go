package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signal/internal/core"
)

type consumer struct {
	t      *transport
	id     core.ConsumerID
	kind   core.MediaKind
	params core.RtpParameters

	mu     sync.Mutex
	paused bool
	closed bool
}

func (c *consumer) Id() core.ConsumerID  { return c.id }
func (c *consumer) Kind() core.MediaKind { return c.kind }

func (c *consumer) RtpParameters() core.RtpParameters { return c.params }

func (c *consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *consumer) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("consumer %s closed", c.id)
	}
	c.paused = false
	return nil
}

func (c *consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *consumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.t.removeConsumer(c.id)
	log.Info().Str("module", "engine").Str("consumer", string(c.id)).Msg("consumer closed")
}
