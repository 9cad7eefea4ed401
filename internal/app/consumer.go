package app

import "github.com/dkeye/Signal/internal/core"

// Consumer is one media track delivered to a peer, sourced from a producer it
// does not own. Mutation happens under the owning session's lock.
type Consumer struct {
	Id         core.ConsumerID
	Kind       core.MediaKind
	ProducerId core.ProducerID

	handle    core.ConsumerHandle
	owner     *Session
	producer  *Producer
	transport *Transport
	closed    bool
}

func (c *Consumer) Owner() *Session { return c.owner }

// ConsumerDescriptor is the consume response payload: everything the peer
// needs to set up local playback.
type ConsumerDescriptor struct {
	Id            core.ConsumerID    `json:"id"`
	ProducerId    core.ProducerID    `json:"producerId"`
	Kind          core.MediaKind     `json:"kind"`
	RtpParameters core.RtpParameters `json:"rtpParameters"`
	Paused        bool               `json:"paused"`
}
