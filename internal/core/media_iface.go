package core

import "context"

// MediaEngine is the external SFU runtime doing the actual RTP routing,
// ICE/DTLS and codec work. The signaling layer only negotiates with it;
// everything behind these methods is a black box.
type MediaEngine interface {
	// AllocateRoutingDomain creates a codec/routing context for a session.
	AllocateRoutingDomain(ctx context.Context, codecs []*RtpCodecCapability) (RoutingDomain, error)
	// OnFatal sets a callback for unrecoverable engine failure. No routing
	// domain can be assumed consistent afterwards; the process must shut down.
	OnFatal(func(error))
	Close()
}

// RoutingDomain is the shared codec/routing context assigned to a session.
type RoutingDomain interface {
	Capabilities() RtpCapabilities
	CreateTransport(ctx context.Context, direction TransportDirection) (TransportHandle, error)
	// CanConsume reports whether caps can decode media from the given producer
	// under this domain's codec set.
	CanConsume(producer ProducerHandle, caps RtpCapabilities) bool
	Close()
}

// TransportHandle is one directional media channel inside the engine.
type TransportHandle interface {
	Id() TransportID
	Descriptor() TransportDescriptor
	// Connect runs the DTLS handshake against the peer's parameters. The
	// engine performs the real handshake once per transport.
	Connect(ctx context.Context, dtls DtlsParameters) error
	Produce(ctx context.Context, kind MediaKind, params RtpParameters) (ProducerHandle, error)
	Consume(ctx context.Context, producer ProducerHandle, caps RtpCapabilities, paused bool) (ConsumerHandle, error)
	Close()
}

type ProducerHandle interface {
	Id() ProducerID
	Kind() MediaKind
	Closed() bool
	// OnClose registers a listener fired once when the producer closes for any
	// reason. This is the one engine-originated async event the signaling
	// layer propagates to peers.
	OnClose(func())
	Close()
}

type ConsumerHandle interface {
	Id() ConsumerID
	Kind() MediaKind
	RtpParameters() RtpParameters
	Paused() bool
	Resume(ctx context.Context) error
	Closed() bool
	Close()
}
