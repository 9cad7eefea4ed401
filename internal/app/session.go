package app

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signal/internal/core"
)

// Session protocol states. The machine records how far the signaling sequence
// has progressed; it is deliberately not strictly linear — a peer may create
// its receive transport before producing.
const (
	StateConnected     = "connected"
	StateCapsFetched   = "capabilities_fetched"
	StateSendTransport = "send_transport_created"
	StateProducing     = "producing"
	StateRecvTransport = "recv_transport_created"
	StateConsuming     = "consuming"
	StateSessionClosed = "closed"
)

const (
	evFetchCaps     = "fetch_capabilities"
	evSendTransport = "create_send_transport"
	evProduce       = "produce"
	evRecvTransport = "create_recv_transport"
	evConsume       = "consume"
	evCloseSession  = "close"
)

// EventSink receives session events that cross session boundaries: producer
// index maintenance and producer-closed fanout. Implemented by the
// orchestrator.
type EventSink interface {
	ProducerAdded(*Producer)
	ProducerRemoved(core.ProducerID)
	// ConsumerOrphaned is invoked outside any session lock, once per dependent
	// consumer of a closed producer. The sink closes the consumer in its
	// owning session (if still open) and notifies that peer.
	ConsumerOrphaned(*Consumer)
}

// Session is one connected peer: its routing domain, protocol state machine
// and the transports/producers/consumers it exclusively owns. Requests for a
// session are serialized by mu (single-writer semantics); different sessions
// run in parallel.
type Session struct {
	Id core.SessionID

	domain core.RoutingDomain
	signal core.SignalConnection
	events EventSink

	mu           sync.Mutex
	state        *fsm.FSM
	peerCaps     *core.RtpCapabilities
	transports   map[core.TransportDirection]*Transport
	producers    map[core.ProducerID]*Producer
	consumers    map[core.ConsumerID]*Consumer
	lastConsumer core.ConsumerID
	closed       bool
}

func NewSession(id core.SessionID, domain core.RoutingDomain, signal core.SignalConnection, events EventSink) *Session {
	return &Session{
		Id:     id,
		domain: domain,
		signal: signal,
		events: events,
		state: fsm.NewFSM(
			StateConnected,
			fsm.Events{
				{Name: evFetchCaps, Src: []string{StateConnected}, Dst: StateCapsFetched},
				{Name: evSendTransport, Src: []string{StateCapsFetched, StateRecvTransport, StateConsuming}, Dst: StateSendTransport},
				{Name: evProduce, Src: []string{StateSendTransport, StateProducing}, Dst: StateProducing},
				{Name: evRecvTransport, Src: []string{StateCapsFetched, StateSendTransport, StateProducing}, Dst: StateRecvTransport},
				{Name: evConsume, Src: []string{StateRecvTransport, StateConsuming}, Dst: StateConsuming},
				{Name: evCloseSession, Src: []string{
					StateConnected, StateCapsFetched, StateSendTransport,
					StateProducing, StateRecvTransport, StateConsuming,
				}, Dst: StateSessionClosed},
			},
			fsm.Callbacks{},
		),
		transports: make(map[core.TransportDirection]*Transport),
		producers:  make(map[core.ProducerID]*Producer),
		consumers:  make(map[core.ConsumerID]*Consumer),
	}
}

func (s *Session) Signal() core.SignalConnection { return s.signal }

func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Current()
}

// advance fires a protocol progress event, ignoring orderings the coarse
// machine does not track (the managers' own preconditions already ran).
func (s *Session) advance(ctx context.Context, event string) {
	if err := s.state.Event(ctx, event); err != nil {
		log.Debug().Str("module", "app.session").
			Str("sid", string(s.Id)).
			Str("event", event).
			Str("state", s.state.Current()).
			Msg("protocol state unchanged")
	}
}

// Capabilities returns the routing domain's fixed capability descriptor.
// Repeat calls return the identical descriptor.
func (s *Session) Capabilities(ctx context.Context) (core.RtpCapabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.RtpCapabilities{}, core.NewError(core.KindSessionNotFound, "session %s closed", s.Id)
	}
	if s.state.Is(StateConnected) {
		s.advance(ctx, evFetchCaps)
	}
	return s.domain.Capabilities(), nil
}

// CreateTransport allocates one directional transport. Capabilities must have
// been fetched first, and a session holds at most one transport per
// direction.
func (s *Session) CreateTransport(ctx context.Context, direction core.TransportDirection) (core.TransportDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.TransportDescriptor{}, core.NewError(core.KindSessionNotFound, "session %s closed", s.Id)
	}
	if s.state.Is(StateConnected) {
		return core.TransportDescriptor{}, core.NewError(core.KindInvalidState,
			"capabilities must be fetched before creating a transport")
	}
	if _, ok := s.transports[direction]; ok {
		return core.TransportDescriptor{}, core.NewError(core.KindInvalidState,
			"%s transport already exists", direction)
	}

	handle, err := s.domain.CreateTransport(ctx, direction)
	if err != nil {
		// The session is unaffected; the peer may retry.
		return core.TransportDescriptor{}, core.NewError(core.KindEngineAllocation,
			"create %s transport: %v", direction, err)
	}

	t := newTransport(handle, direction)
	s.transports[direction] = t
	if direction == core.DirectionSend {
		s.advance(ctx, evSendTransport)
	} else {
		s.advance(ctx, evRecvTransport)
	}
	log.Info().Str("module", "app.session").
		Str("sid", string(s.Id)).
		Str("transport", string(t.Id)).
		Str("direction", string(direction)).
		Msg("transport created")
	return t.Descriptor(), nil
}

// ConnectTransport forwards the peer's DTLS parameters to the engine. A DTLS
// failure closes the transport with its full cascade; a repeat connect is
// rejected and leaves the transport connected.
func (s *Session) ConnectTransport(ctx context.Context, direction core.TransportDirection, dtls core.DtlsParameters) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.NewError(core.KindSessionNotFound, "session %s closed", s.Id)
	}
	t, ok := s.transports[direction]
	if !ok {
		s.mu.Unlock()
		return core.NewError(core.KindInvalidState, "no %s transport", direction)
	}

	err := t.connect(ctx, dtls)
	var orphans []*Consumer
	if err != nil && t.state.Is(TransportConnecting) {
		// Handshake failed mid-flight: the transport dies, taking anything
		// bound to it along.
		orphans = s.closeTransportLocked(t)
	}
	s.mu.Unlock()

	s.emitOrphans(orphans)
	return err
}

// Produce creates a media source on the connected send transport. Each call
// creates an independent producer; kinds are not deduplicated.
func (s *Session) Produce(ctx context.Context, kind core.MediaKind, params core.RtpParameters) (core.ProducerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", core.NewError(core.KindSessionNotFound, "session %s closed", s.Id)
	}
	t, ok := s.transports[core.DirectionSend]
	if !ok || !t.IsConnected() {
		return "", core.NewError(core.KindInvalidState, "send transport not connected")
	}

	handle, err := t.handle.Produce(ctx, kind, params)
	if err != nil {
		return "", core.NewError(core.KindEngineAllocation, "produce: %v", err)
	}

	p := &Producer{
		Id:        handle.Id(),
		Kind:      kind,
		handle:    handle,
		owner:     s,
		transport: t,
	}
	s.producers[p.Id] = p
	t.producers[p.Id] = p
	s.events.ProducerAdded(p)
	s.advance(ctx, evProduce)

	log.Info().Str("module", "app.session").
		Str("sid", string(s.Id)).
		Str("producer", string(p.Id)).
		Str("kind", string(kind)).
		Msg("producer created")
	return p.Id, nil
}

// Consume creates a media sink on the connected receive transport, fed from
// src. The declared capabilities must be able to decode the producer's kind
// under the routing domain's codec set; the first accepted descriptor is
// captured and immutable thereafter, so a rejected one does not stick.
// Video consumers start paused.
func (s *Session) Consume(ctx context.Context, src *Producer, caps core.RtpCapabilities) (*ConsumerDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, core.NewError(core.KindSessionNotFound, "session %s closed", s.Id)
	}
	if src == nil || src.isClosed() {
		return nil, core.NewError(core.KindProducerNotFound, "producer not found")
	}

	if s.peerCaps != nil {
		caps = *s.peerCaps
	}

	if !s.domain.CanConsume(src.handle, caps) {
		return nil, core.NewError(core.KindIncompatibleCapabilities,
			"declared capabilities cannot decode %s producer %s", src.Kind, src.Id)
	}
	t, ok := s.transports[core.DirectionRecv]
	if !ok || !t.IsConnected() {
		return nil, core.NewError(core.KindInvalidState, "receive transport not connected")
	}

	c := &Consumer{
		Kind:       src.Kind,
		ProducerId: src.Id,
		owner:      s,
		producer:   src,
		transport:  t,
	}
	if err := src.addDependent(c); err != nil {
		return nil, err
	}

	paused := src.Kind == core.MediaKindVideo
	handle, err := t.handle.Consume(ctx, src.handle, caps, paused)
	if err != nil {
		src.removeDependent(c)
		return nil, core.NewError(core.KindEngineAllocation, "consume: %v", err)
	}
	if s.peerCaps == nil {
		cp := caps
		s.peerCaps = &cp
	}
	c.Id = handle.Id()
	c.handle = handle
	s.consumers[c.Id] = c
	t.consumers[c.Id] = c
	s.lastConsumer = c.Id
	s.advance(ctx, evConsume)

	log.Info().Str("module", "app.session").
		Str("sid", string(s.Id)).
		Str("consumer", string(c.Id)).
		Str("producer", string(src.Id)).
		Bool("paused", paused).
		Msg("consumer created")
	return &ConsumerDescriptor{
		Id:            c.Id,
		ProducerId:    src.Id,
		Kind:          c.Kind,
		RtpParameters: handle.RtpParameters(),
		Paused:        paused,
	}, nil
}

// ResumeConsumer unpauses a consumer; without an explicit id it targets the
// most recently created one. Resuming an active consumer is a no-op; a
// consumer already closed by a racing producer close reports ConsumerNotFound.
func (s *Session) ResumeConsumer(ctx context.Context, id core.ConsumerID) (core.ConsumerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", core.NewError(core.KindSessionNotFound, "session %s closed", s.Id)
	}
	if id == "" {
		id = s.lastConsumer
	}
	c, ok := s.consumers[id]
	if !ok {
		return "", core.NewError(core.KindConsumerNotFound, "consumer %q not found", id)
	}
	if err := c.handle.Resume(ctx); err != nil {
		return "", core.NewError(core.KindConsumerNotFound, "resume: %v", err)
	}
	return id, nil
}

// CloseTransport destroys one transport explicitly. Everything bound to it
// closes in the same step.
func (s *Session) CloseTransport(direction core.TransportDirection) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.NewError(core.KindSessionNotFound, "session %s closed", s.Id)
	}
	t, ok := s.transports[direction]
	if !ok {
		s.mu.Unlock()
		return core.NewError(core.KindInvalidState, "no %s transport", direction)
	}
	orphans := s.closeTransportLocked(t)
	s.mu.Unlock()

	s.emitOrphans(orphans)
	return nil
}

// CloseOrphanedConsumer closes a consumer whose producer went away. Benign if
// the consumer (or the whole session) is already gone.
func (s *Session) CloseOrphanedConsumer(c *Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || c.closed {
		return
	}
	s.closeConsumerLocked(c)
}

// Close tears the session down: every owned consumer, producer and transport
// closes, then the routing domain. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.advance(context.Background(), evCloseSession)

	var orphans []*Consumer
	for _, t := range s.transports {
		orphans = append(orphans, s.closeTransportLocked(t)...)
	}
	s.domain.Close()
	s.mu.Unlock()

	s.emitOrphans(orphans)
	log.Info().Str("module", "app.session").Str("sid", string(s.Id)).Msg("session closed")
}

// closeTransportLocked closes a transport and, synchronously, everything
// bound to it. Returns the dependent consumers of closed producers for
// post-unlock fanout; same-session dependents are already closed on return,
// so the cascade is total before anyone else can observe it.
func (s *Session) closeTransportLocked(t *Transport) []*Consumer {
	if t.state.Is(TransportClosed) {
		return nil
	}
	_ = t.state.Event(context.Background(), evClose)

	for _, c := range t.consumers {
		s.closeConsumerLocked(c)
	}
	var orphans []*Consumer
	for _, p := range t.producers {
		orphans = append(orphans, s.closeProducerLocked(p)...)
	}
	t.handle.Close()
	delete(s.transports, t.Direction)
	log.Info().Str("module", "app.session").
		Str("sid", string(s.Id)).
		Str("transport", string(t.Id)).
		Msg("transport closed")
	return orphans
}

func (s *Session) closeProducerLocked(p *Producer) []*Consumer {
	deps := p.takeDependents()
	p.handle.Close()
	delete(s.producers, p.Id)
	delete(p.transport.producers, p.Id)
	s.events.ProducerRemoved(p.Id)

	for _, dep := range deps {
		if dep.owner == s {
			s.closeConsumerLocked(dep)
		}
	}
	return deps
}

func (s *Session) closeConsumerLocked(c *Consumer) {
	if c.closed {
		return
	}
	c.closed = true
	if c.handle != nil {
		c.handle.Close()
	}
	c.producer.removeDependent(c)
	delete(s.consumers, c.Id)
	delete(c.transport.consumers, c.Id)
}

// emitOrphans must run without holding s.mu: the sink takes other sessions'
// locks to finish the cross-session part of a producer-close cascade.
func (s *Session) emitOrphans(orphans []*Consumer) {
	for _, c := range orphans {
		s.events.ConsumerOrphaned(c)
	}
}
