// Package orch wires the session registry to the media engine and exposes one
// entry point per signaling request.
package orch

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signal/internal/app"
	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/metrics"
)

type Orchestrator struct {
	Registry  *app.Registry
	Producers *app.ProducerIndex
	Engine    core.MediaEngine
	// MediaCodecs is the fixed process-wide codec configuration every routing
	// domain is allocated with.
	MediaCodecs []*core.RtpCodecCapability

	// mu serializes connect/disconnect sequences, so a stale-session
	// replacement is atomic against racing connections under the same identity.
	mu sync.Mutex
}

// Connect creates the session for a fresh signaling connection: a routing
// domain is allocated and the session registered under the connection
// identity. A stale session under the same identity (second tab, reconnect)
// is torn down first so it cannot corrupt the new one.
func (o *Orchestrator) Connect(ctx context.Context, sid core.SessionID, signal core.SignalConnection, cancel context.CancelFunc) (*app.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.Registry.Get(sid); ok {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("replacing stale session")
		o.disconnectLocked(sid)
	}

	domain, err := o.Engine.AllocateRoutingDomain(ctx, o.MediaCodecs)
	if err != nil {
		return nil, core.NewError(core.KindEngineAllocation, "allocate routing domain: %v", err)
	}
	sess := app.NewSession(sid, domain, signal, o)
	o.Registry.Bind(sid, sess, cancel)
	metrics.ActiveSessions.Inc()
	return sess, nil
}

// Disconnect tears a session down; cascades to all owned transports,
// producers and consumers.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disconnectLocked(sid)
}

// DisconnectConn tears a session down only if conn still owns it. Used by the
// connection read loop on exit: after a stale-session replacement the old
// socket's deferred cleanup must not touch the fresh session bound under the
// same identity.
func (o *Orchestrator) DisconnectConn(sid core.SessionID, conn core.SignalConnection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.Registry.Get(sid)
	if !ok || sess.Signal() != conn {
		return
	}
	o.disconnectLocked(sid)
}

func (o *Orchestrator) disconnectLocked(sid core.SessionID) {
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return
	}
	o.Registry.Cancel(sid)
	o.Registry.Unbind(sid)
	sess.Close()
	metrics.ActiveSessions.Dec()
}

func (o *Orchestrator) session(sid core.SessionID) (*app.Session, error) {
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return nil, core.NewError(core.KindSessionNotFound, "session %q not found", sid)
	}
	return sess, nil
}

func (o *Orchestrator) GetRouterRtpCapabilities(ctx context.Context, sid core.SessionID) (core.RtpCapabilities, error) {
	sess, err := o.session(sid)
	if err != nil {
		return core.RtpCapabilities{}, err
	}
	return sess.Capabilities(ctx)
}

func (o *Orchestrator) CreateTransport(ctx context.Context, sid core.SessionID, direction core.TransportDirection) (core.TransportDescriptor, error) {
	sess, err := o.session(sid)
	if err != nil {
		return core.TransportDescriptor{}, err
	}
	desc, err := sess.CreateTransport(ctx, direction)
	if err == nil {
		metrics.TransportsCreated.WithLabelValues(string(direction)).Inc()
	}
	return desc, err
}

func (o *Orchestrator) ConnectTransport(ctx context.Context, sid core.SessionID, direction core.TransportDirection, dtls core.DtlsParameters) error {
	sess, err := o.session(sid)
	if err != nil {
		return err
	}
	return sess.ConnectTransport(ctx, direction, dtls)
}

func (o *Orchestrator) Produce(ctx context.Context, sid core.SessionID, kind core.MediaKind, params core.RtpParameters) (core.ProducerID, error) {
	sess, err := o.session(sid)
	if err != nil {
		return "", err
	}
	id, err := sess.Produce(ctx, kind, params)
	if err == nil {
		metrics.ProducersCreated.WithLabelValues(string(kind)).Inc()
	}
	return id, err
}

// Consume resolves the source producer (an explicit id, or the newest live
// producer anywhere in the process) and creates a consumer for it on sid's
// receive transport.
func (o *Orchestrator) Consume(ctx context.Context, sid core.SessionID, producerId core.ProducerID, caps core.RtpCapabilities) (*app.ConsumerDescriptor, error) {
	sess, err := o.session(sid)
	if err != nil {
		return nil, err
	}

	var src *app.Producer
	var ok bool
	if producerId != "" {
		src, ok = o.Producers.Get(producerId)
	} else {
		src, ok = o.Producers.Latest()
	}
	if !ok {
		return nil, core.NewError(core.KindProducerNotFound, "no producer available")
	}

	desc, err := sess.Consume(ctx, src, caps)
	if err == nil {
		metrics.ConsumersCreated.WithLabelValues(string(desc.Kind)).Inc()
	}
	return desc, err
}

func (o *Orchestrator) ResumeConsumer(ctx context.Context, sid core.SessionID, consumerId core.ConsumerID) (core.ConsumerID, error) {
	sess, err := o.session(sid)
	if err != nil {
		return "", err
	}
	return sess.ResumeConsumer(ctx, consumerId)
}

// ProducerAdded and ProducerRemoved keep the cross-session producer lookup in
// step with session state. Both are invoked under the owning session's lock;
// the index has its own leaf lock.
func (o *Orchestrator) ProducerAdded(p *app.Producer) {
	o.Producers.Add(p)
}

func (o *Orchestrator) ProducerRemoved(id core.ProducerID) {
	o.Producers.Remove(id)
}

// ConsumerOrphaned finishes a producer-close cascade for one dependent
// consumer: close it in its owning session and tell that peer to tear down
// local playback. Runs outside any session lock.
func (o *Orchestrator) ConsumerOrphaned(c *app.Consumer) {
	c.Owner().CloseOrphanedConsumer(c)

	note := struct {
		Type       string          `json:"type"`
		ConsumerId core.ConsumerID `json:"consumerId"`
		ProducerId core.ProducerID `json:"producerId"`
	}{
		Type:       "producerClosed",
		ConsumerId: c.Id,
		ProducerId: c.ProducerId,
	}
	b, err := json.Marshal(note)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("producerClosed marshal")
		return
	}
	if err := c.Owner().Signal().TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "orch").
			Str("sid", string(c.Owner().Id)).
			Msg("producerClosed notify dropped")
	}
}
