package app

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/dkeye/Signal/internal/core"
)

// Transport lifecycle states. Every transport walks
// created -> connecting -> connected, with a side exit to closed from any of
// them. No transition skips connecting.
const (
	TransportCreated    = "created"
	TransportConnecting = "connecting"
	TransportConnected  = "connected"
	TransportClosed     = "closed"
)

const (
	evConnect   = "connect"
	evEstablish = "establish"
	evClose     = "close"
)

// Transport is one directional media channel owned by exactly one session.
// All mutation happens under the owning session's lock.
type Transport struct {
	Id        core.TransportID
	Direction core.TransportDirection

	handle    core.TransportHandle
	state     *fsm.FSM
	producers map[core.ProducerID]*Producer
	consumers map[core.ConsumerID]*Consumer
}

func newTransport(handle core.TransportHandle, direction core.TransportDirection) *Transport {
	return &Transport{
		Id:        handle.Id(),
		Direction: direction,
		handle:    handle,
		state: fsm.NewFSM(
			TransportCreated,
			fsm.Events{
				{Name: evConnect, Src: []string{TransportCreated}, Dst: TransportConnecting},
				{Name: evEstablish, Src: []string{TransportConnecting}, Dst: TransportConnected},
				{Name: evClose, Src: []string{TransportCreated, TransportConnecting, TransportConnected}, Dst: TransportClosed},
			},
			fsm.Callbacks{},
		),
		producers: make(map[core.ProducerID]*Producer),
		consumers: make(map[core.ConsumerID]*Consumer),
	}
}

func (t *Transport) State() string { return t.state.Current() }

func (t *Transport) IsConnected() bool { return t.state.Is(TransportConnected) }

func (t *Transport) Descriptor() core.TransportDescriptor { return t.handle.Descriptor() }

// connect runs created -> connecting -> connected against the engine. The
// engine performs the real DTLS handshake once per transport, so a repeat
// call is a protocol violation.
func (t *Transport) connect(ctx context.Context, dtls core.DtlsParameters) error {
	if !t.state.Is(TransportCreated) {
		return core.NewError(core.KindInvalidState,
			"transport %s is %s, connect is only valid once", t.Id, t.State())
	}
	if err := t.state.Event(ctx, evConnect); err != nil {
		return core.NewError(core.KindInvalidState, "transport %s: %v", t.Id, err)
	}
	if err := t.handle.Connect(ctx, dtls); err != nil {
		return core.NewError(core.KindEngineAllocation, "dtls connect: %v", err)
	}
	return t.state.Event(ctx, evEstablish)
}
