package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/randutil"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signal/internal/core"
)

type transport struct {
	d         *routingDomain
	id        core.TransportID
	direction core.TransportDirection
	desc      core.TransportDescriptor
	port      uint16

	mu        sync.Mutex
	connected bool
	closed    bool
	producers map[core.ProducerID]*producer
	consumers map[core.ConsumerID]*consumer
}

func (t *transport) Id() core.TransportID { return t.id }

func (t *transport) Descriptor() core.TransportDescriptor { return t.desc }

func (t *transport) Connect(ctx context.Context, dtls core.DtlsParameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transport %s closed", t.id)
	}
	if t.connected {
		return fmt.Errorf("transport %s already connected", t.id)
	}
	if len(dtls.Fingerprints) == 0 {
		return fmt.Errorf("transport %s: no DTLS fingerprints", t.id)
	}
	t.connected = true
	log.Info().Str("module", "engine").Str("transport", string(t.id)).Msg("transport connected")
	return nil
}

func (t *transport) Produce(ctx context.Context, kind core.MediaKind, params core.RtpParameters) (core.ProducerHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport %s closed", t.id)
	}
	if !t.connected {
		return nil, fmt.Errorf("transport %s not connected", t.id)
	}
	if t.direction != core.DirectionSend {
		return nil, fmt.Errorf("transport %s is not a send transport", t.id)
	}
	if kind != core.MediaKindAudio && kind != core.MediaKindVideo {
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}
	if len(params.Codecs) == 0 {
		return nil, fmt.Errorf("empty rtp parameters")
	}

	p := &producer{
		t:      t,
		id:     core.ProducerID(uuid.NewString()),
		kind:   kind,
		params: params,
	}
	t.producers[p.id] = p
	log.Info().Str("module", "engine").
		Str("transport", string(t.id)).
		Str("producer", string(p.id)).
		Str("kind", string(kind)).
		Msg("producer created")
	return p, nil
}

func (t *transport) Consume(ctx context.Context, src core.ProducerHandle, caps core.RtpCapabilities, paused bool) (core.ConsumerHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport %s closed", t.id)
	}
	if !t.connected {
		return nil, fmt.Errorf("transport %s not connected", t.id)
	}
	if t.direction != core.DirectionRecv {
		return nil, fmt.Errorf("transport %s is not a receive transport", t.id)
	}
	if src == nil || src.Closed() {
		return nil, fmt.Errorf("producer closed")
	}

	params, err := negotiateConsumerParameters(t.d.caps, caps, src.Kind())
	if err != nil {
		return nil, err
	}
	c := &consumer{
		t:      t,
		id:     core.ConsumerID(uuid.NewString()),
		kind:   src.Kind(),
		params: params,
		paused: paused,
	}
	t.consumers[c.id] = c

	// Consumers never outlive their producer inside the engine either.
	src.OnClose(c.Close)

	log.Info().Str("module", "engine").
		Str("transport", string(t.id)).
		Str("consumer", string(c.id)).
		Str("producer", string(src.Id())).
		Bool("paused", paused).
		Msg("consumer created")
	return c, nil
}

func (t *transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.connected = false
	producers := make([]*producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}
	t.d.eng.ports.Release(t.port)
	t.d.removeTransport(t.id)
	log.Info().Str("module", "engine").Str("transport", string(t.id)).Msg("transport closed")
}

func (t *transport) removeProducer(id core.ProducerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.producers, id)
}

func (t *transport) removeConsumer(id core.ConsumerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.consumers, id)
}

// negotiateConsumerParameters picks the domain codec for kind the peer can
// decode and builds the receive parameters for a consumer: engine-chosen
// payload type, fresh SSRC, fresh CNAME.
func negotiateConsumerParameters(domainCaps, peerCaps core.RtpCapabilities, kind core.MediaKind) (core.RtpParameters, error) {
	var chosen *core.RtpCodecCapability
	for _, dc := range domainCaps.Codecs {
		if dc.Kind != kind {
			continue
		}
		for _, pc := range peerCaps.Codecs {
			if codecsMatch(dc, pc) {
				chosen = dc
				break
			}
		}
		if chosen != nil {
			break
		}
	}
	if chosen == nil {
		return core.RtpParameters{}, fmt.Errorf("no compatible %s codec", kind)
	}

	rng := randutil.NewMathRandomGenerator()
	cname, err := randutil.GenerateCryptoRandomString(16, iceRunes)
	if err != nil {
		return core.RtpParameters{}, err
	}

	return core.RtpParameters{
		Codecs: []*core.RtpCodecParameters{{
			MimeType:     chosen.MimeType,
			PayloadType:  chosen.PreferredPayloadType,
			ClockRate:    chosen.ClockRate,
			Channels:     chosen.Channels,
			Parameters:   chosen.Parameters,
			RtcpFeedback: chosen.RtcpFeedback,
		}},
		Encodings: []*core.RtpEncodingParameters{{
			Ssrc: rng.Uint32(),
		}},
		Rtcp: &core.RtcpParameters{
			Cname:       cname,
			ReducedSize: true,
		},
	}, nil
}
