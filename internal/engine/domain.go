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

const iceRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type routingDomain struct {
	eng  *Engine
	id   string
	caps core.RtpCapabilities

	mu         sync.Mutex
	closed     bool
	transports map[core.TransportID]*transport
}

func (d *routingDomain) Capabilities() core.RtpCapabilities {
	return d.caps
}

func (d *routingDomain) CreateTransport(ctx context.Context, direction core.TransportDirection) (core.TransportHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.eng.isClosed() {
		return nil, ErrEngineClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("routing domain %s closed", d.id)
	}

	port, err := d.eng.ports.Alloc()
	if err != nil {
		return nil, fmt.Errorf("allocate transport: %w", err)
	}

	ufrag, err := randutil.GenerateCryptoRandomString(16, iceRunes)
	if err != nil {
		d.eng.ports.Release(port)
		return nil, err
	}
	pwd, err := randutil.GenerateCryptoRandomString(32, iceRunes)
	if err != nil {
		d.eng.ports.Release(port)
		return nil, err
	}

	id := core.TransportID(uuid.NewString())
	candidates := make([]core.IceCandidate, 0, len(d.eng.opts.ListenIps))
	for i, ip := range d.eng.opts.ListenIps {
		candidates = append(candidates, core.IceCandidate{
			Foundation: "udpcandidate",
			Priority:   hostCandidatePriority(i),
			Ip:         ip,
			Protocol:   "udp",
			Port:       port,
			Type:       "host",
		})
	}

	t := &transport{
		d:         d,
		id:        id,
		direction: direction,
		port:      port,
		desc: core.TransportDescriptor{
			Id:        id,
			Direction: direction,
			IceParameters: core.IceParameters{
				UsernameFragment: ufrag,
				Password:         pwd,
				IceLite:          true,
			},
			IceCandidates: candidates,
			DtlsParameters: core.DtlsParameters{
				Role:         "auto",
				Fingerprints: d.eng.fingerprints,
			},
		},
		producers: make(map[core.ProducerID]*producer),
		consumers: make(map[core.ConsumerID]*consumer),
	}
	d.transports[id] = t

	log.Info().Str("module", "engine").
		Str("domain", d.id).
		Str("transport", string(id)).
		Str("direction", string(direction)).
		Uint16("port", port).
		Msg("transport allocated")
	return t, nil
}

func (d *routingDomain) CanConsume(p core.ProducerHandle, caps core.RtpCapabilities) bool {
	if p == nil || p.Closed() {
		return false
	}
	for _, dc := range d.caps.Codecs {
		if dc.Kind != p.Kind() {
			continue
		}
		for _, pc := range caps.Codecs {
			if codecsMatch(dc, pc) {
				return true
			}
		}
	}
	return false
}

func (d *routingDomain) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	snapshot := make([]*transport, 0, len(d.transports))
	for _, t := range d.transports {
		snapshot = append(snapshot, t)
	}
	d.mu.Unlock()

	for _, t := range snapshot {
		t.Close()
	}
	log.Info().Str("module", "engine").Str("domain", d.id).Msg("routing domain closed")
}

func (d *routingDomain) removeTransport(id core.TransportID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.transports, id)
}

// hostCandidatePriority follows the RFC 8445 recommended formula for host
// candidates, ranking earlier listen addresses higher.
func hostCandidatePriority(index int) uint32 {
	typePref := uint32(126)
	localPref := uint32(65535 - index)
	return typePref<<24 | localPref<<8 | 255
}
