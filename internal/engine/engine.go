// Package engine is an in-process reference Media Engine. It performs the
// allocation and negotiation bookkeeping of an SFU worker (routing domains,
// transports, producers, consumers) so the signaling layer can run end to end.
// Packet-level RTP forwarding is out of scope here.
package engine

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signal/internal/core"
)

var ErrEngineClosed = errors.New("engine closed")

type Options struct {
	// ListenIps are the addresses announced in transport ICE candidates.
	ListenIps []string
	// MinPort/MaxPort bound the per-transport port allocation.
	MinPort uint16
	MaxPort uint16
}

type Engine struct {
	opts         Options
	fingerprints []core.DtlsFingerprint
	ports        *portAllocator

	mu      sync.Mutex
	closed  bool
	onFatal func(error)
}

func New(opts Options) (*Engine, error) {
	if len(opts.ListenIps) == 0 {
		opts.ListenIps = []string{"127.0.0.1"}
	}
	if opts.MinPort == 0 || opts.MaxPort < opts.MinPort {
		opts.MinPort, opts.MaxPort = 40000, 49999
	}

	pk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	cert, err := webrtc.GenerateCertificate(pk)
	if err != nil {
		return nil, err
	}
	fps, err := cert.GetFingerprints()
	if err != nil {
		return nil, err
	}
	fingerprints := make([]core.DtlsFingerprint, 0, len(fps))
	for _, fp := range fps {
		fingerprints = append(fingerprints, core.DtlsFingerprint{
			Algorithm: fp.Algorithm,
			Value:     fp.Value,
		})
	}

	log.Info().Str("module", "engine").
		Strs("listen_ips", opts.ListenIps).
		Uint16("min_port", opts.MinPort).
		Uint16("max_port", opts.MaxPort).
		Msg("engine started")

	return &Engine{
		opts:         opts,
		fingerprints: fingerprints,
		ports:        newPortAllocator(opts.MinPort, opts.MaxPort),
	}, nil
}

func (e *Engine) AllocateRoutingDomain(ctx context.Context, codecs []*core.RtpCodecCapability) (core.RoutingDomain, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	d := &routingDomain{
		eng:        e,
		id:         uuid.NewString(),
		caps:       buildCapabilities(codecs),
		transports: make(map[core.TransportID]*transport),
	}
	log.Info().Str("module", "engine").Str("domain", d.id).Msg("routing domain allocated")
	return d, nil
}

func (e *Engine) OnFatal(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFatal = fn
}

// fail marks the engine dead and reports the fault once. Used when internal
// invariants break; the process is expected to shut down.
func (e *Engine) fail(err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	fn := e.onFatal
	e.mu.Unlock()

	log.Error().Err(err).Str("module", "engine").Msg("engine fatal")
	if fn != nil {
		fn(err)
	}
}

func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	log.Info().Str("module", "engine").Msg("engine closed")
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
