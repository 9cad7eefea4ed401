package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signal/internal/core"
)

func newTestDomain(t *testing.T, minPort, maxPort uint16) core.RoutingDomain {
	t.Helper()
	eng, err := New(Options{
		ListenIps: []string{"127.0.0.1"},
		MinPort:   minPort,
		MaxPort:   maxPort,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	d, err := eng.AllocateRoutingDomain(context.Background(), DefaultMediaCodecs(1000))
	require.NoError(t, err)
	return d
}

func testDtls() core.DtlsParameters {
	return core.DtlsParameters{
		Role: "client",
		Fingerprints: []core.DtlsFingerprint{
			{Algorithm: "sha-256", Value: "AA:BB:CC"},
		},
	}
}

func vp8Capabilities() core.RtpCapabilities {
	return core.RtpCapabilities{
		Codecs: []*core.RtpCodecCapability{
			{Kind: core.MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000},
		},
	}
}

func opusOnlyCapabilities() core.RtpCapabilities {
	return core.RtpCapabilities{
		Codecs: []*core.RtpCodecCapability{
			{Kind: core.MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		},
	}
}

func TestDomainCapabilities(t *testing.T) {
	d := newTestDomain(t, 40000, 40010)
	caps := d.Capabilities()

	require.Len(t, caps.Codecs, 2)
	require.Equal(t, "audio/opus", caps.Codecs[0].MimeType)
	require.Equal(t, uint8(2), caps.Codecs[0].Channels)
	require.Equal(t, "video/VP8", caps.Codecs[1].MimeType)
	require.NotZero(t, caps.Codecs[0].PreferredPayloadType)
	require.NotZero(t, caps.Codecs[1].PreferredPayloadType)
	require.NotEqual(t, caps.Codecs[0].PreferredPayloadType, caps.Codecs[1].PreferredPayloadType)
	require.NotEmpty(t, caps.HeaderExtensions)
}

func TestTransportAllocation(t *testing.T) {
	d := newTestDomain(t, 40000, 40010)

	h, err := d.CreateTransport(context.Background(), core.DirectionSend)
	require.NoError(t, err)

	desc := h.Descriptor()
	require.Equal(t, core.DirectionSend, desc.Direction)
	require.Len(t, desc.IceParameters.UsernameFragment, 16)
	require.Len(t, desc.IceParameters.Password, 32)
	require.NotEmpty(t, desc.DtlsParameters.Fingerprints)
	require.Len(t, desc.IceCandidates, 1)

	cand := desc.IceCandidates[0]
	require.Equal(t, "127.0.0.1", cand.Ip)
	require.Equal(t, "udp", cand.Protocol)
	require.GreaterOrEqual(t, cand.Port, uint16(40000))
	require.LessOrEqual(t, cand.Port, uint16(40010))
}

func TestConnectValidation(t *testing.T) {
	d := newTestDomain(t, 40000, 40010)
	ctx := context.Background()

	h, err := d.CreateTransport(ctx, core.DirectionSend)
	require.NoError(t, err)

	err = h.Connect(ctx, core.DtlsParameters{})
	require.ErrorContains(t, err, "no DTLS fingerprints")

	require.NoError(t, h.Connect(ctx, testDtls()))

	err = h.Connect(ctx, testDtls())
	require.ErrorContains(t, err, "already connected")
}

func TestProduceRequiresConnectedSendTransport(t *testing.T) {
	d := newTestDomain(t, 40000, 40010)
	ctx := context.Background()

	send, err := d.CreateTransport(ctx, core.DirectionSend)
	require.NoError(t, err)

	_, err = send.Produce(ctx, core.MediaKindVideo, videoRtpParameters())
	require.ErrorContains(t, err, "not connected")

	require.NoError(t, send.Connect(ctx, testDtls()))

	recv, err := d.CreateTransport(ctx, core.DirectionRecv)
	require.NoError(t, err)
	require.NoError(t, recv.Connect(ctx, testDtls()))

	_, err = recv.Produce(ctx, core.MediaKindVideo, videoRtpParameters())
	require.ErrorContains(t, err, "not a send transport")

	p, err := send.Produce(ctx, core.MediaKindVideo, videoRtpParameters())
	require.NoError(t, err)
	require.Equal(t, core.MediaKindVideo, p.Kind())
	require.False(t, p.Closed())
}

func TestCanConsume(t *testing.T) {
	d := newTestDomain(t, 40000, 40010)
	ctx := context.Background()

	send, err := d.CreateTransport(ctx, core.DirectionSend)
	require.NoError(t, err)
	require.NoError(t, send.Connect(ctx, testDtls()))

	p, err := send.Produce(ctx, core.MediaKindVideo, videoRtpParameters())
	require.NoError(t, err)

	require.True(t, d.CanConsume(p, vp8Capabilities()))
	require.False(t, d.CanConsume(p, opusOnlyCapabilities()))
	require.False(t, d.CanConsume(nil, vp8Capabilities()))

	p.Close()
	require.False(t, d.CanConsume(p, vp8Capabilities()))
}

func TestConsumeNegotiation(t *testing.T) {
	d := newTestDomain(t, 40000, 40010)
	ctx := context.Background()

	send, err := d.CreateTransport(ctx, core.DirectionSend)
	require.NoError(t, err)
	require.NoError(t, send.Connect(ctx, testDtls()))
	p, err := send.Produce(ctx, core.MediaKindVideo, videoRtpParameters())
	require.NoError(t, err)

	recv, err := d.CreateTransport(ctx, core.DirectionRecv)
	require.NoError(t, err)
	require.NoError(t, recv.Connect(ctx, testDtls()))

	c, err := recv.Consume(ctx, p, vp8Capabilities(), true)
	require.NoError(t, err)
	require.True(t, c.Paused())
	require.Equal(t, core.MediaKindVideo, c.Kind())

	params := c.RtpParameters()
	require.Len(t, params.Codecs, 1)
	require.Equal(t, "video/VP8", params.Codecs[0].MimeType)
	require.Len(t, params.Encodings, 1)
	require.NotZero(t, params.Encodings[0].Ssrc)
	require.NotEmpty(t, params.Rtcp.Cname)

	require.NoError(t, c.Resume(ctx))
	require.False(t, c.Paused())

	// Producer closure cascades to the consumer inside the engine too.
	p.Close()
	require.True(t, c.Closed())
	require.Error(t, c.Resume(ctx))
}

func TestPortExhaustion(t *testing.T) {
	d := newTestDomain(t, 41000, 41001)
	ctx := context.Background()

	t1, err := d.CreateTransport(ctx, core.DirectionSend)
	require.NoError(t, err)
	_, err = d.CreateTransport(ctx, core.DirectionRecv)
	require.NoError(t, err)

	_, err = d.CreateTransport(ctx, core.DirectionRecv)
	require.ErrorContains(t, err, "exhausted")

	// Closing a transport returns its port to the pool.
	t1.Close()
	_, err = d.CreateTransport(ctx, core.DirectionSend)
	require.NoError(t, err)
}

func videoRtpParameters() core.RtpParameters {
	return core.RtpParameters{
		Codecs: []*core.RtpCodecParameters{
			{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000},
		},
		Encodings: []*core.RtpEncodingParameters{{Ssrc: 1111}},
	}
}
