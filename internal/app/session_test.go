package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/engine"
)

// testSink mirrors what the orchestrator does: keep the producer index in
// step and finish cross-session cascades.
type testSink struct {
	index    *ProducerIndex
	orphaned []*Consumer
}

func newTestSink() *testSink {
	return &testSink{index: NewProducerIndex()}
}

func (s *testSink) ProducerAdded(p *Producer)          { s.index.Add(p) }
func (s *testSink) ProducerRemoved(id core.ProducerID) { s.index.Remove(id) }

func (s *testSink) ConsumerOrphaned(c *Consumer) {
	c.Owner().CloseOrphanedConsumer(c)
	s.orphaned = append(s.orphaned, c)
}

type fakeSignal struct {
	frames []core.Frame
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

func newTestSession(t *testing.T, sid core.SessionID, sink EventSink) *Session {
	t.Helper()
	eng, err := engine.New(engine.Options{
		ListenIps: []string{"127.0.0.1"},
		MinPort:   42000,
		MaxPort:   42999,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	domain, err := eng.AllocateRoutingDomain(context.Background(), engine.DefaultMediaCodecs(1000))
	require.NoError(t, err)

	sess := NewSession(sid, domain, &fakeSignal{}, sink)
	t.Cleanup(sess.Close)
	return sess
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
			{Kind: core.MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
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

func videoRtpParameters() core.RtpParameters {
	return core.RtpParameters{
		Codecs: []*core.RtpCodecParameters{
			{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000},
		},
		Encodings: []*core.RtpEncodingParameters{{Ssrc: 2222}},
	}
}

// setupProducing walks a session to the producing state and returns the
// producer.
func setupProducing(t *testing.T, s *Session) *Producer {
	t.Helper()
	ctx := context.Background()

	_, err := s.Capabilities(ctx)
	require.NoError(t, err)
	_, err = s.CreateTransport(ctx, core.DirectionSend)
	require.NoError(t, err)
	require.NoError(t, s.ConnectTransport(ctx, core.DirectionSend, testDtls()))

	id, err := s.Produce(ctx, core.MediaKindVideo, videoRtpParameters())
	require.NoError(t, err)
	return s.producers[id]
}

// setupReceiving prepares a connected receive transport.
func setupReceiving(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Capabilities(ctx)
	require.NoError(t, err)
	_, err = s.CreateTransport(ctx, core.DirectionRecv)
	require.NoError(t, err)
	require.NoError(t, s.ConnectTransport(ctx, core.DirectionRecv, testDtls()))
}

func TestCapabilitiesIdempotent(t *testing.T) {
	s := newTestSession(t, "s1", newTestSink())
	ctx := context.Background()

	first, err := s.Capabilities(ctx)
	require.NoError(t, err)
	second, err := s.Capabilities(ctx)
	require.NoError(t, err)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
	require.Equal(t, StateCapsFetched, s.State())
}

func TestCreateTransportRequiresCapabilities(t *testing.T) {
	s := newTestSession(t, "s1", newTestSink())

	_, err := s.CreateTransport(context.Background(), core.DirectionSend)
	require.Equal(t, core.KindInvalidState, core.KindOf(err))
}

func TestOneTransportPerDirection(t *testing.T) {
	s := newTestSession(t, "s1", newTestSink())
	ctx := context.Background()

	_, err := s.Capabilities(ctx)
	require.NoError(t, err)
	_, err = s.CreateTransport(ctx, core.DirectionSend)
	require.NoError(t, err)

	_, err = s.CreateTransport(ctx, core.DirectionSend)
	require.Equal(t, core.KindInvalidState, core.KindOf(err))

	// The other direction is still free.
	_, err = s.CreateTransport(ctx, core.DirectionRecv)
	require.NoError(t, err)
}

func TestDoubleConnectInvalidState(t *testing.T) {
	s := newTestSession(t, "s1", newTestSink())
	ctx := context.Background()

	_, err := s.Capabilities(ctx)
	require.NoError(t, err)
	_, err = s.CreateTransport(ctx, core.DirectionSend)
	require.NoError(t, err)
	require.NoError(t, s.ConnectTransport(ctx, core.DirectionSend, testDtls()))

	err = s.ConnectTransport(ctx, core.DirectionSend, testDtls())
	require.Equal(t, core.KindInvalidState, core.KindOf(err))

	// The transport survives the violation in its connected state.
	require.True(t, s.transports[core.DirectionSend].IsConnected())
}

func TestProduceRequiresConnectedSendTransport(t *testing.T) {
	s := newTestSession(t, "s1", newTestSink())
	ctx := context.Background()

	_, err := s.Produce(ctx, core.MediaKindVideo, videoRtpParameters())
	require.Equal(t, core.KindInvalidState, core.KindOf(err))

	_, err = s.Capabilities(ctx)
	require.NoError(t, err)
	_, err = s.CreateTransport(ctx, core.DirectionSend)
	require.NoError(t, err)

	// Created but not connected is still not enough.
	_, err = s.Produce(ctx, core.MediaKindVideo, videoRtpParameters())
	require.Equal(t, core.KindInvalidState, core.KindOf(err))
}

func TestVideoConsumerStartsPausedResumeIdempotent(t *testing.T) {
	sink := newTestSink()
	s := newTestSession(t, "s1", sink)
	ctx := context.Background()

	p := setupProducing(t, s)
	setupReceiving(t, s)

	desc, err := s.Consume(ctx, p, vp8Capabilities())
	require.NoError(t, err)
	require.True(t, desc.Paused)
	require.Equal(t, core.MediaKindVideo, desc.Kind)
	require.Equal(t, p.Id, desc.ProducerId)
	require.NotEmpty(t, desc.RtpParameters.Codecs)

	id, err := s.ResumeConsumer(ctx, "")
	require.NoError(t, err)
	require.Equal(t, desc.Id, id)
	require.False(t, s.consumers[id].handle.Paused())

	// Resuming an active consumer is a no-op, not an error.
	_, err = s.ResumeConsumer(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StateConsuming, s.State())
}

func TestConsumeIncompatibleCapabilities(t *testing.T) {
	s := newTestSession(t, "s1", newTestSink())
	ctx := context.Background()

	p := setupProducing(t, s)
	setupReceiving(t, s)

	_, err := s.Consume(ctx, p, opusOnlyCapabilities())
	require.Equal(t, core.KindIncompatibleCapabilities, core.KindOf(err))
	require.Empty(t, s.consumers)
}

func TestConsumeRecoversAfterIncompatibleCapabilities(t *testing.T) {
	s := newTestSession(t, "s1", newTestSink())
	ctx := context.Background()

	p := setupProducing(t, s)
	setupReceiving(t, s)

	_, err := s.Consume(ctx, p, opusOnlyCapabilities())
	require.Equal(t, core.KindIncompatibleCapabilities, core.KindOf(err))

	// Only an accepted descriptor is captured: the retry with decodable
	// capabilities must not be judged against the rejected ones.
	desc, err := s.Consume(ctx, p, vp8Capabilities())
	require.NoError(t, err)
	require.True(t, desc.Paused)
}

func TestConsumeRequiresConnectedRecvTransport(t *testing.T) {
	s := newTestSession(t, "s1", newTestSink())

	p := setupProducing(t, s)

	_, err := s.Consume(context.Background(), p, vp8Capabilities())
	require.Equal(t, core.KindInvalidState, core.KindOf(err))
}

func TestCloseTransportCascades(t *testing.T) {
	sink := newTestSink()
	s := newTestSession(t, "s1", sink)
	ctx := context.Background()

	p := setupProducing(t, s)
	setupReceiving(t, s)

	desc, err := s.Consume(ctx, p, vp8Capabilities())
	require.NoError(t, err)

	// Closing the send transport takes the producer down, and the producer
	// takes its dependent consumer down, even though it lives on the other
	// transport.
	require.NoError(t, s.CloseTransport(core.DirectionSend))

	require.True(t, p.handle.Closed())
	require.Empty(t, s.producers)
	require.Empty(t, s.consumers)
	require.True(t, p.isClosed())
	require.Len(t, sink.orphaned, 1)
	require.Equal(t, desc.Id, sink.orphaned[0].Id)
	require.False(t, sink.index.Count() > 0)

	// The resume request racing the cascade is a benign NotFound.
	_, err = s.ResumeConsumer(ctx, desc.Id)
	require.Equal(t, core.KindConsumerNotFound, core.KindOf(err))
}

func TestCrossSessionConsumeAndCascade(t *testing.T) {
	sink := newTestSink()
	s1 := newTestSession(t, "s1", sink)
	s2 := newTestSession(t, "s2", sink)
	ctx := context.Background()

	p := setupProducing(t, s1)
	setupReceiving(t, s2)

	desc, err := s2.Consume(ctx, p, vp8Capabilities())
	require.NoError(t, err)
	require.True(t, desc.Paused)

	_, err = s2.ResumeConsumer(ctx, desc.Id)
	require.NoError(t, err)

	// Producer session teardown reaches across into s2.
	s1.Close()
	require.Empty(t, s2.consumers)
	require.Len(t, sink.orphaned, 1)
	require.Same(t, s2, sink.orphaned[0].Owner())

	_, err = s2.ResumeConsumer(ctx, desc.Id)
	require.Equal(t, core.KindConsumerNotFound, core.KindOf(err))
}

func TestSessionCloseIdempotent(t *testing.T) {
	s := newTestSession(t, "s1", newTestSink())

	setupProducing(t, s)
	s.Close()
	s.Close()

	_, err := s.Capabilities(context.Background())
	require.Equal(t, core.KindSessionNotFound, core.KindOf(err))
	require.Equal(t, StateSessionClosed, s.state.Current())
}
