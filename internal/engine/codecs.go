package engine

import (
	"strings"

	"github.com/dkeye/Signal/internal/core"
)

// DefaultMediaCodecs is the fixed process-wide codec configuration: Opus for
// audio, VP8 for video. startBitrate is a hint passed to video encoders.
func DefaultMediaCodecs(startBitrate uint32) []*core.RtpCodecCapability {
	return []*core.RtpCodecCapability{
		{
			Kind:      core.MediaKindAudio,
			MimeType:  "audio/opus",
			ClockRate: 48000,
			Channels:  2,
		},
		{
			Kind:      core.MediaKindVideo,
			MimeType:  "video/VP8",
			ClockRate: 90000,
			Parameters: map[string]any{
				"x-google-start-bitrate": startBitrate,
			},
			RtcpFeedback: []core.RtcpFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
			},
		},
	}
}

var defaultHeaderExtensions = []*core.RtpHeaderExtension{
	{Uri: "urn:ietf:params:rtp-hdrext:sdes:mid", PreferredId: 1},
	{Uri: "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time", PreferredId: 4},
	{Kind: core.MediaKindAudio, Uri: "urn:ietf:params:rtp-hdrext:ssrc-audio-level", PreferredId: 10},
}

// buildCapabilities turns the configured codec list into the domain's
// capability descriptor, assigning preferred payload types where the
// configuration left them unset.
func buildCapabilities(codecs []*core.RtpCodecCapability) core.RtpCapabilities {
	out := core.RtpCapabilities{
		Codecs:           make([]*core.RtpCodecCapability, 0, len(codecs)),
		HeaderExtensions: defaultHeaderExtensions,
	}
	nextPt := uint8(100)
	for _, c := range codecs {
		cc := *c
		if cc.Channels == 0 && cc.Kind == core.MediaKindAudio {
			cc.Channels = 1
		}
		if cc.PreferredPayloadType == 0 {
			cc.PreferredPayloadType = nextPt
			nextPt++
		}
		out.Codecs = append(out.Codecs, &cc)
	}
	return out
}

// codecsMatch reports whether a peer codec can decode a domain codec.
// Matching follows MIME type, clock rate and channel count.
func codecsMatch(domain, peer *core.RtpCodecCapability) bool {
	if !strings.EqualFold(domain.MimeType, peer.MimeType) {
		return false
	}
	if domain.ClockRate != peer.ClockRate {
		return false
	}
	if domain.Kind == core.MediaKindAudio {
		dc, pc := domain.Channels, peer.Channels
		if dc == 0 {
			dc = 1
		}
		if pc == 0 {
			pc = 1
		}
		if dc != pc {
			return false
		}
	}
	return true
}
