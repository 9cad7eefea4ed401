package core

// MediaKind is the media kind ("audio" or "video").
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// RtpCapabilities define what a routing domain or an endpoint can receive at
// media level. The shape mirrors what browser-side SFU client libraries
// exchange, so the descriptor can be loaded into the peer's device untouched.
type RtpCapabilities struct {
	Codecs           []*RtpCodecCapability `json:"codecs,omitempty"`
	HeaderExtensions []*RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

// RtpCodecCapability describes one supported codec within RtpCapabilities.
type RtpCodecCapability struct {
	// Kind is the media kind.
	Kind MediaKind `json:"kind"`

	// MimeType is the codec MIME media type/subtype (e.g. "audio/opus", "video/VP8").
	MimeType string `json:"mimeType"`

	// PreferredPayloadType is the preferred RTP payload type (96-127 range).
	PreferredPayloadType uint8 `json:"preferredPayloadType,omitempty"`

	// ClockRate is the codec clock rate expressed in Hertz.
	ClockRate uint32 `json:"clockRate"`

	// Channels is the number of channels (e.g. 2 for stereo). Audio only.
	Channels uint8 `json:"channels,omitempty"`

	// Parameters are codec specific parameters, critical for codec matching.
	Parameters map[string]any `json:"parameters,omitempty"`

	// RtcpFeedback lists codec-specific feedback messages.
	RtcpFeedback []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

// RtpHeaderExtension describes a supported RTP header extension (RFC 5285).
type RtpHeaderExtension struct {
	Kind        MediaKind `json:"kind,omitempty"`
	Uri         string    `json:"uri"`
	PreferredId uint8     `json:"preferredId"`
}

// RtpParameters describe one media stream: send parameters as declared by a
// producing peer, or receive parameters as negotiated for a consumer.
type RtpParameters struct {
	Mid              string                          `json:"mid,omitempty"`
	Codecs           []*RtpCodecParameters           `json:"codecs"`
	HeaderExtensions []*RtpHeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []*RtpEncodingParameters        `json:"encodings,omitempty"`
	Rtcp             *RtcpParameters                 `json:"rtcp,omitempty"`
}

type RtpCodecParameters struct {
	MimeType     string         `json:"mimeType"`
	PayloadType  uint8          `json:"payloadType"`
	ClockRate    uint32         `json:"clockRate"`
	Channels     uint8          `json:"channels,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

type RtpHeaderExtensionParameters struct {
	Uri string `json:"uri"`
	Id  uint8  `json:"id"`
}

type RtpEncodingParameters struct {
	Ssrc       uint32 `json:"ssrc,omitempty"`
	Rid        string `json:"rid,omitempty"`
	MaxBitrate uint32 `json:"maxBitrate,omitempty"`
}

type RtcpParameters struct {
	Cname       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize,omitempty"`
}
