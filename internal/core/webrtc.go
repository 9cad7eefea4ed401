package core

type (
	TransportID string
	ProducerID  string
	ConsumerID  string
)

// TransportDirection tells which way media flows over a transport, seen from
// the peer: it sends over a "send" transport and receives over a "receive"
// one.
type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "receive"
)

func (d TransportDirection) Valid() bool {
	return d == DirectionSend || d == DirectionRecv
}

// IceParameters are the local ICE credentials allocated for a transport.
type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

// IceCandidate is one local candidate the peer may connect to.
type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	Ip         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// DtlsParameters carry certificate fingerprints for the DTLS handshake, in
// either direction: local parameters go out in the transport descriptor,
// remote ones come back in the connect request.
type DtlsParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

// TransportDescriptor is everything the peer needs to set up its side of a
// transport.
type TransportDescriptor struct {
	Id             TransportID        `json:"id"`
	Direction      TransportDirection `json:"direction"`
	IceParameters  IceParameters      `json:"iceParameters"`
	IceCandidates  []IceCandidate     `json:"iceCandidates"`
	DtlsParameters DtlsParameters     `json:"dtlsParameters"`
}
