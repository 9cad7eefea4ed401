package core

type SessionID string

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
