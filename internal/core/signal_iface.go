package core

import "github.com/dkeye/Canvas/internal/domain"

// Frame is an encoded message ready for the wire.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Session is one live editor or viewer connection as the canvas sees it.
type Session interface {
	SignalConnection
	ID() domain.UserID
}
