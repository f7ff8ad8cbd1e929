package domain

import "errors"

var (
	ErrNoSeatsAvailable = errors.New("no more free seats")
	ErrUnauthorized     = errors.New("not allowed")
	ErrCellOutOfRange   = errors.New("cell out of range")
	ErrCorruptCanvas    = errors.New("persisted canvas is corrupt")
	ErrCanvasClosed     = errors.New("canvas closed")
)

// Messages sent back to clients. They predate the Go error strings and
// existing front-ends compare against them.
const (
	MsgNoSeats    = "No more free seats"
	MsgNotAllowed = "Not allowed"
	MsgSaved      = "Saved"
	MsgReset      = "Reset"
)
