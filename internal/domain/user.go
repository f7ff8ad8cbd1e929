// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// UserID identifies one live connection. A browser that reconnects gets a new one.
type UserID string

func NewUserID() UserID {
	return UserID(uuid.NewString())
}

// ChannelKind tells editor connections from viewer connections.
type ChannelKind int

const (
	EditorChannel ChannelKind = iota
	ViewerChannel
)

func (k ChannelKind) String() string {
	switch k {
	case EditorChannel:
		return "editor"
	case ViewerChannel:
		return "viewer"
	}
	return "unknown"
}
