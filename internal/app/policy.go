package app

import "github.com/dkeye/Canvas/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a connection that cannot keep up with broadcasts.
type Policy interface {
	OnBackPressure(member core.Session) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(member core.Session) BackpressureAction {
	return KickMember
}
