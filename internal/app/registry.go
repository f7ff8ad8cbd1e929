package app

import (
	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Kind    domain.ChannelKind
	Session core.Session
	// Seat is the cell the connection presented at handshake, if any.
	Seat *int
}

// Registry tracks live editor and viewer connections in connect order.
// It is owned by the canvas loop and takes no locks.
type Registry struct {
	entries []*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers sess unless its id is already present.
func (r *Registry) Add(kind domain.ChannelKind, sess core.Session, seat *int) bool {
	for _, e := range r.entries {
		if e.Session.ID() == sess.ID() {
			return false
		}
	}
	r.entries = append(r.entries, &sessionEntry{Kind: kind, Session: sess, Seat: seat})
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID())).Str("kind", kind.String()).Msg("bound session")
	return true
}

// Remove drops every entry with id and returns the seats they held.
func (r *Registry) Remove(id domain.UserID) []int {
	var seats []int
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.Session.ID() != id {
			kept = append(kept, e)
			continue
		}
		if e.Seat != nil {
			seats = append(seats, *e.Seat)
		}
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("unbind session")
	return seats
}

// Holds reports whether a live connection holds seat idx.
func (r *Registry) Holds(idx int) bool {
	for _, e := range r.entries {
		if e.Seat != nil && *e.Seat == idx {
			return true
		}
	}
	return false
}

// Count is the number of live users across both channels.
func (r *Registry) Count() int {
	return len(r.entries)
}

// Editors returns the sessions that receive canvas broadcasts.
func (r *Registry) Editors() []core.Session {
	out := make([]core.Session, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Kind == domain.EditorChannel {
			out = append(out, e.Session)
		}
	}
	return out
}

func (r *Registry) Get(id domain.UserID) (core.Session, bool) {
	for _, e := range r.entries {
		if e.Session.ID() == id {
			return e.Session, true
		}
	}
	return nil, false
}
