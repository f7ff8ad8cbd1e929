package core

import "github.com/rs/zerolog/log"

// PublishResult reports delivery stats/backpressure to the canvas.
type PublishResult struct {
	SendTo  int
	Dropped []Session
}

// Broadcast fans f out to every target. It never blocks; a target whose
// buffer is full is reported in Dropped.
func Broadcast(targets []Session, f Frame) PublishResult {
	res := PublishResult{}
	for _, s := range targets {
		if err := s.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, s)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.broadcast").Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
