package signal

import (
	"strconv"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionRowKey    = "seat_row"
	sessionColumnKey = "seat_column"
)

// handshake is what a sync connection presents when it upgrades.
type handshake struct {
	Seat  *domain.Position
	Token string
}

func readHandshake(c *gin.Context) handshake {
	hs := handshake{Token: c.Query("token")}
	if pos, ok := seatFromQuery(c); ok {
		hs.Seat = &pos
	} else if pos, ok := seatFromSession(c); ok {
		hs.Seat = &pos
	}
	return hs
}

func seatFromQuery(c *gin.Context) (domain.Position, bool) {
	rowRaw, column := c.Query("row"), c.Query("column")
	if rowRaw == "" || column == "" {
		return domain.Position{}, false
	}
	row, err := strconv.Atoi(rowRaw)
	if err != nil {
		return domain.Position{}, false
	}
	col, err := strconv.Atoi(column)
	if err != nil {
		return domain.Position{}, false
	}
	return domain.Position{Row: row, Column: col}, true
}

func seatFromSession(c *gin.Context) (domain.Position, bool) {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return domain.Position{}, false
	}
	s := sessions.Default(c)
	row, okRow := s.Get(sessionRowKey).(int)
	col, okCol := s.Get(sessionColumnKey).(int)
	if !okRow || !okCol {
		return domain.Position{}, false
	}
	return domain.Position{Row: row, Column: col}, true
}

// RememberSeat stores the seat handed to this browser so a sync connection
// opened without row and column can still be matched to it.
func RememberSeat(c *gin.Context, seat domain.Seat) {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return
	}
	s := sessions.Default(c)
	s.Set(sessionRowKey, seat.Row)
	s.Set(sessionColumnKey, seat.Column)
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("save seat in session")
	}
}
