package app

import (
	"encoding/json"

	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	TypeWelcome     = "welcome"
	TypeUserCount   = "userCount"
	TypeColorChange = "colorChange"
)

// WelcomeMsg carries the whole grid. Sent on connect and after a reset.
type WelcomeMsg struct {
	Type   string         `json:"type"`
	DB     []domain.Color `json:"db"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
}

type UserCountMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type ColorChangeMsg struct {
	Type   string       `json:"type"`
	Color  domain.Color `json:"color"`
	Column int          `json:"column"`
	Row    int          `json:"row"`
}

func encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.canvas").Msg("encode frame")
		return nil
	}
	return b
}
