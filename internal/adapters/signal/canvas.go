package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleColor(ctx context.Context, c *wsSignalConn, env envelope, data []byte) {
	type colorPayload struct {
		Color  domain.RGBA `json:"color"`
		Row    int         `json:"row"`
		Column int         `json:"column"`
	}
	var p colorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad color payload")
		ctl.sendError(c, env.Ack, "bad_payload")
		return
	}

	pos := domain.Position{Row: p.Row, Column: p.Column}
	if err := ctl.Canvas.Paint(ctx, pos, p.Color.Color()); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("paint")
		ctl.sendError(c, env.Ack, err.Error())
		return
	}
	ctl.sendAck(c, env.Ack, "")
}

func (ctl *SignalWSController) handleSave(ctx context.Context, c *wsSignalConn, env envelope, data []byte) {
	type savePayload struct {
		Image string `json:"image"`
	}
	var p savePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad save payload")
		ctl.sendError(c, env.Ack, "bad_payload")
		return
	}
	if ctl.limiter.Blocked(c.id) {
		log.Warn().Str("module", "signal").Str("sid", string(c.id)).Msg("save rate limited")
		ctl.sendAck(c, env.Ack, domain.MsgNotAllowed)
		return
	}

	msg, err := ctl.Canvas.Save(ctx, c.token, p.Image)
	ctl.privilegedResult(c, env, "save", msg, err)
}

func (ctl *SignalWSController) handleReset(ctx context.Context, c *wsSignalConn, env envelope) {
	if ctl.limiter.Blocked(c.id) {
		log.Warn().Str("module", "signal").Str("sid", string(c.id)).Msg("reset rate limited")
		ctl.sendAck(c, env.Ack, domain.MsgNotAllowed)
		return
	}
	msg, err := ctl.Canvas.Reset(ctx, c.token)
	ctl.privilegedResult(c, env, "reset", msg, err)
}

func (ctl *SignalWSController) privilegedResult(c *wsSignalConn, env envelope, action, msg string, err error) {
	switch {
	case err == nil:
		log.Info().Str("module", "signal").Str("sid", string(c.id)).Str("action", action).Msg("privileged action done")
		ctl.sendAck(c, env.Ack, msg)
	case errors.Is(err, domain.ErrUnauthorized):
		log.Warn().Str("module", "signal").Str("sid", string(c.id)).Str("action", action).Msg("privileged action refused")
		ctl.limiter.Fail(c.id)
		ctl.sendAck(c, env.Ack, msg)
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(c.id)).Str("action", action).Msg("privileged action failed")
		ctl.sendError(c, env.Ack, err.Error())
	}
}
