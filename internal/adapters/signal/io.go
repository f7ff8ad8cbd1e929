package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *wsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(c.id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(c.id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(c.id)).Msg("readPump closing")
		c.Close()
	}()

	pongWait := ctl.pingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(c.id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, c, data)
		}
	}
}

// envelope is the part every client message shares.
type envelope struct {
	Type string `json:"type"`
	Ack  *int   `json:"ack,omitempty"`
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, c *wsSignalConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, nil, "bad_payload")
		return
	}

	if env.Type == "ping" {
		ctl.handlePing(c)
		return
	}
	if c.kind != domain.EditorChannel {
		log.Warn().Str("module", "signal").Str("sid", string(c.id)).Str("type", env.Type).Msg("viewer sent editor message")
		ctl.sendError(c, env.Ack, "not_allowed")
		return
	}

	switch env.Type {
	case "color":
		ctl.handleColor(ctx, c, env, data)
	case "save":
		ctl.handleSave(ctx, c, env, data)
	case "reset":
		ctl.handleReset(ctx, c, env)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

type ackResp struct {
	Type    string `json:"type"`
	Ack     int    `json:"ack"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (ctl *SignalWSController) sendAck(c *wsSignalConn, ack *int, message string) {
	if ack == nil {
		return
	}
	ctl.sendJSON(c, ackResp{Type: "ack", Ack: *ack, Message: message})
}

func (ctl *SignalWSController) sendError(c *wsSignalConn, ack *int, msg string) {
	if ack != nil {
		ctl.sendJSON(c, ackResp{Type: "ack", Ack: *ack, Error: msg})
		return
	}
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": msg,
	})
}

func (ctl *SignalWSController) sendJSON(c *wsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("sendJSON dropped")
	}
}
