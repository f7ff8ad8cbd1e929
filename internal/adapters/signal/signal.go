package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Canvas/internal/app"
	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	defaultReadLimit  = 32768
	defaultPingPeriod = 54 * time.Second
	writeWait         = 5 * time.Second
	disconnectWait    = 5 * time.Second
	sendBuffer        = 64
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	// AllowedOrigin restricts the Origin header of upgrades. Empty allows any.
	AllowedOrigin string
	Limiter       *ActionRateLimiter
}

type SignalWSController struct {
	Canvas *app.Canvas

	limiter    *ActionRateLimiter
	readLimit  int64
	pingPeriod time.Duration
	upgrader   websocket.Upgrader
}

func NewSignalWSController(canvas *app.Canvas, opts Options) *SignalWSController {
	ctl := &SignalWSController{
		Canvas:     canvas,
		limiter:    opts.Limiter,
		readLimit:  opts.ReadLimit,
		pingPeriod: opts.PingPeriod,
	}
	if ctl.readLimit <= 0 {
		ctl.readLimit = defaultReadLimit
	}
	if ctl.pingPeriod <= 0 {
		ctl.pingPeriod = defaultPingPeriod
	}
	origin := opts.AllowedOrigin
	ctl.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if origin == "" || origin == "*" {
				return true
			}
			return r.Header.Get("Origin") == origin
		},
	}
	return ctl
}

// wsSignalConn is one upgraded connection. It implements core.Session.
type wsSignalConn struct {
	id    domain.UserID
	kind  domain.ChannelKind
	token string
	conn  *websocket.Conn
	send  chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) ID() domain.UserID { return c.id }

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleCanvas serves the editor channel.
func (ctl *SignalWSController) HandleCanvas(ctx context.Context, c *gin.Context) {
	ctl.handle(ctx, c, domain.EditorChannel)
}

// HandleClient serves the viewer channel.
func (ctl *SignalWSController) HandleClient(ctx context.Context, c *gin.Context) {
	ctl.handle(ctx, c, domain.ViewerChannel)
}

func (ctl *SignalWSController) handle(ctx context.Context, c *gin.Context, kind domain.ChannelKind) {
	hs := readHandshake(c)

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsSignalConn{
		id:    domain.NewUserID(),
		kind:  kind,
		token: hs.Token,
		conn:  ws,
		send:  make(chan core.Frame, sendBuffer),
	}
	logger := log.With().Str("module", "signal").Str("sid", string(conn.id)).Str("kind", kind.String()).Logger()
	logger.Info().Bool("seat", hs.Seat != nil).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)

	// A reconnecting client's seat leaves the pool inside Connect, before the welcome.
	if err := ctl.Canvas.Connect(ctx, kind, conn, hs.Seat); err != nil {
		logger.Error().Err(err).Msg("connect")
		cancel()
		conn.Close()
		// The task may still have run; undo whatever it registered.
		ctl.disconnect(ctx, conn)
		return
	}
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
		ctl.disconnect(ctx, conn)
	}()
}

func (ctl *SignalWSController) disconnect(ctx context.Context, conn *wsSignalConn) {
	ctl.limiter.Forget(conn.id)
	// The connection context may already be cancelled; seat accounting must still happen.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectWait)
	defer cancel()
	if err := ctl.Canvas.Disconnect(dctx, conn.id); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(conn.id)).Msg("disconnect")
	}
}
