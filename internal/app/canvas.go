package app

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Canvas/internal/core"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/rs/zerolog/log"
)

const dataURIPrefix = "data:image/png;base64,"

// ErrorObserver receives failures that are not returned to any caller.
type ErrorObserver func(err error)

type CanvasConfig struct {
	Grid     *core.Grid
	Seats    *core.SeatPool
	Store    CanvasStore
	Policy   Policy
	Observer ErrorObserver
	// Secret gates save and reset. Empty disables both.
	Secret string
	// Now is used to name snapshots. Defaults to time.Now.
	Now func() time.Time
}

// Canvas owns the grid, the seat pool and the connection registry.
//
// All three are touched only by the goroutine started in Start: every
// operation is queued as a task and runs to completion before the next one,
// in arrival order. Calls from one goroutine are therefore applied in the
// order they were made.
type Canvas struct {
	grid     *core.Grid
	seats    *core.SeatPool
	registry *Registry
	store    CanvasStore
	policy   Policy
	observe  ErrorObserver
	secret   string
	now      func() time.Time

	tasks    chan func()
	quit     chan struct{}
	stopped  chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

func NewCanvas(cfg CanvasConfig) *Canvas {
	c := &Canvas{
		grid:     cfg.Grid,
		seats:    cfg.Seats,
		registry: NewRegistry(),
		store:    cfg.Store,
		policy:   cfg.Policy,
		observe:  cfg.Observer,
		secret:   cfg.Secret,
		now:      cfg.Now,
		tasks:    make(chan func()),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if c.seats == nil {
		c.seats = core.NewSeatPool(c.grid.Len(), nil)
	}
	if c.observe == nil {
		c.observe = func(err error) {
			log.Error().Err(err).Str("module", "app.canvas").Msg("unhandled error")
		}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Start launches the event loop. Calling it twice, or after Shutdown, is a no-op.
func (c *Canvas) Start() {
	select {
	case <-c.quit:
		return
	default:
	}
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run()
	log.Info().Str("module", "app.canvas").Int("width", c.grid.Width()).Int("height", c.grid.Height()).Msg("canvas started")
}

// Shutdown stops the loop and writes the grid to the store. Later calls
// to canvas operations fail with domain.ErrCanvasClosed.
func (c *Canvas) Shutdown(ctx context.Context) error {
	c.stopOnce.Do(func() {
		close(c.quit)
		if !c.started.Load() {
			close(c.stopped)
		}
	})
	select {
	case <-c.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Info().Str("module", "app.canvas").Msg("saving canvas")
	if c.store == nil {
		return nil
	}
	if err := c.store.DumpGrid(c.grid); err != nil {
		return fmt.Errorf("dump canvas: %w", err)
	}
	return nil
}

func (c *Canvas) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.quit:
			return
		case task := <-c.tasks:
			c.runTask(task)
		}
	}
}

func (c *Canvas) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			c.observe(fmt.Errorf("canvas task panic: %v", r))
		}
	}()
	task()
}

// exec queues fn on the loop and waits for it to finish.
func (c *Canvas) exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case c.tasks <- task:
	case <-c.quit:
		return domain.ErrCanvasClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return domain.ErrCanvasClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AssignSeat draws a free cell for a new client.
func (c *Canvas) AssignSeat(ctx context.Context) (domain.Seat, error) {
	var (
		seat    domain.Seat
		drawErr error
	)
	err := c.exec(ctx, func() {
		idx, err := c.seats.Draw()
		if err != nil {
			drawErr = err
			return
		}
		color, _ := c.grid.Get(idx)
		pos := domain.PositionOf(idx, c.grid.Width())
		seat = domain.Seat{Row: pos.Row, Column: pos.Column, Index: idx, Color: color}
	})
	if err != nil {
		return domain.Seat{}, err
	}
	if drawErr != nil {
		return domain.Seat{}, drawErr
	}
	log.Info().Str("module", "app.canvas").Int("index", seat.Index).Msg("seat assigned")
	return seat, nil
}

// Connect registers sess. Editors get the welcome grid; everybody gets the new user count.
//
// seat is the cell the client says it holds. It is taken out of the pool in
// the same task and released when the connection goes away, unless another
// live connection already holds it.
func (c *Canvas) Connect(ctx context.Context, kind domain.ChannelKind, sess core.Session, seat *domain.Position) error {
	return c.exec(ctx, func() {
		var held *int
		if _, known := c.registry.Get(sess.ID()); !known {
			held = c.claim(seat)
		}
		added := c.registry.Add(kind, sess, held)
		if kind == domain.EditorChannel {
			c.send(sess, encode(c.welcome()))
		}
		if added {
			c.broadcast(encode(c.userCount()))
		} else if kind == domain.EditorChannel {
			c.send(sess, encode(c.userCount()))
		}
	})
}

// claim returns the index a connection presenting seat may release later.
func (c *Canvas) claim(seat *domain.Position) *int {
	if seat == nil {
		return nil
	}
	idx, err := c.grid.IndexOf(*seat)
	if err != nil {
		return nil
	}
	if c.seats.Reclaim(idx) {
		log.Info().Str("module", "app.canvas").Int("index", idx).Msg("seat reclaimed")
		return &idx
	}
	if c.registry.Holds(idx) {
		log.Warn().Str("module", "app.canvas").Int("index", idx).Msg("seat already held by a live connection")
		return nil
	}
	return &idx
}

// Disconnect forgets the connection, frees its seat and broadcasts the new count.
func (c *Canvas) Disconnect(ctx context.Context, id domain.UserID) error {
	return c.exec(ctx, func() {
		for _, idx := range c.registry.Remove(id) {
			if c.registry.Holds(idx) {
				continue
			}
			c.seats.Release(idx)
		}
		c.broadcast(encode(c.userCount()))
	})
}

// Paint sets one cell and tells every editor, the sender included.
func (c *Canvas) Paint(ctx context.Context, pos domain.Position, color domain.Color) error {
	var setErr error
	err := c.exec(ctx, func() {
		idx, err := c.grid.IndexOf(pos)
		if err != nil {
			setErr = err
			return
		}
		if setErr = c.grid.Set(idx, color); setErr != nil {
			return
		}
		c.broadcast(encode(ColorChangeMsg{
			Type:   TypeColorChange,
			Color:  color,
			Column: pos.Column,
			Row:    pos.Row,
		}))
	})
	if err != nil {
		return err
	}
	return setErr
}

// Authorized reports whether token matches the configured secret.
func (c *Canvas) Authorized(token string) bool {
	if token == "" || c.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(c.secret)) == 1
}

// Save writes a client rendered PNG data URI to the snapshot directory.
// It does not touch the grid, so it runs on the caller's goroutine.
func (c *Canvas) Save(ctx context.Context, token, dataURI string) (string, error) {
	if !c.Authorized(token) {
		return domain.MsgNotAllowed, domain.ErrUnauthorized
	}
	buf, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURI, dataURIPrefix))
	if err != nil {
		return "", fmt.Errorf("decode snapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := c.store.WriteSnapshot(buf, c.now())
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	log.Info().Str("module", "app.canvas").Str("file", name).Int("bytes", len(buf)).Msg("snapshot saved")
	return domain.MsgSaved, nil
}

// Reset blanks every cell and sends the fresh grid to all editors.
func (c *Canvas) Reset(ctx context.Context, token string) (string, error) {
	if !c.Authorized(token) {
		return domain.MsgNotAllowed, domain.ErrUnauthorized
	}
	err := c.exec(ctx, func() {
		c.grid.Fill(domain.Transparent)
		c.broadcast(encode(c.welcome()))
	})
	if err != nil {
		return "", err
	}
	log.Info().Str("module", "app.canvas").Msg("canvas reset")
	return domain.MsgReset, nil
}

type Status struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	Users     int `json:"users"`
	FreeSeats int `json:"free_seats"`
}

func (c *Canvas) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.exec(ctx, func() {
		st = Status{
			Width:     c.grid.Width(),
			Height:    c.grid.Height(),
			Users:     c.registry.Count(),
			FreeSeats: c.seats.Len(),
		}
	})
	return st, err
}

func (c *Canvas) welcome() WelcomeMsg {
	return WelcomeMsg{
		Type:   TypeWelcome,
		DB:     c.grid.Snapshot(),
		Width:  c.grid.Width(),
		Height: c.grid.Height(),
	}
}

func (c *Canvas) userCount() UserCountMsg {
	return UserCountMsg{Type: TypeUserCount, Count: c.registry.Count()}
}

func (c *Canvas) send(sess core.Session, f core.Frame) {
	if err := sess.TrySend(f); err != nil {
		c.onDropped([]core.Session{sess})
	}
}

func (c *Canvas) broadcast(f core.Frame) {
	res := core.Broadcast(c.registry.Editors(), f)
	c.onDropped(res.Dropped)
}

func (c *Canvas) onDropped(dropped []core.Session) {
	if c.policy == nil {
		return
	}
	for _, slow := range dropped {
		switch c.policy.OnBackPressure(slow) {
		case KickMember:
			log.Warn().Str("module", "app.canvas").Str("sid", string(slow.ID())).Msg("kicking slow member")
			slow.Close()
		case NoAction:
		}
	}
}
