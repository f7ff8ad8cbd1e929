package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Canvas/internal/adapters/imagefile"
	"github.com/dkeye/Canvas/internal/app"
	"github.com/dkeye/Canvas/internal/config"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "let-me-in"

type testServer struct {
	*httptest.Server
	canvas *app.Canvas
	fs     afero.Fs
}

func newTestServer(t *testing.T, width, height int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:               "test",
		StaticPath:         t.TempDir(),
		ReadLimit:          1 << 20,
		PingPeriod:         time.Minute,
		Secret:             testSecret,
		SessionSecret:      "session-key",
		Width:              width,
		Height:             height,
		PrivilegedLimit:    5,
		PrivilegedInterval: time.Minute,
	}
	fs := afero.NewMemMapFs()
	store := imagefile.NewStore(fs, "canvas.png", "snapshots")
	canvas := app.NewCanvas(app.CanvasConfig{
		Grid:   store.LoadGrid(width, height),
		Store:  store,
		Policy: app.SimplePolicy{},
		Secret: cfg.Secret,
	})
	canvas.Start()

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, cfg, canvas))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = canvas.Shutdown(context.Background())
	})
	return &testServer{Server: srv, canvas: canvas, fs: fs}
}

func (s *testServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	return s.dialWith(t, websocket.DefaultDialer, path)
}

func (s *testServer) dialWith(t *testing.T, d *websocket.Dialer, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + path
	conn, resp, err := d.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *testServer) status(t *testing.T) app.Status {
	t.Helper()
	resp, err := http.Get(s.URL + "/api/canvas")
	require.NoError(t, err)
	defer resp.Body.Close()
	var st app.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

func (s *testServer) seat(t *testing.T, client *http.Client) domain.Seat {
	t.Helper()
	resp, err := client.Get(s.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var seat domain.Seat
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&seat))
	return seat
}

func (s *testServer) waitFor(t *testing.T, free, users int) {
	t.Helper()
	assert.Eventually(t, func() bool {
		st := s.status(t)
		return st.FreeSeats == free && st.Users == users
	}, 3*time.Second, 20*time.Millisecond)
}

// next reads messages until one of type typ arrives.
func next(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == typ {
			return msg
		}
	}
}

func TestSeatEndpoint(t *testing.T) {
	srv := newTestServer(t, 2, 1)

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var seat domain.Seat
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&seat))
		resp.Body.Close()

		assert.Equal(t, seat.Index, seat.Row*2+seat.Column)
		assert.Equal(t, domain.Transparent, seat.Color)
		seen[seat.Index] = true
	}
	assert.Len(t, seen, 2)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, domain.MsgNoSeats, string(body))
}

func TestSeatEndpointSetsSessionCookie(t *testing.T) {
	srv := newTestServer(t, 10, 10)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "CanvasSessions" {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.False(t, session.Secure, "the server speaks plain HTTP")
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)
	assert.Equal(t, "/", session.Path)
}

func TestSeatCookieHeldBySyncConnection(t *testing.T) {
	srv := newTestServer(t, 10, 10)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	srv.seat(t, &http.Client{Jar: jar})
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	require.Len(t, jar.Cookies(u), 1)
	assert.Equal(t, 99, srv.status(t).FreeSeats)

	// No row or column: the cookie names the seat.
	conn := srv.dialWith(t, &websocket.Dialer{Jar: jar}, "/canvas")
	next(t, conn, app.TypeWelcome)
	assert.Equal(t, 99, srv.status(t).FreeSeats)

	require.NoError(t, conn.Close())
	srv.waitFor(t, 100, 0)
}

func TestStaleSeatCookieDoesNotFreeLiveSeat(t *testing.T) {
	srv := newTestServer(t, 2, 1)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	stale := &websocket.Dialer{Jar: jar}

	first := srv.seat(t, &http.Client{Jar: jar})
	conn := srv.dialWith(t, stale, "/canvas")
	next(t, conn, app.TypeWelcome)
	require.NoError(t, conn.Close())
	srv.waitFor(t, 2, 0)

	// Both cells go to other browsers, one of them the cell the cookie still names.
	a, b := srv.seat(t, http.DefaultClient), srv.seat(t, http.DefaultClient)
	owner := a
	if b.Index == first.Index {
		owner = b
	}
	live := srv.dial(t, fmt.Sprintf("/canvas?row=%d&column=%d", owner.Row, owner.Column))
	next(t, live, app.TypeWelcome)

	again := srv.dialWith(t, stale, "/canvas")
	next(t, again, app.TypeWelcome)
	require.NoError(t, again.Close())
	srv.waitFor(t, 0, 1)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFailedUpgradeKeepsSeat(t *testing.T) {
	srv := newTestServer(t, 10, 10)

	resp, err := http.Get(srv.URL + "/canvas?row=0&column=0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	st := srv.status(t)
	assert.Equal(t, 100, st.FreeSeats)
	assert.Equal(t, 0, st.Users)
}

func TestErrorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var observed []error

	r := gin.New()
	r.Use(ErrorMiddleware(func(err error, _ *gin.Context) { observed = append(observed, err) }))
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(io.ErrUnexpectedEOF) })
	r.GET("/full", func(c *gin.Context) { _ = c.Error(domain.ErrNoSeatsAvailable) })

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/boom", wantCode: http.StatusInternalServerError, wantBody: io.ErrUnexpectedEOF.Error()},
		{path: "/full", wantCode: http.StatusBadRequest, wantBody: domain.MsgNoSeats},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
	assert.Len(t, observed, 2)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware("https://front.example"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://front.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestEditorWelcomeAndColor(t *testing.T) {
	srv := newTestServer(t, 10, 10)

	first := srv.dial(t, "/canvas")
	welcome := next(t, first, app.TypeWelcome)
	assert.EqualValues(t, 10, welcome["width"])
	assert.EqualValues(t, 10, welcome["height"])
	assert.Len(t, welcome["db"], 100)
	assert.EqualValues(t, 1, next(t, first, app.TypeUserCount)["count"])

	second := srv.dial(t, "/canvas")
	next(t, second, app.TypeWelcome)
	assert.EqualValues(t, 2, next(t, second, app.TypeUserCount)["count"])
	assert.EqualValues(t, 2, next(t, first, app.TypeUserCount)["count"])

	require.NoError(t, second.WriteJSON(map[string]any{
		"type":   "color",
		"ack":    1,
		"row":    0,
		"column": 0,
		"color":  map[string]int{"r": 255, "g": 0, "b": 0, "alpha": 255},
	}))

	want := map[string]any{
		"type":   app.TypeColorChange,
		"color":  []any{float64(255), float64(0), float64(0), float64(255)},
		"column": float64(0),
		"row":    float64(0),
	}
	assert.Equal(t, want, next(t, first, app.TypeColorChange))
	assert.Equal(t, want, next(t, second, app.TypeColorChange))
	assert.EqualValues(t, 1, next(t, second, "ack")["ack"])

	third := srv.dial(t, "/canvas")
	db := next(t, third, app.TypeWelcome)["db"].([]any)
	assert.Equal(t, []any{float64(255), float64(0), float64(0), float64(255)}, db[0])
}

func TestSaveWithoutToken(t *testing.T) {
	srv := newTestServer(t, 10, 10)

	conn := srv.dial(t, "/canvas")
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":  "save",
		"ack":   7,
		"image": "data:image/png;base64,iVBORw0KGgo=",
	}))
	ack := next(t, conn, "ack")
	assert.EqualValues(t, 7, ack["ack"])
	assert.Equal(t, domain.MsgNotAllowed, ack["message"])

	exists, err := afero.DirExists(srv.fs, "snapshots")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSaveWithToken(t *testing.T) {
	srv := newTestServer(t, 10, 10)

	conn := srv.dial(t, "/canvas?token="+testSecret)
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":  "save",
		"ack":   1,
		"image": "data:image/png;base64,iVBORw0KGgo=",
	}))
	assert.Equal(t, domain.MsgSaved, next(t, conn, "ack")["message"])

	files, err := afero.ReadDir(srv.fs, "snapshots")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0].Name(), ".png"))
}

func TestResetBroadcastsWelcome(t *testing.T) {
	srv := newTestServer(t, 10, 10)

	admin := srv.dial(t, "/canvas?token="+testSecret)
	watcher := srv.dial(t, "/canvas")
	next(t, watcher, app.TypeWelcome)

	require.NoError(t, admin.WriteJSON(map[string]any{
		"type": "color", "row": 1, "column": 1,
		"color": map[string]int{"r": 1, "g": 2, "b": 3, "alpha": 4},
	}))
	next(t, watcher, app.TypeColorChange)

	require.NoError(t, admin.WriteJSON(map[string]any{"type": "reset", "ack": 2}))
	assert.Equal(t, domain.MsgReset, next(t, admin, "ack")["message"])

	db := next(t, watcher, app.TypeWelcome)["db"].([]any)
	require.Len(t, db, 100)
	for _, cell := range db {
		assert.Equal(t, []any{float64(0), float64(0), float64(0), float64(0)}, cell)
	}
}

func TestResetWithoutToken(t *testing.T) {
	srv := newTestServer(t, 10, 10)

	conn := srv.dial(t, "/canvas?token=wrong")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "reset", "ack": 3}))
	assert.Equal(t, domain.MsgNotAllowed, next(t, conn, "ack")["message"])
}

func TestPrivilegedLimitSparesAuthorizedCalls(t *testing.T) {
	srv := newTestServer(t, 10, 10)

	admin := srv.dial(t, "/canvas?token="+testSecret)
	for i := 1; i <= 7; i++ {
		require.NoError(t, admin.WriteJSON(map[string]any{"type": "reset", "ack": i}))
		assert.Equal(t, domain.MsgReset, next(t, admin, "ack")["message"])
	}
}

func TestReconnectReclaimsAndReleasesSeat(t *testing.T) {
	srv := newTestServer(t, 10, 10)
	require.Equal(t, 100, srv.status(t).FreeSeats)

	conn := srv.dial(t, "/canvas?row=2&column=3")
	next(t, conn, app.TypeWelcome)
	assert.Equal(t, 99, srv.status(t).FreeSeats)

	// Reconnecting with the same seat while it is held changes nothing.
	again := srv.dial(t, "/client?row=2&column=3")
	next(t, conn, app.TypeUserCount)
	assert.Equal(t, 99, srv.status(t).FreeSeats)

	require.NoError(t, again.Close())
	require.NoError(t, conn.Close())
	srv.waitFor(t, 100, 0)
}

func TestViewerCannotPaint(t *testing.T) {
	srv := newTestServer(t, 10, 10)

	viewer := srv.dial(t, "/client")
	require.NoError(t, viewer.WriteJSON(map[string]any{
		"type": "color", "ack": 4, "row": 0, "column": 0,
		"color": map[string]int{"r": 9, "g": 9, "b": 9, "alpha": 9},
	}))
	ack := next(t, viewer, "ack")
	assert.Equal(t, "not_allowed", ack["error"])
}

func TestViewerDrivesUserCount(t *testing.T) {
	srv := newTestServer(t, 10, 10)

	editor := srv.dial(t, "/canvas")
	assert.EqualValues(t, 1, next(t, editor, app.TypeUserCount)["count"])

	viewer := srv.dial(t, "/client")
	assert.EqualValues(t, 2, next(t, editor, app.TypeUserCount)["count"])

	require.NoError(t, viewer.Close())
	assert.EqualValues(t, 1, next(t, editor, app.TypeUserCount)["count"])
}
