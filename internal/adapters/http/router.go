package http

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"

	"github.com/dkeye/Canvas/internal/adapters/signal"
	"github.com/dkeye/Canvas/internal/app"
	"github.com/dkeye/Canvas/internal/config"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorObserver is told about every error a request ends with.
type ErrorObserver func(err error, c *gin.Context)

func LogErrors(err error, c *gin.Context) {
	log.Error().Err(err).Str("module", "adapters.http").Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Msg("request failed")
}

// ErrorMiddleware turns errors pushed with c.Error into a response.
// Running out of seats is the client's problem; anything else is a 500
// carrying the error message.
func ErrorMiddleware(observe ErrorObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		if observe != nil {
			observe(err, c)
		}
		if c.Writer.Written() {
			return
		}
		status, msg := http.StatusInternalServerError, err.Error()
		if errors.Is(err, domain.ErrNoSeatsAvailable) {
			status, msg = http.StatusBadRequest, domain.MsgNoSeats
		}
		c.String(status, msg)
	}
}

func recovery(observe ErrorObserver) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		err := fmt.Errorf("panic: %v", recovered)
		if observe != nil {
			observe(err, c)
		}
		c.String(http.StatusInternalServerError, err.Error())
		c.Abort()
	})
}

// CORSMiddleware allows the configured front-end origin. Empty origin means no CORS headers.
func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func sessionKey(secret string) []byte {
	if secret != "" {
		return []byte(secret)
	}
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return key
}

func SetupRouter(ctx context.Context, cfg *config.Config, canvas *app.Canvas) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(recovery(LogErrors))
	r.Use(CORSMiddleware(cfg.FrontendAddress))
	r.Use(ErrorMiddleware(LogErrors))

	store := cookie.NewStore(sessionKey(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("CanvasSessions", store))

	r.Static("/static", cfg.StaticPath)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	// GET / hands out a free cell.
	r.GET("/", func(c *gin.Context) {
		seat, err := canvas.AssignSeat(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		signal.RememberSeat(c, seat)
		c.JSON(http.StatusOK, seat)
	})

	ctrl := signal.NewSignalWSController(canvas, signal.Options{
		ReadLimit:     cfg.ReadLimit,
		PingPeriod:    cfg.PingPeriod,
		AllowedOrigin: cfg.FrontendAddress,
		Limiter:       signal.NewActionRateLimiter(cfg.PrivilegedLimit, cfg.PrivilegedInterval),
	})
	r.GET("/canvas", func(c *gin.Context) {
		ctrl.HandleCanvas(ctx, c)
	})
	r.GET("/client", func(c *gin.Context) {
		ctrl.HandleClient(ctx, c)
	})

	api := r.Group("/api")

	// GET /api/canvas — size, live users, free seats
	api.GET("/canvas", func(c *gin.Context) {
		st, err := canvas.Status(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	return r
}
