// Package httpapi serves the plain HTTP endpoints next to the Connect API:
// health checks, metrics, downloads and the payment reference landing route.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/payref"
)

// Sessions is the read side of the session service.
type Sessions interface {
	Session(ctx context.Context, sessionID string) (*models.Session, error)
	Exported()
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the router. RPC and Metrics may be nil.
type Deps struct {
	Sessions Sessions
	Ready    Pinger
	Refs     payref.Builder

	// RPCPath and RPC mount the Connect handler.
	RPCPath string
	RPC     http.Handler

	Metrics http.Handler

	// Now defaults to time.Now; export file names use it.
	Now func() time.Time
}

// NewRouter wires all routes.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	router := gin.New()
	router.Use(requestLogger(), gin.Recovery(), cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type", "Connect-Protocol-Version", "Connect-Timeout-Ms"},
		ExposeHeaders:   []string{"Connect-Protocol-Version", "Connect-Timeout-Ms", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	h := &handlers{deps: deps}
	router.GET("/healthz", healthHandler)
	router.GET("/readyz", h.ready)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	router.GET("/pay/:receiptID/:participantID", h.payReference)
	router.GET("/code.png", h.codeImage)
	router.GET("/sessions/:id/export.xlsx", h.exportWorkbook)
	router.GET("/sessions/:id/participants/:pid/code.png", h.participantCode)

	if deps.RPC != nil {
		router.POST(deps.RPCPath+"*procedure", gin.WrapH(deps.RPC))
	}
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"remote_addr", c.ClientIP(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			slog.Error("Request failed", append(attrs, "error", c.Errors.String())...)
			return
		}
		slog.Info("Request completed", attrs...)
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type handlers struct {
	deps Deps
}

func (h *handlers) ready(c *gin.Context) {
	if h.deps.Ready == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "store not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()
	if err := h.deps.Ready.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "store not reachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
