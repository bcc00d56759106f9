// Package httpapi wires the HTTP transport (Gin) to the pipeline ingress,
// the admin read API and the operational endpoints. It centralizes
// cross-cutting concerns: tracing, correlation ids, redacted logging, panic
// recovery, metrics, Slack retry handling, rate limiting, CORS and security
// headers.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/slacker/internal/config"
	"github.com/tbourn/slacker/internal/http/handlers"
	"github.com/tbourn/slacker/internal/http/middleware"
)

// SlackEventsPath is where Slack's Events API subscription points.
const SlackEventsPath = "/slack/events"

// maxBody caps request bodies; Slack event payloads are a few KiB.
const maxBody = 1 << 20

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger
//  4. Recovery
//  5. Body size limiter
//  6. Metrics
//  7. SlackRetry (before the limiter so redeliveries bypass it)
//  8. Rate limiter (per route family and IP)
//  9. Security headers
//
// CORS and gzip apply to the admin API only; Slack never needs them.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, q handlers.Submitter, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBody))
	r.Use(middleware.Metrics())
	r.Use(middleware.SlackRetry())

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByRouteAndIP(SlackEventsPath))
	r.Use(rl.Handler())

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(db, q, cfg.Slack.SigningSecret, cfg.EventDedupeTTL)

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST(SlackEventsPath, h.SlackEvents)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(corsFor(cfg.CORS.AllowedOrigins), gzip.Gzip(gzip.DefaultCompression))
	{
		api.GET("/channels/:id/events", h.ListChannelEvents)
		api.GET("/events/:id", h.GetEvent)
		api.GET("/stats", h.Stats)
	}
}

// corsFor allows every origin when none is configured, otherwise only the
// listed ones. Credentials are never allowed.
func corsFor(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Accept", "If-None-Match", middleware.HeaderRequestID},
		ExposeHeaders: []string{middleware.HeaderRequestID, "ETag", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

// limitBody caps the request body; reads past maxBytes fail with
// *http.MaxBytesError.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
