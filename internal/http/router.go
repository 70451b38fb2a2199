// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// caller fingerprinting, CORS, security headers, idempotency, and rate
// limiting.
package httpapi

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-comment-moderation/internal/config"
	_ "github.com/tbourn/go-comment-moderation/internal/docs" // registers the OpenAPI document
	"github.com/tbourn/go-comment-moderation/internal/http/handlers"
	"github.com/tbourn/go-comment-moderation/internal/http/middleware"
	"github.com/tbourn/go-comment-moderation/internal/identity"
	"github.com/tbourn/go-comment-moderation/internal/notify"
	"github.com/tbourn/go-comment-moderation/internal/services"
)

// Deps are the collaborators the routes are bound to.
type Deps struct {
	Submission  handlers.SubmissionService
	Publication handlers.PublicationService
	Moderation  handlers.ModerationService

	// Idempotency answers replay lookups; nil disables replay detection at
	// the edge (the submission service still replays on its own).
	Idempotency middleware.IdempotencyLookup

	// Fingerprinter defaults to one built from cfg.Identity.
	Fingerprinter *identity.Fingerprinter
}

// StoreIdempotency adapts a CommentStore to the middleware lookup.
func StoreIdempotency(st services.CommentStore) middleware.IdempotencyLookup {
	return func(ctx context.Context, fp, key string, now time.Time) (bool, error) {
		rec, err := st.GetIdempotency(ctx, fp, key, now)
		if err != nil || rec == nil {
			return false, err
		}
		return true, nil
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath (plus the legacy root
// routes when enabled).
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Identify: caller fingerprint for handlers, idempotency and limits
//  8. CORS and Security headers
//
// Idempotency validation and rate limiting run on the comment write routes
// only, in that order, so replays bypass the limiter.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) error {
	r.HandleMethodNotAllowed = true

	// Client addresses come from RemoteAddr unless a trusted proxy fronts us.
	if err := r.SetTrustedProxies(cfg.Identity.TrustedProxies); err != nil {
		return err
	}

	fpr := deps.Fingerprinter
	if fpr == nil {
		fpr = identity.NewFingerprinter(cfg.Identity)
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			notify.SecretHeader,
			middleware.HeaderIdentityToken,
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Fingerprint the caller; the raw address never leaves this middleware.
	// Routes whose JSON body may carry the identity token share one
	// fingerprint with the header-only routes.
	bodyTokenRoutes := []string{path.Join(cfg.APIBasePath, "comments")}
	if cfg.LegacyRoutes {
		bodyTokenRoutes = append(bodyTokenRoutes, "/submit-comment", "/check-comment", "/delete-comment")
	}
	r.Use(middleware.Identify(fpr, bodyTokenRoutes...))

	// 8) CORS posture (safe defaults: allow all if none configured)
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(deps.Submission, deps.Publication, deps.Moderation).
		WithModerationChat(cfg.Telegram.ChatID)

	// Liveness/status
	r.GET("/health", h.Health)
	r.GET("/", h.Root)

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Per-route stacks
	limit := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByFingerprint()).Handler()
	idem := middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, deps.Idempotency)
	compress := gzip.Gzip(gzip.DefaultCompression)
	secret := middleware.RequireSecret(notify.SecretHeader, cfg.Telegram.WebhookSecret)
	noStore := middleware.NoStore()

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/comments", idem, limit, h.SubmitComment)
		api.GET("/comments", compress, h.ListComments)
		api.GET("/comments/mine", noStore, h.GetMine)
		api.DELETE("/comments/mine", noStore, limit, h.DeleteMine)
		api.POST("/moderation/webhook", secret, h.ModerationWebhook)
	}

	// Routes used by the existing page and bot registration
	if cfg.LegacyRoutes {
		r.POST("/submit-comment", idem, limit, h.SubmitCommentLegacy)
		r.POST("/check-comment", noStore, h.GetMine)
		r.POST("/delete-comment", noStore, limit, h.DeleteMineLegacy)
		if !sameGroup(cfg.APIBasePath) {
			r.GET("/comments", compress, h.ListComments)
		}
		r.POST("/webhook", secret, h.ModerationWebhook)
	}
	return nil
}

// corsMiddleware builds the CORS stack. With no allowlist every origin is
// accepted without credentials.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept",
			middleware.HeaderIdempotencyKey, middleware.HeaderIdentityToken},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// Force ACAO: * even without an Origin header (simple health checks).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if sameGroup(prefix) {
		return r.Group("")
	}
	return r.Group(prefix)
}

// sameGroup reports whether prefix mounts the API at the root, where the
// legacy listing route already exists.
func sameGroup(prefix string) bool {
	return prefix == "" || prefix == "/"
}
