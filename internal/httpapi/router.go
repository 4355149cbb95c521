// Package httpapi binds the dashboard handler table and the export
// downloads to HTTP routes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"edusphere/internal/auth"
	"edusphere/internal/dashboard"
	"edusphere/internal/httpmiddleware"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) bool

// Options configures the router.
type Options struct {
	Service         *dashboard.Service
	SigningKey      string
	Issuer          string
	RateLimitPerMin int
	CORSOrigins     []string
	Checks          map[string]Check
	Log             *zap.Logger
}

type server struct {
	svc    *dashboard.Service
	checks map[string]Check
	log    *zap.Logger
}

// NewRouter builds the gin engine. Every /v1 route requires a bearer token
// and runs with a dashboard.Session built from it.
func NewRouter(o Options) *gin.Engine {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	s := &server{svc: o.Service, checks: o.Checks, log: o.Log}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(accessLog(o.Log, "/healthz", "/metrics"))
	r.Use(corsMiddleware(o.CORSOrigins))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)

	v1 := r.Group("/v1", auth.Bearer(o.SigningKey, o.Issuer))
	if o.RateLimitPerMin > 0 {
		limiter := httpmiddleware.NewSimpleTokenBucket(o.RateLimitPerMin, o.RateLimitPerMin)
		v1.Use(limiter.GinMiddleware(bySubject))
	}
	v1.Use(s.session)
	v1.POST("/actions/:name", s.action)
	v1.GET("/classes/:id/report", s.classReport)
	v1.GET("/assignments/export.pdf", s.assignmentsPDF)
	v1.POST("/exports", s.submitExport)
	v1.GET("/exports/:id", s.export)
	return r
}

func bySubject(c *gin.Context) string {
	if claims, ok := auth.FromContext(c); ok {
		return "user:" + claims.UserID()
	}
	return "ip:" + c.ClientIP()
}

func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	body := gin.H{}
	status := http.StatusOK
	for name, check := range s.checks {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	body["status"] = "ok"
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

func accessLog(log *zap.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skipped[c.Request.URL.Path] {
			return
		}
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cors.New(cfg)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
