package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/omnik/internal/infrastructure/config"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/tracing"
)

// CORSConfig lists the browser origins allowed to call the API. A "*" entry
// allows every origin; credentials are only allowed with explicit origins.
type CORSConfig struct {
	Origins []string
	MaxAge  time.Duration
}

// DefaultCORSConfig allows any origin to drive the session API.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{Origins: []string{"*"}, MaxAge: 12 * time.Hour}
}

// CORSFromConfig reads CORS_ORIGINS. An empty list falls back to the default.
func CORSFromConfig(cfg config.ServerConfig) CORSConfig {
	c := DefaultCORSConfig()
	if len(cfg.CORSOrigins) > 0 {
		c.Origins = cfg.CORSOrigins
	}
	return c
}

func (c CORSConfig) allowAll() bool {
	return len(c.Origins) == 0 || slices.Contains(c.Origins, "*")
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Accept",
			"Origin",
			"Cache-Control",
			OwnerHeader,
			"traceparent",
			"If-None-Match",
		},
		ExposeHeaders: []string{tracing.TraceHeader, "Content-Disposition", "ETag"},
		MaxAge:        cfg.MaxAge,
	}
	if cfg.allowAll() {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.Origins
		cc.AllowCredentials = true
	}
	return cors.New(cc)
}
