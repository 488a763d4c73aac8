// Package ginmiddleware adapts the admission controller to Gin.
package ginmiddleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/limiter"
	"github.com/yourusername/accessflow/middleware"
)

// IdentityFunc resolves the caller identity from a Gin context.
type IdentityFunc func(*gin.Context) (core.Identity, error)

// Options configure the Gin middleware behavior.
type Options struct {
	Identify IdentityFunc
	Logger   *slog.Logger
}

// FromRequest lifts a net/http extractor into an IdentityFunc.
func FromRequest(extract middleware.IdentityFunc) IdentityFunc {
	return func(c *gin.Context) (core.Identity, error) {
		return extract(c.Request)
	}
}

// ClientIP uses gin's ClientIP, which honors the engine's trusted proxies.
func ClientIP() IdentityFunc {
	return func(c *gin.Context) (core.Identity, error) {
		if ip := c.ClientIP(); ip != "" {
			return core.Identity(ip), nil
		}
		return "", fmt.Errorf("%w: gin could not resolve client IP", middleware.ErrExtractionFailed)
	}
}

// Middleware enforces admission decisions for incoming Gin requests.
//
// Extraction failures abort with the error attached to the context, so an
// upstream error-handling middleware can render them.
func Middleware(evaluator limiter.Evaluator, opts Options) gin.HandlerFunc {
	identify := opts.Identify
	if identify == nil {
		identify = FromRequest(middleware.RemoteIP())
	}

	return func(c *gin.Context) {
		id, err := identify(c)
		if err != nil {
			if opts.Logger != nil {
				opts.Logger.Warn("identity extraction failed",
					slog.String("path", c.FullPath()),
					slog.Any("error", err),
				)
			}
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}

		switch evaluator.Evaluate(id) {
		case core.Allow:
			c.Next()
		case core.DenyBlocked:
			c.AbortWithStatusJSON(http.StatusForbidden, middleware.ErrorResponse{
				Error:   "forbidden",
				Message: "IP blocked",
			})
		default:
			c.AbortWithStatusJSON(http.StatusTooManyRequests, middleware.ErrorResponse{
				Error:   "rate_limit_exceeded",
				Message: "Too many requests",
			})
		}
	}
}
