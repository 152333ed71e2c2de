package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/garyjia/approval-engine/internal/application/authz"
	"github.com/garyjia/approval-engine/pkg/tracing"
)

// Identity headers set by the upstream identity proxy
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderActorName = "X-Actor-Name"
)

const actorKey = "actor"

// actorMiddleware reads the caller identity. Missing headers yield an empty
// actor, which every mutating operation rejects as Forbidden.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(actorKey, authz.Actor{
			ID:   c.GetHeader(HeaderActorID),
			Role: c.GetHeader(HeaderActorRole),
			Name: c.GetHeader(HeaderActorName),
		})
		c.Next()
	}
}

func actorFrom(c *gin.Context) authz.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(authz.Actor); ok {
			return a
		}
	}
	return authz.Actor{}
}

// requireRole rejects callers whose role is not listed. An empty list admits everyone.
func requireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		a := actorFrom(c)
		if a.ID == "" || !allowed[a.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   fmt.Sprintf("role %q may not access this resource", a.Role),
			})
			return
		}
		c.Next()
	}
}

// tracingMiddleware opens a server span per request
func tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.Start(c.Request.Context(), c.Request.Method+" "+route,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		var err error
		if status >= http.StatusInternalServerError {
			err = fmt.Errorf("HTTP %d", status)
		}
		tracing.End(span, err)
	}
}
