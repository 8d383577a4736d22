package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prompthub/prompthub/internal/pkg/core"
)

// RequestID attaches a correlation id to every request, honoring one the
// caller already sent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(core.RequestIDKey)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(core.RequestIDKey, rid)
		c.Writer.Header().Set(core.RequestIDKey, rid)
		c.Next()
	}
}
