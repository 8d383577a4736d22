// Package middleware holds the HTTP middleware chain: bearer auth, request
// correlation ids, and CORS.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prompthub/prompthub/internal/pkg/core"
	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/errorx"
)

// CallerKey is the gin context key holding the authenticated user.
const CallerKey = "prompthub.caller"

// BearerAuth maps the Authorization bearer token to a caller identity.
// Missing or unknown keys answer 40100.
func BearerAuth(users repo.UserRepository) gin.HandlerFunc {
	const prefix = "Bearer "
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, prefix) {
			core.WriteResponse(c, errorx.WithCode(code.ErrAuthentication,
				"missing or malformed Authorization header"), nil)
			c.Abort()
			return
		}
		apiKey := strings.TrimSpace(header[len(prefix):])
		user, err := users.GetByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			core.WriteResponse(c, errorx.WithCode(code.ErrAuthentication, "unknown API key"), nil)
			c.Abort()
			return
		}
		c.Set(CallerKey, user)
		c.Next()
	}
}

// CallerFrom returns the authenticated user set by BearerAuth.
func CallerFrom(c *gin.Context) *entity.User {
	if v, ok := c.Get(CallerKey); ok {
		if user, ok := v.(*entity.User); ok {
			return user
		}
	}
	return nil
}
