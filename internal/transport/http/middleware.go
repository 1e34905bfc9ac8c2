package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const principalKey = "principal"

type principalCtxKey struct{}

// authenticate resolves the bearer token from the Authorization header, or
// from the token query parameter for websocket clients that cannot set headers.
func authenticate(auth app.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			token = c.Query("token")
		}
		principal, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(principalKey, principal)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), principalCtxKey{}, principal))
		c.Next()
	}
}

func requireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if principalFrom(c).Role != role {
			abortWithError(c, fmt.Errorf("%s role required: %w", role, domain.ErrForbidden))
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}

// principalFromRequest serves plain net/http handlers mounted behind authenticate.
func principalFromRequest(r *http.Request) (domain.Principal, bool) {
	p, ok := r.Context().Value(principalCtxKey{}).(domain.Principal)
	return p, ok
}
