package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/service"
	"github.com/glycopilot/glycopilot-api/pkg/auth"
)

const (
	principalKey = "principal"
	claimsKey    = "claims"
)

// PrincipalResolver turns a bearer token into the caller's principal
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (model.Principal, *auth.Claims, error)
}

// AuthMiddleware validates the bearer token and injects the principal into context
func AuthMiddleware(resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized", Message: "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized", Message: "Invalid authorization format. Use: Bearer <token>"})
			return
		}

		p, claims, err := resolver.Resolve(c.Request.Context(), parts[1])
		if err != nil {
			status := http.StatusUnauthorized
			if service.KindOf(err) == service.KindInternal {
				status = http.StatusInternalServerError
			}
			c.AbortWithStatusJSON(status, model.ErrorResponse{Error: service.KindOf(err).String(), Message: publicMessage(err)})
			return
		}

		c.Set(principalKey, p)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose principal lacks role
func RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentPrincipal(c).Has(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, model.ErrorResponse{
				Error:   "forbidden",
				Message: "this endpoint requires the " + string(role) + " role",
			})
			return
		}
		c.Next()
	}
}

// CurrentPrincipal returns the principal stored by AuthMiddleware
func CurrentPrincipal(c *gin.Context) model.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(model.Principal); ok {
			return p
		}
	}
	return model.Principal{}
}

// CurrentClaims returns the validated token claims, nil outside AuthMiddleware
func CurrentClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// SetPrincipal stores p as the caller. Used by tests that bypass token resolution.
func SetPrincipal(c *gin.Context, p model.Principal) {
	c.Set(principalKey, p)
}

func publicMessage(err error) string {
	var se *service.Error
	if errors.As(err, &se) && se.Kind != service.KindInternal {
		return se.Message
	}
	return "authentication failed"
}
