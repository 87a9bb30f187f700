package authorization

import (
	"fmt"
	"net/http"
	"strings"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
)

// Guard wraps the JWT middleware with role-based helpers for sibling modules.
type Guard struct {
	jwt *jwt.GinJWTMiddleware
}

// NewGuard builds a guard around the given JWT middleware.
func NewGuard(jwtMiddleware *jwt.GinJWTMiddleware) *Guard {
	if jwtMiddleware == nil {
		return nil
	}
	return &Guard{jwt: jwtMiddleware}
}

// Guard returns the module's shared guard instance.
func (m *Module) Guard() *Guard {
	if m == nil {
		return nil
	}
	return NewGuard(m.jwtMiddleware)
}

// CurrentUserID returns the authenticated user's id from the request context.
func CurrentUserID(c *gin.Context) (uint64, bool) {
	if value, exists := c.Get(identityKey); exists {
		if user, ok := value.(*AuthenticatedUser); ok && user != nil && user.ID != 0 {
			return user.ID, true
		}
	}
	if id := extractUserID(jwt.ExtractClaims(c)); id != 0 {
		return id, true
	}
	return 0, false
}

// HasAnyRole reports whether the authenticated user holds at least one of the
// given roles. Comparison is case-insensitive.
func HasAnyRole(c *gin.Context, roles ...string) bool {
	current := extractRoles(jwt.ExtractClaims(c))
	if value, exists := c.Get(identityKey); exists {
		if user, ok := value.(*AuthenticatedUser); ok && user != nil && len(user.Roles) > 0 {
			current = user.Roles
		}
	}

	for _, held := range current {
		for _, wanted := range roles {
			if strings.EqualFold(strings.TrimSpace(held), strings.TrimSpace(wanted)) {
				return true
			}
		}
	}
	return false
}

// RequireAuthenticated ensures the request carries a valid JWT.
func (g *Guard) RequireAuthenticated() gin.HandlerFunc {
	if g == nil || g.jwt == nil {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		}
	}
	return g.jwt.MiddlewareFunc()
}

// RequireAnyRole demands at least one of the given roles.
func (g *Guard) RequireAnyRole(roles ...string) gin.HandlerFunc {
	wanted := make([]string, 0, len(roles))
	for _, role := range roles {
		if trimmed := strings.TrimSpace(role); trimmed != "" {
			wanted = append(wanted, trimmed)
		}
	}

	if len(wanted) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		claims := jwt.ExtractClaims(c)
		if len(claims) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		if HasAnyRole(c, wanted...) {
			c.Next()
			return
		}

		message := "insufficient privileges"
		if len(wanted) == 1 {
			message = fmt.Sprintf("%s role required", wanted[0])
		} else {
			message = fmt.Sprintf("one of [%s] roles required", strings.Join(wanted, ", "))
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": message})
	}
}

// RequireRole demands exactly the given role.
func (g *Guard) RequireRole(role string) gin.HandlerFunc {
	return g.RequireAnyRole(role)
}
