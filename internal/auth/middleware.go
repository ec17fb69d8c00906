package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const CtxClaimsKey = "auth_claims"

// ErrForbidden is returned when a requester may not mutate an entity.
var ErrForbidden = errors.New("only the owner or an administrator can modify this")

func AuthMiddleware(tokens TokenService, repo *Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, ok := validate(c, tokens, repo, raw)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

// OptionalAuth attaches claims when a valid token is present and lets
// anonymous requests through untouched.
func OptionalAuth(tokens TokenService, repo *Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := bearerToken(c); raw != "" {
			if claims, ok := validate(c, tokens, repo, raw); ok {
				c.Set(CtxClaimsKey, claims)
			}
		}
		c.Next()
	}
}

func validate(c *gin.Context, tokens TokenService, repo *Repo, raw string) (*Claims, bool) {
	claims, err := tokens.Parse(raw)
	if err != nil {
		return nil, false
	}
	if repo != nil {
		currentVersion, err := repo.GetTokenVersion(c.Request.Context(), claims.UserID)
		if err != nil || currentVersion != claims.TokenVersion {
			return nil, false
		}
	}
	return claims, true
}

// bearerToken reads the Authorization header, falling back to the "token"
// query parameter for websocket upgrades where browsers cannot set headers.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > len("Bearer ") && strings.EqualFold(h[:len("Bearer ")], "bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return strings.TrimSpace(c.Query("token"))
}

func MustGetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

// CanModify reports whether the requester owns the entity or is an admin.
func CanModify(claims *Claims, ownerID string) bool {
	if claims == nil {
		return false
	}
	return claims.IsAdmin || (ownerID != "" && claims.UserID == ownerID)
}
