package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/postline/postline/pkg/auth"
)

const (
	ContextActorID = "actor_id"
	ContextRole    = "actor_role"
)

// Auth validates the bearer token and stores the acting user's id and
// role in the request context. The core trusts this actor id; role
// checks happen per endpoint.
func Auth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := c.GetHeader("Authorization")
		if authorization == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.SplitN(authorization, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization"})
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		actorID, err := claims.ActorID()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextActorID, actorID)
		c.Set(ContextRole, auth.Role(claims.Role))
		c.Next()
	}
}

// Actor returns the authenticated actor id from the request context.
func Actor(c *gin.Context) uuid.UUID {
	if value, ok := c.Get(ContextActorID); ok {
		if id, ok := value.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// ActorRole returns the authenticated actor's role.
func ActorRole(c *gin.Context) auth.Role {
	if value, ok := c.Get(ContextRole); ok {
		if role, ok := value.(auth.Role); ok {
			return role
		}
	}
	return auth.RoleViewer
}

// RequireReviewer aborts unless the actor may review posts.
func RequireReviewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ActorRole(c).CanReview() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "editor role required"})
			return
		}
		c.Next()
	}
}

// RequireWriter aborts unless the actor may create or edit content.
func RequireWriter() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ActorRole(c).CanWrite() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "author role required"})
			return
		}
		c.Next()
	}
}
