package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity resolves a bearer token to a verified user id. The real provider
// lives outside this service; the pipeline trusts whatever id comes back.
type Identity interface {
	Verify(ctx context.Context, token string) (string, error)
}

// StaticIdentity maps pre-shared bearer tokens to user ids. It stands in for
// an external identity provider in development and tests.
type StaticIdentity map[string]string

func (s StaticIdentity) Verify(_ context.Context, token string) (string, error) {
	userId, ok := s[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return userId, nil
}

const userIdKey = "userId"

func Auth(identity Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		userId, err := identity.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(userIdKey, userId)
		c.Next()
	}
}

// UserId returns the verified user id set by Auth.
func UserId(c *gin.Context) string {
	return c.GetString(userIdKey)
}
