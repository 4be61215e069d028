package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ecoportal/internal/pkg/jwt"
	"ecoportal/internal/pkg/response"
)

const (
	ctxSubject = "subject"
	ctxRole    = "role"
)

// JWTAuth validates the bearer token and stores its subject and role in
// the gin context.
func JWTAuth(j *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			response.Abort(c, http.StatusUnauthorized, "Missing Authorization header")
			return
		}

		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			response.Abort(c, http.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "Empty token")
			return
		}

		claims, err := j.ValidateToken(token)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrExpiredToken) {
				msg = "Token expired"
			}
			response.Abort(c, http.StatusUnauthorized, msg)
			return
		}

		c.Set(ctxSubject, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// Subject returns the authenticated account, or "" for anonymous requests.
func Subject(c *gin.Context) string {
	return c.GetString(ctxSubject)
}
