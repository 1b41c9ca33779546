package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/famchat/internal/auth"
	"github.com/vovakirdan/famchat/internal/core"
)

// contextKeyClaims holds the *auth.Claims of a request that passed AuthMiddleware.
const contextKeyClaims = "famchat.claims"

// TokenValidator checks bearer tokens issued at login.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// AuthMiddleware admits requests carrying a valid "Bearer <jwt>" issued by
// the identity directory and stores its claims on the gin context.
func AuthMiddleware(tokens TokenValidator, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			rejectUnauthenticated(c, "bearer token required")
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("rejected token")
			rejectUnauthenticated(c, "invalid or expired token")
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

func rejectUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: msg, Code: core.ErrCodeUnauthenticated})
}

// claimsFrom returns the caller's claims. Only valid behind AuthMiddleware.
func claimsFrom(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(contextKeyClaims); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return &auth.Claims{}
}

// LoggerMiddleware logs one line per request; server errors log at error level.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := logger.Info()
		if status >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("client", c.ClientIP()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}
