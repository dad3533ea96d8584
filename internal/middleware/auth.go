package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chorusfm/chorus/internal/service"
)

// CredentialsFromRequest extracts whichever of the three credential schemes
// the request carries: Bearer session token, API key header/query, or the
// trusted internal caller headers.
func CredentialsFromRequest(c *gin.Context) service.Credentials {
	creds := service.Credentials{
		APIKey:         c.GetHeader("X-API-Key"),
		InternalToken:  c.GetHeader("X-Internal-Token"),
		InternalUserID: c.GetHeader("X-Internal-User"),
	}

	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			creds.SessionToken = parts[1]
		}
	}

	// WebSocket upgrades cannot set headers from browsers; accept query
	// parameters there too.
	if creds.SessionToken == "" {
		creds.SessionToken = c.Query("token")
	}
	if creds.APIKey == "" {
		creds.APIKey = c.Query("api_key")
	}

	return creds
}

// AuthMiddleware resolves the request's credentials to a user identity and
// injects it into the context
func AuthMiddleware(resolver service.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := resolver.ResolveIdentity(c.Request.Context(), CredentialsFromRequest(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing credentials"})
			return
		}

		c.Set("user_id", identity.UserID)
		c.Set("user_name", identity.Name)

		c.Next()
	}
}
