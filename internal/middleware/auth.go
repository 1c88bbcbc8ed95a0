package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"minesweeper-rewards/internal/models"
	"minesweeper-rewards/internal/services"
)

const (
	KeyPlayer    = "player"
	KeySessionID = "session_id"
)

// SessionStore confirms a token's session has not been logged out.
type SessionStore interface {
	GetUserSession(addr common.Address, sessionID string) (*models.UserSession, error)
}

// AuthMiddleware accepts a bearer token, or a token query parameter for
// WebSocket upgrades. sessions may be nil to trust the token alone.
func AuthMiddleware(jwtService *services.JWTService, sessions SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		if sessions != nil {
			if _, err := sessions.GetUserSession(claims.Player(), claims.SessionID); err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
				c.Abort()
				return
			}
		}

		c.Set(KeyPlayer, claims.Player())
		c.Set(KeySessionID, claims.SessionID)

		c.Next()
	}
}

// Player returns the authenticated wallet address set by AuthMiddleware.
func Player(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(KeyPlayer)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}
