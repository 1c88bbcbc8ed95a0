package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"minesweeper-rewards/internal/middleware"
	"minesweeper-rewards/internal/services"
)

type UserHandler struct {
	store  SessionStore
	engine *services.Engine
}

func NewUserHandler(store SessionStore, engine *services.Engine) *UserHandler {
	return &UserHandler{
		store:  store,
		engine: engine,
	}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	player, exists := middleware.Player(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessionID := c.GetString(middleware.KeySessionID)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
		return
	}

	session, err := h.store.GetUserSession(player, sessionID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": player,
		"session": gin.H{
			"session_id":    session.SessionID,
			"created_at":    session.CreatedAt,
			"last_accessed": session.LastAccessed,
		},
		"balance": h.engine.Balance(player),
		"stats":   h.engine.Stats(player),
		"roles": gin.H{
			"game_owner":  h.engine.HasRole(services.ContractGame, services.RoleOwner, player),
			"signer":      h.engine.HasRole(services.ContractGame, services.RoleSigner, player),
			"token_owner": h.engine.HasRole(services.ContractToken, services.RoleOwner, player),
			"minter":      h.engine.HasRole(services.ContractToken, services.RoleMinter, player),
		},
	})
}

func (h *UserHandler) Logout(c *gin.Context) {
	player, exists := middleware.Player(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessionID := c.GetString(middleware.KeySessionID)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
		return
	}

	if err := h.store.DeleteUserSession(player, sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
