package handlers

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"minesweeper-rewards/internal/models"
	"minesweeper-rewards/internal/services"
)

// HistoryStore serves the event journal and per-player history.
type HistoryStore interface {
	GetRecentEvents(limit int64) ([]*models.Event, error)
	GetPlayerEvents(addr common.Address, limit int64) ([]*models.Event, error)
	GetPlayerGameIDs(addr common.Address, limit int64) ([]uint64, error)
}

type GameHandler struct {
	engine  *services.Engine
	history HistoryStore
}

func NewGameHandler(engine *services.Engine, history HistoryStore) *GameHandler {
	return &GameHandler{
		engine:  engine,
		history: history,
	}
}

func sessionResponse(s *models.GameSession) gin.H {
	return gin.H{
		"id":             s.ID,
		"player":         s.Player,
		"width":          s.Width,
		"height":         s.Height,
		"mine_count":     s.MineCount,
		"start_time":     s.StartTime,
		"end_time":       s.EndTime,
		"duration":       s.Duration(),
		"won":            s.Won,
		"completed":      s.Completed,
		"reward_claimed": s.RewardClaimed,
		"score":          s.Score,
		"status":         s.Status(),
	}
}

func (h *GameHandler) StartGame(c *gin.Context) {
	player := caller(c)

	var req models.StartGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	session, err := h.engine.StartGame(player, &req)
	if err != nil {
		respondError(c, "Failed to start game", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"game":    sessionResponse(session),
		"fee":     h.engine.GameFee(),
	})
}

func (h *GameHandler) CompleteGame(c *gin.Context) {
	player := caller(c)

	gameID, err := parseGameID(c)
	if err != nil {
		badRequest(c, "Invalid game id", err)
		return
	}

	var req models.CompleteGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	session, err := h.engine.CompleteGame(player, gameID, req.Won, req.Score)
	if err != nil {
		respondError(c, "Failed to complete game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    sessionResponse(session),
	})
}

func (h *GameHandler) ClaimReward(c *gin.Context) {
	player := caller(c)

	gameID, err := parseGameID(c)
	if err != nil {
		badRequest(c, "Invalid game id", err)
		return
	}

	receipt, err := h.engine.ClaimReward(player, gameID)
	if err != nil {
		respondError(c, "Failed to claim reward", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"claim":   receipt,
	})
}

func (h *GameHandler) ClaimWithSignature(c *gin.Context) {
	player := caller(c)

	gameID, err := parseGameID(c)
	if err != nil {
		badRequest(c, "Invalid game id", err)
		return
	}

	var req models.SignedClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	nonce, err := parseAmount(req.Nonce)
	if err != nil {
		badRequest(c, "Invalid nonce", err)
		return
	}

	receipt, err := h.engine.ClaimWithSignature(player, &models.ClaimAuthorization{
		Player:    player,
		GameID:    gameID,
		Score:     req.Score,
		Duration:  req.Duration,
		Nonce:     nonce,
		Deadline:  req.Deadline,
		Signature: req.Signature,
	})
	if err != nil {
		respondError(c, "Failed to claim reward", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"claim":   receipt,
	})
}

func (h *GameHandler) GetGame(c *gin.Context) {
	gameID, err := parseGameID(c)
	if err != nil {
		badRequest(c, "Invalid game id", err)
		return
	}

	session, ok := h.engine.Session(gameID)
	if !ok {
		respondError(c, "Game not found", fmt.Errorf("%w: %d", services.ErrGameNotFound, gameID))
		return
	}

	c.JSON(http.StatusOK, gin.H{"game": sessionResponse(session)})
}

func (h *GameHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stats": h.engine.Stats(caller(c))})
}

// GetGameHistory lists the caller's games, newest first. Game ids come from the
// journal; session state comes from the engine.
func (h *GameHandler) GetGameHistory(c *gin.Context) {
	player := caller(c)

	ids, err := h.history.GetPlayerGameIDs(player, parseLimit(c))
	if err != nil {
		logrus.WithError(err).WithField("player", player.Hex()).Error("Failed to load game history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load game history"})
		return
	}

	games := lo.FilterMap(ids, func(id uint64, _ int) (gin.H, bool) {
		session, ok := h.engine.Session(id)
		if !ok || session.Player != player {
			return nil, false
		}
		return sessionResponse(session), true
	})

	c.JSON(http.StatusOK, gin.H{
		"games": games,
		"count": len(games),
	})
}

func (h *GameHandler) GetEvents(c *gin.Context) {
	player := caller(c)

	events, err := h.history.GetPlayerEvents(player, parseLimit(c))
	if err != nil {
		logrus.WithError(err).WithField("player", player.Hex()).Error("Failed to load events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
		return
	}
	respondEvents(c, events)
}

// GetRecentEvents serves the head of the global journal.
func (h *GameHandler) GetRecentEvents(c *gin.Context) {
	events, err := h.history.GetRecentEvents(parseLimit(c))
	if err != nil {
		logrus.WithError(err).Error("Failed to load journal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
		return
	}
	respondEvents(c, events)
}

func respondEvents(c *gin.Context, events []*models.Event) {
	if typ := c.Query("type"); typ != "" {
		events = lo.Filter(events, func(e *models.Event, _ int) bool {
			return string(e.Type) == typ
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

func (h *GameHandler) GetBalance(c *gin.Context) {
	addr := caller(c)
	if param := c.Param("address"); param != "" {
		var err error
		if addr, err = parseAddress(param); err != nil {
			badRequest(c, "Invalid address", err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"balance": h.engine.Balance(addr)})
}

func (h *GameHandler) ApproveFee(c *gin.Context) {
	player := caller(c)

	var req models.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, "Invalid amount", err)
		return
	}

	if err := h.engine.ApproveFee(player, amount); err != nil {
		respondError(c, "Failed to approve fee", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": h.engine.Balance(player),
	})
}

func (h *GameHandler) Transfer(c *gin.Context) {
	player := caller(c)

	var req models.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		badRequest(c, "Invalid recipient", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, "Invalid amount", err)
		return
	}

	if err := h.engine.TransferReward(player, to, amount); err != nil {
		respondError(c, "Failed to transfer", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": h.engine.Balance(player),
	})
}

func (h *GameHandler) Burn(c *gin.Context) {
	player := caller(c)

	var req models.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, "Invalid amount", err)
		return
	}

	if err := h.engine.Burn(player, amount); err != nil {
		respondError(c, "Failed to burn", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": h.engine.Balance(player),
	})
}

func (h *GameHandler) GetQuota(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quota": h.engine.QuotaStatus()})
}

func (h *GameHandler) GetNonceStatus(c *gin.Context) {
	nonce, err := parseAmount(c.Param("nonce"))
	if err != nil || nonce.Sign() < 0 {
		badRequest(c, "Invalid nonce", fmt.Errorf("nonce %q", c.Param("nonce")))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"player": caller(c),
		"nonce":  nonce,
		"used":   h.engine.NonceUsed(caller(c), nonce),
	})
}

// GetDomain exposes what an off-chain authority needs to sign claims for this
// deployment.
func (h *GameHandler) GetDomain(c *gin.Context) {
	domain := h.engine.Domain()
	separator, err := domain.Separator()
	if err != nil {
		respondError(c, "Failed to compute domain separator", err)
		return
	}
	policy, signer := h.engine.SignerPolicy()

	c.JSON(http.StatusOK, gin.H{
		"domain":        domain,
		"separator":     separator,
		"primary_type":  services.ClaimPrimaryType,
		"signer_policy": policy,
		"server_signer": signer,
		"paused":        h.engine.Paused(),
		"game_fee":      h.engine.GameFee(),
		"tokens":        h.engine.Tokens(),
	})
}
