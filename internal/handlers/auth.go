package handlers

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"minesweeper-rewards/internal/models"
	"minesweeper-rewards/internal/services"
)

// SessionStore keeps login challenges and the sessions behind issued tokens.
type SessionStore interface {
	StoreLoginChallenge(ch *models.LoginChallenge) error
	ConsumeLoginChallenge(addr common.Address) (*models.LoginChallenge, error)
	StoreUserSession(session *models.UserSession, expiry time.Duration) error
	GetUserSession(addr common.Address, sessionID string) (*models.UserSession, error)
	DeleteUserSession(addr common.Address, sessionID string) error
}

type AuthHandler struct {
	store      SessionStore
	jwtService *services.JWTService
	now        func() time.Time
}

func NewAuthHandler(store SessionStore, jwtService *services.JWTService) *AuthHandler {
	return &AuthHandler{
		store:      store,
		jwtService: jwtService,
		now:        time.Now,
	}
}

// Challenge issues a one-time message for the wallet to sign.
func (h *AuthHandler) Challenge(c *gin.Context) {
	var req models.ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	addr, err := parseAddress(req.Address)
	if err != nil {
		badRequest(c, "Invalid address", err)
		return
	}

	nonce, err := models.GenerateChallengeNonce()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	now := h.now()
	challenge := &models.LoginChallenge{
		Address:   addr,
		Nonce:     nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(services.TTLLoginChallenge),
	}
	if err := h.store.StoreLoginChallenge(challenge); err != nil {
		logrus.WithError(err).WithField("address", addr.Hex()).Error("Failed to store login challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    challenge.Message(),
		"expires_at": challenge.ExpiresAt,
	})
}

// Verify redeems a signed challenge for a JWT. The challenge is consumed
// whether or not the signature checks out.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	addr, err := parseAddress(req.Address)
	if err != nil {
		badRequest(c, "Invalid address", err)
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		badRequest(c, "Invalid signature encoding", err)
		return
	}

	challenge, err := h.store.ConsumeLoginChallenge(addr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No pending challenge", "details": err.Error()})
		return
	}
	if h.now().After(challenge.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Challenge expired"})
		return
	}

	signer, err := services.RecoverPersonalSigner(challenge.Message(), sig)
	if err != nil || signer != addr {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature does not match address"})
		return
	}

	now := h.now()
	session := &models.UserSession{
		Address:      addr,
		SessionID:    models.GenerateSessionID(),
		CreatedAt:    now,
		LastAccessed: now,
	}
	if err := h.store.StoreUserSession(session, h.jwtService.TTL()); err != nil {
		logrus.WithError(err).WithField("address", addr.Hex()).Error("Failed to store session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	token, err := h.jwtService.GenerateToken(addr, session.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"address":    addr,
		"session_id": session.SessionID,
		"expires_in": int64(h.jwtService.TTL().Seconds()),
	})
}
