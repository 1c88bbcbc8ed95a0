package models

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type UserSession struct {
	Address      common.Address `json:"address" redis:"address"`
	SessionID    string         `json:"session_id" redis:"session_id"`
	CreatedAt    time.Time      `json:"created_at" redis:"created_at"`
	LastAccessed time.Time      `json:"last_accessed" redis:"last_accessed"`
}

// LoginChallenge is a one-time message a wallet signs with personal_sign to
// prove control of Address.
type LoginChallenge struct {
	Address   common.Address `json:"address"`
	Nonce     string         `json:"nonce"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (c *LoginChallenge) Message() string {
	return fmt.Sprintf("Sign in to Minesweeper Rewards\n\nAddress: %s\nNonce: %s\nIssued: %s",
		c.Address.Hex(), c.Nonce, c.IssuedAt.UTC().Format(time.RFC3339))
}

type ChallengeRequest struct {
	Address string `json:"address" binding:"required"`
}

type VerifyRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}
