package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ClaimAuthorization is the payload an off-chain authority signs once it has
// accepted a session as legitimately played. It is consumed at most once per
// (Player, Nonce).
type ClaimAuthorization struct {
	Player    common.Address `json:"player"`
	GameID    uint64         `json:"game_id"`
	Score     uint64         `json:"score"`
	Duration  uint64         `json:"duration"`
	Nonce     *big.Int       `json:"nonce"`
	Deadline  int64          `json:"deadline"`
	Signature hexutil.Bytes  `json:"signature"`
}

type ClaimPath string

const (
	ClaimPathDirect ClaimPath = "direct"
	ClaimPathSigned ClaimPath = "signed"
)

type ClaimReceipt struct {
	GameID    uint64         `json:"game_id"`
	Player    common.Address `json:"player"`
	Amount    *big.Int       `json:"amount"`
	Path      ClaimPath      `json:"path"`
	ClaimedAt int64          `json:"claimed_at"`
}

type SignedClaimRequest struct {
	Score     uint64        `json:"score"`
	Duration  uint64        `json:"duration"`
	Nonce     string        `json:"nonce" binding:"required"`
	Deadline  int64         `json:"deadline"`
	Signature hexutil.Bytes `json:"signature" binding:"required"`
}

// QuotaStatus reports today's standing against both issuance ceilings.
type QuotaStatus struct {
	Day              int64    `json:"day"`
	DailyRewardUsed  *big.Int `json:"daily_reward_used"`
	DailyRewardLimit *big.Int `json:"daily_reward_limit"`
	DailyMinted      *big.Int `json:"daily_minted"`
	DailyMintLimit   *big.Int `json:"daily_mint_limit"`
	TotalSupply      *big.Int `json:"total_supply"`
	MaxSupply        *big.Int `json:"max_supply"`
	ResetAt          int64    `json:"reset_at"`
}

type TokenInfo struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

type BalanceResponse struct {
	Address       common.Address `json:"address"`
	RewardBalance *big.Int       `json:"reward_balance"`
	FeeBalance    *big.Int       `json:"fee_balance"`
	FeeAllowance  *big.Int       `json:"fee_allowance"`
}
