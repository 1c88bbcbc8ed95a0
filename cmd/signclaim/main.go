// Command signclaim produces a signed claim authorization for
// POST /api/games/:id/claim-signed. It is the authority's half of the signed
// claim path and reads its key from AUTHORITY_KEY.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"minesweeper-rewards/internal/models"
	"minesweeper-rewards/internal/services"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	var (
		player   = flag.String("player", "", "player address")
		gameID   = flag.Uint64("game", 0, "game id")
		score    = flag.Uint64("score", 0, "score to authorize")
		duration = flag.Uint64("duration", 0, "duration in seconds to authorize")
		nonce    = flag.String("nonce", "", "claim nonce (decimal); defaults to the current unix nanoseconds")
		ttl      = flag.Duration("ttl", 10*time.Minute, "validity window from now")
		chainID  = flag.String("chain-id", envOr("CHAIN_ID", "31337"), "EIP-712 chain id")
		contract = flag.String("contract", envOr("GAME_CONTRACT_ADDRESS", "0x00000000000000000000000000000000000a11ce"), "verifying contract")
		name     = flag.String("name", envOr("DOMAIN_NAME", "MinesweeperRewards"), "EIP-712 domain name")
		version  = flag.String("version", envOr("DOMAIN_VERSION", "1"), "EIP-712 domain version")
	)
	flag.Parse()

	if err := run(*player, *gameID, *score, *duration, *nonce, *ttl, *chainID, *contract, *name, *version); err != nil {
		logrus.Fatal(err)
	}
}

func run(player string, gameID, score, duration uint64, nonce string, ttl time.Duration, chainID, contract, name, version string) error {
	key := os.Getenv("AUTHORITY_KEY")
	if key == "" {
		return fmt.Errorf("AUTHORITY_KEY is required")
	}
	if !common.IsHexAddress(player) {
		return fmt.Errorf("invalid -player %q", player)
	}
	if gameID == 0 {
		return fmt.Errorf("-game is required")
	}
	if !common.IsHexAddress(contract) {
		return fmt.Errorf("invalid -contract %q", contract)
	}
	chain, ok := new(big.Int).SetString(chainID, 10)
	if !ok {
		return fmt.Errorf("invalid -chain-id %q", chainID)
	}
	if nonce == "" {
		nonce = strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	n, ok := new(big.Int).SetString(nonce, 10)
	if !ok || n.Sign() < 0 {
		return fmt.Errorf("invalid -nonce %q", nonce)
	}

	domain := services.Domain{
		Name:              name,
		Version:           version,
		ChainID:           chain,
		VerifyingContract: common.HexToAddress(contract),
	}
	signer, err := services.NewClaimSignerFromHex(domain, key)
	if err != nil {
		return err
	}

	auth := &models.ClaimAuthorization{
		Player:   common.HexToAddress(player),
		GameID:   gameID,
		Score:    score,
		Duration: duration,
		Nonce:    n,
		Deadline: time.Now().Add(ttl).Unix(),
	}
	if err := signer.Sign(auth); err != nil {
		return fmt.Errorf("failed to sign: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"signer": signer.Address().Hex(),
		"player": auth.Player.Hex(),
		"game":   auth.GameID,
	}).Info("Claim authorization signed")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(models.SignedClaimRequest{
		Score:     auth.Score,
		Duration:  auth.Duration,
		Nonce:     auth.Nonce.String(),
		Deadline:  auth.Deadline,
		Signature: auth.Signature,
	})
}
