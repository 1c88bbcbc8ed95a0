package handlers

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"minesweeper-rewards/internal/middleware"
	"minesweeper-rewards/internal/services"
)

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	return common.HexToAddress(s), nil
}

// parseAmount reads a base-unit decimal string.
func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a decimal integer", s)
	}
	return n, nil
}

func parseGameID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid game id %q", c.Param("id"))
	}
	return id, nil
}

func parseLimit(c *gin.Context) int64 {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil {
		return 50
	}
	return limit
}

func parseContractRole(c *gin.Context) (services.Contract, services.Role, error) {
	contract, err := services.ParseContract(c.Param("contract"))
	if err != nil {
		return "", "", err
	}
	role, err := services.ParseRole(c.Param("role"))
	if err != nil {
		return "", "", err
	}
	return contract, role, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatInt(int64(s), 10)
}

// caller returns the authenticated wallet. Routes using it sit behind
// AuthMiddleware, so a missing value is a wiring bug.
func caller(c *gin.Context) common.Address {
	addr, _ := middleware.Player(c)
	return addr
}
