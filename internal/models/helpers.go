package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	TokenDecimals = 18
	SecondsPerDay = 86400
)

var tokenUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// DeadAddress receives swept fees that are burned by transfer.
var DeadAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// Tokens converts a whole-token count into 18-decimal base units.
func Tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), tokenUnit)
}

func TokensBig(n *big.Int) *big.Int {
	return new(big.Int).Mul(n, tokenUnit)
}

func FormatTokens(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(amount)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	whole, frac := new(big.Int).QuoRem(abs, tokenUnit, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	f := fmt.Sprintf("%0*s", TokenDecimals, frac.String())
	return sign + whole.String() + "." + strings.TrimRight(f, "0")
}

func DayOf(ts int64) int64 {
	return ts / SecondsPerDay
}

// NextDayStart is the first instant of the UTC day following ts.
func NextDayStart(ts int64) time.Time {
	return time.Unix((DayOf(ts)+1)*SecondsPerDay, 0).UTC()
}

func GenerateEventID() string {
	return uuid.NewString()
}

func GenerateSessionID() string {
	return fmt.Sprintf("sess_%s_%d",
		time.Now().UTC().Format("20060102"),
		uuid.New().ID())
}

func GenerateChallengeNonce() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate challenge nonce: %v", err)
	}
	return hex.EncodeToString(bytes), nil
}
