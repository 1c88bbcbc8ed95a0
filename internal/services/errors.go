package services

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"minesweeper-rewards/internal/models"
)

// Access control.
var (
	ErrNotOwner              = errors.New("caller is not an owner")
	ErrNotMinter             = errors.New("caller is not an authorized minter")
	ErrNotPlayer             = errors.New("caller is not the session player")
	ErrAlreadyExists         = errors.New("principal already present")
	ErrNotFound              = errors.New("principal not present")
	ErrLastOwner             = errors.New("cannot remove the last owner")
	ErrLastSigner            = errors.New("cannot remove the last authorized signer")
	ErrLastMinter            = errors.New("cannot remove the last authorized minter")
	ErrPrimaryOwnerProtected = errors.New("primary owner cannot be removed")
	ErrZeroAddress           = errors.New("zero address")
	ErrUnknownRole           = errors.New("unknown role")
)

// Input validation.
var (
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDimensions = errors.New("invalid board dimensions")
	ErrInvalidMineCount  = errors.New("invalid mine count")
	ErrEmptyBatch        = errors.New("empty batch")
	ErrInvalidLimit      = errors.New("invalid limit")
)

// Balances and external dependencies.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrFeeTransferFailed     = errors.New("fee transfer failed")
)

// Session lifecycle, replay and temporal checks.
var (
	ErrGameNotFound      = errors.New("game not found")
	ErrAlreadyCompleted  = errors.New("game already completed")
	ErrTooShort          = errors.New("game duration too short")
	ErrTooLong           = errors.New("game duration too long")
	ErrNotCompleted      = errors.New("game not completed")
	ErrNotWon            = errors.New("game not won")
	ErrAlreadyClaimed    = errors.New("reward already claimed")
	ErrSignatureExpired  = errors.New("signature expired")
	ErrNonceAlreadyUsed  = errors.New("nonce already used")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrReentrantCall     = errors.New("reentrant call")
	ErrPaused            = errors.New("contract is paused")
	ErrNotPaused         = errors.New("contract is not paused")
	ErrUnknownContract   = errors.New("unknown contract")
	ErrUnknownPolicy     = errors.New("unknown signer policy")
	ErrSignerUnavailable = errors.New("claim signer not configured")
)

// Quotas. Each is wrapped in a *QuotaError when returned.
var (
	ErrExceedsSingleMintLimit   = errors.New("exceeds single mint limit")
	ErrExceedsDailyMintLimit    = errors.New("exceeds daily mint limit")
	ErrExceedsMaxSupply         = errors.New("exceeds max supply")
	ErrRewardExceedsMaximum     = errors.New("reward exceeds maximum per claim")
	ErrDailyRewardLimitExceeded = errors.New("daily reward limit exceeded")
)

// QuotaError carries the figures behind a quota rejection. ResetAt is zero for
// ceilings that never reset.
type QuotaError struct {
	Err       error
	Limit     *big.Int
	Used      *big.Int
	Requested *big.Int
	ResetAt   time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%v: requested %s, used %s of %s",
		e.Err, models.FormatTokens(e.Requested), models.FormatTokens(e.Used), models.FormatTokens(e.Limit))
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the quota frees up again at ResetAt.
func (e *QuotaError) Retryable() bool {
	return !e.ResetAt.IsZero()
}

func quotaError(err error, limit, used, requested *big.Int, resetAt time.Time) *QuotaError {
	return &QuotaError{
		Err:       err,
		Limit:     new(big.Int).Set(limit),
		Used:      new(big.Int).Set(used),
		Requested: new(big.Int).Set(requested),
		ResetAt:   resetAt,
	}
}
