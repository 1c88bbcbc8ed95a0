package services

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"minesweeper-rewards/internal/models"
)

type MintLimits struct {
	MaxSupply  *big.Int
	SingleMint *big.Int
	DailyMint  *big.Int
}

func DefaultMintLimits() MintLimits {
	return MintLimits{
		MaxSupply:  models.Tokens(100_000_000),
		SingleMint: models.Tokens(10_000),
		DailyMint:  models.Tokens(50_000),
	}
}

// Minter is what the claim verifier needs from the reward token.
type Minter interface {
	Mint(caller, to common.Address, amount *big.Int, now time.Time) error
}

type BurnEntry struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

// MintLedger is the reward token: a Token whose issuance is bounded by a hard
// supply ceiling, a per-call ceiling and a per-UTC-day ceiling.
type MintLedger struct {
	*Token
	roles      *RoleRegistry
	limits     MintLimits
	privileged common.Address
	window     dayWindow
}

func NewMintLedger(token *Token, roles *RoleRegistry, limits MintLimits) *MintLedger {
	return &MintLedger{
		Token:  token,
		roles:  roles,
		limits: limits,
	}
}

func (l *MintLedger) Limits() MintLimits {
	return MintLimits{
		MaxSupply:  new(big.Int).Set(l.limits.MaxSupply),
		SingleMint: new(big.Int).Set(l.limits.SingleMint),
		DailyMint:  new(big.Int).Set(l.limits.DailyMint),
	}
}

// PrivilegedCaller is the single game-contract address allowed to mint without
// being in the minter set.
func (l *MintLedger) PrivilegedCaller() common.Address {
	return l.privileged
}

func (l *MintLedger) SetPrivilegedCaller(caller, addr common.Address) error {
	if err := l.roles.requireOwner(caller); err != nil {
		return err
	}
	prev := l.privileged
	l.privileged = addr
	l.events.Emit(l.address, models.EventPrivilegedCallerUpdated, common.Address{}, 0, map[string]any{
		"previous": prev, "current": addr,
	})
	return nil
}

func (l *MintLedger) canMint(caller common.Address) bool {
	if caller == (common.Address{}) {
		return false
	}
	return caller == l.privileged || l.roles.IsAuthorizedMinter(caller)
}

func (l *MintLedger) Mint(caller, to common.Address, amount *big.Int, now time.Time) error {
	if !l.canMint(caller) {
		return fmt.Errorf("%w: %s", ErrNotMinter, caller.Hex())
	}
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(l.limits.SingleMint) > 0 {
		return quotaError(ErrExceedsSingleMintLimit, l.limits.SingleMint, new(big.Int), amount, time.Time{})
	}

	day := models.DayOf(now.Unix())
	minted := l.window.used(day)
	if new(big.Int).Add(minted, amount).Cmp(l.limits.DailyMint) > 0 {
		return quotaError(ErrExceedsDailyMintLimit, l.limits.DailyMint, minted, amount, models.NextDayStart(now.Unix()))
	}
	if new(big.Int).Add(l.totalSupply, amount).Cmp(l.limits.MaxSupply) > 0 {
		return quotaError(ErrExceedsMaxSupply, l.limits.MaxSupply, l.totalSupply, amount, time.Time{})
	}

	l.window.add(day, amount)
	l.credit(to, amount)
	return nil
}

// mintInitial issues genesis supply. It counts against MaxSupply but not
// against the per-call or daily ceilings.
func (l *MintLedger) mintInitial(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if new(big.Int).Add(l.totalSupply, amount).Cmp(l.limits.MaxSupply) > 0 {
		return quotaError(ErrExceedsMaxSupply, l.limits.MaxSupply, l.totalSupply, amount, time.Time{})
	}
	l.credit(to, amount)
	return nil
}

// MintedOn reports the amount minted on a day still inside the window.
func (l *MintLedger) MintedOn(day int64) *big.Int {
	return l.window.used(day)
}

func (l *MintLedger) RemainingToday(now time.Time) *big.Int {
	rem := new(big.Int).Sub(l.limits.DailyMint, l.window.used(models.DayOf(now.Unix())))
	if supplyLeft := new(big.Int).Sub(l.limits.MaxSupply, l.totalSupply); supplyLeft.Cmp(rem) < 0 {
		rem = supplyLeft
	}
	if rem.Sign() < 0 {
		return new(big.Int)
	}
	return rem
}

// Burn destroys amount of the caller's own balance.
func (l *MintLedger) Burn(caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if bal := l.BalanceOf(caller); bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, burning %s", ErrInsufficientBalance,
			caller.Hex(), models.FormatTokens(bal), models.FormatTokens(amount))
	}
	l.debit(caller, amount)
	return nil
}

func (l *MintLedger) requireBurner(caller common.Address) error {
	if l.roles.IsOwner(caller) || l.roles.IsAuthorizedMinter(caller) {
		return nil
	}
	return fmt.Errorf("%w: %s may not burn other balances", ErrNotOwner, caller.Hex())
}

func (l *MintLedger) BurnFrom(caller, from common.Address, amount *big.Int) error {
	return l.BatchBurn(caller, []BurnEntry{{Account: from, Amount: amount}})
}

// BatchBurn burns every entry or none. Entries naming the same account are
// summed before the balance check.
func (l *MintLedger) BatchBurn(caller common.Address, entries []BurnEntry) error {
	if err := l.requireBurner(caller); err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrEmptyBatch
	}
	for i, e := range entries {
		if e.Account == (common.Address{}) {
			return fmt.Errorf("batch entry %d: %w", i, ErrZeroAddress)
		}
		if e.Amount == nil || e.Amount.Sign() <= 0 {
			return fmt.Errorf("batch entry %d: %w", i, ErrInvalidAmount)
		}
	}

	totals := lo.MapValues(
		lo.GroupBy(entries, func(e BurnEntry) common.Address { return e.Account }),
		func(group []BurnEntry, _ common.Address) *big.Int {
			return lo.Reduce(group, func(sum *big.Int, e BurnEntry, _ int) *big.Int {
				return sum.Add(sum, e.Amount)
			}, new(big.Int))
		})
	for _, e := range entries {
		need := totals[e.Account]
		if bal := l.BalanceOf(e.Account); bal.Cmp(need) < 0 {
			return fmt.Errorf("%w: %s has %s, burning %s", ErrInsufficientBalance,
				e.Account.Hex(), models.FormatTokens(bal), models.FormatTokens(need))
		}
	}

	for _, e := range entries {
		l.debit(e.Account, e.Amount)
	}
	return nil
}
