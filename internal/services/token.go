package services

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"minesweeper-rewards/internal/models"
)

// Token is a fungible balance ledger with allowances. It backs both the reward
// token (wrapped by MintLedger) and the secondary fee token.
type Token struct {
	address     common.Address
	name        string
	symbol      string
	issuer      common.Address
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	events      *EventLog
}

func NewToken(address common.Address, name, symbol string, events *EventLog) *Token {
	return &Token{
		address:     address,
		name:        name,
		symbol:      symbol,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		events:      events,
	}
}

// WithIssuer lets issuer create supply through Issue. Used for the fee token.
func (t *Token) WithIssuer(issuer common.Address) *Token {
	t.issuer = issuer
	return t
}

func (t *Token) Address() common.Address {
	return t.address
}

func (t *Token) Name() string {
	return t.name
}

func (t *Token) Symbol() string {
	return t.symbol
}

func (t *Token) Decimals() uint8 {
	return models.TokenDecimals
}

func (t *Token) Info() models.TokenInfo {
	return models.TokenInfo{
		Address:  t.address,
		Name:     t.Name(),
		Symbol:   t.Symbol(),
		Decimals: t.Decimals(),
	}
}

func (t *Token) TotalSupply() *big.Int {
	return new(big.Int).Set(t.totalSupply)
}

func (t *Token) BalanceOf(addr common.Address) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if spender == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
	t.events.Emit(t.address, models.EventApproval, owner, 0, map[string]any{
		"owner": owner, "spender": spender, "value": new(big.Int).Set(amount),
	})
	return nil
}

func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if err := t.checkTransfer(from, to, amount); err != nil {
		return err
	}
	t.move(from, to, amount)
	return nil
}

// TransferFrom moves amount from `from` to `to` on behalf of spender, spending
// its allowance. Both checks happen before either balance changes.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if err := t.checkTransfer(from, to, amount); err != nil {
		return err
	}
	allowance := t.Allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s approved %s, need %s", ErrInsufficientAllowance,
			from.Hex(), models.FormatTokens(allowance), models.FormatTokens(amount))
	}
	if amount.Sign() > 0 {
		t.allowances[from][spender] = allowance.Sub(allowance, amount)
	}
	t.move(from, to, amount)
	return nil
}

// Issue creates fee-token supply. Only the configured issuer may call it.
func (t *Token) Issue(caller, to common.Address, amount *big.Int) error {
	if t.issuer == (common.Address{}) || caller != t.issuer {
		return fmt.Errorf("%w: %s cannot issue %s", ErrNotMinter, caller.Hex(), t.symbol)
	}
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.credit(to, amount)
	return nil
}

func (t *Token) checkTransfer(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if bal := t.BalanceOf(from); bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientBalance,
			from.Hex(), models.FormatTokens(bal), models.FormatTokens(amount))
	}
	return nil
}

func (t *Token) move(from, to common.Address, amount *big.Int) {
	t.balances[from] = new(big.Int).Sub(t.BalanceOf(from), amount)
	t.balances[to] = new(big.Int).Add(t.BalanceOf(to), amount)
	t.events.Emit(t.address, models.EventTransfer, from, 0, map[string]any{
		"from": from, "to": to, "value": new(big.Int).Set(amount),
	})
}

// credit mints without any governance; callers enforce limits.
func (t *Token) credit(to common.Address, amount *big.Int) {
	t.totalSupply = new(big.Int).Add(t.totalSupply, amount)
	t.balances[to] = new(big.Int).Add(t.BalanceOf(to), amount)
	t.events.Emit(t.address, models.EventTransfer, to, 0, map[string]any{
		"from": common.Address{}, "to": to, "value": new(big.Int).Set(amount),
	})
}

// debit burns; callers have checked the balance.
func (t *Token) debit(from common.Address, amount *big.Int) {
	t.totalSupply = new(big.Int).Sub(t.totalSupply, amount)
	t.balances[from] = new(big.Int).Sub(t.BalanceOf(from), amount)
	t.events.Emit(t.address, models.EventTransfer, from, 0, map[string]any{
		"from": from, "to": common.Address{}, "value": new(big.Int).Set(amount),
	})
}
