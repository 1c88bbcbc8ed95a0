package services_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"minesweeper-rewards/internal/models"
	"minesweeper-rewards/internal/services"
)

var tokenAddr = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

func newTestLedger(t *testing.T, limits services.MintLimits) *services.MintLedger {
	t.Helper()
	events := services.NewEventLog()
	roles := services.NewRoleRegistry(tokenAddr, owner, events)
	if err := roles.AddAuthorizedMinter(owner, owner); err != nil {
		t.Fatalf("Failed to add minter: %v", err)
	}
	return services.NewMintLedger(services.NewToken(tokenAddr, "Reward", "RWD", events), roles, limits)
}

func TestMintDailyLimit(t *testing.T) {
	ledger := newTestLedger(t, services.DefaultMintLimits())
	now := baseTime

	for i := 0; i < 5; i++ {
		if err := ledger.Mint(owner, player, models.Tokens(10_000), now); err != nil {
			t.Fatalf("Mint %d failed: %v", i+1, err)
		}
	}

	err := ledger.Mint(owner, player, models.Tokens(10_000), now)
	if !errors.Is(err, services.ErrExceedsDailyMintLimit) {
		t.Fatalf("Expected ErrExceedsDailyMintLimit on sixth mint, got %v", err)
	}

	var qe *services.QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("Expected *QuotaError, got %T", err)
	}
	if !qe.Retryable() || !qe.ResetAt.Equal(models.NextDayStart(now.Unix())) {
		t.Errorf("Expected reset at next midnight, got %v", qe.ResetAt)
	}
	if qe.Used.Cmp(models.Tokens(50_000)) != 0 {
		t.Errorf("Expected used 50000 tokens, got %s", models.FormatTokens(qe.Used))
	}

	if ledger.BalanceOf(player).Cmp(models.Tokens(50_000)) != 0 {
		t.Errorf("Expected balance 50000, got %s", models.FormatTokens(ledger.BalanceOf(player)))
	}
	if ledger.RemainingToday(now).Sign() != 0 {
		t.Errorf("Expected nothing remaining today, got %s", ledger.RemainingToday(now))
	}
}

func TestMintDayBoundary(t *testing.T) {
	ledger := newTestLedger(t, services.DefaultMintLimits())
	lastSecond := time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC)
	midnight := lastSecond.Add(time.Second)

	for i := 0; i < 5; i++ {
		if err := ledger.Mint(owner, player, models.Tokens(10_000), lastSecond); err != nil {
			t.Fatalf("Mint %d failed: %v", i+1, err)
		}
	}
	if err := ledger.Mint(owner, player, models.Tokens(1), lastSecond); !errors.Is(err, services.ErrExceedsDailyMintLimit) {
		t.Errorf("Expected daily limit at 23:59:59, got %v", err)
	}

	if err := ledger.Mint(owner, player, models.Tokens(10_000), midnight); err != nil {
		t.Errorf("Mint at 00:00:00 should start a fresh day: %v", err)
	}
	if got := ledger.MintedOn(models.DayOf(midnight.Unix())); got.Cmp(models.Tokens(10_000)) != 0 {
		t.Errorf("Expected 10000 minted on new day, got %s", models.FormatTokens(got))
	}
	if got := ledger.MintedOn(models.DayOf(lastSecond.Unix())); got.Cmp(models.Tokens(50_000)) != 0 {
		t.Errorf("Previous day total should stay 50000, got %s", models.FormatTokens(got))
	}

	// A day that shares a ring slot with an old day starts from zero.
	later := lastSecond.Add(8 * 24 * time.Hour)
	if err := ledger.Mint(owner, player, models.Tokens(10_000), later); err != nil {
		t.Errorf("Mint eight days later failed: %v", err)
	}
	if got := ledger.MintedOn(models.DayOf(later.Unix())); got.Cmp(models.Tokens(10_000)) != 0 {
		t.Errorf("Expected recycled slot to hold 10000, got %s", models.FormatTokens(got))
	}
}

func TestMintChecks(t *testing.T) {
	ledger := newTestLedger(t, services.DefaultMintLimits())

	tests := []struct {
		name   string
		caller common.Address
		to     common.Address
		amount *big.Int
		want   error
	}{
		{"not minter", outsider, common.Address{}, models.Tokens(1), services.ErrNotMinter},
		{"zero recipient", owner, common.Address{}, models.Tokens(1), services.ErrInvalidRecipient},
		{"zero amount", owner, player, big.NewInt(0), services.ErrInvalidAmount},
		{"nil amount", owner, player, nil, services.ErrInvalidAmount},
		{"single limit", owner, player, new(big.Int).Add(models.Tokens(10_000), big.NewInt(1)), services.ErrExceedsSingleMintLimit},
		{"at single limit", owner, player, models.Tokens(10_000), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.Mint(tt.caller, tt.to, tt.amount, baseTime)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMintMaxSupply(t *testing.T) {
	limits := services.DefaultMintLimits()
	limits.MaxSupply = models.Tokens(15_000)
	ledger := newTestLedger(t, limits)

	if err := ledger.Mint(owner, player, models.Tokens(10_000), baseTime); err != nil {
		t.Fatalf("First mint failed: %v", err)
	}
	if err := ledger.Mint(owner, player, models.Tokens(10_000), baseTime); !errors.Is(err, services.ErrExceedsMaxSupply) {
		t.Errorf("Expected ErrExceedsMaxSupply, got %v", err)
	}
	if err := ledger.Mint(owner, player, models.Tokens(5_000), baseTime); err != nil {
		t.Errorf("Mint up to the cap should succeed: %v", err)
	}
	if ledger.TotalSupply().Cmp(limits.MaxSupply) != 0 {
		t.Errorf("Expected supply at cap, got %s", models.FormatTokens(ledger.TotalSupply()))
	}
}

func TestInitialSupplyCountsTowardCap(t *testing.T) {
	env := newTestEnv(t, func(cfg *services.EngineConfig) {
		cfg.InitialSupply = models.Tokens(100_000_000 - 5_000)
	})

	if got := env.engine.Balance(owner).RewardBalance; got.Cmp(models.Tokens(100_000_000-5_000)) != 0 {
		t.Fatalf("Expected initial supply on primary owner, got %s", models.FormatTokens(got))
	}
	if err := env.engine.Mint(owner, player, models.Tokens(10_000)); !errors.Is(err, services.ErrExceedsMaxSupply) {
		t.Errorf("Expected ErrExceedsMaxSupply, got %v", err)
	}
	if err := env.engine.Mint(owner, player, models.Tokens(5_000)); err != nil {
		t.Errorf("Mint of the remainder should succeed: %v", err)
	}

	quota := env.engine.QuotaStatus()
	if quota.DailyMinted.Cmp(models.Tokens(5_000)) != 0 {
		t.Errorf("Initial supply must not count against the daily window, minted %s", models.FormatTokens(quota.DailyMinted))
	}
}

func TestPrivilegedCaller(t *testing.T) {
	ledger := newTestLedger(t, services.DefaultMintLimits())
	game := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	if err := ledger.Mint(game, player, models.Tokens(1), baseTime); !errors.Is(err, services.ErrNotMinter) {
		t.Errorf("Expected ErrNotMinter before configuration, got %v", err)
	}
	if err := ledger.SetPrivilegedCaller(outsider, game); !errors.Is(err, services.ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if err := ledger.SetPrivilegedCaller(owner, game); err != nil {
		t.Fatalf("Failed to set privileged caller: %v", err)
	}
	if err := ledger.Mint(game, player, models.Tokens(1), baseTime); err != nil {
		t.Errorf("Privileged caller should mint: %v", err)
	}
	if ledger.PrivilegedCaller() != game {
		t.Errorf("Expected privileged caller %s, got %s", game.Hex(), ledger.PrivilegedCaller().Hex())
	}
}

func TestBatchBurn(t *testing.T) {
	ledger := newTestLedger(t, services.DefaultMintLimits())
	ledger.Mint(owner, player, models.Tokens(100), baseTime)
	ledger.Mint(owner, player2, models.Tokens(50), baseTime)

	// player appears twice; combined 110 exceeds the 100 balance.
	err := ledger.BatchBurn(owner, []services.BurnEntry{
		{Account: player, Amount: models.Tokens(60)},
		{Account: player2, Amount: models.Tokens(10)},
		{Account: player, Amount: models.Tokens(50)},
	})
	if !errors.Is(err, services.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}
	if ledger.BalanceOf(player).Cmp(models.Tokens(100)) != 0 || ledger.BalanceOf(player2).Cmp(models.Tokens(50)) != 0 {
		t.Error("Failed batch must leave every balance untouched")
	}
	if ledger.TotalSupply().Cmp(models.Tokens(150)) != 0 {
		t.Errorf("Failed batch must leave supply untouched, got %s", models.FormatTokens(ledger.TotalSupply()))
	}

	if err := ledger.BatchBurn(outsider, []services.BurnEntry{{Account: player, Amount: models.Tokens(1)}}); !errors.Is(err, services.ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner for outsider, got %v", err)
	}
	if err := ledger.BatchBurn(owner, nil); !errors.Is(err, services.ErrEmptyBatch) {
		t.Errorf("Expected ErrEmptyBatch, got %v", err)
	}
	if err := ledger.BatchBurn(owner, []services.BurnEntry{{Account: player, Amount: big.NewInt(0)}}); !errors.Is(err, services.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}

	err = ledger.BatchBurn(owner, []services.BurnEntry{
		{Account: player, Amount: models.Tokens(60)},
		{Account: player, Amount: models.Tokens(40)},
		{Account: player2, Amount: models.Tokens(50)},
	})
	if err != nil {
		t.Fatalf("Batch burn failed: %v", err)
	}
	if ledger.BalanceOf(player).Sign() != 0 || ledger.BalanceOf(player2).Sign() != 0 {
		t.Error("Expected both balances burned to zero")
	}
	if ledger.TotalSupply().Sign() != 0 {
		t.Errorf("Expected zero supply, got %s", models.FormatTokens(ledger.TotalSupply()))
	}
}

func TestBurnAndTransfer(t *testing.T) {
	ledger := newTestLedger(t, services.DefaultMintLimits())
	ledger.Mint(owner, player, models.Tokens(10), baseTime)

	if err := ledger.Burn(player, models.Tokens(11)); !errors.Is(err, services.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Burn(player, models.Tokens(4)); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if err := ledger.Transfer(player, common.Address{}, models.Tokens(1)); !errors.Is(err, services.ErrInvalidRecipient) {
		t.Errorf("Expected ErrInvalidRecipient, got %v", err)
	}
	if err := ledger.Transfer(player, player2, models.Tokens(6)); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if ledger.BalanceOf(player2).Cmp(models.Tokens(6)) != 0 {
		t.Errorf("Expected recipient balance 6, got %s", models.FormatTokens(ledger.BalanceOf(player2)))
	}

	if err := ledger.TransferFrom(outsider, player2, outsider, models.Tokens(1)); !errors.Is(err, services.ErrInsufficientAllowance) {
		t.Errorf("Expected ErrInsufficientAllowance, got %v", err)
	}
	ledger.Approve(player2, outsider, models.Tokens(2))
	if err := ledger.TransferFrom(outsider, player2, outsider, models.Tokens(2)); err != nil {
		t.Errorf("TransferFrom within allowance failed: %v", err)
	}
	if ledger.Allowance(player2, outsider).Sign() != 0 {
		t.Errorf("Allowance should be spent, got %s", ledger.Allowance(player2, outsider))
	}
	if ledger.TotalSupply().Cmp(models.Tokens(6)) != 0 {
		t.Errorf("Expected supply 6 after burn, got %s", models.FormatTokens(ledger.TotalSupply()))
	}
}
