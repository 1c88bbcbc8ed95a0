package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"minesweeper-rewards/internal/models"
	"minesweeper-rewards/internal/services"
)

func TestPause(t *testing.T) {
	env := newTestEnv(t)
	won := env.playWon(t, player, 30*time.Second, 0)
	env.fund(t, player, 1)

	if err := env.engine.Pause(player); !errors.Is(err, services.ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.Unpause(owner); !errors.Is(err, services.ErrNotPaused) {
		t.Errorf("Expected ErrNotPaused, got %v", err)
	}
	if err := env.engine.Pause(owner); err != nil {
		t.Fatalf("Failed to pause: %v", err)
	}
	if !env.engine.Paused() {
		t.Error("Engine should report paused")
	}
	if err := env.engine.Pause(owner); !errors.Is(err, services.ErrPaused) {
		t.Errorf("Expected ErrPaused when already paused, got %v", err)
	}

	req := &models.StartGameRequest{Width: 9, Height: 9, Mines: 10}
	if _, err := env.engine.StartGame(player, req); !errors.Is(err, services.ErrPaused) {
		t.Errorf("StartGame should be paused, got %v", err)
	}
	if _, err := env.engine.ClaimReward(player, won); !errors.Is(err, services.ErrPaused) {
		t.Errorf("ClaimReward should be paused, got %v", err)
	}
	auth := env.authorize(t, player, won, 0, 30, 1, env.clock.Now().Add(time.Hour))
	if _, err := env.engine.ClaimWithSignature(player, auth); !errors.Is(err, services.ErrPaused) {
		t.Errorf("ClaimWithSignature should be paused, got %v", err)
	}

	// Admin and token operations keep working while paused.
	if err := env.engine.UpdateDailyRewardLimit(owner, models.Tokens(500)); err != nil {
		t.Errorf("Admin update should not be paused: %v", err)
	}

	if err := env.engine.Unpause(owner); err != nil {
		t.Fatalf("Failed to unpause: %v", err)
	}
	if _, err := env.engine.ClaimReward(player, won); err != nil {
		t.Errorf("Claim should succeed after unpause: %v", err)
	}
	if env.engine.NonceUsed(player, auth.Nonce) {
		t.Error("Paused signed claim must not burn the nonce")
	}
}

func TestEventsPublishedOnCommit(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, player, 1)
	env.sink.reset()

	if _, err := env.engine.StartGame(player, &models.StartGameRequest{Width: 2, Height: 2, Mines: 1}); err == nil {
		t.Fatal("Expected invalid board to be rejected")
	}
	if len(env.sink.events) != 0 {
		t.Errorf("Rejected operation published %v", env.sink.types())
	}

	session, err := env.engine.StartGame(player, &models.StartGameRequest{Width: 9, Height: 9, Mines: 10})
	if err != nil {
		t.Fatalf("Failed to start game: %v", err)
	}
	types := env.sink.types()
	if len(types) != 2 || types[0] != models.EventTransfer || types[1] != models.EventGameStarted {
		t.Errorf("Expected [Transfer GameStarted], got %v", types)
	}
	for _, e := range env.sink.events {
		if e.Timestamp != env.clock.Now().Unix() {
			t.Errorf("Event %s stamped %d, want %d", e.Type, e.Timestamp, env.clock.Now().Unix())
		}
		if e.ID == "" {
			t.Errorf("Event %s has no id", e.Type)
		}
	}

	env.sink.reset()
	env.clock.Advance(20 * time.Second)
	if _, err := env.engine.CompleteGame(player, session.ID, true, 100); err != nil {
		t.Fatalf("Failed to complete game: %v", err)
	}
	if _, err := env.engine.ClaimReward(player, session.ID); err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if got := env.sink.count(models.EventRewardClaimed); got != 1 {
		t.Errorf("Expected one RewardClaimed event, got %d", got)
	}
	claimed := env.sink.events[len(env.sink.events)-1]
	if claimed.Type != models.EventRewardClaimed || claimed.GameID != session.ID || !claimed.Concerns(player) {
		t.Errorf("Unexpected final event %+v", claimed)
	}
}

func TestFeeSweeps(t *testing.T) {
	env := newTestEnv(t)
	env.play(t, player, time.Minute, false, 0)
	env.play(t, player2, time.Minute, false, 0)
	env.play(t, player2, time.Minute, false, 0)

	fee := env.engine.GameFee()
	collected := env.engine.Balance(env.engine.GameAddress()).FeeBalance
	if collected.Cmp(models.Tokens(3)) != 0 || fee.Cmp(models.Tokens(1)) != 0 {
		t.Fatalf("Expected 3 tokens collected at 1 each, got %s", models.FormatTokens(collected))
	}

	if err := env.engine.WithdrawFees(player, outsider, fee); !errors.Is(err, services.ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.WithdrawFees(owner, outsider, models.Tokens(10)); !errors.Is(err, services.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
	if err := env.engine.WithdrawFees(owner, outsider, fee); err != nil {
		t.Fatalf("Failed to withdraw fees: %v", err)
	}
	if got := env.engine.Balance(outsider).FeeBalance; got.Cmp(fee) != 0 {
		t.Errorf("Recipient should hold %s, got %s", models.FormatTokens(fee), models.FormatTokens(got))
	}

	env.sink.reset()
	if err := env.engine.BurnFees(owner, nil); err != nil {
		t.Fatalf("Failed to burn fees: %v", err)
	}
	if got := env.engine.Balance(models.DeadAddress).FeeBalance; got.Cmp(models.Tokens(2)) != 0 {
		t.Errorf("Dead address should hold the remainder, got %s", models.FormatTokens(got))
	}
	if env.sink.count(models.EventFeesBurned) != 1 {
		t.Errorf("Expected FeesBurned event, got %v", env.sink.types())
	}

	if err := env.engine.BurnFees(owner, nil); !errors.Is(err, services.ErrInvalidAmount) {
		t.Errorf("Sweeping an empty balance should fail, got %v", err)
	}
}

func TestNewEngineValidation(t *testing.T) {
	cfg := services.DefaultEngineConfig(owner, player)
	cfg.DailyRewardLimit = nil
	if _, err := services.NewEngine(cfg); !errors.Is(err, services.ErrInvalidLimit) {
		t.Errorf("Expected ErrInvalidLimit, got %v", err)
	}

	cfg = services.DefaultEngineConfig(owner, player)
	cfg.ServerSigner = common.Address{}
	if _, err := services.NewEngine(cfg); !errors.Is(err, services.ErrZeroAddress) {
		t.Errorf("Expected ErrZeroAddress, got %v", err)
	}

	if _, err := services.ParseContract("vault"); !errors.Is(err, services.ErrUnknownContract) {
		t.Errorf("Expected ErrUnknownContract, got %v", err)
	}
}

func TestRewardTransferAndBurn(t *testing.T) {
	env := newTestEnv(t)
	id := env.playWon(t, player, 30*time.Second, 0)
	if _, err := env.engine.ClaimReward(player, id); err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}

	if err := env.engine.TransferReward(player, player2, models.Tokens(20)); err != nil {
		t.Fatalf("Failed to transfer: %v", err)
	}
	if err := env.engine.Burn(player, models.Tokens(100)); err != nil {
		t.Fatalf("Failed to burn: %v", err)
	}

	if got := env.engine.Balance(player).RewardBalance; got.Cmp(models.Tokens(100)) != 0 {
		t.Errorf("Expected 100 tokens left, got %s", models.FormatTokens(got))
	}
	quota := env.engine.QuotaStatus()
	if quota.TotalSupply.Cmp(models.Tokens(120)) != 0 {
		t.Errorf("Expected supply 120 after burn, got %s", models.FormatTokens(quota.TotalSupply))
	}
	if quota.DailyMinted.Cmp(models.Tokens(220)) != 0 {
		t.Errorf("Burning must not refund the daily mint window, got %s", models.FormatTokens(quota.DailyMinted))
	}
	if quota.ResetAt != models.NextDayStart(env.clock.Now().Unix()).Unix() {
		t.Errorf("Unexpected reset time %d", quota.ResetAt)
	}
}

// stallingSink blocks on Paused events until released.
type stallingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *stallingSink) Publish(evt *models.Event) {
	if evt.Type != models.EventPaused {
		return
	}
	close(s.entered)
	<-s.release
}

func TestSlowSinkDoesNotBlockEngine(t *testing.T) {
	sink := &stallingSink{entered: make(chan struct{}), release: make(chan struct{})}
	signer := crypto.PubkeyToAddress(mustKey(t, serverKeyHex).PublicKey)
	engine, err := services.NewEngine(services.DefaultEngineConfig(owner, signer), services.WithSinks(sink))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	paused := make(chan error, 1)
	go func() { paused <- engine.Pause(owner) }()
	<-sink.entered

	viewed := make(chan bool, 1)
	go func() { viewed <- engine.Paused() }()
	select {
	case p := <-viewed:
		if !p {
			t.Error("Committed pause should be visible while its events are published")
		}
	case <-time.After(2 * time.Second):
		close(sink.release)
		t.Fatal("View waited behind a publishing sink")
	}

	updated := make(chan error, 1)
	go func() { updated <- engine.UpdateDailyRewardLimit(owner, models.Tokens(500)) }()
	select {
	case err := <-updated:
		t.Fatalf("Second operation should still be queued for publish, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if got := engine.QuotaStatus().DailyRewardLimit; got.Cmp(models.Tokens(500)) != 0 {
		t.Errorf("Second operation should have committed, limit is %s", models.FormatTokens(got))
	}

	close(sink.release)
	if err := <-paused; err != nil {
		t.Errorf("Failed to pause: %v", err)
	}
	if err := <-updated; err != nil {
		t.Errorf("Failed to update limit: %v", err)
	}
}
