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

func TestClaimReward(t *testing.T) {
	env := newTestEnv(t)
	id := env.playWon(t, player, 30*time.Second, 0)

	receipt, err := env.engine.ClaimReward(player, id)
	if err != nil {
		t.Fatalf("Failed to claim reward: %v", err)
	}
	if receipt.Amount.Cmp(models.Tokens(220)) != 0 {
		t.Errorf("Expected 220 tokens, got %s", models.FormatTokens(receipt.Amount))
	}
	if receipt.Path != models.ClaimPathDirect {
		t.Errorf("Expected direct path, got %s", receipt.Path)
	}
	if got := env.engine.Balance(player).RewardBalance; got.Cmp(models.Tokens(220)) != 0 {
		t.Errorf("Expected balance of 220 tokens, got %s", models.FormatTokens(got))
	}

	if _, err := env.engine.ClaimReward(player, id); !errors.Is(err, services.ErrAlreadyClaimed) {
		t.Errorf("Expected ErrAlreadyClaimed, got %v", err)
	}

	session, _ := env.engine.Session(id)
	if session.Status() != models.GameStatusClaimed {
		t.Errorf("Expected claimed status, got %s", session.Status())
	}

	quota := env.engine.QuotaStatus()
	if quota.DailyRewardUsed.Cmp(models.Tokens(220)) != 0 || quota.DailyMinted.Cmp(models.Tokens(220)) != 0 {
		t.Errorf("Quota should reflect one claim, got used %s minted %s",
			models.FormatTokens(quota.DailyRewardUsed), models.FormatTokens(quota.DailyMinted))
	}
}

func TestClaimRewardPreconditions(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, player, 1)

	session, err := env.engine.StartGame(player, &models.StartGameRequest{Width: 9, Height: 9, Mines: 10})
	if err != nil {
		t.Fatalf("Failed to start game: %v", err)
	}
	if _, err := env.engine.ClaimReward(player, session.ID); !errors.Is(err, services.ErrNotCompleted) {
		t.Errorf("Expected ErrNotCompleted, got %v", err)
	}

	lost := env.play(t, player, time.Minute, false, 0)
	if _, err := env.engine.ClaimReward(player, lost); !errors.Is(err, services.ErrNotWon) {
		t.Errorf("Expected ErrNotWon, got %v", err)
	}

	won := env.playWon(t, player, time.Minute, 0)
	if _, err := env.engine.ClaimReward(player2, won); !errors.Is(err, services.ErrNotPlayer) {
		t.Errorf("Expected ErrNotPlayer, got %v", err)
	}
	if _, err := env.engine.ClaimReward(player, 999); !errors.Is(err, services.ErrGameNotFound) {
		t.Errorf("Expected ErrGameNotFound, got %v", err)
	}

	if n := env.sink.count(models.EventRewardClaimed); n != 0 {
		t.Errorf("Rejected claims must not emit events, got %d", n)
	}
}

func TestClaimWithSignature(t *testing.T) {
	env := newTestEnv(t)
	id := env.playWon(t, player, 2*time.Minute, 0)
	deadline := baseTime.Add(time.Hour)

	// The signed values are used as given, not the recorded ones.
	auth := env.authorize(t, player, id, 500, 45, 7, deadline)

	if _, err := env.engine.ClaimWithSignature(player2, auth); !errors.Is(err, services.ErrNotPlayer) {
		t.Errorf("Expected ErrNotPlayer for a different caller, got %v", err)
	}

	receipt, err := env.engine.ClaimWithSignature(player, auth)
	if err != nil {
		t.Fatalf("Failed to claim with signature: %v", err)
	}
	if receipt.Amount.Cmp(models.Tokens(220)) != 0 {
		t.Errorf("Expected 220 tokens, got %s", models.FormatTokens(receipt.Amount))
	}
	if receipt.Path != models.ClaimPathSigned {
		t.Errorf("Expected signed path, got %s", receipt.Path)
	}
	if !env.engine.NonceUsed(player, big.NewInt(7)) {
		t.Error("Nonce should be marked used")
	}
	if env.engine.NonceUsed(player2, big.NewInt(7)) {
		t.Error("Nonces are scoped per player")
	}

	if _, err := env.engine.ClaimWithSignature(player, auth); !errors.Is(err, services.ErrNonceAlreadyUsed) {
		t.Errorf("Expected ErrNonceAlreadyUsed on replay, got %v", err)
	}

	fresh := env.authorize(t, player, id, 500, 45, 8, deadline)
	if _, err := env.engine.ClaimWithSignature(player, fresh); !errors.Is(err, services.ErrAlreadyClaimed) {
		t.Errorf("Expected ErrAlreadyClaimed with a fresh nonce, got %v", err)
	}
	if _, err := env.engine.ClaimReward(player, id); !errors.Is(err, services.ErrAlreadyClaimed) {
		t.Errorf("Direct path must see the signed claim, got %v", err)
	}

	if n := env.sink.count(models.EventRewardClaimedWithSignature); n != 1 {
		t.Errorf("Expected one signed claim event, got %d", n)
	}
}

func TestClaimWithSignatureRejections(t *testing.T) {
	env := newTestEnv(t)
	id := env.playWon(t, player, time.Minute, 0)

	expired := env.authorize(t, player, id, 0, 60, 1, env.clock.Now().Add(-time.Second))
	if _, err := env.engine.ClaimWithSignature(player, expired); !errors.Is(err, services.ErrSignatureExpired) {
		t.Errorf("Expected ErrSignatureExpired, got %v", err)
	}

	atDeadline := env.authorize(t, player, id, 0, 60, 2, env.clock.Now())
	tampered := *atDeadline
	tampered.Score = 500
	if _, err := env.engine.ClaimWithSignature(player, &tampered); !errors.Is(err, services.ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for tampered score, got %v", err)
	}

	other := services.NewClaimSigner(env.engine.Domain(), mustKey(t, otherKeyHex))
	forged := &models.ClaimAuthorization{
		Player: player, GameID: id, Duration: 60, Nonce: big.NewInt(3), Deadline: env.clock.Now().Unix(),
	}
	if err := other.Sign(forged); err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}
	if _, err := env.engine.ClaimWithSignature(player, forged); !errors.Is(err, services.ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for untrusted signer, got %v", err)
	}

	// None of the rejections may burn a nonce.
	for _, n := range []int64{1, 2, 3} {
		if env.engine.NonceUsed(player, big.NewInt(n)) {
			t.Errorf("Nonce %d should remain unused", n)
		}
	}

	// A signature is still valid in the second of its deadline.
	if _, err := env.engine.ClaimWithSignature(player, atDeadline); err != nil {
		t.Errorf("Failed to claim at deadline: %v", err)
	}
}

func TestSignerPolicy(t *testing.T) {
	env := newTestEnv(t)
	other := services.NewClaimSigner(env.engine.Domain(), mustKey(t, otherKeyHex))

	if err := env.engine.GrantRole(services.ContractGame, owner, services.RoleSigner, other.Address()); err != nil {
		t.Fatalf("Failed to grant signer: %v", err)
	}

	id := env.playWon(t, player, time.Minute, 0)
	auth := &models.ClaimAuthorization{
		Player: player, GameID: id, Duration: 60, Nonce: big.NewInt(1), Deadline: baseTime.Add(time.Hour).Unix(),
	}
	if err := other.Sign(auth); err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}

	// The server policy ignores the authorized-signer set.
	if _, err := env.engine.ClaimWithSignature(player, auth); !errors.Is(err, services.ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature under server policy, got %v", err)
	}

	if err := env.engine.SetSignerPolicy(player, services.SignerPolicyAuthorizedSet); !errors.Is(err, services.ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.SetSignerPolicy(owner, services.SignerPolicy("any")); !errors.Is(err, services.ErrUnknownPolicy) {
		t.Errorf("Expected ErrUnknownPolicy, got %v", err)
	}
	if err := env.engine.SetSignerPolicy(owner, services.SignerPolicyAuthorizedSet); err != nil {
		t.Fatalf("Failed to set policy: %v", err)
	}
	if _, err := env.engine.ClaimWithSignature(player, auth); err != nil {
		t.Errorf("Set member should be trusted: %v", err)
	}

	// Rotating the server signer takes effect under the server policy.
	env.engine.SetSignerPolicy(owner, services.SignerPolicyServerSigner)
	if err := env.engine.UpdateServerSigner(owner, other.Address()); err != nil {
		t.Fatalf("Failed to update server signer: %v", err)
	}
	next := env.playWon(t, player, time.Minute, 0)
	stale := env.authorize(t, player, next, 0, 60, 2, baseTime.Add(2*time.Hour))
	if _, err := env.engine.ClaimWithSignature(player, stale); !errors.Is(err, services.ErrInvalidSignature) {
		t.Errorf("Old server key should be rejected after rotation, got %v", err)
	}
	if err := env.engine.UpdateServerSigner(owner, common.Address{}); !errors.Is(err, services.ErrZeroAddress) {
		t.Errorf("Expected ErrZeroAddress, got %v", err)
	}
}

func TestDailyRewardQuotaIsShared(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.UpdateDailyRewardLimit(owner, models.Tokens(400)); err != nil {
		t.Fatalf("Failed to update limit: %v", err)
	}

	first := env.playWon(t, player, 30*time.Second, 0)
	second := env.playWon(t, player, 30*time.Second, 0)

	if _, err := env.engine.ClaimReward(player, first); err != nil {
		t.Fatalf("Failed to claim first reward: %v", err)
	}

	auth := env.authorize(t, player, second, 0, 30, 1, env.clock.Now().Add(48*time.Hour))
	_, err := env.engine.ClaimWithSignature(player, auth)
	if !errors.Is(err, services.ErrDailyRewardLimitExceeded) {
		t.Fatalf("Expected ErrDailyRewardLimitExceeded, got %v", err)
	}
	var qe *services.QuotaError
	if !errors.As(err, &qe) || !qe.Retryable() {
		t.Fatalf("Expected retryable QuotaError, got %v", err)
	}
	if qe.Used.Cmp(models.Tokens(220)) != 0 || qe.Requested.Cmp(models.Tokens(220)) != 0 {
		t.Errorf("Unexpected quota figures: %v", qe)
	}
	if env.engine.NonceUsed(player, big.NewInt(1)) {
		t.Error("Quota rejection must not burn the nonce")
	}

	// The next UTC day resets the quota.
	env.clock.Set(models.NextDayStart(env.clock.Now().Unix()))
	if _, err := env.engine.ClaimWithSignature(player, auth); err != nil {
		t.Errorf("Claim should succeed after rollover: %v", err)
	}
}

type reentrantMinter struct {
	verifier *services.ClaimVerifier
	reentry  error
	fail     error
}

func (m *reentrantMinter) Mint(caller, to common.Address, amount *big.Int, now time.Time) error {
	if m.verifier != nil {
		_, m.reentry = m.verifier.ClaimReward(to, 1, now)
	}
	return m.fail
}

func newVerifier(t *testing.T, minter services.Minter) (*services.ClaimVerifier, *services.SessionRegistry) {
	t.Helper()
	game := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	events := services.NewEventLog()
	fees := services.NewToken(common.HexToAddress("0x0fee"), "Fee", "FEE", events)
	sessions := services.NewSessionRegistry(game, fees, new(big.Int), events)
	roles := services.NewRoleRegistry(game, owner, events)

	verifier := services.NewClaimVerifier(services.ClaimConfig{
		Address:          game,
		Domain:           services.Domain{Name: "Test", Version: "1", ChainID: big.NewInt(1), VerifyingContract: game},
		ServerSigner:     owner,
		DailyRewardLimit: models.Tokens(1000),
		Schedule:         services.DefaultRewardSchedule,
	}, sessions, roles, minter, events)

	if _, err := sessions.StartGame(player, 9, 9, 10, baseTime); err != nil {
		t.Fatalf("Failed to start game: %v", err)
	}
	if _, err := sessions.CompleteGame(player, 1, true, 0, baseTime.Add(30*time.Second)); err != nil {
		t.Fatalf("Failed to complete game: %v", err)
	}
	return verifier, sessions
}

func TestClaimReentrancyGuard(t *testing.T) {
	minter := &reentrantMinter{}
	verifier, _ := newVerifier(t, minter)
	minter.verifier = verifier

	if _, err := verifier.ClaimReward(player, 1, baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("Outer claim should succeed: %v", err)
	}
	if !errors.Is(minter.reentry, services.ErrReentrantCall) {
		t.Errorf("Expected ErrReentrantCall from nested claim, got %v", minter.reentry)
	}
}

func TestClaimMintFailureLeavesNoTrace(t *testing.T) {
	mintErr := errors.New("mint failed")
	minter := &reentrantMinter{fail: mintErr}
	verifier, sessions := newVerifier(t, minter)
	now := baseTime.Add(time.Minute)

	if _, err := verifier.ClaimReward(player, 1, now); !errors.Is(err, mintErr) {
		t.Fatalf("Expected mint error, got %v", err)
	}

	session, _ := sessions.Session(1)
	if session.RewardClaimed {
		t.Error("Claimed flag should be restored after a failed mint")
	}
	if used := verifier.DailyRewardUsed(now); used.Sign() != 0 {
		t.Errorf("Quota should be restored, got %s", models.FormatTokens(used))
	}

	minter.fail = nil
	if _, err := verifier.ClaimReward(player, 1, now); err != nil {
		t.Errorf("Claim should succeed once minting works: %v", err)
	}
}

func TestOversizedNonceRejected(t *testing.T) {
	env := newTestEnv(t)
	first := env.playWon(t, player, time.Minute, 0)
	second := env.playWon(t, player, time.Minute, 0)

	used := env.authorize(t, player, first, 0, 60, 7, env.clock.Now().Add(time.Hour))
	if _, err := env.engine.ClaimWithSignature(player, used); err != nil {
		t.Fatalf("Failed to claim with nonce 7: %v", err)
	}

	// 2^256 + 7 shares its low 32 bytes with nonce 7.
	wide := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(7))
	auth := env.authorize(t, player, second, 0, 60, 8, env.clock.Now().Add(time.Hour))
	auth.Nonce = wide
	if _, err := env.engine.ClaimWithSignature(player, auth); !errors.Is(err, services.ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for a nonce past uint256, got %v", err)
	}
	if env.engine.NonceUsed(player, wide) {
		t.Error("A nonce past uint256 must not alias a used one")
	}

	maxNonce := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if env.engine.NonceUsed(player, maxNonce) {
		t.Error("Largest uint256 nonce should be unused")
	}
}
