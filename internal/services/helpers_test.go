package services_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"minesweeper-rewards/internal/models"
	"minesweeper-rewards/internal/services"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	player   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	player2  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	outsider = common.HexToAddress("0x00000000000000000000000000000000000000cc")

	// 2024-03-10 12:00:00 UTC
	baseTime = time.Unix(1710072000, 0).UTC()
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.now = t
}

type recordingSink struct {
	events []models.Event
}

func (s *recordingSink) Publish(evt *models.Event) {
	s.events = append(s.events, *evt)
}

func (s *recordingSink) types() []models.EventType {
	out := make([]models.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *recordingSink) count(typ models.EventType) int {
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (s *recordingSink) reset() {
	s.events = nil
}

type testEnv struct {
	engine     *services.Engine
	clock      *fakeClock
	sink       *recordingSink
	signerKey  *ecdsa.PrivateKey
	signer     *services.ClaimSigner
	serverAddr common.Address
}

func mustKey(t *testing.T, hex string) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(hex)
	if err != nil {
		t.Fatalf("Failed to parse key: %v", err)
	}
	return key
}

const (
	serverKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	otherKeyHex  = "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
)

func newTestEnv(t *testing.T, mutate ...func(*services.EngineConfig)) *testEnv {
	t.Helper()

	key := mustKey(t, serverKeyHex)
	serverAddr := crypto.PubkeyToAddress(key.PublicKey)

	cfg := services.DefaultEngineConfig(owner, serverAddr)
	for _, m := range mutate {
		m(&cfg)
	}

	clock := &fakeClock{now: baseTime}
	sink := &recordingSink{}
	engine, err := services.NewEngine(cfg, services.WithClock(clock.Now), services.WithSinks(sink))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	return &testEnv{
		engine:     engine,
		clock:      clock,
		sink:       sink,
		signerKey:  key,
		signer:     services.NewClaimSigner(engine.Domain(), key),
		serverAddr: serverAddr,
	}
}

// fund gives p enough fee tokens and allowance for n games.
func (env *testEnv) fund(t *testing.T, p common.Address, n int64) {
	t.Helper()
	amount := new(big.Int).Mul(env.engine.GameFee(), big.NewInt(n))
	if err := env.engine.IssueFeeTokens(owner, p, amount); err != nil {
		t.Fatalf("Failed to issue fee tokens: %v", err)
	}
	if err := env.engine.ApproveFee(p, amount); err != nil {
		t.Fatalf("Failed to approve fee: %v", err)
	}
}

// playWon starts and completes a won game lasting d.
func (env *testEnv) playWon(t *testing.T, p common.Address, d time.Duration, score uint64) uint64 {
	t.Helper()
	return env.play(t, p, d, true, score)
}

func (env *testEnv) play(t *testing.T, p common.Address, d time.Duration, won bool, score uint64) uint64 {
	t.Helper()
	env.fund(t, p, 1)
	session, err := env.engine.StartGame(p, &models.StartGameRequest{Width: 9, Height: 9, Mines: 10})
	if err != nil {
		t.Fatalf("Failed to start game: %v", err)
	}
	env.clock.Advance(d)
	if _, err := env.engine.CompleteGame(p, session.ID, won, score); err != nil {
		t.Fatalf("Failed to complete game: %v", err)
	}
	return session.ID
}

func (env *testEnv) authorize(t *testing.T, p common.Address, gameID, score, duration uint64, nonce int64, deadline time.Time) *models.ClaimAuthorization {
	t.Helper()
	auth := &models.ClaimAuthorization{
		Player:   p,
		GameID:   gameID,
		Score:    score,
		Duration: duration,
		Nonce:    big.NewInt(nonce),
		Deadline: deadline.Unix(),
	}
	if err := env.signer.Sign(auth); err != nil {
		t.Fatalf("Failed to sign authorization: %v", err)
	}
	return auth
}
