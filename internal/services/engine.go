package services

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"minesweeper-rewards/internal/config"
	"minesweeper-rewards/internal/models"
)

type Contract string

const (
	ContractGame  Contract = "game"
	ContractToken Contract = "token"
)

func ParseContract(s string) (Contract, error) {
	switch c := Contract(s); c {
	case ContractGame, ContractToken:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContract, s)
}

type EngineConfig struct {
	GameAddress     common.Address
	TokenAddress    common.Address
	FeeTokenAddress common.Address
	PrimaryOwner    common.Address
	ServerSigner    common.Address
	SignerPolicy    SignerPolicy
	ChainID         *big.Int
	DomainName      string
	DomainVersion   string

	// Amounts below are in 18-decimal base units.
	GameFee          *big.Int
	DailyRewardLimit *big.Int
	InitialSupply    *big.Int

	MintLimits MintLimits
	Schedule   RewardSchedule
}

func DefaultEngineConfig(primaryOwner, serverSigner common.Address) EngineConfig {
	return EngineConfig{
		GameAddress:      common.HexToAddress("0x00000000000000000000000000000000000a11ce"),
		TokenAddress:     common.HexToAddress("0x0000000000000000000000000000000000000b0b"),
		FeeTokenAddress:  common.HexToAddress("0x0000000000000000000000000000000000000fee"),
		PrimaryOwner:     primaryOwner,
		ServerSigner:     serverSigner,
		SignerPolicy:     SignerPolicyServerSigner,
		ChainID:          big.NewInt(31337),
		DomainName:       "MinesweeperRewards",
		DomainVersion:    "1",
		GameFee:          models.Tokens(1),
		DailyRewardLimit: models.Tokens(10_000),
		InitialSupply:    new(big.Int),
		MintLimits:       DefaultMintLimits(),
		Schedule:         DefaultRewardSchedule,
	}
}

// EngineConfigFromConfig converts whole-token environment settings into an
// EngineConfig.
func EngineConfigFromConfig(cfg *config.Config) (EngineConfig, error) {
	policy, err := ParseSignerPolicy(cfg.SignerPolicy)
	if err != nil {
		return EngineConfig{}, err
	}
	ec := DefaultEngineConfig(cfg.PrimaryOwner, cfg.ServerSigner)
	ec.GameAddress = cfg.GameAddress
	ec.TokenAddress = cfg.TokenAddress
	ec.FeeTokenAddress = cfg.FeeTokenAddr
	ec.SignerPolicy = policy
	ec.ChainID = new(big.Int).Set(cfg.ChainID)
	ec.DomainName = cfg.DomainName
	ec.DomainVersion = cfg.DomainVersion
	ec.GameFee = models.TokensBig(cfg.GameFee)
	ec.DailyRewardLimit = models.TokensBig(cfg.DailyReward)
	ec.InitialSupply = models.TokensBig(cfg.InitialSupply)
	return ec, nil
}

type EngineOption func(*Engine)

func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

func WithSinks(sinks ...EventSink) EngineOption {
	return func(e *Engine) { e.sinks = append(e.sinks, sinks...) }
}

func WithLogger(log *logrus.Entry) EngineOption {
	return func(e *Engine) { e.log = log }
}

// Engine runs every operation as one serialized transaction: a single clock
// reading, all-or-nothing state changes, and events published only after the
// operation succeeds.
type Engine struct {
	mu     sync.Mutex
	clock  func() time.Time
	log    *logrus.Entry
	events *EventLog
	sinks  []EventSink
	paused bool

	// committed is guarded by mu; published by pubMu.
	committed uint64
	published uint64
	pubMu     sync.Mutex
	pubTurn   *sync.Cond

	gameAddress common.Address
	gameRoles   *RoleRegistry
	tokenRoles  *RoleRegistry
	ledger      *MintLedger
	feeToken    *Token
	sessions    *SessionRegistry
	claims      *ClaimVerifier
}

func NewEngine(cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if cfg.PrimaryOwner == (common.Address{}) {
		return nil, fmt.Errorf("primary owner: %w", ErrZeroAddress)
	}
	if cfg.ServerSigner == (common.Address{}) {
		return nil, fmt.Errorf("server signer: %w", ErrZeroAddress)
	}
	if cfg.DailyRewardLimit == nil || cfg.DailyRewardLimit.Sign() <= 0 {
		return nil, fmt.Errorf("daily reward limit: %w", ErrInvalidLimit)
	}
	if cfg.GameFee == nil {
		cfg.GameFee = new(big.Int)
	}

	e := &Engine{
		clock:       time.Now,
		log:         logrus.WithField("component", "engine"),
		events:      NewEventLog(),
		gameAddress: cfg.GameAddress,
	}
	e.pubTurn = sync.NewCond(&e.pubMu)
	for _, opt := range opts {
		opt(e)
	}
	e.events.Begin(e.clock())

	e.gameRoles = NewRoleRegistry(cfg.GameAddress, cfg.PrimaryOwner, e.events)
	e.gameRoles.seed(RoleSigner, cfg.ServerSigner)
	e.tokenRoles = NewRoleRegistry(cfg.TokenAddress, cfg.PrimaryOwner, e.events)
	e.tokenRoles.seed(RoleMinter, cfg.PrimaryOwner)

	e.feeToken = NewToken(cfg.FeeTokenAddress, "Minesweeper Fee", "MSFEE", e.events).WithIssuer(cfg.PrimaryOwner)
	e.ledger = NewMintLedger(NewToken(cfg.TokenAddress, "Minesweeper Reward", "MSR", e.events), e.tokenRoles, cfg.MintLimits)
	e.ledger.privileged = cfg.GameAddress
	if err := e.ledger.mintInitial(cfg.PrimaryOwner, cfg.InitialSupply); err != nil {
		return nil, fmt.Errorf("initial supply: %w", err)
	}

	e.sessions = NewSessionRegistry(cfg.GameAddress, e.feeToken, cfg.GameFee, e.events)
	e.claims = NewClaimVerifier(ClaimConfig{
		Address: cfg.GameAddress,
		Domain: Domain{
			Name:              cfg.DomainName,
			Version:           cfg.DomainVersion,
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.GameAddress,
		},
		ServerSigner:     cfg.ServerSigner,
		Policy:           cfg.SignerPolicy,
		DailyRewardLimit: cfg.DailyRewardLimit,
		Schedule:         cfg.Schedule,
	}, e.sessions, e.gameRoles, e.ledger, e.events)

	e.publish(e.events.Drain())
	return e, nil
}

// exec commits fn and then hands its events to the sinks with the state lock
// released, so a slow sink never holds up other operations or views.
func (e *Engine) exec(op string, fn func(now time.Time) error) error {
	events, seq, err := e.commit(op, fn)
	if err != nil {
		return err
	}

	// Sinks see batches in commit order.
	e.pubMu.Lock()
	for e.published != seq {
		e.pubTurn.Wait()
	}
	e.pubMu.Unlock()

	e.publish(events)

	e.pubMu.Lock()
	e.published++
	e.pubTurn.Broadcast()
	e.pubMu.Unlock()
	return nil
}

func (e *Engine) commit(op string, fn func(now time.Time) error) ([]models.Event, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	e.events.Begin(now)
	if err := fn(now); err != nil {
		e.events.Rollback()
		e.log.WithError(err).WithField("op", op).Debug("Transaction rejected")
		return nil, 0, err
	}
	seq := e.committed
	e.committed++
	return e.events.Drain(), seq, nil
}

func (e *Engine) publish(events []models.Event) {
	for i := range events {
		for _, sink := range e.sinks {
			sink.Publish(&events[i])
		}
	}
}

func (e *Engine) view(fn func(now time.Time)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.clock())
}

func (e *Engine) whenNotPaused() error {
	if e.paused {
		return ErrPaused
	}
	return nil
}

func (e *Engine) roles(c Contract) (*RoleRegistry, error) {
	switch c {
	case ContractGame:
		return e.gameRoles, nil
	case ContractToken:
		return e.tokenRoles, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownContract, c)
}

// Player operations.

func (e *Engine) StartGame(player common.Address, req *models.StartGameRequest) (*models.GameSession, error) {
	var session *models.GameSession
	err := e.exec("start_game", func(now time.Time) error {
		if err := e.whenNotPaused(); err != nil {
			return err
		}
		var err error
		session, err = e.sessions.StartGame(player, req.Width, req.Height, req.Mines, now)
		return err
	})
	return session, err
}

func (e *Engine) CompleteGame(player common.Address, gameID uint64, won bool, score uint64) (*models.GameSession, error) {
	var session *models.GameSession
	err := e.exec("complete_game", func(now time.Time) error {
		if err := e.whenNotPaused(); err != nil {
			return err
		}
		var err error
		session, err = e.sessions.CompleteGame(player, gameID, won, score, now)
		return err
	})
	return session, err
}

func (e *Engine) ClaimReward(player common.Address, gameID uint64) (*models.ClaimReceipt, error) {
	var receipt *models.ClaimReceipt
	err := e.exec("claim_reward", func(now time.Time) error {
		if err := e.whenNotPaused(); err != nil {
			return err
		}
		var err error
		receipt, err = e.claims.ClaimReward(player, gameID, now)
		return err
	})
	if err != nil {
		e.log.WithFields(logrus.Fields{"player": player.Hex(), "game_id": gameID}).WithError(err).Warn("Claim rejected")
	}
	return receipt, err
}

func (e *Engine) ClaimWithSignature(caller common.Address, auth *models.ClaimAuthorization) (*models.ClaimReceipt, error) {
	var receipt *models.ClaimReceipt
	err := e.exec("claim_with_signature", func(now time.Time) error {
		if err := e.whenNotPaused(); err != nil {
			return err
		}
		var err error
		receipt, err = e.claims.ClaimWithSignature(caller, auth, now)
		return err
	})
	if err != nil {
		e.log.WithFields(logrus.Fields{"player": caller.Hex(), "game_id": auth.GameID, "nonce": auth.Nonce}).WithError(err).Warn("Signed claim rejected")
	}
	return receipt, err
}

// ApproveFee lets the game contract pull up to amount fee tokens from owner.
func (e *Engine) ApproveFee(owner common.Address, amount *big.Int) error {
	return e.exec("approve_fee", func(time.Time) error {
		return e.feeToken.Approve(owner, e.gameAddress, amount)
	})
}

func (e *Engine) TransferReward(from, to common.Address, amount *big.Int) error {
	return e.exec("transfer_reward", func(time.Time) error {
		return e.ledger.Transfer(from, to, amount)
	})
}

func (e *Engine) Burn(caller common.Address, amount *big.Int) error {
	return e.exec("burn", func(time.Time) error {
		return e.ledger.Burn(caller, amount)
	})
}

// Mint issues rewards outside the claim flow. The caller must be an
// authorized minter on the token contract.
func (e *Engine) Mint(caller, to common.Address, amount *big.Int) error {
	return e.exec("mint", func(now time.Time) error {
		return e.ledger.Mint(caller, to, amount, now)
	})
}

// Admin operations.

func (e *Engine) BurnFrom(caller, from common.Address, amount *big.Int) error {
	return e.exec("burn_from", func(time.Time) error {
		return e.ledger.BurnFrom(caller, from, amount)
	})
}

func (e *Engine) BatchBurn(caller common.Address, entries []BurnEntry) error {
	return e.exec("batch_burn", func(time.Time) error {
		return e.ledger.BatchBurn(caller, entries)
	})
}

func (e *Engine) IssueFeeTokens(caller, to common.Address, amount *big.Int) error {
	return e.exec("issue_fee_tokens", func(time.Time) error {
		return e.feeToken.Issue(caller, to, amount)
	})
}

func (e *Engine) Pause(caller common.Address) error {
	return e.exec("pause", func(time.Time) error {
		if err := e.gameRoles.requireOwner(caller); err != nil {
			return err
		}
		if e.paused {
			return ErrPaused
		}
		e.paused = true
		e.events.Emit(e.gameAddress, models.EventPaused, common.Address{}, 0, map[string]any{"by": caller})
		return nil
	})
}

func (e *Engine) Unpause(caller common.Address) error {
	return e.exec("unpause", func(time.Time) error {
		if err := e.gameRoles.requireOwner(caller); err != nil {
			return err
		}
		if !e.paused {
			return ErrNotPaused
		}
		e.paused = false
		e.events.Emit(e.gameAddress, models.EventUnpaused, common.Address{}, 0, map[string]any{"by": caller})
		return nil
	})
}

func (e *Engine) GrantRole(contract Contract, caller common.Address, role Role, who common.Address) error {
	return e.exec("grant_role", func(time.Time) error {
		r, err := e.roles(contract)
		if err != nil {
			return err
		}
		return r.Grant(caller, role, who)
	})
}

func (e *Engine) RevokeRole(contract Contract, caller common.Address, role Role, who common.Address) error {
	return e.exec("revoke_role", func(time.Time) error {
		r, err := e.roles(contract)
		if err != nil {
			return err
		}
		return r.Revoke(caller, role, who)
	})
}

func (e *Engine) UpdateDailyRewardLimit(caller common.Address, limit *big.Int) error {
	return e.exec("update_daily_reward_limit", func(time.Time) error {
		return e.claims.UpdateDailyRewardLimit(caller, limit)
	})
}

func (e *Engine) UpdateServerSigner(caller, signer common.Address) error {
	return e.exec("update_server_signer", func(time.Time) error {
		return e.claims.UpdateServerSigner(caller, signer)
	})
}

func (e *Engine) SetSignerPolicy(caller common.Address, policy SignerPolicy) error {
	return e.exec("set_signer_policy", func(time.Time) error {
		return e.claims.SetSignerPolicy(caller, policy)
	})
}

func (e *Engine) SetPrivilegedCaller(caller, addr common.Address) error {
	return e.exec("set_privileged_caller", func(time.Time) error {
		return e.ledger.SetPrivilegedCaller(caller, addr)
	})
}

// WithdrawFees sends collected fees to `to`. A nil amount sweeps everything.
func (e *Engine) WithdrawFees(caller, to common.Address, amount *big.Int) error {
	return e.exec("withdraw_fees", func(time.Time) error {
		return e.sweepFees(caller, to, amount, models.EventFeesWithdrawn)
	})
}

// BurnFees sends collected fees to the dead address.
func (e *Engine) BurnFees(caller common.Address, amount *big.Int) error {
	return e.exec("burn_fees", func(time.Time) error {
		return e.sweepFees(caller, models.DeadAddress, amount, models.EventFeesBurned)
	})
}

func (e *Engine) sweepFees(caller, to common.Address, amount *big.Int, evt models.EventType) error {
	if err := e.gameRoles.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil {
		amount = e.feeToken.BalanceOf(e.gameAddress)
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.feeToken.Transfer(e.gameAddress, to, amount); err != nil {
		return err
	}
	e.events.Emit(e.gameAddress, evt, common.Address{}, 0, map[string]any{
		"to": to, "amount": new(big.Int).Set(amount), "by": caller,
	})
	return nil
}

// Views.

func (e *Engine) Session(gameID uint64) (*models.GameSession, bool) {
	var (
		session *models.GameSession
		ok      bool
	)
	e.view(func(time.Time) { session, ok = e.sessions.Session(gameID) })
	return session, ok
}

func (e *Engine) Stats(player common.Address) models.PlayerStats {
	var stats models.PlayerStats
	e.view(func(time.Time) { stats = e.sessions.Stats(player) })
	return stats
}

func (e *Engine) Balance(addr common.Address) *models.BalanceResponse {
	var resp *models.BalanceResponse
	e.view(func(time.Time) {
		resp = &models.BalanceResponse{
			Address:       addr,
			RewardBalance: e.ledger.BalanceOf(addr),
			FeeBalance:    e.feeToken.BalanceOf(addr),
			FeeAllowance:  e.feeToken.Allowance(addr, e.gameAddress),
		}
	})
	return resp
}

func (e *Engine) QuotaStatus() *models.QuotaStatus {
	var status *models.QuotaStatus
	e.view(func(now time.Time) {
		day := models.DayOf(now.Unix())
		limits := e.ledger.Limits()
		status = &models.QuotaStatus{
			Day:              day,
			DailyRewardUsed:  e.claims.DailyRewardUsed(now),
			DailyRewardLimit: e.claims.DailyRewardLimit(),
			DailyMinted:      e.ledger.MintedOn(day),
			DailyMintLimit:   limits.DailyMint,
			TotalSupply:      e.ledger.TotalSupply(),
			MaxSupply:        limits.MaxSupply,
			ResetAt:          models.NextDayStart(now.Unix()).Unix(),
		}
	})
	return status
}

func (e *Engine) NonceUsed(player common.Address, nonce *big.Int) bool {
	var used bool
	e.view(func(time.Time) { used = e.claims.NonceUsed(player, nonce) })
	return used
}

func (e *Engine) Members(contract Contract, role Role) ([]common.Address, error) {
	var (
		members []common.Address
		err     error
	)
	e.view(func(time.Time) {
		var r *RoleRegistry
		if r, err = e.roles(contract); err == nil {
			members = r.Members(role)
		}
	})
	return members, err
}

func (e *Engine) HasRole(contract Contract, role Role, who common.Address) bool {
	var has bool
	e.view(func(time.Time) {
		if r, err := e.roles(contract); err == nil {
			has = r.Has(role, who)
		}
	})
	return has
}

func (e *Engine) Domain() Domain {
	return e.claims.Domain()
}

func (e *Engine) Paused() bool {
	var paused bool
	e.view(func(time.Time) { paused = e.paused })
	return paused
}

func (e *Engine) SignerPolicy() (SignerPolicy, common.Address) {
	var (
		policy SignerPolicy
		signer common.Address
	)
	e.view(func(time.Time) { policy, signer = e.claims.Policy(), e.claims.ServerSigner() })
	return policy, signer
}

// Tokens describes the reward token and the fee token, in that order.
func (e *Engine) Tokens() []models.TokenInfo {
	return []models.TokenInfo{e.ledger.Info(), e.feeToken.Info()}
}

func (e *Engine) GameFee() *big.Int {
	return e.sessions.Fee()
}

func (e *Engine) GameAddress() common.Address {
	return e.gameAddress
}
