package services

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"minesweeper-rewards/internal/models"
)

// SignerPolicy decides which recovered addresses may authorize a signed claim.
type SignerPolicy string

const (
	// SignerPolicyServerSigner trusts only the single configured server signer.
	SignerPolicyServerSigner SignerPolicy = "server"
	// SignerPolicyAuthorizedSet trusts any member of the game contract's
	// authorized-signer role.
	SignerPolicyAuthorizedSet SignerPolicy = "set"
)

func ParseSignerPolicy(s string) (SignerPolicy, error) {
	switch p := SignerPolicy(s); p {
	case SignerPolicyServerSigner, SignerPolicyAuthorizedSet:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

type ClaimConfig struct {
	Address          common.Address
	Domain           Domain
	ServerSigner     common.Address
	Policy           SignerPolicy
	DailyRewardLimit *big.Int
	Schedule         RewardSchedule
}

// ClaimVerifier converts completed, won sessions into reward mints. Both claim
// paths share the reward schedule, the daily reward quota and the reentrancy
// guard, and both apply their effects before calling the minter.
type ClaimVerifier struct {
	address      common.Address
	sessions     *SessionRegistry
	roles        *RoleRegistry
	minter       Minter
	schedule     RewardSchedule
	quota        *RewardQuota
	domain       Domain
	serverSigner common.Address
	policy       SignerPolicy
	usedNonces   map[common.Address]map[common.Hash]struct{}
	entered      bool
	events       *EventLog
}

func NewClaimVerifier(cfg ClaimConfig, sessions *SessionRegistry, roles *RoleRegistry, minter Minter, events *EventLog) *ClaimVerifier {
	if cfg.Policy == "" {
		cfg.Policy = SignerPolicyServerSigner
	}
	return &ClaimVerifier{
		address:      cfg.Address,
		sessions:     sessions,
		roles:        roles,
		minter:       minter,
		schedule:     cfg.Schedule,
		quota:        NewRewardQuota(cfg.DailyRewardLimit),
		domain:       cfg.Domain,
		serverSigner: cfg.ServerSigner,
		policy:       cfg.Policy,
		usedNonces:   make(map[common.Address]map[common.Hash]struct{}),
		events:       events,
	}
}

func (v *ClaimVerifier) Domain() Domain {
	return v.domain
}

func (v *ClaimVerifier) ServerSigner() common.Address {
	return v.serverSigner
}

func (v *ClaimVerifier) Policy() SignerPolicy {
	return v.policy
}

func (v *ClaimVerifier) DailyRewardLimit() *big.Int {
	return v.quota.Limit()
}

func (v *ClaimVerifier) DailyRewardUsed(now time.Time) *big.Int {
	return v.quota.Used(now)
}

func (v *ClaimVerifier) enter() error {
	if v.entered {
		return ErrReentrantCall
	}
	v.entered = true
	return nil
}

func (v *ClaimVerifier) exit() {
	v.entered = false
}

// ClaimReward pays out a session using the duration and score recorded at
// completion, so neither can be supplied by the caller.
func (v *ClaimVerifier) ClaimReward(caller common.Address, gameID uint64, now time.Time) (*models.ClaimReceipt, error) {
	if err := v.enter(); err != nil {
		return nil, err
	}
	defer v.exit()

	session, err := v.claimableSession(caller, gameID)
	if err != nil {
		return nil, err
	}
	amount, err := v.schedule.Calculate(session.Duration(), session.Score)
	if err != nil {
		return nil, err
	}

	if err := v.settle(session, amount, nil, now); err != nil {
		return nil, err
	}
	v.events.Emit(v.address, models.EventRewardClaimed, caller, gameID, map[string]any{
		"amount": new(big.Int).Set(amount), "duration": session.Duration(), "score": session.Score,
	})

	return &models.ClaimReceipt{
		GameID:    gameID,
		Player:    caller,
		Amount:    amount,
		Path:      models.ClaimPathDirect,
		ClaimedAt: now.Unix(),
	}, nil
}

// ClaimWithSignature pays out a session using the score and duration an
// authority signed over. The signed values are trusted as given.
func (v *ClaimVerifier) ClaimWithSignature(caller common.Address, auth *models.ClaimAuthorization, now time.Time) (*models.ClaimReceipt, error) {
	if err := v.enter(); err != nil {
		return nil, err
	}
	defer v.exit()

	if caller != auth.Player {
		return nil, fmt.Errorf("%w: caller %s, authorization for %s", ErrNotPlayer, caller.Hex(), auth.Player.Hex())
	}
	if !validNonce(auth.Nonce) {
		return nil, fmt.Errorf("%w: invalid nonce", ErrInvalidSignature)
	}
	if v.NonceUsed(auth.Player, auth.Nonce) {
		return nil, fmt.Errorf("%w: %s", ErrNonceAlreadyUsed, auth.Nonce)
	}
	if now.Unix() > auth.Deadline {
		return nil, fmt.Errorf("%w: deadline %d", ErrSignatureExpired, auth.Deadline)
	}

	session, err := v.claimableSession(auth.Player, auth.GameID)
	if err != nil {
		return nil, err
	}

	signer, err := v.domain.RecoverClaimSigner(auth)
	if err != nil {
		return nil, err
	}
	if !v.trusted(signer) {
		return nil, fmt.Errorf("%w: signer %s not trusted under %s policy", ErrInvalidSignature, signer.Hex(), v.policy)
	}

	amount, err := v.schedule.Calculate(auth.Duration, auth.Score)
	if err != nil {
		return nil, err
	}

	if err := v.settle(session, amount, auth.Nonce, now); err != nil {
		return nil, err
	}
	v.events.Emit(v.address, models.EventRewardClaimedWithSignature, caller, auth.GameID, map[string]any{
		"amount": new(big.Int).Set(amount), "duration": auth.Duration, "score": auth.Score,
		"nonce": new(big.Int).Set(auth.Nonce), "signer": signer,
	})

	return &models.ClaimReceipt{
		GameID:    auth.GameID,
		Player:    caller,
		Amount:    amount,
		Path:      models.ClaimPathSigned,
		ClaimedAt: now.Unix(),
	}, nil
}

func (v *ClaimVerifier) claimableSession(player common.Address, gameID uint64) (*models.GameSession, error) {
	session, err := v.sessions.lookup(gameID)
	if err != nil {
		return nil, err
	}
	if session.Player != player {
		return nil, fmt.Errorf("%w: game %d", ErrNotPlayer, gameID)
	}
	if !session.Completed {
		return nil, fmt.Errorf("%w: game %d", ErrNotCompleted, gameID)
	}
	if !session.Won {
		return nil, fmt.Errorf("%w: game %d", ErrNotWon, gameID)
	}
	if session.RewardClaimed {
		return nil, fmt.Errorf("%w: game %d", ErrAlreadyClaimed, gameID)
	}
	return session, nil
}

func (v *ClaimVerifier) trusted(signer common.Address) bool {
	if signer == (common.Address{}) {
		return false
	}
	switch v.policy {
	case SignerPolicyAuthorizedSet:
		return v.roles.IsAuthorizedSigner(signer)
	default:
		return signer == v.serverSigner
	}
}

// settle applies quota, nonce and claimed-flag effects, then mints. A failed
// mint undoes the effects so the claim leaves no trace.
func (v *ClaimVerifier) settle(session *models.GameSession, amount, nonce *big.Int, now time.Time) error {
	saved := v.quota.snapshot()
	if err := v.applyRewardQuota(amount, now); err != nil {
		v.quota.restore(saved)
		return err
	}
	session.RewardClaimed = true
	if nonce != nil {
		v.markNonce(session.Player, nonce)
	}

	if err := v.minter.Mint(v.address, session.Player, amount, now); err != nil {
		session.RewardClaimed = false
		if nonce != nil {
			delete(v.usedNonces[session.Player], common.BigToHash(nonce))
		}
		v.quota.restore(saved)
		return err
	}
	return nil
}

func (v *ClaimVerifier) applyRewardQuota(amount *big.Int, now time.Time) error {
	return v.quota.Consume(amount, now)
}

func (v *ClaimVerifier) markNonce(player common.Address, nonce *big.Int) {
	if v.usedNonces[player] == nil {
		v.usedNonces[player] = make(map[common.Hash]struct{})
	}
	v.usedNonces[player][common.BigToHash(nonce)] = struct{}{}
}

// validNonce reports whether nonce fits the signed uint256 field.
func validNonce(nonce *big.Int) bool {
	return nonce != nil && nonce.Sign() >= 0 && nonce.BitLen() <= 256
}

func (v *ClaimVerifier) NonceUsed(player common.Address, nonce *big.Int) bool {
	if !validNonce(nonce) {
		return false
	}
	_, ok := v.usedNonces[player][common.BigToHash(nonce)]
	return ok
}

func (v *ClaimVerifier) UpdateDailyRewardLimit(caller common.Address, limit *big.Int) error {
	if err := v.roles.requireOwner(caller); err != nil {
		return err
	}
	if limit == nil || limit.Sign() <= 0 {
		return ErrInvalidLimit
	}
	prev := v.quota.Limit()
	v.quota.SetLimit(limit)
	v.events.Emit(v.address, models.EventDailyRewardLimitUpdated, common.Address{}, 0, map[string]any{
		"previous": prev, "current": new(big.Int).Set(limit),
	})
	return nil
}

func (v *ClaimVerifier) UpdateServerSigner(caller, signer common.Address) error {
	if err := v.roles.requireOwner(caller); err != nil {
		return err
	}
	if signer == (common.Address{}) {
		return ErrZeroAddress
	}
	prev := v.serverSigner
	v.serverSigner = signer
	v.events.Emit(v.address, models.EventServerSignerUpdated, common.Address{}, 0, map[string]any{
		"previous": prev, "current": signer,
	})
	return nil
}

func (v *ClaimVerifier) SetSignerPolicy(caller common.Address, policy SignerPolicy) error {
	if err := v.roles.requireOwner(caller); err != nil {
		return err
	}
	if _, err := ParseSignerPolicy(string(policy)); err != nil {
		return err
	}
	prev := v.policy
	v.policy = policy
	v.events.Emit(v.address, models.EventSignerPolicyUpdated, common.Address{}, 0, map[string]any{
		"previous": prev, "current": policy,
	})
	return nil
}
