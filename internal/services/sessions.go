package services

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"minesweeper-rewards/internal/models"
)

// FeeToken is the secondary token game-start fees are paid in.
type FeeToken interface {
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
	Transfer(from, to common.Address, amount *big.Int) error
	BalanceOf(addr common.Address) *big.Int
}

// SessionRegistry owns every GameSession. Sessions move
// Created -> Completed(won|lost) -> Claimed and never back.
type SessionRegistry struct {
	address  common.Address
	feeToken FeeToken
	fee      *big.Int
	nextID   uint64
	sessions map[uint64]*models.GameSession
	played   map[common.Address]uint64
	wins     map[common.Address]uint64
	events   *EventLog
}

func NewSessionRegistry(address common.Address, feeToken FeeToken, fee *big.Int, events *EventLog) *SessionRegistry {
	return &SessionRegistry{
		address:  address,
		feeToken: feeToken,
		fee:      new(big.Int).Set(fee),
		sessions: make(map[uint64]*models.GameSession),
		played:   make(map[common.Address]uint64),
		wins:     make(map[common.Address]uint64),
		events:   events,
	}
}

func (r *SessionRegistry) Fee() *big.Int {
	return new(big.Int).Set(r.fee)
}

func validateBoard(width, height, mines int) error {
	if width < models.MinBoardSize || width > models.MaxBoardSize ||
		height < models.MinBoardSize || height > models.MaxBoardSize {
		return fmt.Errorf("%w: %dx%d (each side must be %d-%d)", ErrInvalidDimensions,
			width, height, models.MinBoardSize, models.MaxBoardSize)
	}
	if mines < 1 || mines >= width*height {
		return fmt.Errorf("%w: %d mines on %d cells", ErrInvalidMineCount, mines, width*height)
	}
	return nil
}

// StartGame charges the fee and records a new session. If the fee pull fails
// no session is created.
func (r *SessionRegistry) StartGame(player common.Address, width, height, mines int, now time.Time) (*models.GameSession, error) {
	if player == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if err := validateBoard(width, height, mines); err != nil {
		return nil, err
	}
	if r.fee.Sign() > 0 {
		if err := r.feeToken.TransferFrom(r.address, player, r.address, r.fee); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFeeTransferFailed, err)
		}
	}

	r.nextID++
	session := &models.GameSession{
		ID:        r.nextID,
		Player:    player,
		Width:     width,
		Height:    height,
		MineCount: mines,
		StartTime: now.Unix(),
	}
	r.sessions[session.ID] = session
	r.played[player]++

	r.events.Emit(r.address, models.EventGameStarted, player, session.ID, map[string]any{
		"width": width, "height": height, "mines": mines, "fee": new(big.Int).Set(r.fee),
	})

	out := *session
	return &out, nil
}

func (r *SessionRegistry) CompleteGame(player common.Address, gameID uint64, won bool, score uint64, now time.Time) (*models.GameSession, error) {
	session, err := r.lookup(gameID)
	if err != nil {
		return nil, err
	}
	if session.Player != player {
		return nil, fmt.Errorf("%w: game %d", ErrNotPlayer, gameID)
	}
	if session.Completed {
		return nil, fmt.Errorf("%w: game %d", ErrAlreadyCompleted, gameID)
	}

	duration := now.Unix() - session.StartTime
	if duration < models.MinGameDuration {
		return nil, fmt.Errorf("%w: %ds", ErrTooShort, duration)
	}
	if duration > models.MaxGameDuration {
		return nil, fmt.Errorf("%w: %ds", ErrTooLong, duration)
	}

	session.Completed = true
	session.Won = won
	session.Score = score
	session.EndTime = now.Unix()
	if won {
		r.wins[player]++
	}

	r.events.Emit(r.address, models.EventGameCompleted, player, gameID, map[string]any{
		"won": won, "score": score, "duration": duration,
	})

	out := *session
	return &out, nil
}

func (r *SessionRegistry) lookup(gameID uint64) (*models.GameSession, error) {
	session, ok := r.sessions[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrGameNotFound, gameID)
	}
	return session, nil
}

// Session returns a copy of the stored session.
func (r *SessionRegistry) Session(gameID uint64) (*models.GameSession, bool) {
	session, ok := r.sessions[gameID]
	if !ok {
		return nil, false
	}
	out := *session
	return &out, true
}

func (r *SessionRegistry) Stats(player common.Address) models.PlayerStats {
	return models.PlayerStats{
		Player:      player,
		GamesPlayed: r.played[player],
		Wins:        r.wins[player],
	}
}
