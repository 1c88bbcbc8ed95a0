package models

import "github.com/ethereum/go-ethereum/common"

const (
	MinBoardSize = 5
	MaxBoardSize = 30

	MinGameDuration = 1    // seconds
	MaxGameDuration = 3600 // seconds
)

type GameStatus string

const (
	GameStatusActive  GameStatus = "active"
	GameStatusWon     GameStatus = "won"
	GameStatusLost    GameStatus = "lost"
	GameStatusClaimed GameStatus = "claimed"
)

// GameSession is one played board. Completed and RewardClaimed only ever move
// from false to true.
type GameSession struct {
	ID            uint64         `json:"id"`
	Player        common.Address `json:"player"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	MineCount     int            `json:"mine_count"`
	StartTime     int64          `json:"start_time"`
	EndTime       int64          `json:"end_time"`
	Won           bool           `json:"won"`
	Completed     bool           `json:"completed"`
	RewardClaimed bool           `json:"reward_claimed"`
	Score         uint64         `json:"score"`
}

// Duration is the recorded play time in seconds, zero until completion.
func (s *GameSession) Duration() uint64 {
	if !s.Completed || s.EndTime < s.StartTime {
		return 0
	}
	return uint64(s.EndTime - s.StartTime)
}

func (s *GameSession) Claimable() bool {
	return s.Completed && s.Won && !s.RewardClaimed
}

func (s *GameSession) Status() GameStatus {
	switch {
	case s.RewardClaimed:
		return GameStatusClaimed
	case !s.Completed:
		return GameStatusActive
	case s.Won:
		return GameStatusWon
	default:
		return GameStatusLost
	}
}

type PlayerStats struct {
	Player      common.Address `json:"player"`
	GamesPlayed uint64         `json:"games_played"`
	Wins        uint64         `json:"wins"`
}

type StartGameRequest struct {
	Width  int `json:"width" binding:"required"`
	Height int `json:"height" binding:"required"`
	Mines  int `json:"mines" binding:"required"`
}

type CompleteGameRequest struct {
	Won   bool   `json:"won"`
	Score uint64 `json:"score"`
}
