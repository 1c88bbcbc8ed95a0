package services

import (
	"math/big"
	"time"

	"minesweeper-rewards/internal/models"
)

// RewardSchedule amounts are whole tokens; thresholds are seconds and points.
type RewardSchedule struct {
	Base          int64
	PerfectBonus  int64
	FastBonus     int64
	MediumBonus   int64
	Participation int64
	MaxPerClaim   int64

	PerfectScore uint64
	FastUnder    uint64
	MediumUnder  uint64
}

var DefaultRewardSchedule = RewardSchedule{
	Base:          50,
	PerfectBonus:  100,
	FastBonus:     50,
	MediumBonus:   25,
	Participation: 20,
	MaxPerClaim:   500,
	PerfectScore:  500,
	FastUnder:     60,
	MediumUnder:   180,
}

// Calculate is a pure function of (duration, score).
func (s RewardSchedule) Calculate(duration, score uint64) (*big.Int, error) {
	total := s.Base
	if duration < s.FastUnder || score >= s.PerfectScore {
		total += s.PerfectBonus
	}
	switch {
	case duration < s.FastUnder:
		total += s.FastBonus
	case duration < s.MediumUnder:
		total += s.MediumBonus
	}
	total += s.Participation

	amount := models.Tokens(total)
	if total > s.MaxPerClaim {
		return nil, quotaError(ErrRewardExceedsMaximum, models.Tokens(s.MaxPerClaim), new(big.Int), amount, time.Time{})
	}
	return amount, nil
}

func CalculateReward(duration, score uint64) (*big.Int, error) {
	return DefaultRewardSchedule.Calculate(duration, score)
}
