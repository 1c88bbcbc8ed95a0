package services

import (
	"math/big"
	"time"

	"minesweeper-rewards/internal/models"
)

// dayWindowSize buckets cover the current day plus a week of history.
const dayWindowSize = 8

type dayBucket struct {
	day    int64
	amount *big.Int
}

// dayWindow tracks per-day totals in a fixed ring indexed by day number. A
// bucket belonging to an older day is zeroed the first time its slot is
// touched again, so storage never grows.
type dayWindow struct {
	buckets [dayWindowSize]dayBucket
}

func slot(day int64) int {
	return int(((day % dayWindowSize) + dayWindowSize) % dayWindowSize)
}

func (w *dayWindow) used(day int64) *big.Int {
	b := w.buckets[slot(day)]
	if b.amount == nil || b.day != day {
		return new(big.Int)
	}
	return new(big.Int).Set(b.amount)
}

func (w *dayWindow) add(day int64, amount *big.Int) {
	b := &w.buckets[slot(day)]
	if b.amount == nil || b.day != day {
		b.day = day
		b.amount = new(big.Int)
	}
	b.amount = new(big.Int).Add(b.amount, amount)
}

// RewardQuota is the game contract's rolling daily payout budget. It rolls
// over lazily when a later day is observed.
type RewardQuota struct {
	limit        *big.Int
	used         *big.Int
	lastResetDay int64
}

type rewardQuotaState struct {
	used         *big.Int
	lastResetDay int64
}

func NewRewardQuota(limit *big.Int) *RewardQuota {
	return &RewardQuota{
		limit: new(big.Int).Set(limit),
		used:  new(big.Int),
	}
}

func (q *RewardQuota) Limit() *big.Int {
	return new(big.Int).Set(q.limit)
}

func (q *RewardQuota) SetLimit(limit *big.Int) {
	q.limit = new(big.Int).Set(limit)
}

// Used reports today's consumption without rolling stored state.
func (q *RewardQuota) Used(now time.Time) *big.Int {
	if models.DayOf(now.Unix()) > q.lastResetDay {
		return new(big.Int)
	}
	return new(big.Int).Set(q.used)
}

func (q *RewardQuota) roll(now time.Time) {
	if day := models.DayOf(now.Unix()); day > q.lastResetDay {
		q.used = new(big.Int)
		q.lastResetDay = day
	}
}

// Consume adds amount to today's usage, or rejects it leaving state unchanged
// apart from the day rollover.
func (q *RewardQuota) Consume(amount *big.Int, now time.Time) error {
	q.roll(now)
	next := new(big.Int).Add(q.used, amount)
	if next.Cmp(q.limit) > 0 {
		return quotaError(ErrDailyRewardLimitExceeded, q.limit, q.used, amount, models.NextDayStart(now.Unix()))
	}
	q.used = next
	return nil
}

func (q *RewardQuota) snapshot() rewardQuotaState {
	return rewardQuotaState{used: q.used, lastResetDay: q.lastResetDay}
}

func (q *RewardQuota) restore(s rewardQuotaState) {
	q.used = s.used
	q.lastResetDay = s.lastResetDay
}
