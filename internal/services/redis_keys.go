package services

import "time"

const (
	KeyUserSession    = "user:%s:session:%s"
	KeyLoginChallenge = "auth:challenge:%s"
	KeyEvent          = "event:%s"
	KeyEventJournal   = "events:journal"
	KeyPlayerEvents   = "player:%s:events"
	KeyPlayerGames    = "player:%s:games"
	KeyRateLimit      = "ratelimit:%s:%s"

	TTLUserSession    = 24 * time.Hour
	TTLLoginChallenge = 5 * time.Minute
	TTLEvent          = 30 * 24 * time.Hour // 30 days

	MaxJournalLength      = 10000
	MaxPlayerHistory      = 100
	DefaultRateLimitClaim = 20 // claims per minute
	DefaultRateLimitGame  = 30 // starts/completions per minute
)
