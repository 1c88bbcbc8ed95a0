package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"minesweeper-rewards/internal/config"
	"minesweeper-rewards/internal/models"
)

const (
	journalBuffer  = 1024
	journalTimeout = 2 * time.Second
)

type RedisService struct {
	client  *redis.Client
	ctx     context.Context
	log     *logrus.Entry
	journal chan *models.Event
	done    chan struct{}
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	service := &RedisService{
		client:  client,
		ctx:     ctx,
		log:     logrus.WithField("component", "redis"),
		journal: make(chan *models.Event, journalBuffer),
		done:    make(chan struct{}),
	}
	go service.runJournal()

	return service, nil
}

// Close flushes queued events before closing the client. Publish must not be
// called after Close.
func (s *RedisService) Close() error {
	close(s.journal)
	<-s.done
	return s.client.Close()
}

func addrKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func (s *RedisService) StoreUserSession(session *models.UserSession, expiry time.Duration) error {
	key := fmt.Sprintf(KeyUserSession, addrKey(session.Address), session.SessionID)

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return s.client.Set(s.ctx, key, data, expiry).Err()
}

func (s *RedisService) GetUserSession(addr common.Address, sessionID string) (*models.UserSession, error) {
	key := fmt.Sprintf(KeyUserSession, addrKey(addr), sessionID)

	data, err := s.client.Get(s.ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var session models.UserSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}

	session.LastAccessed = time.Now()
	updatedData, _ := json.Marshal(session)
	s.client.Set(s.ctx, key, updatedData, redis.KeepTTL)

	return &session, nil
}

func (s *RedisService) DeleteUserSession(addr common.Address, sessionID string) error {
	key := fmt.Sprintf(KeyUserSession, addrKey(addr), sessionID)
	return s.client.Del(s.ctx, key).Err()
}

// StoreLoginChallenge replaces any outstanding challenge for the address.
func (s *RedisService) StoreLoginChallenge(ch *models.LoginChallenge) error {
	key := fmt.Sprintf(KeyLoginChallenge, addrKey(ch.Address))

	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %v", err)
	}

	ttl := time.Until(ch.ExpiresAt)
	if ttl <= 0 {
		ttl = TTLLoginChallenge
	}
	return s.client.Set(s.ctx, key, data, ttl).Err()
}

// ConsumeLoginChallenge returns the outstanding challenge and deletes it, so a
// signed challenge can be redeemed at most once.
func (s *RedisService) ConsumeLoginChallenge(addr common.Address) (*models.LoginChallenge, error) {
	key := fmt.Sprintf(KeyLoginChallenge, addrKey(addr))

	data, err := s.client.GetDel(s.ctx, key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("no pending challenge for %s", addr.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %v", err)
	}

	var ch models.LoginChallenge
	if err := json.Unmarshal([]byte(data), &ch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %v", err)
	}
	return &ch, nil
}

// RecordEvent appends a committed event to the global journal and indexes it
// under every player it concerns.
func (s *RedisService) RecordEvent(ctx context.Context, evt *models.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(KeyEvent, evt.ID), data, TTLEvent)
	pipe.LPush(ctx, KeyEventJournal, evt.ID)
	pipe.LTrim(ctx, KeyEventJournal, 0, MaxJournalLength-1)

	score := float64(evt.Timestamp)
	for _, player := range eventPlayers(evt) {
		eventsKey := fmt.Sprintf(KeyPlayerEvents, addrKey(player))
		pipe.ZAdd(ctx, eventsKey, redis.Z{Score: score, Member: evt.ID})
		pipe.ZRemRangeByRank(ctx, eventsKey, 0, -(MaxPlayerHistory + 1))

		if evt.Type == models.EventGameStarted && player == evt.Player {
			gamesKey := fmt.Sprintf(KeyPlayerGames, addrKey(player))
			pipe.ZAdd(ctx, gamesKey, redis.Z{Score: score, Member: evt.GameID})
			pipe.ZRemRangeByRank(ctx, gamesKey, 0, -(MaxPlayerHistory + 1))
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record event: %v", err)
	}
	return nil
}

func eventPlayers(evt *models.Event) []common.Address {
	var out []common.Address
	seen := make(map[common.Address]bool)
	add := func(a common.Address) {
		if a != (common.Address{}) && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	add(evt.Player)
	for _, key := range []string{"from", "to", "account"} {
		if a, ok := evt.Data[key].(common.Address); ok {
			add(a)
		}
	}
	return out
}

// Publish implements EventSink. It only queues the event; the journal worker
// writes it, so a slow or unreachable Redis never stalls the engine. Journal
// failures are logged and never fail the operation that produced the event.
func (s *RedisService) Publish(evt *models.Event) {
	select {
	case s.journal <- evt:
	default:
		s.log.WithFields(logrus.Fields{
			"event_id": evt.ID,
			"type":     evt.Type,
		}).Warn("Journal queue full, dropping event")
	}
}

func (s *RedisService) runJournal() {
	defer close(s.done)
	for evt := range s.journal {
		ctx, cancel := context.WithTimeout(s.ctx, journalTimeout)
		if err := s.RecordEvent(ctx, evt); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"event_id": evt.ID,
				"type":     evt.Type,
			}).Error("Failed to journal event")
		}
		cancel()
	}
}

func (s *RedisService) GetPlayerEvents(addr common.Address, limit int64) ([]*models.Event, error) {
	if limit <= 0 || limit > MaxPlayerHistory {
		limit = 50
	}

	ids, err := s.client.ZRevRange(s.ctx, fmt.Sprintf(KeyPlayerEvents, addrKey(addr)), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get event IDs: %v", err)
	}
	return s.bulkGetEvents(ids)
}

func (s *RedisService) GetRecentEvents(limit int64) ([]*models.Event, error) {
	if limit <= 0 || limit > MaxPlayerHistory {
		limit = 50
	}

	ids, err := s.client.LRange(s.ctx, KeyEventJournal, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %v", err)
	}
	return s.bulkGetEvents(ids)
}

func (s *RedisService) GetPlayerGameIDs(addr common.Address, limit int64) ([]uint64, error) {
	if limit <= 0 || limit > MaxPlayerHistory {
		limit = 50
	}

	members, err := s.client.ZRevRange(s.ctx, fmt.Sprintf(KeyPlayerGames, addrKey(addr)), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get game IDs: %v", err)
	}

	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *RedisService) bulkGetEvents(ids []string) ([]*models.Event, error) {
	if len(ids) == 0 {
		return []*models.Event{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(s.ctx, fmt.Sprintf(KeyEvent, id))
	}

	_, err := pipe.Exec(s.ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pipeline execution failed: %v", err)
	}

	events := make([]*models.Event, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}

		var evt models.Event
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			continue
		}
		events = append(events, &evt)
	}
	return events, nil
}

// INCR and PEXPIRE run together so a crash between them cannot leave a counter
// without a TTL.
var rateLimitScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return count
`)

func (s *RedisService) CheckRateLimit(subject, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, subject, action)

	count, err := rateLimitScript.Run(s.ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(subject, action string) error {
	return s.client.Del(s.ctx, fmt.Sprintf(KeyRateLimit, subject, action)).Err()
}
