package services

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"minesweeper-rewards/internal/models"
)

// EventLog buffers the events of the transaction in flight. Nothing leaves the
// buffer unless the transaction commits.
type EventLog struct {
	pending []models.Event
	now     int64
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

// Begin discards anything left over and stamps subsequent events with now.
func (l *EventLog) Begin(now time.Time) {
	l.pending = l.pending[:0]
	l.now = now.Unix()
}

func (l *EventLog) Emit(contract common.Address, typ models.EventType, player common.Address, gameID uint64, data map[string]any) {
	l.pending = append(l.pending, models.Event{
		ID:        models.GenerateEventID(),
		Type:      typ,
		Contract:  contract,
		Player:    player,
		GameID:    gameID,
		Data:      data,
		Timestamp: l.now,
	})
}

// Rollback drops every event of the failed transaction.
func (l *EventLog) Rollback() {
	l.pending = l.pending[:0]
}

// Drain returns the committed events and empties the buffer.
func (l *EventLog) Drain() []models.Event {
	out := make([]models.Event, len(l.pending))
	copy(out, l.pending)
	l.pending = l.pending[:0]
	return out
}

func (l *EventLog) Pending() []models.Event {
	return l.pending
}
