package services

import "minesweeper-rewards/internal/models"

// EventSink receives events after the operation that produced them commits.
type EventSink interface {
	Publish(evt *models.Event)
}
