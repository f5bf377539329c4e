package interfaces

import (
	"github.com/ternarybob/fibreflow/internal/models"
)

// EventService fans job lifecycle events out to subscribers.
// Publishing never blocks; slow subscribers miss events rather than
// stalling the dispatch path.
type EventService interface {
	// Publish an event to all subscribers
	Publish(event models.JobEvent)

	// Subscribe returns a receive channel and a cancel function that
	// must be called to release the subscription
	Subscribe() (<-chan models.JobEvent, func())

	// SubscriberCount returns the number of active subscriptions
	SubscriberCount() int

	// Close shuts down the event service
	Close() error
}
