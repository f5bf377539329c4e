package events

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls further behind than this starts missing events.
const subscriberBuffer = 64

// Service implements EventService with channel fan-out. Publishing is
// non-blocking: the dispatch path must never stall on a slow websocket.
type Service struct {
	subscribers map[int64]chan models.JobEvent
	nextID      int64
	closed      bool
	mu          sync.Mutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[int64]chan models.JobEvent),
		logger:      logger,
	}
}

// Publish fans an event out to every subscriber without blocking
func (s *Service) Publish(event models.JobEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Debug().
				Int64("subscriber", id).
				Int64("job_id", event.JobID).
				Msg("Event dropped for slow subscriber")
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// must be called to release the channel.
func (s *Service) Subscribe() (<-chan models.JobEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan models.JobEvent, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subscribers[id] = ch

	s.logger.Debug().
		Int64("subscriber", id).
		Int("subscriber_count", len(s.subscribers)).
		Msg("Event subscriber registered")

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}

	return ch, cancel
}

// SubscriberCount returns the number of active subscriptions
func (s *Service) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Close shuts down the event service and all subscriber channels
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}

	s.logger.Info().Msg("Event service closed")
	return nil
}
