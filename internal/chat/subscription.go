package chat

import (
	"errors"
	"sync"

	"sharedtrips/internal/domain/models"

	"github.com/rs/zerolog/log"
)

// ErrBackpressure marks a subscriber whose queue was full when a message
// had to be delivered.
var ErrBackpressure = errors.New("chat: subscriber queue full")

// SendFunc delivers one message to a subscriber. It is only ever called from
// the subscription's own goroutine, one message at a time.
type SendFunc func(msg models.ChatMessage) error

// Subscription is a subscriber's membership in one room. Messages are queued
// in append order and drained by a dedicated goroutine, so a slow SendFunc
// only delays its own subscriber.
type Subscription struct {
	hub          *Hub
	tripID       string
	subscriberID string

	send  SendFunc
	queue chan models.ChatMessage
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	reason error
}

func newSubscription(h *Hub, tripID, subscriberID string, send SendFunc, size int) *Subscription {
	if size <= 0 {
		size = 1
	}
	s := &Subscription{
		hub:          h,
		tripID:       tripID,
		subscriberID: subscriberID,
		send:         send,
		queue:        make(chan models.ChatMessage, size),
		done:         make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Subscription) TripID() string       { return s.tripID }
func (s *Subscription) SubscriberID() string { return s.subscriberID }

// Done is closed once the subscription stops receiving, whether it was
// cancelled, evicted or torn down with the hub.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription ended. It is nil while active and after
// a plain Cancel or Leave.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Cancel leaves the room. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.leave(s.tripID, s.subscriberID, s)
}

// enqueue never blocks. False means the queue is full.
func (s *Subscription) enqueue(msg models.ChatMessage) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

func (s *Subscription) stop(reason error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			if err := s.send(msg); err != nil {
				log.Warn().Err(err).Str("module", "chat").Str("trip", s.tripID).
					Str("subscriber", s.subscriberID).Msg("delivery failed, evicting subscriber")
				s.hub.evict(s, err)
				return
			}
		}
	}
}
