package app

import (
	"github.com/rs/zerolog/log"

	"trivia-show-service/internal/domain"
)

const subscriberBuffer = 64

// Subscription is one observer's event stream.
type Subscription struct {
	SessionID string
	Role      domain.Role
	ch        chan domain.Event
}

// Events is closed when the subscription is cancelled.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

func newSubscription(sid string, role domain.Role) *Subscription {
	return &Subscription{SessionID: sid, Role: role, ch: make(chan domain.Event, subscriberBuffer)}
}

// publishLocked fans events out in order. Callers hold the session lock, so
// every observer sees the same total order of events.
func (s *Session) publishLocked(events []domain.Event) {
	for _, ev := range events {
		for sub := range s.subscribers {
			if !ev.DeliverTo(sub.SessionID, sub.Role) {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				// Slow observer: drop its oldest event rather than block the room.
				// It recovers the full state by re-joining.
				select {
				case dropped := <-sub.ch:
					log.Warn().
						Str("room", s.code).
						Str("sid", sub.SessionID).
						Str("dropped", string(dropped.Type)).
						Msg("subscriber buffer full")
				default:
				}
				sub.ch <- ev
			}
		}
	}
	if s.onEvents != nil && len(events) > 0 {
		s.onEvents(s.code, events)
	}
}

func (s *Session) subscribeLocked(sid string, role domain.Role) *Subscription {
	sub := newSubscription(sid, role)
	s.subscribers[sub] = struct{}{}
	return sub
}

func (s *Session) unsubscribeLocked(sub *Subscription) {
	if _, ok := s.subscribers[sub]; ok {
		delete(s.subscribers, sub)
		close(sub.ch)
	}
}
