package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/game"
)

// Session is the single authority of one room. Every intent runs under its
// lock, so intents on one room are applied in arrival order with no
// interleaving, while different rooms proceed in parallel.
type Session struct {
	code         string
	clock        clockwork.Clock
	tickInterval time.Duration
	onEvents     func(code string, events []domain.Event)

	mu          sync.Mutex
	room        *game.Room
	subscribers map[*Subscription]struct{}
	idleSince   time.Time
	ticking     *game.QuestionSession
	stopTick    chan struct{}
}

// SessionOptions configures new sessions.
type SessionOptions struct {
	Clock        clockwork.Clock
	Settings     game.Settings
	TickInterval time.Duration
	OnEvents     func(code string, events []domain.Event)
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(code string) *Session {
	return NewSessionWithOptions(code, SessionOptions{})
}

// NewSessionWithOptions builds a session around a fresh lobby room.
func NewSessionWithOptions(code string, opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Settings == (game.Settings{}) {
		opts.Settings = game.DefaultSettings()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	room := game.NewRoom(code, opts.Clock, opts.Settings)
	return &Session{
		code:         room.Code,
		clock:        opts.Clock,
		tickInterval: opts.TickInterval,
		onEvents:     opts.OnEvents,
		room:         room,
		subscribers:  make(map[*Subscription]struct{}),
		idleSince:    opts.Clock.Now(),
	}
}

// Code is the normalized room code.
func (s *Session) Code() string { return s.code }

// apply runs one intent against the room. Events are only published when
// the intent succeeds; a rejected intent leaves nothing queued.
func (s *Session) apply(fn func(room *game.Room) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn(s.room)
	events := s.room.Drain()
	if err != nil {
		return err
	}
	s.publishLocked(events)
	s.syncTickerLocked()
	return nil
}

// join subscribes the observer before applying the join so the targeted
// state snapshot reaches it.
func (s *Session) join(sid, name string, role domain.Role) (*domain.Player, *Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.subscribeLocked(sid, role)
	p, err := s.room.Join(sid, name, role)
	events := s.room.Drain()
	if err != nil {
		s.unsubscribeLocked(sub)
		return nil, nil, err
	}
	player := *p
	s.idleSince = time.Time{}
	s.publishLocked(events)
	return &player, sub, nil
}

func (s *Session) leave(sid string, sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub != nil {
		s.unsubscribeLocked(sub)
	}
	for other := range s.subscribers {
		if other.SessionID == sid {
			// another connection still serves this session
			return
		}
	}
	s.room.Disconnect(sid)
	s.publishLocked(s.room.Drain())
	if !s.room.Connected() && s.idleSince.IsZero() {
		s.idleSince = s.clock.Now()
	}
}

// read runs fn under the lock without publishing.
func (s *Session) read(fn func(room *game.Room)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.room)
}

// expired reports whether the room should be destroyed at now.
func (s *Session) expired(now time.Time, grace time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscribers) > 0 || s.room.Connected() {
		return false
	}
	if s.room.Phase() == domain.PhaseFinished {
		return true
	}
	return !s.idleSince.IsZero() && now.Sub(s.idleSince) >= grace
}

// close stops the ticker and ends every subscription.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTickerLocked()
	for sub := range s.subscribers {
		s.unsubscribeLocked(sub)
	}
}

// syncTickerLocked keeps exactly one ticker running for the active timed
// question and none otherwise.
func (s *Session) syncTickerLocked() {
	var active *game.QuestionSession
	if round := s.room.Round(); round != nil {
		active = round.Active()
	}
	if active == nil || active.Deadline.IsZero() || active.Stopped() {
		s.stopTickerLocked()
		return
	}
	if s.ticking == active {
		return
	}
	s.stopTickerLocked()
	s.ticking = active
	s.stopTick = make(chan struct{})
	go s.runTicker(active, s.stopTick)
}

func (s *Session) stopTickerLocked() {
	if s.stopTick != nil {
		close(s.stopTick)
	}
	s.stopTick = nil
	s.ticking = nil
}

func (s *Session) runTicker(qs *game.QuestionSession, stop <-chan struct{}) {
	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if !s.tick(qs) {
				return
			}
		}
	}
}

func (s *Session) tick(qs *game.QuestionSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticking != qs {
		return false
	}
	remaining, more := s.room.Tick()
	s.publishLocked(s.room.Drain())
	if !more {
		log.Debug().Str("room", s.code).Str("question", qs.Question.ID).Msg("countdown stopped")
		s.stopTickerLocked()
		return false
	}
	log.Debug().Str("room", s.code).Int("remaining", remaining).Msg("tick")
	return true
}
