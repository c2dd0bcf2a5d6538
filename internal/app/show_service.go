package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/game"
)

// RoomRepository abstracts where live rooms are registered (in-memory, Redis, etc).
type RoomRepository interface {
	// Create allocates an unused code and registers the session built for it.
	Create(ctx context.Context, build func(code string) *Session) (*Session, error)
	Get(code string) (*Session, bool)
	Delete(code string)
	List() []*Session
}

// QuestionBank answers getQuestions with an ordered list of questions.
type QuestionBank interface {
	Questions(ctx context.Context, typ domain.QuestionType, count int) ([]domain.Question, error)
}

// EventSink receives every batch of events a room emits, after observers.
type EventSink interface {
	Publish(ctx context.Context, room string, events []domain.Event) error
}

// Options tunes the service; zero values fall back to defaults.
type Options struct {
	Settings     game.Settings
	TickInterval time.Duration
	IdleGrace    time.Duration
	ReapInterval time.Duration
	Clock        clockwork.Clock
	Sinks        []EventSink
}

type eventBatch struct {
	room   string
	events []domain.Event
}

const sinkBuffer = 256

// ShowService contains the show use cases. Each method resolves the room
// and applies one intent through the room's session.
type ShowService struct {
	rooms     RoomRepository
	questions QuestionBank
	opts      Options
	batches   chan eventBatch
}

func NewShowService(rooms RoomRepository, questions QuestionBank, opts Options) *ShowService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Settings == (game.Settings{}) {
		opts.Settings = game.DefaultSettings()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.IdleGrace <= 0 {
		opts.IdleGrace = 10 * time.Minute
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = time.Minute
	}
	return &ShowService{
		rooms:     rooms,
		questions: questions,
		opts:      opts,
		batches:   make(chan eventBatch, sinkBuffer),
	}
}

// CreateRoom allocates a room with a fresh code.
func (s *ShowService) CreateRoom(ctx context.Context) (string, error) {
	session, err := s.rooms.Create(ctx, s.newSession)
	if err != nil {
		return "", err
	}
	log.Info().Str("room", session.Code()).Msg("room created")
	return session.Code(), nil
}

func (s *ShowService) newSession(code string) *Session {
	return NewSessionWithOptions(code, SessionOptions{
		Clock:        s.opts.Clock,
		Settings:     s.opts.Settings,
		TickInterval: s.opts.TickInterval,
		OnEvents:     s.enqueue,
	})
}

// Join registers or refreshes sid in the room and subscribes it to the
// room's events. The caller must invoke the returned cancel function when
// the observer goes away.
func (s *ShowService) Join(_ context.Context, code, sid, name string, role domain.Role) (*domain.Player, *Subscription, func(), error) {
	session, err := s.session(code)
	if err != nil {
		return nil, nil, nil, err
	}
	player, sub, err := session.join(sid, name, role)
	if err != nil {
		log.Debug().Err(err).Str("room", session.Code()).Str("sid", sid).Msg("join rejected")
		return nil, nil, nil, err
	}
	log.Debug().Str("room", session.Code()).Str("sid", sid).Str("role", string(role)).Msg("joined")
	cancel := func() { session.leave(sid, sub) }
	return player, sub, cancel, nil
}

// LoadQuestions fetches count questions of typ from the bank and stages
// them as the queue of the next round.
func (s *ShowService) LoadQuestions(ctx context.Context, code, sid string, typ domain.QuestionType, count int) ([]domain.Question, error) {
	session, err := s.session(code)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", domain.ErrInvalidState)
	}
	questions, err := s.questions.Questions(ctx, typ, count)
	if err != nil {
		return nil, fmt.Errorf("load %s questions: %w", typ, err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrEmptyQueue
	}
	err = s.do(session, sid, "getQuestions", func(room *game.Room) error {
		return room.LoadQuestions(sid, typ, questions)
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (s *ShowService) StartRound(_ context.Context, code, sid string, typ domain.QuestionType) (domain.RoundView, error) {
	var view domain.RoundView
	err := s.apply(code, sid, "startRound", func(room *game.Room) (err error) {
		view, err = room.StartRound(sid, typ)
		return err
	})
	return view, err
}

// StartQuestion activates the head of the queue, or the queued question
// with pickID when given.
func (s *ShowService) StartQuestion(_ context.Context, code, sid, pickID string) (domain.Question, error) {
	var q domain.Question
	err := s.apply(code, sid, "startQuestion", func(room *game.Room) error {
		qs, err := room.StartNextQuestion(sid, pickID)
		if err != nil {
			return err
		}
		q = qs.Question
		return nil
	})
	return q, err
}

func (s *ShowService) SubmitAnswer(_ context.Context, code, sid, answer string) error {
	return s.apply(code, sid, "submitAnswer", func(room *game.Room) error {
		return room.SubmitAnswer(sid, answer)
	})
}

func (s *ShowService) Buzz(_ context.Context, code, sid string) error {
	return s.apply(code, sid, "buzz", func(room *game.Room) error {
		return room.Buzz(sid)
	})
}

func (s *ShowService) ResetBuzzer(_ context.Context, code, sid string, opts game.ResetOptions) error {
	return s.apply(code, sid, "resetBuzzer", func(room *game.Room) error {
		return room.ResetBuzzer(sid, opts)
	})
}

func (s *ShowService) RevealNextStep(_ context.Context, code, sid string) (int, error) {
	var idx int
	err := s.apply(code, sid, "revealNextStep", func(room *game.Room) (err error) {
		idx, err = room.RevealNextStep(sid)
		return err
	})
	return idx, err
}

func (s *ShowService) RevealAnswer(_ context.Context, code, sid string) (map[string]int, error) {
	var defaults map[string]int
	err := s.apply(code, sid, "revealAnswer", func(room *game.Room) (err error) {
		defaults, err = room.RevealAnswer(sid)
		return err
	})
	return defaults, err
}

func (s *ShowService) RevealSequenceAnswer(_ context.Context, code, sid string) (map[string]int, error) {
	var defaults map[string]int
	err := s.apply(code, sid, "revealSequenceAnswer", func(room *game.Room) (err error) {
		defaults, err = room.RevealSequenceAnswer(sid)
		return err
	})
	return defaults, err
}

// ConfirmScores commits the revealed question. exhausted reports that the
// round has nothing left to ask.
func (s *ShowService) ConfirmScores(_ context.Context, code, sid string, overrides map[string]int) (applied map[string]int, exhausted bool, err error) {
	err = s.apply(code, sid, "confirmPoints", func(room *game.Room) (err error) {
		applied, exhausted, err = room.ConfirmScores(sid, overrides)
		return err
	})
	return applied, exhausted, err
}

func (s *ShowService) EndRound(_ context.Context, code, sid string) (domain.RoundLeaderboardPayload, error) {
	var board domain.RoundLeaderboardPayload
	err := s.apply(code, sid, "endRound", func(room *game.Room) (err error) {
		board, err = room.EndRound(sid)
		return err
	})
	return board, err
}

func (s *ShowService) ShowFullLeaderboard(_ context.Context, code, sid string) (domain.LeaderboardPayload, error) {
	var board domain.LeaderboardPayload
	err := s.apply(code, sid, "showFullLeaderboard", func(room *game.Room) (err error) {
		board, err = room.ShowFullLeaderboard(sid)
		return err
	})
	return board, err
}

func (s *ShowService) EndShow(_ context.Context, code, sid string) (domain.LeaderboardPayload, error) {
	var board domain.LeaderboardPayload
	err := s.apply(code, sid, "endShow", func(room *game.Room) (err error) {
		board, err = room.EndShow(sid)
		return err
	})
	return board, err
}

// Snapshot returns the room as seen by sid. An unknown sid gets the
// public view.
func (s *ShowService) Snapshot(_ context.Context, code, sid string) (domain.Snapshot, error) {
	session, err := s.session(code)
	if err != nil {
		return domain.Snapshot{}, err
	}
	var snap domain.Snapshot
	session.read(func(room *game.Room) {
		snap = room.Snapshot(sid)
	})
	return snap, nil
}

// Reap destroys rooms nobody is connected to any more and returns how many
// it removed.
func (s *ShowService) Reap(now time.Time) int {
	removed := 0
	for _, session := range s.rooms.List() {
		if !session.expired(now, s.opts.IdleGrace) {
			continue
		}
		session.close()
		s.rooms.Delete(session.Code())
		removed++
		log.Info().Str("room", session.Code()).Msg("room reaped")
	}
	return removed
}

// Run forwards room events to the sinks and reaps idle rooms until ctx is
// done.
func (s *ShowService) Run(ctx context.Context) error {
	reap := s.opts.Clock.NewTicker(s.opts.ReapInterval)
	defer reap.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch := <-s.batches:
			s.dispatch(ctx, batch)
		case now := <-reap.Chan():
			s.Reap(now)
		}
	}
}

func (s *ShowService) dispatch(ctx context.Context, batch eventBatch) {
	for _, sink := range s.opts.Sinks {
		if err := sink.Publish(ctx, batch.room, batch.events); err != nil {
			log.Warn().Err(err).Str("room", batch.room).Msg("event sink publish failed")
		}
	}
}

// enqueue runs under the room lock and must not block.
func (s *ShowService) enqueue(code string, events []domain.Event) {
	if len(s.opts.Sinks) == 0 {
		return
	}
	select {
	case s.batches <- eventBatch{room: code, events: events}:
	default:
		log.Warn().Str("room", code).Int("events", len(events)).Msg("event sink queue full, batch dropped")
	}
}

func (s *ShowService) session(code string) (*Session, error) {
	session, ok := s.rooms.Get(game.NormalizeCode(code))
	if !ok {
		return nil, domain.ErrNotFound
	}
	return session, nil
}

func (s *ShowService) apply(code, sid, intent string, fn func(room *game.Room) error) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	return s.do(session, sid, intent, fn)
}

func (s *ShowService) do(session *Session, sid, intent string, fn func(room *game.Room) error) error {
	err := session.apply(fn)
	if err != nil {
		log.Debug().Err(err).Str("room", session.Code()).Str("sid", sid).Str("intent", intent).Msg("intent rejected")
		return err
	}
	log.Debug().Str("room", session.Code()).Str("sid", sid).Str("intent", intent).Msg("intent applied")
	return nil
}

// IsContention reports rejections that are expected outcomes of racing
// players rather than client mistakes.
func IsContention(err error) bool {
	return errors.Is(err, domain.ErrAlreadyLocked) || errors.Is(err, domain.ErrAlreadySubmitted)
}
