package game

import (
	"time"

	"trivia-show-service/internal/domain"
)

// View is an observer's mirror of the room, rebuilt purely from the events
// it receives. Host, player and presenter displays all use it.
type View struct {
	Role      domain.Role
	SessionID string

	Phase        domain.Phase
	Players      []domain.PlayerView
	Round        *domain.RoundView
	Question     *domain.Question
	VisibleSteps []domain.Step
	Clock        Countdown

	AllAnswered bool
	Submitted   map[string]string
	Buzzed      *domain.BuzzedPayload
	BuzzLocked  bool
	LockedOut   map[string]bool

	Revealed       bool
	Answer         string
	Title          string
	ProposedScores map[string]int

	RoundLeaderboard *domain.RoundLeaderboardPayload
	Leaderboard      *domain.LeaderboardPayload
}

// NewView returns an empty mirror for the given observer.
func NewView(sid string, role domain.Role) *View {
	return &View{
		Role:      role,
		SessionID: sid,
		Phase:     domain.PhaseLobby,
		Submitted: make(map[string]string),
		LockedOut: make(map[string]bool),
	}
}

// Remaining is the countdown to display at now and whether it applies.
func (v *View) Remaining(now time.Time) (int, bool) {
	return v.Clock.Value(now)
}

// Apply folds one event into the view. now is the observer's own clock.
func (v *View) Apply(ev domain.Event, now time.Time) {
	switch p := ev.Payload.(type) {
	case []domain.PlayerView:
		v.Players = p
	case domain.RoundStartedPayload:
		round := p.Round
		v.Round = &round
		v.Phase = domain.PhaseRoundActive
		v.RoundLeaderboard = nil
		v.Leaderboard = nil
		v.clearQuestion()
	case domain.QuestionStartedPayload:
		v.startQuestion(p.Question, domain.FromUnixMillis(p.EndsAt), nil)
	case domain.SequenceStartedPayload:
		v.startQuestion(p.Question, time.Time{}, p.VisibleSteps)
	case domain.SequenceStepRevealedPayload:
		v.VisibleSteps = p.VisibleSteps
	case domain.TickPayload:
		v.Clock.Nudge(p.Remaining, now)
	case domain.PlayerAnsweredPayload:
		v.Submitted[p.ID] = p.Name
	case domain.BuzzedPayload:
		buzz := p
		v.Buzzed = &buzz
		v.BuzzLocked = p.ID != v.SessionID
		v.Clock.FreezeNow(now)
	case domain.BuzzerLockedOutPayload:
		v.LockedOut[p.ID] = true
		if p.ID == v.SessionID {
			v.BuzzLocked = true
		}
	case domain.BuzzerStatusPayload:
		v.BuzzLocked = p.Disabled
	case domain.AnswerRevealedPayload:
		v.Revealed = true
		v.Answer = p.Answer
		v.ProposedScores = p.DefaultQuestionScores
		v.Clock.FreezeNow(now)
	case domain.SequenceAnswerRevealedPayload:
		v.Revealed = true
		v.Answer = p.Answer
		v.Title = p.Title
		v.VisibleSteps = p.Steps
		v.ProposedScores = p.DefaultQuestionScores
	case domain.RoundLeaderboardPayload:
		board := p
		v.RoundLeaderboard = &board
		v.Players = p.Players
		v.Phase = domain.PhaseBetweenRounds
		v.Round = nil
		v.clearQuestion()
	case domain.LeaderboardPayload:
		board := p
		v.Leaderboard = &board
		v.Players = p.Players
		if ev.Type == domain.EventFinalScoreboard {
			v.Phase = domain.PhaseFinished
			v.Round = nil
			v.clearQuestion()
		}
	case domain.Snapshot:
		v.restore(p, now)
	case domain.EmptyPayload:
		switch ev.Type {
		case domain.EventAllAnswered:
			v.AllAnswered = true
			v.Clock.Freeze(0)
		case domain.EventBuzzerReset:
			v.Buzzed = nil
			v.BuzzLocked = false
			v.LockedOut = make(map[string]bool)
		case domain.EventRoundEnded:
			v.clearQuestion()
		}
	}
}

func (v *View) startQuestion(q domain.Question, deadline time.Time, steps []domain.Step) {
	v.clearQuestion()
	question := q
	v.Question = &question
	v.VisibleSteps = steps
	v.Clock.Start(deadline)
}

func (v *View) clearQuestion() {
	v.Question = nil
	v.VisibleSteps = nil
	v.Clock.Start(time.Time{})
	v.AllAnswered = false
	v.Submitted = make(map[string]string)
	v.Buzzed = nil
	v.BuzzLocked = false
	v.LockedOut = make(map[string]bool)
	v.Revealed = false
	v.Answer = ""
	v.Title = ""
	v.ProposedScores = nil
}

func (v *View) restore(s domain.Snapshot, now time.Time) {
	v.clearQuestion()
	v.Phase = s.Phase
	v.Players = s.Players
	v.Round = s.Round
	v.RoundLeaderboard = s.LastRound
	v.Leaderboard = s.Final
	if s.Question == nil {
		return
	}
	q := *s.Question
	v.Question = &q
	v.VisibleSteps = s.VisibleSteps
	v.Clock.Start(domain.FromUnixMillis(s.EndsAt))
	if s.Frozen {
		v.Clock.Freeze(s.Remaining)
	} else if s.EndsAt != 0 {
		v.Clock.Nudge(s.Remaining, now)
	}
	v.AllAnswered = s.AllAnswered
	for _, p := range s.Players {
		if p.Submitted {
			v.Submitted[p.ID] = p.Name
		}
		if p.ID == v.SessionID {
			v.BuzzLocked = p.LockedOut
		}
	}
	if s.Buzzed != nil {
		b := *s.Buzzed
		v.Buzzed = &b
	}
	for _, id := range s.LockedOut {
		v.LockedOut[id] = true
	}
	v.Revealed = s.Revealed
	v.Answer = s.Answer
	v.Title = s.Title
	v.ProposedScores = s.DefaultScores
}
