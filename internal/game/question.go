package game

import (
	"fmt"
	"time"

	"trivia-show-service/internal/domain"
)

// Submission is a recorded answer.
type Submission struct {
	PlayerID   string
	Value      string
	ReceivedAt time.Time
}

// QuestionSession is the active question with its reveal and submission
// state. Only the visible-step cursor and the reveal flag change after start.
type QuestionSession struct {
	Question  domain.Question
	StartedAt time.Time
	Deadline  time.Time

	submissions map[string]Submission
	order       []string
	visible     int
	revealed    bool
	allAnswered bool
	stopped     bool
	buzzer      *Arbiter
	defaults    map[string]int
}

func newQuestionSession(q domain.Question, now time.Time, timeLimit time.Duration) *QuestionSession {
	s := &QuestionSession{
		Question:    q,
		StartedAt:   now,
		submissions: make(map[string]Submission),
		visible:     q.InitialVisible,
	}
	if q.Type == domain.QuestionMC {
		if q.TimeLimit > 0 {
			timeLimit = time.Duration(q.TimeLimit) * time.Second
		}
		if timeLimit > 0 {
			s.Deadline = now.Add(timeLimit)
		}
	}
	if q.Type.BuzzerDriven() {
		s.buzzer = NewArbiter()
	}
	return s
}

// SubmitAnswer records the first answer of playerID. roster is the set of
// player ids expected to answer; the returned flag is true exactly when this
// submission completes it.
func (s *QuestionSession) SubmitAnswer(playerID, value string, now time.Time, roster []string) (bool, error) {
	if s.Question.Type != domain.QuestionMC {
		return false, fmt.Errorf("%w: %s question takes no submissions", domain.ErrInvalidState, s.Question.Type)
	}
	if s.revealed {
		return false, fmt.Errorf("%w: answer already revealed", domain.ErrInvalidState)
	}
	if _, ok := s.submissions[playerID]; ok {
		return false, domain.ErrAlreadySubmitted
	}
	if s.deadlinePassed(now) {
		return false, fmt.Errorf("%w: time is up", domain.ErrInvalidState)
	}
	if !s.Question.HasChoice(value) {
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidAnswer, value)
	}

	s.submissions[playerID] = Submission{PlayerID: playerID, Value: value, ReceivedAt: now}
	s.order = append(s.order, playerID)

	if s.allAnswered || len(roster) == 0 {
		return false, nil
	}
	for _, id := range roster {
		if _, ok := s.submissions[id]; !ok {
			return false, nil
		}
	}
	s.allAnswered = true
	s.stopped = true
	return true, nil
}

// Submission returns the recorded answer for playerID.
func (s *QuestionSession) Submission(playerID string) (Submission, bool) {
	sub, ok := s.submissions[playerID]
	return sub, ok
}

// Submitted reports whether playerID has answered.
func (s *QuestionSession) Submitted(playerID string) bool {
	_, ok := s.submissions[playerID]
	return ok
}

// RevealNextStep advances the visible-step cursor and returns the index of
// the newly visible step.
func (s *QuestionSession) RevealNextStep() (int, error) {
	if !s.Question.Type.Progressive() {
		return 0, fmt.Errorf("%w: %s question has no steps", domain.ErrInvalidState, s.Question.Type)
	}
	if s.revealed {
		return 0, fmt.Errorf("%w: answer already revealed", domain.ErrInvalidState)
	}
	if s.visible >= len(s.Question.Steps) {
		return 0, domain.ErrNoMoreSteps
	}
	s.visible++
	return s.visible - 1, nil
}

// VisibleSteps returns the steps revealed so far.
func (s *QuestionSession) VisibleSteps() []domain.Step {
	if !s.Question.Type.Progressive() {
		return nil
	}
	return append([]domain.Step{}, s.Question.Steps[:s.visible]...)
}

// Visible is the visible-step cursor.
func (s *QuestionSession) Visible() int { return s.visible }

// CanReveal reports whether a reveal is legal at now.
func (s *QuestionSession) CanReveal(now time.Time) bool {
	switch {
	case s.buzzer != nil && s.buzzer.HasBuzzed():
		return true
	case s.deadlinePassed(now):
		return true
	case s.allAnswered:
		return true
	}
	return false
}

// RevealAnswer marks the question revealed and computes default deltas for
// roster. It does not mutate anything when no reveal condition holds.
func (s *QuestionSession) RevealAnswer(now time.Time, roster []string, defaultPoints int) (map[string]int, error) {
	if s.revealed {
		return nil, fmt.Errorf("%w: answer already revealed", domain.ErrInvalidState)
	}
	if !s.CanReveal(now) {
		return nil, domain.ErrRevealTooEarly
	}
	s.forceReveal(roster, defaultPoints)
	return s.Defaults(), nil
}

// RevealSequenceAnswer also allows the reveal once every step is visible.
func (s *QuestionSession) RevealSequenceAnswer(now time.Time, roster []string, defaultPoints int) (map[string]int, error) {
	if !s.Question.Type.Progressive() {
		return nil, fmt.Errorf("%w: not a sequence or link question", domain.ErrInvalidState)
	}
	if s.revealed {
		return nil, fmt.Errorf("%w: answer already revealed", domain.ErrInvalidState)
	}
	if !s.CanReveal(now) && s.visible < len(s.Question.Steps) {
		return nil, domain.ErrRevealTooEarly
	}
	s.forceReveal(roster, defaultPoints)
	return s.Defaults(), nil
}

func (s *QuestionSession) forceReveal(roster []string, defaultPoints int) {
	s.defaults = DefaultScores(s.Question, s.submissions, roster, defaultPoints)
	s.revealed = true
	s.stopped = true
	if s.Question.Type.Progressive() {
		s.visible = len(s.Question.Steps)
	}
}

// Revealed reports whether the answer has been revealed.
func (s *QuestionSession) Revealed() bool { return s.revealed }

// AllAnswered reports whether every expected player has submitted.
func (s *QuestionSession) AllAnswered() bool { return s.allAnswered }

// Stopped reports whether the question clock is frozen.
func (s *QuestionSession) Stopped() bool { return s.stopped }

// Defaults returns a copy of the computed default deltas.
func (s *QuestionSession) Defaults() map[string]int {
	out := make(map[string]int, len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	return out
}

// Buzzer returns the arbiter of a buzzer-driven question, nil otherwise.
func (s *QuestionSession) Buzzer() *Arbiter { return s.buzzer }

// Remaining is the authoritative clock value at now.
func (s *QuestionSession) Remaining(now time.Time) int {
	return Remaining(s.Deadline, now)
}

func (s *QuestionSession) deadlinePassed(now time.Time) bool {
	return !s.Deadline.IsZero() && !now.Before(s.Deadline)
}

// DefaultScores is the default scoring policy: a flat award for a correct
// multiple-choice answer, zero for everything else. Buzzer, sequence and
// link questions are scored manually by the host.
func DefaultScores(q domain.Question, subs map[string]Submission, roster []string, defaultPoints int) map[string]int {
	points := q.Points
	if points == 0 {
		points = defaultPoints
	}
	out := make(map[string]int, len(roster))
	for _, id := range roster {
		out[id] = 0
		if q.Type != domain.QuestionMC {
			continue
		}
		if sub, ok := subs[id]; ok && sub.Value == q.Answer {
			out[id] = points
		}
	}
	return out
}
