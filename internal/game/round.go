package game

import (
	"fmt"
	"sort"
	"time"

	"trivia-show-service/internal/domain"
)

// Round owns the queue of remaining questions, the active question and
// the per-round ledger.
type Round struct {
	Number int
	Type   domain.QuestionType

	total  int
	queue  []domain.Question
	active *QuestionSession
	ledger map[string]int
}

func newRound(number int, typ domain.QuestionType, questions []domain.Question) *Round {
	return &Round{
		Number: number,
		Type:   typ,
		total:  len(questions),
		queue:  append([]domain.Question(nil), questions...),
		ledger: make(map[string]int),
	}
}

// StartNextQuestion pops the head of the queue, or the queued question with
// pickID when it is non-empty, and makes it active.
func (r *Round) StartNextQuestion(pickID string, now time.Time, timeLimit time.Duration) (*QuestionSession, error) {
	if r.active != nil {
		return nil, fmt.Errorf("%w: a question is already active", domain.ErrInvalidState)
	}
	if len(r.queue) == 0 {
		return nil, domain.ErrEmptyQueue
	}
	idx := 0
	if pickID != "" {
		idx = -1
		for i, q := range r.queue {
			if q.ID == pickID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: question %s is not queued", domain.ErrInvalidState, pickID)
		}
	}
	q := r.queue[idx]
	r.queue = append(r.queue[:idx:idx], r.queue[idx+1:]...)
	r.active = newQuestionSession(q, now, timeLimit)
	return r.active, nil
}

// ApplyScoreDelta adds delta to playerID's ledger line for this round.
func (r *Round) ApplyScoreDelta(playerID string, delta int) {
	r.ledger[playerID] += delta
}

// Active is the active question, nil when none.
func (r *Round) Active() *QuestionSession { return r.active }

func (r *Round) clearActive() { r.active = nil }

// Exhausted reports whether the queue is empty and nothing is active.
func (r *Round) Exhausted() bool { return len(r.queue) == 0 && r.active == nil }

// Remaining is the number of queued questions.
func (r *Round) Remaining() int { return len(r.queue) }

// Ledger returns a copy of the round ledger.
func (r *Round) Ledger() map[string]int {
	out := make(map[string]int, len(r.ledger))
	for k, v := range r.ledger {
		out[k] = v
	}
	return out
}

// View describes the round for observers.
func (r *Round) View() domain.RoundView {
	v := domain.RoundView{Number: r.Number, Type: r.Type, Total: r.total, Remaining: len(r.queue)}
	if r.active != nil {
		v.EndsAt = domain.UnixMillis(r.active.Deadline)
	}
	return v
}

// rankLedger orders points descending, then by name; ties keep join order.
func rankLedger(points map[string]int, names map[string]string, order []string) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, domain.LeaderboardEntry{ID: id, Name: names[id], Points: points[id]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}
