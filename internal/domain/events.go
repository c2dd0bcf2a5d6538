package domain

import (
	"encoding/json"
	"fmt"
)

// EventType names an authority -> observer event.
type EventType string

const (
	EventPlayers                EventType = "players"
	EventRoundStarted           EventType = "roundStarted"
	EventQuestionStarted        EventType = "questionStarted"
	EventSequenceStarted        EventType = "sequenceStarted"
	EventSequenceStepRevealed   EventType = "sequenceStepRevealed"
	EventTick                   EventType = "tick"
	EventAllAnswered            EventType = "allAnswered"
	EventPlayerAnswered         EventType = "playerAnswered"
	EventBuzzed                 EventType = "buzzed"
	EventBuzzerReset            EventType = "buzzerReset"
	EventBuzzerLockedOut        EventType = "buzzerLockedOut"
	EventBuzzerStatus           EventType = "buzzerStatus"
	EventAnswerRevealed         EventType = "answerRevealed"
	EventSequenceAnswerRevealed EventType = "sequenceAnswerRevealed"
	EventScoreUpdate            EventType = "scoreUpdate"
	EventRoundEnded             EventType = "roundEnded"
	EventRoundLeaderboard       EventType = "roundLeaderboard"
	EventFullLeaderboard        EventType = "fullLeaderboard"
	EventFinalScoreboard        EventType = "finalScoreboard"
	EventState                  EventType = "state"
)

// Event is one state change pushed to observers. To targets a single
// session; Roles restricts delivery to the listed roles. Both empty means
// broadcast to every observer of the room.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
	To      string    `json:"-"`
	Roles   []Role    `json:"-"`
}

// DeliverTo reports whether the observer (sid, role) should receive e.
func (e Event) DeliverTo(sid string, role Role) bool {
	if e.To != "" {
		return e.To == sid
	}
	if len(e.Roles) == 0 {
		return true
	}
	for _, r := range e.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type RoundStartedPayload struct {
	Round RoundView `json:"round"`
}

type QuestionStartedPayload struct {
	Question Question `json:"question"`
	EndsAt   int64    `json:"endsAt,omitempty"`
}

type SequenceStartedPayload struct {
	Question     Question `json:"question"`
	VisibleSteps []Step   `json:"visibleSteps"`
}

type SequenceStepRevealedPayload struct {
	Index        int    `json:"index"`
	Step         Step   `json:"step"`
	VisibleSteps []Step `json:"visibleSteps"`
}

type TickPayload struct {
	Remaining int `json:"remaining"`
}

type EmptyPayload struct{}

type PlayerAnsweredPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type BuzzedPayload struct {
	ID   string `json:"sid"`
	Name string `json:"name"`
}

type BuzzerLockedOutPayload struct {
	ID string `json:"sid"`
}

type BuzzerStatusPayload struct {
	Disabled bool `json:"disabled"`
}

type AnswerRevealedPayload struct {
	Answer                string         `json:"answer"`
	DefaultQuestionScores map[string]int `json:"defaultQuestionScores"`
}

type SequenceAnswerRevealedPayload struct {
	Title                 string         `json:"title"`
	Answer                string         `json:"answer"`
	Steps                 []Step         `json:"steps"`
	DefaultQuestionScores map[string]int `json:"defaultQuestionScores"`
}

type RoundLeaderboardPayload struct {
	Round       int                `json:"round"`
	Players     []PlayerView       `json:"players"`
	RoundScores map[string]int     `json:"roundScores"`
	Ranking     []LeaderboardEntry `json:"ranking"`
}

type LeaderboardPayload struct {
	Players []PlayerView       `json:"players"`
	Ranking []LeaderboardEntry `json:"ranking"`
}

// Snapshot is the full observable state of a room, sent as a targeted
// state event whenever an observer (re)joins.
type Snapshot struct {
	Room          string                   `json:"room"`
	Phase         Phase                    `json:"phase"`
	Players       []PlayerView             `json:"players"`
	Staged        int                      `json:"staged"`
	Round         *RoundView               `json:"round,omitempty"`
	Question      *Question                `json:"question,omitempty"`
	EndsAt        int64                    `json:"endsAt,omitempty"`
	Frozen        bool                     `json:"frozen"`
	Remaining     int                      `json:"remaining"`
	VisibleSteps  []Step                   `json:"visibleSteps,omitempty"`
	AllAnswered   bool                     `json:"allAnswered"`
	Revealed      bool                     `json:"revealed"`
	Answer        string                   `json:"answer,omitempty"`
	Title         string                   `json:"title,omitempty"`
	DefaultScores map[string]int           `json:"defaultQuestionScores,omitempty"`
	BuzzerOpen    bool                     `json:"buzzerOpen"`
	Buzzed        *BuzzedPayload           `json:"buzzed,omitempty"`
	LockedOut     []string                 `json:"lockedOut,omitempty"`
	RoundScores   map[string]int           `json:"roundScores,omitempty"`
	LastRound     *RoundLeaderboardPayload `json:"lastRound,omitempty"`
	Final         *LeaderboardPayload      `json:"final,omitempty"`
}

// DecodeEvent turns a wire event back into its typed payload. Unknown
// types are returned with the raw payload untouched.
func DecodeEvent(typ EventType, raw json.RawMessage) (Event, error) {
	var payload any
	switch typ {
	case EventPlayers, EventScoreUpdate:
		payload = &[]PlayerView{}
	case EventRoundStarted:
		payload = &RoundStartedPayload{}
	case EventQuestionStarted:
		payload = &QuestionStartedPayload{}
	case EventSequenceStarted:
		payload = &SequenceStartedPayload{}
	case EventSequenceStepRevealed:
		payload = &SequenceStepRevealedPayload{}
	case EventTick:
		payload = &TickPayload{}
	case EventAllAnswered, EventBuzzerReset, EventRoundEnded:
		payload = &EmptyPayload{}
	case EventPlayerAnswered:
		payload = &PlayerAnsweredPayload{}
	case EventBuzzed:
		payload = &BuzzedPayload{}
	case EventBuzzerLockedOut:
		payload = &BuzzerLockedOutPayload{}
	case EventBuzzerStatus:
		payload = &BuzzerStatusPayload{}
	case EventAnswerRevealed:
		payload = &AnswerRevealedPayload{}
	case EventSequenceAnswerRevealed:
		payload = &SequenceAnswerRevealedPayload{}
	case EventRoundLeaderboard:
		payload = &RoundLeaderboardPayload{}
	case EventFullLeaderboard, EventFinalScoreboard:
		payload = &LeaderboardPayload{}
	case EventState:
		payload = &Snapshot{}
	default:
		return Event{Type: typ, Payload: raw}, nil
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, payload); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", typ, err)
		}
	}
	return Event{Type: typ, Payload: derefPayload(payload)}, nil
}

func derefPayload(p any) any {
	switch v := p.(type) {
	case *[]PlayerView:
		return *v
	case *RoundStartedPayload:
		return *v
	case *QuestionStartedPayload:
		return *v
	case *SequenceStartedPayload:
		return *v
	case *SequenceStepRevealedPayload:
		return *v
	case *TickPayload:
		return *v
	case *EmptyPayload:
		return *v
	case *PlayerAnsweredPayload:
		return *v
	case *BuzzedPayload:
		return *v
	case *BuzzerLockedOutPayload:
		return *v
	case *BuzzerStatusPayload:
		return *v
	case *AnswerRevealedPayload:
		return *v
	case *SequenceAnswerRevealedPayload:
		return *v
	case *RoundLeaderboardPayload:
		return *v
	case *LeaderboardPayload:
		return *v
	case *Snapshot:
		return *v
	}
	return p
}
