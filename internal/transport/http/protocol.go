package http

import (
	"encoding/json"
	"errors"

	"trivia-show-service/internal/auth"
	"trivia-show-service/internal/domain"
)

// Intents a client may send.
const (
	intentCreateRoom           = "createRoom"
	intentJoinRoom             = "joinRoom"
	intentGetQuestions         = "getQuestions"
	intentStartRound           = "startRound"
	intentStartQuestion        = "startQuestion"
	intentRevealAnswer         = "revealAnswer"
	intentConfirmPoints        = "confirmPoints"
	intentEndRound             = "endRound"
	intentShowFullLeaderboard  = "showFullLeaderboard"
	intentEndShow              = "endShow"
	intentResetBuzzer          = "resetBuzzer"
	intentRevealNextStep       = "revealNextStep"
	intentRevealSequenceAnswer = "revealSequenceAnswer"
	intentSubmitAnswer         = "submitAnswer"
	intentBuzz                 = "buzz"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ackPayload answers exactly one intent. Rejections carry a stable reason
// code and never arrive as a broadcast.
type ackPayload struct {
	ID     string `json:"id,omitempty"`
	Intent string `json:"intent"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

type joinPayload struct {
	Room  string `json:"room"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Token string `json:"token,omitempty"`
}

type joinResult struct {
	Room  string        `json:"room"`
	SID   string        `json:"sid"`
	Role  domain.Role   `json:"role"`
	Token string        `json:"token"`
	Self  domain.Player `json:"self"`
}

type createResult struct {
	Room string `json:"room"`
}

type getQuestionsPayload struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type startRoundPayload struct {
	RoundType string `json:"roundType"`
}

type startQuestionPayload struct {
	Question json.RawMessage `json:"question,omitempty"`
}

type confirmPointsPayload struct {
	Overrides map[string]int `json:"overrides"`
}

type confirmResult struct {
	Applied   map[string]int `json:"applied"`
	Exhausted bool           `json:"roundExhausted"`
}

type submitAnswerPayload struct {
	Answer string `json:"answer"`
}

type revealStepResult struct {
	RevealedStepIndex int `json:"revealedStepIndex"`
}

type revealResult struct {
	DefaultQuestionScores map[string]int `json:"defaultQuestionScores"`
}

var errBadRequest = errors.New("bad request")

// Reason codes sent in rejected acks.
const (
	reasonInvalidState     = "invalid_state"
	reasonEarly            = "early"
	reasonNotFound         = "not_found"
	reasonRoomClosed       = "room_closed"
	reasonAlreadySubmitted = "already_submitted"
	reasonAlreadyLocked    = "already_locked"
	reasonLockedOut        = "locked_out"
	reasonEmptyQueue       = "empty_queue"
	reasonNoMoreSteps      = "no_more_steps"
	reasonAllocation       = "allocation"
	reasonForbidden        = "forbidden"
	reasonNotJoined        = "not_joined"
	reasonRoomFull         = "room_full"
	reasonBadRequest       = "bad_request"
	reasonInternal         = "internal"
)

// reasonFor maps an intent error to its reason code. More specific
// sentinels are checked before the ones they wrap.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrRevealTooEarly):
		return reasonEarly
	case errors.Is(err, domain.ErrInvalidState):
		return reasonInvalidState
	case errors.Is(err, domain.ErrNotFound):
		return reasonNotFound
	case errors.Is(err, domain.ErrRoomClosed):
		return reasonRoomClosed
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return reasonAlreadySubmitted
	case errors.Is(err, domain.ErrLockedOut):
		return reasonLockedOut
	case errors.Is(err, domain.ErrAlreadyLocked):
		return reasonAlreadyLocked
	case errors.Is(err, domain.ErrEmptyQueue):
		return reasonEmptyQueue
	case errors.Is(err, domain.ErrNoMoreSteps):
		return reasonNoMoreSteps
	case errors.Is(err, domain.ErrAllocation):
		return reasonAllocation
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, auth.ErrInvalidToken):
		return reasonForbidden
	case errors.Is(err, domain.ErrParticipantNotFound):
		return reasonNotJoined
	case errors.Is(err, domain.ErrRoomFull):
		return reasonRoomFull
	case errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, errBadRequest):
		return reasonBadRequest
	}
	return reasonInternal
}

func ack(msg inboundMessage, result any, err error) outboundMessage[any] {
	p := ackPayload{ID: msg.ID, Intent: msg.Type, OK: err == nil, Result: result}
	if err != nil {
		p.Result = nil
		p.Reason = reasonFor(err)
		p.Error = err.Error()
	}
	return outboundMessage[any]{Type: "ack", Payload: p}
}

func eventMessage(ev domain.Event) outboundMessage[any] {
	return outboundMessage[any]{Type: string(ev.Type), Payload: ev.Payload}
}
