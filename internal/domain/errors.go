package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an intent is not legal in the current phase.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrRevealTooEarly is returned when no reveal condition holds yet.
	ErrRevealTooEarly = fmt.Errorf("%w: reveal too early", ErrInvalidState)
	// ErrNotFound is returned for unknown room codes.
	ErrNotFound = errors.New("room not found")
	// ErrRoomClosed is returned for intents against a finished show.
	ErrRoomClosed = errors.New("room is closed")
	// ErrAlreadySubmitted is returned for a second answer on the same question.
	ErrAlreadySubmitted = errors.New("answer already submitted")
	// ErrAlreadyLocked is returned when the buzzer window already has a winner.
	ErrAlreadyLocked = errors.New("buzzer already locked")
	// ErrLockedOut is returned when a player buzzes while individually locked out.
	ErrLockedOut = fmt.Errorf("%w: player is locked out", ErrAlreadyLocked)
	// ErrEmptyQueue is returned when no question is left to start.
	ErrEmptyQueue = errors.New("question queue is empty")
	// ErrNoMoreSteps is returned when every sequence step is already visible.
	ErrNoMoreSteps = errors.New("no more steps to reveal")
	// ErrAllocation is returned when no unused room code could be found.
	ErrAllocation = errors.New("failed to allocate unique room code")
	// ErrForbidden is returned when the caller's role may not issue the intent.
	ErrForbidden = errors.New("not permitted for role")
	// ErrParticipantNotFound is returned when a session id is not in the roster.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrRoomFull is returned when the player cap is reached.
	ErrRoomFull = errors.New("room is full")
	// ErrInvalidQuestion is returned for malformed question payloads.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrInvalidAnswer is returned for answers that are not one of the choices.
	ErrInvalidAnswer = errors.New("invalid answer")
)
