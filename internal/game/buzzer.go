package game

import "trivia-show-service/internal/domain"

// ResetOptions selects the buzzer reset policy. All nil means "clear
// everything".
type ResetOptions struct {
	All           *bool `json:"all,omitempty"`
	PreserveLocks bool  `json:"preserveLocks,omitempty"`
}

// clearsAll reports the no-flags policy: every lock is cleared.
func (o ResetOptions) clearsAll() bool {
	return o.All == nil || *o.All
}

// Arbiter resolves buzz races for one question. The window is open until
// the first accepted buzz; from then every other player is locked out until
// a reset reopens the window. Individual locks survive resets according to
// the reset policy.
type Arbiter struct {
	open       bool
	winner     string
	lastWinner string
	buzzed     bool
	locked     map[string]bool
}

// NewArbiter returns an arbiter with an open window and no locks.
func NewArbiter() *Arbiter {
	return &Arbiter{open: true, locked: make(map[string]bool)}
}

// Buzz records an attempt by playerID. The first attempt in an open window
// wins; any later attempt fails with ErrAlreadyLocked. A player locked out
// by an earlier reset fails with ErrLockedOut even while the window is open.
func (a *Arbiter) Buzz(playerID string) error {
	if a.locked[playerID] {
		return domain.ErrLockedOut
	}
	if !a.open {
		return domain.ErrAlreadyLocked
	}
	a.open = false
	a.winner = playerID
	a.lastWinner = playerID
	a.buzzed = true
	return nil
}

// Reset reopens the window.
//
//	{}                                 clear every lock
//	{all:false}                        clear every lock except the last winner, who stays locked
//	{all:false, preserveLocks:true}    keep existing locks, do not lock the last winner
func (a *Arbiter) Reset(opts ResetOptions) {
	switch {
	case opts.clearsAll():
		a.locked = make(map[string]bool)
	case opts.PreserveLocks:
		// existing individual locks stay, the winner is not penalized
	default:
		a.locked = make(map[string]bool)
		if a.lastWinner != "" {
			a.locked[a.lastWinner] = true
		}
	}
	a.open = true
	a.winner = ""
}

// Open reports whether a buzz would currently be accepted from an
// unlocked player.
func (a *Arbiter) Open() bool { return a.open }

// Winner is the player holding the current window, if any.
func (a *Arbiter) Winner() string { return a.winner }

// LastWinner is the most recent winner, kept across resets.
func (a *Arbiter) LastWinner() string { return a.lastWinner }

// HasBuzzed reports whether any buzz was accepted on this question.
func (a *Arbiter) HasBuzzed() bool { return a.buzzed }

// IndividuallyLocked reports a lock that persists across the window.
func (a *Arbiter) IndividuallyLocked(playerID string) bool { return a.locked[playerID] }

// LockedOut reports whether playerID cannot buzz right now, either
// because another player holds the window or because of an individual lock.
func (a *Arbiter) LockedOut(playerID string) bool {
	if a.locked[playerID] {
		return true
	}
	return !a.open && a.winner != playerID
}

// Locks lists the individually locked players in the given order.
func (a *Arbiter) Locks(order []string) []string {
	var out []string
	for _, id := range order {
		if a.locked[id] {
			out = append(out, id)
		}
	}
	return out
}
