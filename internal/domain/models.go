package domain

import "time"

// Role is the part an observer plays in a room.
type Role string

const (
	RolePlayer    Role = "player"
	RoleHost      Role = "host"
	RolePresenter Role = "presenter"
)

// ParseRole defaults an empty role to player.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case "", RolePlayer:
		return RolePlayer, true
	case RoleHost:
		return RoleHost, true
	case RolePresenter:
		return RolePresenter, true
	}
	return "", false
}

// Phase is the room lifecycle phase.
type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseRoundActive   Phase = "round_active"
	PhaseBetweenRounds Phase = "between_rounds"
	PhaseFinished      Phase = "finished"
)

// Player is a roster entry. Host and presenter entries never carry scores.
type Player struct {
	ID          string
	Name        string
	Role        Role
	Score       int
	Connected   bool
	JoinedAt    time.Time
	LastUpdated time.Time
}

// PlayerView is the wire form of a roster entry.
type PlayerView struct {
	ID        string `json:"sid"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
	Submitted bool   `json:"submitted,omitempty"`
	LockedOut bool   `json:"lockedOut,omitempty"`
}

// LeaderboardEntry is one ranked line of a leaderboard.
type LeaderboardEntry struct {
	ID     string `json:"sid"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// RoundView describes the active round to observers.
type RoundView struct {
	Number    int          `json:"number"`
	Type      QuestionType `json:"type"`
	Total     int          `json:"total"`
	Remaining int          `json:"remaining"`
	EndsAt    int64        `json:"endsAt,omitempty"`
}

// UnixMillis converts a deadline into the wire form; zero stays zero.
func UnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMillis is the inverse of UnixMillis.
func FromUnixMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
