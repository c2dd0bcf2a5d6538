package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"trivia-show-service/internal/domain"
)

var ErrInvalidToken = errors.New("invalid or expired session token")

// SessionClaims bind an observer session id to one room and role.
type SessionClaims struct {
	Room string      `json:"room"`
	SID  string      `json:"sid"`
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies room-scoped session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewIssuer(secret string, ttl time.Duration, clock clockwork.Clock) *Issuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clock}
}

// NewSessionID returns a fresh observer session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Issue signs a token that lets sid re-announce itself in room.
func (i *Issuer) Issue(room, sid string, role domain.Role) (string, error) {
	now := i.clock.Now()
	claims := &SessionClaims{
		Room: room,
		SID:  sid,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse verifies the token and that it was issued for room.
func (i *Issuer) Parse(room, token string) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.clock.Now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || claims.SID == "" || claims.Room != room {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
