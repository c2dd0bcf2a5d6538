package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"trivia-show-service/internal/app"
	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/game"
)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Notes:
//   - Sessions still live in a local map so the in-process broadcast keeps
//     working; a room is served by the instance that created it.
//   - Codes are reserved with SETNX, so instances sharing the Redis never
//     hand out the same code.
//   - The reservation doubles as a liveness marker whose TTL is refreshed
//     whenever the room emits events (RoomStore is also an app.EventSink).
type RoomStore struct {
	client     *redis.Client
	ttl        time.Duration
	codeLength int
	attempts   int
	generate   game.CodeGenerator

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewRoomStore(client *redis.Client, ttl time.Duration, codeLength, attempts int) *RoomStore {
	return NewRoomStoreWithGenerator(client, ttl, codeLength, attempts, game.NewCode)
}

// NewRoomStoreWithGenerator is test-only for deterministic codes.
func NewRoomStoreWithGenerator(client *redis.Client, ttl time.Duration, codeLength, attempts int, generate game.CodeGenerator) *RoomStore {
	if codeLength <= 0 {
		codeLength = 4
	}
	if attempts <= 0 {
		attempts = 10
	}
	return &RoomStore{
		client:     client,
		ttl:        ttl,
		codeLength: codeLength,
		attempts:   attempts,
		generate:   generate,
		sessions:   make(map[string]*app.Session),
	}
}

func (s *RoomStore) Create(ctx context.Context, build func(code string) *app.Session) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.attempts; i++ {
		code := game.NormalizeCode(s.generate(s.codeLength))
		if _, taken := s.sessions[code]; taken || code == "" {
			continue
		}
		reserved, err := s.client.SetNX(ctx, s.key(code), "1", s.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("reserve room code: %w", err)
		}
		if !reserved {
			continue
		}
		session := build(code)
		s.sessions[code] = session
		return session, nil
	}
	return nil, fmt.Errorf("%w: no free code after %d attempts", domain.ErrAllocation, s.attempts)
}

func (s *RoomStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[game.NormalizeCode(code)]
	return session, ok
}

func (s *RoomStore) Delete(code string) {
	code = game.NormalizeCode(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
	if err := s.client.Del(context.Background(), s.key(code)).Err(); err != nil {
		log.Warn().Err(err).Str("room", code).Msg("release room code")
	}
}

func (s *RoomStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// Publish refreshes the liveness marker of an active room.
func (s *RoomStore) Publish(ctx context.Context, room string, _ []domain.Event) error {
	if s.ttl <= 0 {
		return nil
	}
	return s.client.Expire(ctx, s.key(room), s.ttl).Err()
}

func (s *RoomStore) key(code string) string {
	return "trivia:room:" + code
}
