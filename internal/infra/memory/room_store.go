package memory

import (
	"context"
	"fmt"
	"sync"

	"trivia-show-service/internal/app"
	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/game"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
type RoomStore struct {
	codeLength int
	attempts   int
	generate   game.CodeGenerator

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewRoomStore(codeLength, attempts int) *RoomStore {
	return NewRoomStoreWithGenerator(codeLength, attempts, game.NewCode)
}

// NewRoomStoreWithGenerator is test-only for deterministic codes.
func NewRoomStoreWithGenerator(codeLength, attempts int, generate game.CodeGenerator) *RoomStore {
	if codeLength <= 0 {
		codeLength = 4
	}
	if attempts <= 0 {
		attempts = 10
	}
	return &RoomStore{
		codeLength: codeLength,
		attempts:   attempts,
		generate:   generate,
		sessions:   make(map[string]*app.Session),
	}
}

func (s *RoomStore) Create(_ context.Context, build func(code string) *app.Session) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.attempts; i++ {
		code := game.NormalizeCode(s.generate(s.codeLength))
		if _, taken := s.sessions[code]; taken || code == "" {
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
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, game.NormalizeCode(code))
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
