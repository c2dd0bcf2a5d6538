package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"trivia-show-service/internal/domain"
)

// QuestionLoader fetches the ordered bank of one question type from a
// backing store (Postgres, Mongo, a YAML file).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, typ domain.QuestionType) ([]domain.Question, error)
}

// QuestionBank caches each type's bank with TTL to avoid repeated store hits.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  clockwork.Clock
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[domain.QuestionType]cachedBank
}

type cachedBank struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return NewQuestionBankWithClock(loader, ttl, clockwork.NewRealClock())
}

// NewQuestionBankWithClock is test-only for deterministic expiry.
func NewQuestionBankWithClock(loader QuestionLoader, ttl time.Duration, clock clockwork.Clock) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  clock,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[domain.QuestionType]cachedBank),
	}
}

// Questions returns up to count questions of typ in bank order.
func (b *QuestionBank) Questions(ctx context.Context, typ domain.QuestionType, count int) ([]domain.Question, error) {
	bank, err := b.bank(ctx, typ)
	if err != nil {
		return nil, err
	}
	if count > 0 && count < len(bank) {
		bank = bank[:count]
	}
	return append([]domain.Question(nil), bank...), nil
}

func (b *QuestionBank) bank(ctx context.Context, typ domain.QuestionType) ([]domain.Question, error) {
	if bank, ok := b.cached(typ); ok {
		return bank, nil
	}

	result, err, _ := b.sf.Do(string(typ), func() (interface{}, error) {
		if bank, ok := b.cached(typ); ok {
			return bank, nil
		}

		bank, err := b.loader.LoadQuestions(ctx, typ)
		if err != nil {
			return nil, err
		}
		valid, err := validateBank(typ, bank)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.cache[typ] = cachedBank{
			questions: valid,
			expiresAt: b.clock.Now().Add(b.ttlWithJitter()),
		}
		b.mu.Unlock()
		return valid, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) cached(typ domain.QuestionType) ([]domain.Question, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.cache[typ]
	if !ok || !entry.expiresAt.After(b.clock.Now()) {
		return nil, false
	}
	return entry.questions, true
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

func validateBank(typ domain.QuestionType, bank []domain.Question) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(bank))
	for _, q := range bank {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("bank %s: %w", typ, err)
		}
		if q.Type != typ {
			return nil, fmt.Errorf("%w: bank %s holds %s question %s", domain.ErrInvalidQuestion, typ, q.Type, q.ID)
		}
		out = append(out, q)
	}
	return out, nil
}

// StaticQuestionLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	banks map[domain.QuestionType][]domain.Question
}

func NewStaticQuestionLoader(banks map[domain.QuestionType][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{banks: banks}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, typ domain.QuestionType) ([]domain.Question, error) {
	if bank, ok := l.banks[typ]; ok && len(bank) > 0 {
		return bank, nil
	}
	return nil, fmt.Errorf("%w: no %s questions", domain.ErrEmptyQueue, typ)
}

// ChainLoader asks each loader in turn and returns the first non-empty bank.
type ChainLoader []QuestionLoader

func (c ChainLoader) LoadQuestions(ctx context.Context, typ domain.QuestionType) ([]domain.Question, error) {
	var lastErr error
	for _, loader := range c {
		bank, err := loader.LoadQuestions(ctx, typ)
		if err != nil {
			lastErr = err
			continue
		}
		if len(bank) > 0 {
			return bank, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: no %s questions", domain.ErrEmptyQueue, typ)
}
