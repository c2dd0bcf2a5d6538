package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"trivia-show-service/internal/domain"
)

// QuestionLoader fetches the ordered bank of one question type from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, typ domain.QuestionType) ([]domain.Question, error)
}

// QuestionBank caches each type's bank in Redis as one JSON string and
// falls back to a loader on cache miss:
//
//	SET trivia:questions:{type} [...] EX ttl
type QuestionBank struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionBank(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
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
	return bank, nil
}

func (b *QuestionBank) bank(ctx context.Context, typ domain.QuestionType) ([]domain.Question, error) {
	key := b.key(typ)
	if bank, ok := b.cached(ctx, key); ok {
		return bank, nil
	}

	result, err, _ := b.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if bank, ok := b.cached(ctx, key); ok {
			return bank, nil
		}

		bank, err := b.loader.LoadQuestions(ctx, typ)
		if err != nil {
			return nil, err
		}
		for i := range bank {
			if err := bank[i].Validate(); err != nil {
				return nil, fmt.Errorf("bank %s: %w", typ, err)
			}
		}

		raw, err := json.Marshal(bank)
		if err != nil {
			return nil, fmt.Errorf("marshal bank: %w", err)
		}
		if err := b.client.Set(ctx, key, raw, b.ttlWithJitter()).Err(); err != nil {
			log.Warn().Err(err).Str("type", string(typ)).Msg("cache question bank")
		}
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), result.([]domain.Question)...), nil
}

func (b *QuestionBank) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("read question cache")
		}
		return nil, false
	}
	var bank []domain.Question
	if err := json.Unmarshal(raw, &bank); err != nil || len(bank) == 0 {
		return nil, false
	}
	return bank, true
}

// Invalidate drops the cached bank of typ, e.g. after seeding.
func (b *QuestionBank) Invalidate(ctx context.Context, typ domain.QuestionType) error {
	return b.client.Del(ctx, b.key(typ)).Err()
}

func (b *QuestionBank) key(typ domain.QuestionType) string {
	return "trivia:questions:" + string(typ)
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
