package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-show-service/internal/domain"
)

// LeaderboardEntry is one row read back from the exported leaderboard.
type LeaderboardEntry struct {
	PlayerID string `json:"sid"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// LeaderboardSink mirrors committed cumulative scores into a ZSET per room.
// It implements app.EventSink and only reacts to scoreUpdate and
// finalScoreboard.
type LeaderboardSink struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardSink(client *redis.Client, ttl time.Duration) *LeaderboardSink {
	return &LeaderboardSink{client: client, ttl: ttl}
}

func (s *LeaderboardSink) Publish(ctx context.Context, room string, events []domain.Event) error {
	var players []domain.PlayerView
	for _, ev := range events {
		switch p := ev.Payload.(type) {
		case []domain.PlayerView:
			if ev.Type == domain.EventScoreUpdate {
				players = p
			}
		case domain.LeaderboardPayload:
			if ev.Type == domain.EventFinalScoreboard {
				players = p.Players
			}
		}
	}
	if players == nil {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, p := range players {
		pipe.ZAdd(ctx, s.key(room), redis.Z{Score: float64(p.Score), Member: p.ID})
		pipe.HSet(ctx, s.namesKey(room), p.ID, p.Name)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(room), s.ttl)
		pipe.Expire(ctx, s.namesKey(room), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Top reads back the highest scores of room.
func (s *LeaderboardSink) Top(ctx context.Context, room string, limit int) ([]LeaderboardEntry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, s.key(room), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	names, err := s.client.HGetAll(ctx, s.namesKey(room)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, len(results))
	for i, z := range results {
		id, _ := z.Member.(string)
		entries[i] = LeaderboardEntry{
			PlayerID: id,
			Name:     names[id],
			Score:    int(z.Score),
			Rank:     i + 1,
		}
	}
	return entries, nil
}

func (s *LeaderboardSink) key(room string) string {
	return fmt.Sprintf("trivia:room:%s:lb", room)
}

func (s *LeaderboardSink) namesKey(room string) string {
	return fmt.Sprintf("trivia:room:%s:names", room)
}
