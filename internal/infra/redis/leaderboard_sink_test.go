package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"trivia-show-service/internal/domain"
)

func TestLeaderboardSinkMirrorsScoreUpdates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	sink := NewLeaderboardSink(newClient(mr), time.Hour)
	ctx := context.Background()

	ignored := []domain.Event{{Type: domain.EventPlayers, Payload: []domain.PlayerView{{ID: "p1", Name: "Ann", Score: 99}}}}
	if err := sink.Publish(ctx, "ABCD", ignored); err != nil {
		t.Fatalf("publish roster: %v", err)
	}
	if mr.Exists("trivia:room:ABCD:lb") {
		t.Fatalf("roster events must not touch the leaderboard")
	}

	update := []domain.Event{{Type: domain.EventScoreUpdate, Payload: []domain.PlayerView{
		{ID: "p1", Name: "Ann", Score: 10},
		{ID: "p2", Name: "Bob", Score: 30},
	}}}
	if err := sink.Publish(ctx, "ABCD", update); err != nil {
		t.Fatalf("publish update: %v", err)
	}

	final := []domain.Event{{Type: domain.EventFinalScoreboard, Payload: domain.LeaderboardPayload{Players: []domain.PlayerView{
		{ID: "p1", Name: "Ann", Score: 40},
		{ID: "p2", Name: "Bob", Score: 30},
	}}}}
	if err := sink.Publish(ctx, "ABCD", final); err != nil {
		t.Fatalf("publish final: %v", err)
	}

	top, err := sink.Top(ctx, "ABCD", 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].PlayerID != "p1" || top[0].Name != "Ann" || top[0].Score != 40 || top[0].Rank != 1 {
		t.Fatalf("unexpected leader: %+v", top[0])
	}
	if top[1].PlayerID != "p2" || top[1].Score != 30 {
		t.Fatalf("unexpected runner-up: %+v", top[1])
	}
}
