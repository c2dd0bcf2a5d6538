package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trivia-show-service/internal/app"
	"trivia-show-service/internal/domain"
)

func TestRoomStoreReservesAndReleasesCodes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewRoomStoreWithGenerator(newClient(mr), time.Minute, 4, 10, func(int) string { return "abcd" })

	session, err := store.Create(context.Background(), app.NewSession)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Code() != "ABCD" {
		t.Fatalf("expected normalized code, got %q", session.Code())
	}
	if !mr.Exists("trivia:room:ABCD") {
		t.Fatalf("expected redis reservation to be set")
	}

	store.Delete("abcd")
	if mr.Exists("trivia:room:ABCD") {
		t.Fatalf("expected redis reservation to be removed")
	}
	if _, ok := store.Get("ABCD"); ok {
		t.Fatalf("expected session removed")
	}
}

func TestRoomStoreSkipsCodesReservedElsewhere(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	// another instance holds WXYZ
	if err := mr.Set("trivia:room:WXYZ", "1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	codes := []string{"WXYZ", "WXYZ", "QRST"}
	i := 0
	store := NewRoomStoreWithGenerator(newClient(mr), time.Minute, 4, 5, func(int) string {
		code := codes[i%len(codes)]
		i++
		return code
	})

	session, err := store.Create(context.Background(), app.NewSession)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Code() != "QRST" {
		t.Fatalf("expected QRST, got %q", session.Code())
	}

	full := NewRoomStoreWithGenerator(newClient(mr), time.Minute, 4, 3, func(int) string { return "WXYZ" })
	if _, err := full.Create(context.Background(), app.NewSession); !errors.Is(err, domain.ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
}

func TestRoomStoreRefreshesLiveness(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewRoomStoreWithGenerator(newClient(mr), time.Minute, 4, 1, func(int) string { return "LIVE" })
	if _, err := store.Create(context.Background(), app.NewSession); err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(50 * time.Second)
	if err := store.Publish(context.Background(), "LIVE", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	mr.FastForward(50 * time.Second)
	if !mr.Exists("trivia:room:LIVE") {
		t.Fatalf("expected liveness marker to be refreshed")
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
