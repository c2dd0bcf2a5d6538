package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"trivia-show-service/internal/app"
	"trivia-show-service/internal/domain"
	"trivia-show-service/internal/game"
	"trivia-show-service/internal/infra/memory"
)

func newService(t *testing.T, opts app.Options) *app.ShowService {
	t.Helper()
	rooms := memory.NewRoomStore(4, 10)
	bank := memory.NewQuestionBank(memory.NewSampleQuestionLoader(), time.Minute)
	return app.NewShowService(rooms, bank, opts)
}

// newShow creates a room with a host and the given players.
func newShow(t *testing.T, svc *app.ShowService, players ...string) string {
	t.Helper()
	ctx := context.Background()
	code, err := svc.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, _, _, err := svc.Join(ctx, code, "host", "", domain.RoleHost); err != nil {
		t.Fatalf("join host: %v", err)
	}
	for _, id := range players {
		if _, _, _, err := svc.Join(ctx, code, id, "name-"+id, domain.RolePlayer); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	return code
}

func startQuestion(t *testing.T, svc *app.ShowService, code string, typ domain.QuestionType) domain.Question {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.LoadQuestions(ctx, code, "host", typ, 1); err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if _, err := svc.StartRound(ctx, code, "host", typ); err != nil {
		t.Fatalf("start round: %v", err)
	}
	q, err := svc.StartQuestion(ctx, code, "host", "")
	if err != nil {
		t.Fatalf("start question: %v", err)
	}
	return q
}

// next waits for the next event of typ on sub.
func next(t *testing.T, sub *app.Subscription, typ domain.EventType) domain.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("subscription closed waiting for %s", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func drain(sub *app.Subscription) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestConcurrentBuzzHasOneWinner(t *testing.T) {
	svc := newService(t, app.Options{})
	players := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	code := newShow(t, svc, players...)
	startQuestion(t, svc, code, domain.QuestionBuzzer)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		start   = make(chan struct{})
	)
	for _, id := range players {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			err := svc.Buzz(context.Background(), code, id)
			if err != nil && !app.IsContention(err) {
				t.Errorf("unexpected buzz error for %s: %v", id, err)
				return
			}
			if err == nil {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}(id)
	}
	close(start)
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	snap, err := svc.Snapshot(context.Background(), code, "host")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Buzzed == nil || snap.Buzzed.ID != winners[0] {
		t.Fatalf("snapshot winner %+v does not match %s", snap.Buzzed, winners[0])
	}
}

func TestJoinDeliversRosterThenPrivateState(t *testing.T) {
	svc := newService(t, app.Options{})
	code := newShow(t, svc)

	_, sub, cancel, err := svc.Join(context.Background(), code, "p1", "Ann", domain.RolePlayer)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer cancel()

	events := drain(sub)
	if len(events) != 2 || events[0].Type != domain.EventPlayers || events[1].Type != domain.EventState {
		t.Fatalf("expected players then state, got %+v", events)
	}
	snap := events[1].Payload.(domain.Snapshot)
	if snap.Room != code || len(snap.Players) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestRejectedIntentEmitsNothing(t *testing.T) {
	svc := newService(t, app.Options{})
	code := newShow(t, svc)
	ctx := context.Background()
	_, hostSub, cancel, err := svc.Join(ctx, code, "host", "", domain.RoleHost)
	if err != nil {
		t.Fatalf("rejoin host: %v", err)
	}
	defer cancel()
	_, _, playerCancel, err := svc.Join(ctx, code, "p1", "Ann", domain.RolePlayer)
	if err != nil {
		t.Fatalf("join player: %v", err)
	}
	defer playerCancel()
	drain(hostSub)

	if err := svc.SubmitAnswer(ctx, code, "p1", "x"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState without a question, got %v", err)
	}
	if _, err := svc.StartRound(ctx, code, "p1", domain.QuestionMC); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if events := drain(hostSub); len(events) != 0 {
		t.Fatalf("rejected intents must not publish, got %+v", events)
	}
}

func TestLoadQuestionsValidation(t *testing.T) {
	svc := newService(t, app.Options{})
	code := newShow(t, svc, "p1")
	ctx := context.Background()

	if _, err := svc.LoadQuestions(ctx, code, "host", domain.QuestionMC, 0); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for count 0, got %v", err)
	}
	if _, err := svc.LoadQuestions(ctx, "NOPE", "host", domain.QuestionMC, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	qs, err := svc.LoadQuestions(ctx, code, "host", domain.QuestionMC, 2)
	if err != nil || len(qs) != 2 || qs[0].ID != "mc-capital-au" {
		t.Fatalf("expected the first two sample questions, got %+v (%v)", qs, err)
	}
	if _, err := svc.LoadQuestions(ctx, code, "p1", domain.QuestionMC, 1); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("players cannot load questions, got %v", err)
	}
}

func TestTickerPublishesCountdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := newService(t, app.Options{Clock: clock, TickInterval: time.Second})
	code := newShow(t, svc)
	ctx := context.Background()
	_, sub, cancel, err := svc.Join(ctx, code, "p1", "Ann", domain.RolePlayer)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer cancel()

	startQuestion(t, svc, code, domain.QuestionMC)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("ticker never started: %v", err)
	}
	clock.Advance(time.Second)
	tick := next(t, sub, domain.EventTick).Payload.(domain.TickPayload)
	if tick.Remaining != 19 {
		t.Fatalf("expected 19s remaining, got %d", tick.Remaining)
	}

	if err := svc.SubmitAnswer(ctx, code, "p1", "Canberra"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	next(t, sub, domain.EventAllAnswered)
	// the clock is stopped, further time produces no ticks
	clock.Advance(3 * time.Second)
	time.Sleep(20 * time.Millisecond)
	for _, ev := range drain(sub) {
		if ev.Type == domain.EventTick {
			t.Fatalf("unexpected tick after every player answered")
		}
	}
}

func TestLeaveKeepsSessionWhileAnotherConnectionServesIt(t *testing.T) {
	svc := newService(t, app.Options{})
	code := newShow(t, svc)
	ctx := context.Background()

	_, _, first, err := svc.Join(ctx, code, "p1", "Ann", domain.RolePlayer)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	_, _, second, err := svc.Join(ctx, code, "p1", "", domain.RolePlayer)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}

	first()
	snap, _ := svc.Snapshot(ctx, code, "host")
	if !snap.Players[0].Connected {
		t.Fatalf("player should stay connected through the second connection")
	}
	second()
	snap, _ = svc.Snapshot(ctx, code, "host")
	if snap.Players[0].Connected || snap.Players[0].Name != "Ann" {
		t.Fatalf("expected disconnected Ann, got %+v", snap.Players[0])
	}
}

func TestReapRemovesIdleRooms(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := newService(t, app.Options{Clock: clock, IdleGrace: time.Minute})
	ctx := context.Background()

	code, err := svc.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _, cancel, err := svc.Join(ctx, code, "host", "", domain.RoleHost)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	clock.Advance(5 * time.Minute)
	if n := svc.Reap(clock.Now()); n != 0 {
		t.Fatalf("connected rooms must survive, reaped %d", n)
	}

	cancel()
	clock.Advance(30 * time.Second)
	if n := svc.Reap(clock.Now()); n != 0 {
		t.Fatalf("room reaped inside the grace period")
	}
	clock.Advance(time.Minute)
	if n := svc.Reap(clock.Now()); n != 1 {
		t.Fatalf("expected the idle room to be reaped, got %d", n)
	}
	if _, err := svc.Snapshot(ctx, code, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after reaping, got %v", err)
	}
}

func TestReapFinishedRoomImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := newService(t, app.Options{Clock: clock, IdleGrace: time.Hour})
	ctx := context.Background()
	code, _ := svc.CreateRoom(ctx)
	_, _, cancel, err := svc.Join(ctx, code, "host", "", domain.RoleHost)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.EndShow(ctx, code, "host"); err != nil {
		t.Fatalf("end show: %v", err)
	}
	cancel()
	if n := svc.Reap(clock.Now()); n != 1 {
		t.Fatalf("a finished room nobody watches should go at once, got %d", n)
	}
}

type recordingSink struct {
	batches chan []domain.Event
}

func (s *recordingSink) Publish(_ context.Context, _ string, events []domain.Event) error {
	select {
	case s.batches <- events:
	default:
	}
	return nil
}

func TestRunForwardsBatchesToSinks(t *testing.T) {
	sink := &recordingSink{batches: make(chan []domain.Event, 16)}
	svc := newService(t, app.Options{Clock: clockwork.NewFakeClock(), Sinks: []app.EventSink{sink}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	code := newShow(t, svc, "p1")
	startQuestion(t, svc, code, domain.QuestionBuzzer)
	if err := svc.Buzz(ctx, code, "p1"); err != nil {
		t.Fatalf("buzz: %v", err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case batch := <-sink.batches:
			for _, ev := range batch {
				if ev.Type == domain.EventBuzzed {
					return
				}
			}
		case <-timeout:
			t.Fatalf("sink never saw the buzz")
		}
	}
}

func TestResetBuzzerThroughService(t *testing.T) {
	svc := newService(t, app.Options{})
	code := newShow(t, svc, "p1", "p2")
	startQuestion(t, svc, code, domain.QuestionBuzzer)
	ctx := context.Background()

	if err := svc.Buzz(ctx, code, "p1"); err != nil {
		t.Fatalf("buzz: %v", err)
	}
	all := false
	if err := svc.ResetBuzzer(ctx, code, "host", game.ResetOptions{All: &all}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := svc.Buzz(ctx, code, "p1"); !errors.Is(err, domain.ErrLockedOut) {
		t.Fatalf("expected ErrLockedOut, got %v", err)
	}
	if err := svc.Buzz(ctx, code, "p2"); err != nil {
		t.Fatalf("p2 buzz: %v", err)
	}
}
